package search

import (
	"reflect"
	"testing"
)

func TestTokenize_Basic(t *testing.T) {
	tok := Tokenizer{}
	got := tok.Tokenize("Hello, World! This is   a test.")
	want := []string{"hello", "world", "this", "is", "a", "test"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize = %v, want %v", got, want)
	}
}

func TestTokenize_Empty(t *testing.T) {
	tok := Tokenizer{}
	for _, in := range []string{"", "   ", "\t\n", "...!?"} {
		if got := tok.Tokenize(in); len(got) != 0 {
			t.Errorf("Tokenize(%q) = %v, want empty", in, got)
		}
	}
}

func TestTokenize_TagTokens(t *testing.T) {
	tok := Tokenizer{}
	got := tok.Tokenize("meeting notes #Work/Projects and #urgent!")
	want := []string{"meeting", "notes", "#work/projects", "and", "#urgent"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize = %v, want %v", got, want)
	}
}

func TestTokenize_BareMarkerDropped(t *testing.T) {
	tok := Tokenizer{}
	got := tok.Tokenize("# # heading")
	want := []string{"heading"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize = %v, want %v", got, want)
	}
}

func TestTokenize_MarkerInsideWordSplits(t *testing.T) {
	tok := Tokenizer{}
	got := tok.Tokenize("c#minor")
	want := []string{"c", "minor"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize = %v, want %v", got, want)
	}
}

func TestTokenize_CaseSensitive(t *testing.T) {
	tok := Tokenizer{CaseSensitive: true}
	got := tok.Tokenize("Hello World")
	want := []string{"Hello", "World"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize = %v, want %v", got, want)
	}
}

func TestTokenize_Deterministic(t *testing.T) {
	tok := Tokenizer{}
	const in = "Bear hunting in the #forest, again and again."
	first := tok.Tokenize(in)
	for i := 0; i < 5; i++ {
		if got := tok.Tokenize(in); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d: Tokenize = %v, want %v", i, got, first)
		}
	}
}

func TestIsTagToken(t *testing.T) {
	if !IsTagToken("#work") {
		t.Error("IsTagToken(#work) = false")
	}
	if IsTagToken("work") || IsTagToken("") {
		t.Error("non-tag input reported as tag token")
	}
}
