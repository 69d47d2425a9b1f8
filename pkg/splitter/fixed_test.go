package splitter

import (
	"context"
	"strings"
	"testing"

	"github.com/MrWong99/sandakan/pkg/domain"
)

// TestFixed_EmptyInput verifies empty text yields zero chunks.
func TestFixed_EmptyInput(t *testing.T) {
	f, err := NewFixed(10, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	chunks, err := f.Split(context.Background(), "", domain.NewDocumentID())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("expected 0 chunks, got %d", len(chunks))
	}
}

// TestFixed_WindowsAndStride verifies window size, stride, and offsets.
func TestFixed_WindowsAndStride(t *testing.T) {
	f, _ := NewFixed(4, 1)
	chunks, err := f.Split(context.Background(), "abcdefgh", domain.NewDocumentID())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// stride 3: offsets 0, 3, 6
	wantTexts := []string{"abcd", "defg", "gh"}
	wantOffsets := []int{0, 3, 6}
	if len(chunks) != len(wantTexts) {
		t.Fatalf("expected %d chunks, got %d", len(wantTexts), len(chunks))
	}
	for i, c := range chunks {
		if c.Text != wantTexts[i] || c.Offset != wantOffsets[i] {
			t.Errorf("chunk %d: got (%q, %d), want (%q, %d)", i, c.Text, c.Offset, wantTexts[i], wantOffsets[i])
		}
	}
}

// TestFixed_OverlapAtLeastSize verifies the stride degrades to chunk size and
// the walk still covers the whole input.
func TestFixed_OverlapAtLeastSize(t *testing.T) {
	f, _ := NewFixed(3, 5)
	text := "abcdefghij"
	chunks, err := f.Split(context.Background(), text, domain.NewDocumentID())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var rebuilt strings.Builder
	for _, c := range chunks {
		rebuilt.WriteString(c.Text)
	}
	if rebuilt.String() != text {
		t.Errorf("chunks do not cover input: got %q", rebuilt.String())
	}
}

// TestFixed_CodePointWindows verifies windows are measured in runes, not bytes.
func TestFixed_CodePointWindows(t *testing.T) {
	f, _ := NewFixed(2, 0)
	chunks, err := f.Split(context.Background(), "äöüß", domain.NewDocumentID())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Text != "äö" || chunks[1].Text != "üß" {
		t.Errorf("got %q + %q", chunks[0].Text, chunks[1].Text)
	}
}

// TestFixed_Deterministic verifies re-splitting identical input reproduces
// identical chunk texts.
func TestFixed_Deterministic(t *testing.T) {
	f, _ := NewFixed(5, 2)
	text := "the quick brown fox jumps over the lazy dog"
	first, err := f.Split(context.Background(), text, domain.NewDocumentID())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := f.Split(context.Background(), text, domain.NewDocumentID())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Text != second[i].Text {
			t.Errorf("chunk %d differs: %q vs %q", i, first[i].Text, second[i].Text)
		}
	}
}

// TestFixed_InvalidSize verifies a non-positive chunk size is rejected.
func TestFixed_InvalidSize(t *testing.T) {
	if _, err := NewFixed(0, 0); err == nil {
		t.Fatal("expected error for zero chunk size")
	}
	if _, err := NewFixed(10, -1); err == nil {
		t.Fatal("expected error for negative overlap")
	}
}

// TestNew_UnknownStrategy verifies the factory rejects unknown strategies.
func TestNew_UnknownStrategy(t *testing.T) {
	if _, err := New("recursive", 100, 10); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}

// TestNew_Fixed verifies the factory builds a fixed splitter.
func TestNew_Fixed(t *testing.T) {
	s, err := New(StrategyFixed, 100, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := s.(*Fixed); !ok {
		t.Errorf("expected *Fixed, got %T", s)
	}
}
