package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestSummarizeVotes(t *testing.T) {
	s := summarizeVotes([]byte("AABCAC\nx"))
	if s.Total != 6 {
		t.Fatalf("total=%d want 6", s.Total)
	}
	if s.Counts['A'] != 3 || s.Counts['B'] != 1 || s.Counts['C'] != 2 {
		t.Fatalf("counts=%v", s.Counts)
	}
	if s.Invalid != 2 {
		t.Fatalf("invalid=%d want 2", s.Invalid)
	}
}

func TestSummarizeVotes_Empty(t *testing.T) {
	s := summarizeVotes(nil)
	if s.Total != 0 || s.Invalid != 0 {
		t.Fatalf("summary=%+v", s)
	}
	if len(s.Counts) != 3 {
		t.Fatalf("counts=%v want every option present", s.Counts)
	}
}

func TestPrintTally(t *testing.T) {
	path := filepath.Join(t.TempDir(), "votes.txt")
	if err := os.WriteFile(path, []byte("CBA"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	var out bytes.Buffer
	if err := printTally(&out, path); err != nil {
		t.Fatalf("printTally: %v", err)
	}
	want := "path: " + path + "\nvotes: 3\n  A: 1\n  B: 1\n  C: 1\ninvalid_bytes: 0\n"
	if out.String() != want {
		t.Fatalf("output=%q want %q", out.String(), want)
	}

	if err := printTally(&out, "  "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
