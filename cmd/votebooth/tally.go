package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"votebooth/internal/input"
)

type voteTally struct {
	Total   int
	Counts  map[byte]int
	Invalid int
}

func summarizeVotes(data []byte) voteTally {
	s := voteTally{Counts: map[byte]int{}}
	valid := map[byte]bool{}
	for _, r := range input.VoteRoles {
		valid[r.Token()] = true
		s.Counts[r.Token()] = 0
	}
	for _, b := range data {
		if !valid[b] {
			s.Invalid++
			continue
		}
		s.Total++
		s.Counts[b]++
	}
	return s
}

func printTally(w io.Writer, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	s := summarizeVotes(data)

	fmt.Fprintf(w, "path: %s\n", path)
	fmt.Fprintf(w, "votes: %d\n", s.Total)
	for _, r := range input.VoteRoles {
		tok := r.Token()
		fmt.Fprintf(w, "  %c: %d\n", tok, s.Counts[tok])
	}
	fmt.Fprintf(w, "invalid_bytes: %d\n", s.Invalid)
	return nil
}
