package curation

import "strings"

// levenshtein computes the edit distance between a and b. No third-party
// Levenshtein implementation appears anywhere in the example pack, so this
// is a direct Wagner-Fischer port — a 20-line single-purpose algorithm
// where pulling in a dependency would add more surface than it saves.
func levenshtein(a, b string) int {
	ar, br := []rune(a), []rune(b)
	if len(ar) == 0 {
		return len(br)
	}
	if len(br) == 0 {
		return len(ar)
	}

	prev := make([]int, len(br)+1)
	curr := make([]int, len(br)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ar); i++ {
		curr[0] = i
		for j := 1; j <= len(br); j++ {
			cost := 1
			if ar[i-1] == br[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(br)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// titleDedupKey lowercases and takes the first 100 chars of a title, the
// normalization spec §4.3 step 5 compares Levenshtein distance over.
func titleDedupKey(title string) string {
	lower := strings.ToLower(title)
	r := []rune(lower)
	if len(r) > 100 {
		r = r[:100]
	}
	return string(r)
}
