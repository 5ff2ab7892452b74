package match

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// Coverage reports how many keywords appear in a document.
type Coverage struct {
	Score   int      `json:"score"`
	Total   int      `json:"total"`
	Matched []string `json:"matched"`
	Missing []string `json:"missing"`
}

// KeywordCoverage checks each keyword for case-insensitive containment in
// text. Keywords keep their input order and duplicates are counted once.
func KeywordCoverage(text string, keywords []string) Coverage {
	haystack := strings.ToLower(text)
	seen := make(map[string]struct{}, len(keywords))

	cov := Coverage{Matched: []string{}, Missing: []string{}}
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		key := strings.ToLower(kw)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		if strings.Contains(haystack, key) {
			cov.Matched = append(cov.Matched, kw)
		} else {
			cov.Missing = append(cov.Missing, kw)
		}
	}

	cov.Total = len(cov.Matched) + len(cov.Missing)
	if cov.Total > 0 {
		cov.Score = ratio(len(cov.Matched), cov.Total)
	}
	return cov
}

// Snippet is a piece of candidate experience that can be ranked against job keywords.
type Snippet struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Score    int               `json:"score,omitempty"`
}

// DefaultTopK is the number of snippets RankSnippets returns when topK <= 0.
const DefaultTopK = 15

// RankSnippets scores every snippet against keywords: two points for a keyword
// found as a whole word, one point when it only appears inside another word.
// Snippets that score zero are dropped. Ties keep their input order.
func RankSnippets(snippets []Snippet, keywords []string, topK int) []Snippet {
	if topK <= 0 {
		topK = DefaultTopK
	}

	terms := make([]string, 0, len(keywords))
	seen := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		key := strings.ToLower(strings.TrimSpace(kw))
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		terms = append(terms, key)
	}

	ranked := make([]Snippet, 0, len(snippets))
	for _, sn := range snippets {
		content := strings.ToLower(sn.Content)
		score := 0
		for _, term := range terms {
			switch {
			case containsWord(content, term):
				score += 2
			case strings.Contains(content, term):
				score++
			}
		}
		if score == 0 {
			continue
		}
		sn.Score = score
		ranked = append(ranked, sn)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked
}

// containsWord reports whether term occurs in text bounded by non-word runes.
func containsWord(text, term string) bool {
	for offset := 0; offset <= len(text)-len(term); {
		idx := strings.Index(text[offset:], term)
		if idx < 0 {
			return false
		}
		start := offset + idx
		end := start + len(term)
		if !wordBefore(text, start) && !wordAfter(text, end) {
			return true
		}
		offset = start + 1
	}
	return false
}

func wordBefore(text string, i int) bool {
	if i == 0 {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return isWord(r) || r == '_'
}

func wordAfter(text string, i int) bool {
	if i >= len(text) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return isWord(r) || r == '_'
}
