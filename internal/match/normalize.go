package match

import (
	"sort"
	"strings"
	"unicode"
)

// Normalize folds a free-text skill or keyword into its comparison form:
// lower-cased, punctuation replaced by spaces, whitespace collapsed and trimmed.
// '+' and '#' are kept, and so is '.' when a letter or digit follows it
// ("node.js", ".net").
func Normalize(s string) string {
	runes := []rune(strings.ToLower(s))

	var b strings.Builder
	b.Grow(len(runes))
	pendingSpace := false

	emit := func(r rune) {
		if pendingSpace && b.Len() > 0 {
			b.WriteByte(' ')
		}
		pendingSpace = false
		b.WriteRune(r)
	}

	for i, r := range runes {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			emit(r)
		case r == '+' || r == '#':
			emit(r)
		case r == '.' && i+1 < len(runes) && isWord(runes[i+1]):
			emit(r)
		default:
			pendingSpace = true
		}
	}

	return b.String()
}

func isWord(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Set is a normalized set of terms. Each key remembers the first display form
// it was added with so reports can show "SQL" rather than "sql".
type Set struct {
	display map[string]string
}

// NewSet normalizes the values into a set. Entries that normalize to the empty
// string are dropped and duplicates collapse.
func NewSet(values ...string) Set {
	s := Set{display: make(map[string]string, len(values))}
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// Add inserts a single value into the set.
func (s *Set) Add(value string) {
	key := Normalize(value)
	if key == "" {
		return
	}
	if s.display == nil {
		s.display = make(map[string]string)
	}
	if _, ok := s.display[key]; ok {
		return
	}
	s.display[key] = strings.Join(strings.Fields(value), " ")
}

// Len reports the number of distinct normalized entries.
func (s Set) Len() int {
	return len(s.display)
}

// Has reports whether the value, once normalized, is in the set.
func (s Set) Has(value string) bool {
	_, ok := s.display[Normalize(value)]
	return ok
}

// Keys returns the normalized keys in lexicographic order.
func (s Set) Keys() []string {
	keys := make([]string, 0, len(s.display))
	for k := range s.display {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Display returns the display form stored for a normalized key.
func (s Set) Display(key string) string {
	if d, ok := s.display[key]; ok && d != "" {
		return d
	}
	return key
}

// Split partitions the set against other, returning the display forms of the
// entries present in other and of those missing from it, both sorted by key.
func (s Set) Split(other Set) (matched, missing []string) {
	matched = []string{}
	missing = []string{}
	for _, key := range s.Keys() {
		if _, ok := other.display[key]; ok {
			matched = append(matched, s.Display(key))
			continue
		}
		missing = append(missing, s.Display(key))
	}
	return matched, missing
}
