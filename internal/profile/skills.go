package profile

import (
	"encoding/json"
	"sort"

	"github.com/spigell/job-agent/internal/match"
)

// Skills is either a flat list or a map of category to list. Both forms
// survive a decode/encode round trip.
type Skills struct {
	List       []string
	ByCategory map[string][]string
}

// SkillList builds a flat skill list.
func SkillList(skills ...string) Skills {
	return Skills{List: skills}
}

// UnmarshalJSON implements json.Unmarshaler. Objects become categories,
// anything else is flattened into the list.
func (s *Skills) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*s = Skills{}
	obj, ok := raw.(map[string]any)
	if !ok {
		s.List = match.Strings(raw)
		return nil
	}

	s.ByCategory = make(map[string][]string, len(obj))
	for category, value := range obj {
		s.ByCategory[category] = match.Strings(value)
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (s Skills) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.value())
}

// MarshalYAML implements yaml.Marshaler.
func (s Skills) MarshalYAML() (any, error) {
	return s.value(), nil
}

func (s Skills) value() any {
	if len(s.ByCategory) > 0 {
		return s.ByCategory
	}
	if s.List == nil {
		return []string{}
	}
	return s.List
}

// Categories returns the category names in sorted order.
func (s Skills) Categories() []string {
	names := make([]string, 0, len(s.ByCategory))
	for name := range s.ByCategory {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All flattens the skills: categories in sorted order followed by the flat
// list, deduplicated case-insensitively keeping the first spelling.
func (s Skills) All() []string {
	out := newOrdered()
	for _, category := range s.Categories() {
		out.add(s.ByCategory[category]...)
	}
	out.add(s.List...)
	return out.items
}

// Len returns the number of distinct skills.
func (s Skills) Len() int {
	return len(s.All())
}
