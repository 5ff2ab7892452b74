// Package profile holds the candidate master profile and the views the
// pipeline derives from it.
package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/spigell/job-agent/internal/match"
)

// PersonalInfo is the contact block of a profile.
type PersonalInfo struct {
	Name     string `json:"name" yaml:"name"`
	Email    string `json:"email,omitempty" yaml:"email,omitempty"`
	Phone    string `json:"phone,omitempty" yaml:"phone,omitempty"`
	LinkedIn string `json:"linkedin,omitempty" yaml:"linkedin,omitempty"`
	Location string `json:"location,omitempty" yaml:"location,omitempty"`
	Headline string `json:"headline,omitempty" yaml:"headline,omitempty"`
}

// Contact returns the non-empty contact details joined with " | ".
func (p PersonalInfo) Contact() string {
	parts := make([]string, 0, 4)
	for _, v := range []string{p.Email, p.Phone, p.Location, p.LinkedIn} {
		if v = strings.TrimSpace(v); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " | ")
}

// Experience is one position held by the candidate.
type Experience struct {
	Company          string   `json:"company" yaml:"company"`
	Title            string   `json:"title" yaml:"title"`
	Dates            string   `json:"dates,omitempty" yaml:"dates,omitempty"`
	Location         string   `json:"location,omitempty" yaml:"location,omitempty"`
	Responsibilities []string `json:"responsibilities,omitempty" yaml:"responsibilities,omitempty"`
	Achievements     []string `json:"achievements,omitempty" yaml:"achievements,omitempty"`
	Tools            []string `json:"tools,omitempty" yaml:"tools,omitempty"`
}

// UnmarshalJSON accepts the shapes produced by resume parsing as well as the
// canonical one: "duration" is read as dates and "description" as
// responsibilities. Scalar fields may be numbers, list fields may be a string.
func (e *Experience) UnmarshalJSON(data []byte) error {
	var raw struct {
		Company          flexString  `json:"company"`
		Title            flexString  `json:"title"`
		Dates            flexString  `json:"dates"`
		Duration         flexString  `json:"duration"`
		Location         flexString  `json:"location"`
		Responsibilities match.Terms `json:"responsibilities"`
		Description      match.Terms `json:"description"`
		Achievements     match.Terms `json:"achievements"`
		Tools            match.Terms `json:"tools"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*e = Experience{
		Company:          string(raw.Company),
		Title:            string(raw.Title),
		Dates:            string(raw.Dates),
		Location:         string(raw.Location),
		Responsibilities: raw.Responsibilities,
		Achievements:     raw.Achievements,
		Tools:            raw.Tools,
	}
	if e.Dates == "" {
		e.Dates = string(raw.Duration)
	}
	if len(e.Responsibilities) == 0 {
		e.Responsibilities = raw.Description
	}
	return nil
}

// Highlights returns the achievements, or the responsibilities when there are none.
func (e Experience) Highlights() []string {
	if len(e.Achievements) > 0 {
		return e.Achievements
	}
	return e.Responsibilities
}

// Education is one degree or course.
type Education struct {
	Degree string `json:"degree" yaml:"degree"`
	School string `json:"school,omitempty" yaml:"school,omitempty"`
	Field  string `json:"field,omitempty" yaml:"field,omitempty"`
	Year   string `json:"year,omitempty" yaml:"year,omitempty"`
}

// UnmarshalJSON accepts numeric years and "institution" as the school.
func (e *Education) UnmarshalJSON(data []byte) error {
	var raw struct {
		Degree      flexString `json:"degree"`
		School      flexString `json:"school"`
		Institution flexString `json:"institution"`
		Field       flexString `json:"field"`
		Year        flexString `json:"year"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = Education{
		Degree: string(raw.Degree),
		School: string(raw.School),
		Field:  string(raw.Field),
		Year:   string(raw.Year),
	}
	if e.School == "" {
		e.School = string(raw.Institution)
	}
	return nil
}

// Project is a side project or notable piece of work.
type Project struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// UnmarshalJSON accepts a list of bullet points as the description.
func (p *Project) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name        flexString `json:"name"`
		Description flexString `json:"description"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = Project{Name: string(raw.Name), Description: string(raw.Description)}
	return nil
}

// Profile is the candidate master profile.
type Profile struct {
	PersonalInfo PersonalInfo `json:"personal_info" yaml:"personal_info"`
	Summary      string       `json:"summary" yaml:"summary"`
	Skills       Skills       `json:"skills" yaml:"skills"`
	Experience   []Experience `json:"experience" yaml:"experience"`
	Education    []Education  `json:"education,omitempty" yaml:"education,omitempty"`
	Projects     []Project    `json:"projects,omitempty" yaml:"projects,omitempty"`
}

// UnmarshalJSON accepts a summary given as a list of sentences.
func (p *Profile) UnmarshalJSON(data []byte) error {
	type plain Profile
	var raw struct {
		plain
		Summary flexString `json:"summary"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = Profile(raw.plain)
	p.Summary = string(raw.Summary)
	return nil
}

// ErrUnsupportedFormat is returned for profile files that are neither JSON nor YAML.
var ErrUnsupportedFormat = errors.New("unsupported profile format")

// Load reads a profile from a .json, .yaml or .yml file.
func Load(path string) (*Profile, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("profile path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile %s: %w", path, err)
	}

	p, err := Decode(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", path, err)
	}
	return p, nil
}

// Decode parses profile data. ext selects the format and defaults to JSON.
// YAML documents are converted to JSON first so both formats share the same
// lenient decoding.
func Decode(data []byte, ext string) (*Profile, error) {
	switch strings.ToLower(ext) {
	case "", ".json":
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		converted, err := json.Marshal(doc)
		if err != nil {
			return nil, err
		}
		data = converted
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Save writes the profile to path in the format chosen by its extension,
// creating parent directories.
func (p *Profile) Save(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err = json.MarshalIndent(p, "", "  ")
		data = append(data, '\n')
	case ".yaml", ".yml":
		data, err = yaml.Marshal(p)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create profile dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write profile %s: %w", path, err)
	}
	return nil
}

var (
	capitalizedPhrase = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\b`)
	acronym           = regexp.MustCompile(`\b[A-Z][A-Z0-9]+\b`)
)

// CandidateSkills collects the explicit skills, the tools of every position
// and the capitalized phrases and acronyms mentioned in responsibilities and
// achievements. Entries are deduplicated case-insensitively.
func (p *Profile) CandidateSkills() []string {
	out := newOrdered()
	out.add(p.Skills.All()...)

	for _, exp := range p.Experience {
		out.add(exp.Tools...)
	}

	for _, exp := range p.Experience {
		for _, line := range append(append([]string{}, exp.Responsibilities...), exp.Achievements...) {
			for _, phrase := range capitalizedPhrase.FindAllString(line, -1) {
				if len(phrase) > 3 {
					out.add(phrase)
				}
			}
			out.add(acronym.FindAllString(line, -1)...)
		}
	}
	return out.items
}

// Candidate returns the profile as scoring input.
func (p *Profile) Candidate() match.CandidateProfile {
	return match.CandidateProfile{Skills: match.Terms(p.CandidateSkills())}
}

// Snippets splits the profile into retrievable pieces: one per highlight of
// every position and one per project.
func (p *Profile) Snippets() []match.Snippet {
	snippets := make([]match.Snippet, 0)
	for _, exp := range p.Experience {
		company := exp.Company
		if company == "" {
			company = "Unknown"
		}
		title := exp.Title
		if title == "" {
			title = "Position"
		}
		for _, line := range exp.Highlights() {
			snippets = append(snippets, match.Snippet{
				Content: line,
				Metadata: map[string]string{
					"type":    "experience",
					"company": company,
					"title":   title,
					"dates":   exp.Dates,
				},
			})
		}
	}

	for _, project := range p.Projects {
		snippets = append(snippets, match.Snippet{
			Content:  fmt.Sprintf("Project %s: %s", project.Name, project.Description),
			Metadata: map[string]string{"type": "project", "name": project.Name},
		})
	}
	return snippets
}

// Text flattens the profile into plain text for keyword coverage checks.
func (p *Profile) Text() string {
	var b strings.Builder
	line := func(parts ...string) {
		for _, part := range parts {
			if part = strings.TrimSpace(part); part != "" {
				b.WriteString(part)
				b.WriteByte('\n')
			}
		}
	}

	line(p.PersonalInfo.Headline, p.Summary)
	line(strings.Join(p.Skills.All(), ", "))
	for _, exp := range p.Experience {
		line(exp.Title, exp.Company)
		line(exp.Responsibilities...)
		line(exp.Achievements...)
		line(strings.Join(exp.Tools, ", "))
	}
	for _, edu := range p.Education {
		line(strings.TrimSpace(edu.Degree + " " + edu.Field))
	}
	for _, project := range p.Projects {
		line(project.Name, project.Description)
	}
	return strings.TrimSpace(b.String())
}

type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*f = flexString(strings.Join(match.Strings(raw), " "))
	return nil
}

type ordered struct {
	seen  map[string]struct{}
	items []string
}

func newOrdered() *ordered {
	return &ordered{seen: map[string]struct{}{}, items: []string{}}
}

func (o *ordered) add(values ...string) {
	for _, v := range values {
		v = strings.Join(strings.Fields(v), " ")
		key := strings.ToLower(v)
		if key == "" {
			continue
		}
		if _, ok := o.seen[key]; ok {
			continue
		}
		o.seen[key] = struct{}{}
		o.items = append(o.items, v)
	}
}
