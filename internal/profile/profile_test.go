package profile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

const masterJSON = `{
  "personal_info": {"name": "Ada Lovelace", "email": "ada@example.com", "location": "London"},
  "summary": "Backend engineer",
  "skills": {"Languages": ["Go", "Python"], "Cloud": ["AWS", "docker"]},
  "experience": [
    {
      "company": "Analytical Engines",
      "title": "Senior Engineer",
      "dates": "2020 - now",
      "responsibilities": ["Maintained the Billing Platform"],
      "achievements": ["Cut AWS costs by 30% with Kubernetes autoscaling", "Led SQL migration"],
      "tools": ["Terraform", "Docker"]
    },
    {
      "company": "Babbage Ltd",
      "title": "Engineer",
      "duration": "2017 - 2020",
      "description": ["Wrote reporting jobs in Python"]
    }
  ],
  "education": [{"degree": "BSc", "institution": "UCL", "field": "Mathematics", "year": 2016}],
  "projects": [{"name": "ledger", "description": ["Double entry", "bookkeeping in Go"]}]
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadJSONAcceptsAliases(t *testing.T) {
	p, err := Load(writeFile(t, "profile.json", masterJSON))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p.PersonalInfo.Name != "Ada Lovelace" {
		t.Fatalf("unexpected name %q", p.PersonalInfo.Name)
	}
	second := p.Experience[1]
	if second.Dates != "2017 - 2020" {
		t.Fatalf("expected duration to fill dates, got %q", second.Dates)
	}
	if !reflect.DeepEqual(second.Responsibilities, []string{"Wrote reporting jobs in Python"}) {
		t.Fatalf("expected description as responsibilities, got %v", second.Responsibilities)
	}
	if edu := p.Education[0]; edu.School != "UCL" || edu.Year != "2016" {
		t.Fatalf("unexpected education %+v", edu)
	}
	if p.Projects[0].Description != "Double entry bookkeeping in Go" {
		t.Fatalf("unexpected project description %q", p.Projects[0].Description)
	}
}

func TestLoadYAML(t *testing.T) {
	doc := `
personal_info:
  name: Grace Hopper
summary: Compiler engineer
skills:
  - COBOL
  - Go
experience:
  - company: Navy
    title: Rear Admiral
    dates: 1943 - 1986
    achievements:
      - Built the first Compiler
education:
  - degree: PhD
    school: Yale
    year: 1934
`
	p, err := Load(writeFile(t, "profile.yml", doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(p.Skills.All(), []string{"COBOL", "Go"}) {
		t.Fatalf("unexpected skills %v", p.Skills.All())
	}
	if p.Experience[0].Dates != "1943 - 1986" || p.Education[0].Year != "1934" {
		t.Fatalf("expected scalars to be coerced, got %+v %+v", p.Experience[0], p.Education[0])
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for empty path")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, err := Load(writeFile(t, "profile.toml", "a = 1")); err == nil {
		t.Fatal("expected error for unsupported format")
	}
	if _, err := Load(writeFile(t, "profile.json", "{")); err == nil {
		t.Fatal("expected error for broken json")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	p, err := Decode([]byte(masterJSON), ".json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, name := range []string{"out/profile.json", "out/profile.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			if err := p.Save(path); err != nil {
				t.Fatalf("save: %v", err)
			}
			loaded, err := Load(path)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if !reflect.DeepEqual(loaded, p) {
				t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", loaded, p)
			}
		})
	}

	if err := p.Save(filepath.Join(t.TempDir(), "profile.txt")); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestSkillsShapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
		out  string
	}{
		{name: "list", raw: `["Go", "go", " SQL "]`, want: []string{"Go", "SQL"}, out: `["Go","go","SQL"]`},
		{name: "categories sorted", raw: `{"b": ["Kafka"], "a": ["Go", 1.5]}`, want: []string{"Go", "1.5", "Kafka"}, out: `{"a":["Go","1.5"],"b":["Kafka"]}`},
		{name: "scalar", raw: `"Go"`, want: []string{"Go"}, out: `["Go"]`},
		{name: "null", raw: `null`, want: []string{}, out: `[]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Skills
			if err := json.Unmarshal([]byte(tt.raw), &s); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := s.All(); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			out, err := json.Marshal(s)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(out) != tt.out {
				t.Fatalf("expected %s, got %s", tt.out, out)
			}
		})
	}
}

func TestCandidateSkills(t *testing.T) {
	p, err := Decode([]byte(masterJSON), ".json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := p.CandidateSkills()
	for _, want := range []string{"AWS", "Go", "Python", "Terraform", "Kubernetes", "SQL", "Billing Platform", "Maintained"} {
		if !containsFold(got, want) {
			t.Fatalf("expected %q in %v", want, got)
		}
	}

	counts := map[string]int{}
	for _, s := range got {
		counts[strings.ToLower(s)]++
	}
	if counts["docker"] != 1 || counts["aws"] != 1 {
		t.Fatalf("expected case-insensitive dedup, got %v", got)
	}
	if containsFold(got, "Led") {
		t.Fatalf("short capitalized words must be ignored: %v", got)
	}

	if n := len(p.Candidate().Skills); n != len(got) {
		t.Fatalf("candidate skills mismatch: %d vs %d", n, len(got))
	}
}

func TestSnippets(t *testing.T) {
	p, err := Decode([]byte(masterJSON), ".json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snippets := p.Snippets()
	if len(snippets) != 4 {
		t.Fatalf("expected 2 achievements, 1 responsibility and 1 project, got %d", len(snippets))
	}
	if snippets[0].Content != "Cut AWS costs by 30% with Kubernetes autoscaling" {
		t.Fatalf("achievements must be preferred over responsibilities, got %q", snippets[0].Content)
	}
	if snippets[0].Metadata["company"] != "Analytical Engines" || snippets[0].Metadata["type"] != "experience" {
		t.Fatalf("unexpected metadata %v", snippets[0].Metadata)
	}
	if snippets[2].Metadata["dates"] != "2017 - 2020" {
		t.Fatalf("unexpected metadata %v", snippets[2].Metadata)
	}
	last := snippets[3]
	if last.Metadata["type"] != "project" || last.Content != "Project ledger: Double entry bookkeeping in Go" {
		t.Fatalf("unexpected project snippet %+v", last)
	}
}

func TestText(t *testing.T) {
	p, err := Decode([]byte(masterJSON), ".json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	text := p.Text()
	for _, want := range []string{"Backend engineer", "Senior Engineer", "Led SQL migration", "Terraform, Docker", "BSc Mathematics", "ledger"} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in text:\n%s", want, text)
		}
	}
}

func TestContact(t *testing.T) {
	info := PersonalInfo{Email: "a@b.c", Location: " Berlin ", LinkedIn: ""}
	if got := info.Contact(); got != "a@b.c | Berlin" {
		t.Fatalf("unexpected contact %q", got)
	}
}

func containsFold(list []string, want string) bool {
	for _, s := range list {
		if strings.EqualFold(s, want) {
			return true
		}
	}
	return false
}
