package agents

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/job-agent/internal/llm"
	"github.com/spigell/job-agent/internal/match"
	"github.com/spigell/job-agent/internal/profile"
)

type stubBackend struct {
	responses []string
	requests  []llm.Request
}

func (s *stubBackend) Generate(_ context.Context, req llm.Request) (string, error) {
	s.requests = append(s.requests, req)
	if len(s.responses) == 0 {
		return "", errors.New("no response scripted")
	}
	out := s.responses[0]
	s.responses = s.responses[1:]
	return out, nil
}

func (s *stubBackend) Provider() string { return "stub" }

func (s *stubBackend) Model() string { return "stub-1" }

func newInvoker(responses ...string) (*llm.Invoker, *stubBackend) {
	backend := &stubBackend{responses: responses}
	return llm.NewInvoker(backend, llm.WithSleep(func(context.Context, time.Duration) error { return nil })), backend
}

const jobText = `Acme Robotics is hiring a Senior Backend Engineer in Berlin.
You will build services in Go and Python on top of PostgreSQL. Kubernetes experience is a plus.`

func TestAnalyzeDecodesAndValidates(t *testing.T) {
	response := "```json\n" + `{
  "role_info": {"title": "Senior Backend Engineer", "company": "acme robotics", "location": "Berlin", "level": "Senior"},
  "requirements": {"must_have_skills": ["Go", "Python", 5], "nice_to_have_skills": "Kubernetes", "education": ["BSc", "MSc"], "years_experience": 5},
  "keywords": {"ats_keywords": ["PostgreSQL", "microservices"], "soft_skills": "communication"},
  "summary": "Backend role."
}` + "\n```"

	inv, backend := newInvoker(response)
	analysis, err := NewAnalyzer(inv, zap.NewNop()).Analyze(context.Background(), jobText)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if analysis.RoleInfo.Company != "acme robotics" {
		t.Fatalf("company present in the text must be kept, got %q", analysis.RoleInfo.Company)
	}
	if !reflect.DeepEqual(analysis.Requirements.MustHave, []string{"Go", "Python", "5"}) {
		t.Fatalf("unexpected must have %v", analysis.Requirements.MustHave)
	}
	if !reflect.DeepEqual(analysis.Requirements.NiceToHave, []string{"Kubernetes"}) {
		t.Fatalf("unexpected nice to have %v", analysis.Requirements.NiceToHave)
	}
	if analysis.Requirements.Education != "BSc, MSc" || analysis.Requirements.YearsExperience != "5" {
		t.Fatalf("unexpected scalar coercion %+v", analysis.Requirements)
	}
	if len(analysis.Keywords.SoftSkills) != 0 {
		t.Fatalf("non-list soft skills must become empty, got %v", analysis.Keywords.SoftSkills)
	}

	req := backend.requests[0]
	if !req.JSON || req.Temperature != 0.1 {
		t.Fatalf("unexpected request settings %+v", req)
	}
	if !strings.Contains(req.Prompt, "PostgreSQL. Kubernetes experience") || strings.Contains(req.Prompt, "{{JOB_DESCRIPTION}}") {
		t.Fatalf("job text was not rendered into the prompt")
	}

	input := analysis.ScoringInput()
	if len(input.RequiredSkills) != 3 || len(input.Keywords) != 2 {
		t.Fatalf("unexpected scoring input %+v", input)
	}
	if got := analysis.SearchTerms(); len(got) != 6 {
		t.Fatalf("unexpected search terms %v", got)
	}
}

func TestAnalyzeResetsHallucinatedCompany(t *testing.T) {
	tests := []struct {
		name     string
		company  string
		expected string
	}{
		{name: "not in text", company: "Globex", expected: UnknownValue},
		{name: "empty", company: "", expected: UnknownValue},
		{name: "unknown lowercase", company: "unknown", expected: UnknownValue},
		{name: "present", company: "Acme Robotics", expected: "Acme Robotics"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.WarnLevel)
			inv, _ := newInvoker(`{"role_info": {"title": "Engineer", "company": "` + tt.company + `"}, "requirements": {}, "keywords": {"ats_keywords": "Go, Python"}}`)

			analysis, err := NewAnalyzer(inv, zap.New(core)).Analyze(context.Background(), jobText)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if analysis.RoleInfo.Company != tt.expected {
				t.Fatalf("expected company %q, got %q", tt.expected, analysis.RoleInfo.Company)
			}
			if analysis.RoleInfo.Location != UnknownValue {
				t.Fatalf("expected unknown location, got %q", analysis.RoleInfo.Location)
			}
			if len(analysis.Keywords.ATS) != 0 {
				t.Fatalf("string keywords must be dropped, got %v", analysis.Keywords.ATS)
			}

			warned := logs.FilterMessage("company not found in job description, resetting").Len() == 1
			if warned != (tt.name == "not in text") {
				t.Fatalf("unexpected warning state %v", warned)
			}
		})
	}
}

func TestAnalyzeFailures(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		response string
		reason   llm.Reason
	}{
		{name: "missing keys", text: jobText, response: `{"role_info": {}}`, reason: llm.ReasonInvalidResponse},
		{name: "not json", text: jobText, response: "I cannot help with that", reason: llm.ReasonInvalidResponse},
		{name: "array", text: jobText, response: `[1, 2]`, reason: llm.ReasonInvalidResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv, _ := newInvoker(tt.response)
			_, err := NewAnalyzer(inv, zap.NewNop()).Analyze(context.Background(), tt.text)

			var llmErr *llm.Error
			if !errors.As(err, &llmErr) {
				t.Fatalf("expected *llm.Error, got %v", err)
			}
			if llmErr.Reason != tt.reason {
				t.Fatalf("expected reason %s, got %s", tt.reason, llmErr.Reason)
			}
		})
	}

	inv, backend := newInvoker()
	if _, err := NewAnalyzer(inv, zap.NewNop()).Analyze(context.Background(), "   "); err == nil {
		t.Fatal("expected error for empty job text")
	}
	if len(backend.requests) != 0 {
		t.Fatal("empty job text must not reach the backend")
	}
}

func masterProfile() *profile.Profile {
	return &profile.Profile{
		PersonalInfo: profile.PersonalInfo{Name: "Ada Lovelace", Email: "ada@example.com", Phone: "+44 1"},
		Summary:      "Engineer",
		Skills:       profile.SkillList("Go", "Python"),
		Experience: []profile.Experience{{
			Company:      "Engines",
			Title:        "Engineer",
			Achievements: []string{"Built a Go service"},
		}},
		Education: []profile.Education{{Degree: "BSc", School: "UCL"}},
	}
}

func TestCustomizeKeepsMasterDetails(t *testing.T) {
	inv, backend := newInvoker(`{
  "personal_info": {"name": "Ada L.", "email": ""},
  "summary": "Go engineer focused on backends",
  "skills": {"Technical": ["Go", "PostgreSQL"]},
  "experience": [{"company": "Engines", "title": "Engineer", "dates": "2020", "achievements": ["Built a Go service handling 1M requests"]}]
}`)

	analysis := &JobAnalysis{RoleInfo: RoleInfo{Title: "Backend Engineer", Company: "Acme"}}
	snippets := []match.Snippet{{Content: "Built a Go service", Score: 2}}

	tailored, err := NewCustomizer(inv, zap.NewNop()).Customize(context.Background(), masterProfile(), analysis, snippets)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tailored.PersonalInfo.Name != "Ada L." {
		t.Fatalf("name from the model must be kept, got %q", tailored.PersonalInfo.Name)
	}
	if tailored.PersonalInfo.Email != "ada@example.com" || tailored.PersonalInfo.Phone != "+44 1" {
		t.Fatalf("missing contact details must come from the master profile: %+v", tailored.PersonalInfo)
	}
	if len(tailored.Education) != 1 || tailored.Education[0].School != "UCL" {
		t.Fatalf("education must come from the master profile: %+v", tailored.Education)
	}
	if !reflect.DeepEqual(tailored.Skills.All(), []string{"Go", "PostgreSQL"}) {
		t.Fatalf("unexpected skills %v", tailored.Skills.All())
	}

	req := backend.requests[0]
	if req.Temperature != 0.5 || !req.JSON {
		t.Fatalf("unexpected request settings %+v", req)
	}
	if !strings.Contains(req.Prompt, "PRIORITY CONTEXT") || !strings.Contains(req.Prompt, `"Backend Engineer"`) {
		t.Fatalf("prompt is missing snippets or analysis:\n%s", req.Prompt)
	}
}

func TestCustomizeRequiresKeys(t *testing.T) {
	inv, _ := newInvoker(`{"summary": "x", "skills": []}`)
	_, err := NewCustomizer(inv, zap.NewNop()).Customize(context.Background(), masterProfile(), &JobAnalysis{}, nil)
	if llm.ReasonOf(err) != llm.ReasonInvalidResponse {
		t.Fatalf("expected invalid response, got %v", err)
	}
}

func TestCoverLetterWriter(t *testing.T) {
	inv, backend := newInvoker("Dear team,\n\n\n\nI build   reliable services.\n\nBest regards")
	letter, err := NewCoverLetterWriter(inv, zap.NewNop()).Write(context.Background(), masterProfile(), &JobAnalysis{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if letter != "Dear team,\n\nI build reliable services.\n\nBest regards" {
		t.Fatalf("unexpected letter %q", letter)
	}
	if req := backend.requests[0]; req.JSON || req.Temperature != 0.7 {
		t.Fatalf("cover letter must be a text request at 0.7, got %+v", req)
	}

	if _, err := NewCoverLetterWriter(inv, zap.NewNop()).Write(context.Background(), nil, &JobAnalysis{}); err == nil {
		t.Fatal("expected error without profile")
	}
}

func TestProfileParser(t *testing.T) {
	inv, _ := newInvoker(`Sure! {"personal_info": {"name": "Grace"}, "experience": [{"company": "Navy", "title": "Admiral", "duration": "1943-1986", "description": "Led COBOL work"}], "skills": {"Languages": ["COBOL"]}}`)

	parsed, err := NewProfileParser(inv, zap.NewNop()).Parse(context.Background(), "Grace Hopper\nRear Admiral, US Navy")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.PersonalInfo.Name != "Grace" || parsed.Experience[0].Dates != "1943-1986" {
		t.Fatalf("unexpected profile %+v", parsed)
	}
	if !reflect.DeepEqual(parsed.Experience[0].Responsibilities, []string{"Led COBOL work"}) {
		t.Fatalf("unexpected responsibilities %v", parsed.Experience[0].Responsibilities)
	}

	inv, _ = newInvoker(`{"summary": "no structure"}`)
	if _, err := NewProfileParser(inv, zap.NewNop()).Parse(context.Background(), "text"); llm.ReasonOf(err) != llm.ReasonInvalidResponse {
		t.Fatalf("expected invalid response, got %v", err)
	}
}

func TestRender(t *testing.T) {
	got := render("a {{X}} b {{Y}} {{X}}", map[string]string{"X": "1", "Y": "{{X}}"})
	if got != "a 1 b {{X}} 1" {
		t.Fatalf("unexpected render %q", got)
	}
}
