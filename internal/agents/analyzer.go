package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/job-agent/internal/llm"
	"github.com/spigell/job-agent/internal/logger"
	"github.com/spigell/job-agent/internal/match"
)

// UnknownValue marks role details that are not stated in the job description.
const UnknownValue = "Unknown"

// RoleInfo describes the advertised position.
type RoleInfo struct {
	Title    string `json:"title"`
	Company  string `json:"company"`
	Location string `json:"location"`
	Level    string `json:"level"`
}

// Requirements lists what the employer asks for.
type Requirements struct {
	MustHave        []string `json:"must_have_skills"`
	NiceToHave      []string `json:"nice_to_have_skills"`
	Education       string   `json:"education"`
	YearsExperience string   `json:"years_experience"`
}

// Keywords are the terms applicant tracking systems look for.
type Keywords struct {
	ATS        []string `json:"ats_keywords"`
	SoftSkills []string `json:"soft_skills"`
}

// JobAnalysis is the structured form of a job description.
type JobAnalysis struct {
	RoleInfo     RoleInfo     `json:"role_info"`
	Requirements Requirements `json:"requirements"`
	Keywords     Keywords     `json:"keywords"`
	Summary      string       `json:"summary"`
}

// ScoringInput converts the analysis into scoring input.
func (a *JobAnalysis) ScoringInput() match.JobRequirements {
	if a == nil {
		return match.JobRequirements{}
	}
	return match.JobRequirements{
		RequiredSkills:  match.Terms(a.Requirements.MustHave),
		PreferredSkills: match.Terms(a.Requirements.NiceToHave),
		Keywords:        match.Terms(a.Keywords.ATS),
	}
}

// SearchTerms returns every skill and keyword of the analysis, used to rank
// profile snippets.
func (a *JobAnalysis) SearchTerms() []string {
	if a == nil {
		return nil
	}
	terms := make([]string, 0, len(a.Requirements.MustHave)+len(a.Requirements.NiceToHave)+len(a.Keywords.ATS))
	terms = append(terms, a.Requirements.MustHave...)
	terms = append(terms, a.Requirements.NiceToHave...)
	terms = append(terms, a.Keywords.ATS...)
	return terms
}

// Analyzer extracts a JobAnalysis from a job description.
type Analyzer struct {
	invoker Invoker
	logger  *zap.Logger
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer(invoker Invoker, l *zap.Logger) *Analyzer {
	return &Analyzer{invoker: invoker, logger: logger.Component(l, "analyzer")}
}

// Analyze asks the model for the structure of jobText. Company names that do
// not occur in jobText are replaced with UnknownValue.
func (a *Analyzer) Analyze(ctx context.Context, jobText string) (*JobAnalysis, error) {
	jobText = strings.TrimSpace(jobText)
	if jobText == "" {
		return nil, errors.New("job description is empty")
	}

	a.logger.Info("analyzing job description", zap.Int("chars", len(jobText)))

	out, err := a.invoker.Invoke(ctx, llm.Request{
		System:      analyzerSystem,
		Prompt:      render(analyzePrompt, map[string]string{"JOB_DESCRIPTION": jobText}),
		Temperature: 0.1,
		JSON:        true,
	}, llm.Options{RequiredKeys: []string{"role_info", "requirements", "keywords"}})
	if err != nil {
		return nil, fmt.Errorf("analyze job: %w", err)
	}

	obj := out.Object()
	if obj == nil {
		return nil, fmt.Errorf("analyze job: %w", &llm.Error{
			Reason:   llm.ReasonInvalidResponse,
			Raw:      out.Text,
			Attempts: out.Attempts,
			Err:      errors.New("response is not a JSON object"),
		})
	}
	dropNonListKeywords(obj)

	var analysis JobAnalysis
	if err := decode(obj, &analysis); err != nil {
		return nil, fmt.Errorf("decode job analysis: %w", err)
	}

	a.validate(&analysis, jobText)
	return &analysis, nil
}

func (a *Analyzer) validate(analysis *JobAnalysis, jobText string) {
	role := &analysis.RoleInfo

	company := strings.TrimSpace(role.Company)
	switch {
	case company == "":
		role.Company = UnknownValue
	case strings.EqualFold(company, UnknownValue):
		role.Company = UnknownValue
	case !strings.Contains(strings.ToLower(jobText), strings.ToLower(company)):
		a.logger.Warn("company not found in job description, resetting",
			zap.String("company", company))
		role.Company = UnknownValue
	default:
		role.Company = company
	}

	if strings.TrimSpace(role.Location) == "" {
		role.Location = UnknownValue
	}
	if strings.TrimSpace(role.Title) == "" {
		role.Title = "Position"
	}
}

// dropNonListKeywords replaces keyword fields that are not lists with empty
// lists, so a sentence is never mistaken for a single keyword.
func dropNonListKeywords(obj map[string]any) {
	keywords, ok := obj["keywords"].(map[string]any)
	if !ok {
		obj["keywords"] = map[string]any{"ats_keywords": []any{}, "soft_skills": []any{}}
		return
	}
	for _, key := range []string{"ats_keywords", "soft_skills"} {
		if _, isList := keywords[key].([]any); !isList {
			keywords[key] = []any{}
		}
	}
}
