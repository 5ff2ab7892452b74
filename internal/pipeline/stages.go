package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/spigell/job-agent/internal/agents"
	"github.com/spigell/job-agent/internal/document"
	"github.com/spigell/job-agent/internal/llm"
	"github.com/spigell/job-agent/internal/match"
	"github.com/spigell/job-agent/internal/profile"
)

// DefaultMinScore is the overall score below which the gate is consulted.
const DefaultMinScore = match.RecommendThreshold

// Analyzer extracts a structured analysis from a job description.
type Analyzer interface {
	Analyze(ctx context.Context, jobText string) (*agents.JobAnalysis, error)
}

// Customizer tailors the master profile to an analysis.
type Customizer interface {
	Customize(ctx context.Context, master *profile.Profile, analysis *agents.JobAnalysis, snippets []match.Snippet) (*profile.Profile, error)
}

// CoverLetterWriter drafts a cover letter.
type CoverLetterWriter interface {
	Write(ctx context.Context, p *profile.Profile, analysis *agents.JobAnalysis) (string, error)
}

// DocumentBuilder renders the application documents.
type DocumentBuilder interface {
	CV(p *profile.Profile, path string) error
	CoverLetter(letter string, p *profile.Profile, path string) error
}

// Gate decides whether a run continues after a low match score.
type Gate func(ctx context.Context, app *Application) (bool, error)

// Config wires the standard stages.
type Config struct {
	Analyzer   Analyzer
	Customizer Customizer
	Writer     CoverLetterWriter
	Builder    DocumentBuilder
	TopK       int
	MinScore   int
	Gate       Gate
	DisabledBy map[string]string
}

// Stages returns the standard ordered stages. Entries of cfg.DisabledBy
// disable the named stage with the given reason.
func Stages(cfg Config) []Stage {
	stages := []Stage{
		NewAnalyze(cfg.Analyzer),
		NewRetrieve(cfg.TopK),
		NewCustomize(cfg.Customizer),
		NewScore(cfg.MinScore, cfg.Gate),
		NewCoverLetter(cfg.Writer),
		NewDocuments(cfg.Builder),
	}
	for name, reason := range cfg.DisabledBy {
		DisableByName(stages, name, reason)
	}
	return stages
}

type analyzeStage struct {
	toggle
	analyzer Analyzer
}

// NewAnalyze creates the stage that extracts the job analysis.
func NewAnalyze(a Analyzer) Stage {
	return &analyzeStage{analyzer: a}
}

func (s *analyzeStage) Name() string { return StageAnalyze }

func (s *analyzeStage) Validate(app *Application) error {
	if s.analyzer == nil {
		return errors.New("analyzer is not configured")
	}
	if app.JobText == "" {
		return errors.New("job description is empty")
	}
	return nil
}

func (s *analyzeStage) Run(ctx context.Context, deps Deps, app *Application) error {
	analysis, err := s.analyzer.Analyze(ctx, app.JobText)
	if err != nil {
		return err
	}
	app.Analysis = analysis

	deps.Logger.Info("job analyzed",
		zap.String("title", analysis.RoleInfo.Title),
		zap.String("company", analysis.RoleInfo.Company),
		zap.Int("must_have", len(analysis.Requirements.MustHave)),
		zap.Int("ats_keywords", len(analysis.Keywords.ATS)),
	)
	return nil
}

func (s *analyzeStage) Status() Status { return s.status(s.Name(), nil) }

type retrieveStage struct {
	toggle
	topK int
}

// NewRetrieve creates the stage that ranks profile snippets against the
// analysis. A non-positive topK uses match.DefaultTopK.
func NewRetrieve(topK int) Stage {
	if topK <= 0 {
		topK = match.DefaultTopK
	}
	return &retrieveStage{topK: topK}
}

func (s *retrieveStage) Name() string { return StageRetrieve }

func (s *retrieveStage) Validate(app *Application) error {
	if app.Profile == nil {
		return errors.New("profile is required")
	}
	return nil
}

func (s *retrieveStage) Run(_ context.Context, deps Deps, app *Application) error {
	if app.Analysis == nil {
		return errors.New("analysis is missing")
	}

	app.Snippets = match.RankSnippets(app.Profile.Snippets(), app.Analysis.SearchTerms(), s.topK)
	deps.Logger.Info("snippets retrieved", zap.Int("count", len(app.Snippets)))
	return nil
}

func (s *retrieveStage) Status() Status {
	return s.status(s.Name(), map[string]string{"top_k": strconv.Itoa(s.topK)})
}

type customizeStage struct {
	toggle
	customizer Customizer
}

// NewCustomize creates the stage that tailors the master profile.
func NewCustomize(c Customizer) Stage {
	return &customizeStage{customizer: c}
}

func (s *customizeStage) Name() string { return StageCustomize }

func (s *customizeStage) Validate(app *Application) error {
	if s.customizer == nil {
		return errors.New("customizer is not configured")
	}
	if app.Profile == nil {
		return errors.New("profile is required")
	}
	return nil
}

func (s *customizeStage) Run(ctx context.Context, deps Deps, app *Application) error {
	if app.Analysis == nil {
		return errors.New("analysis is missing")
	}

	tailored, err := s.customizer.Customize(ctx, app.Profile, app.Analysis, app.Snippets)
	if err != nil {
		return err
	}
	app.Tailored = tailored

	deps.Logger.Info("cv customized",
		zap.Int("skills", tailored.Skills.Len()),
		zap.Int("experience", len(tailored.Experience)),
	)
	return nil
}

func (s *customizeStage) Status() Status { return s.status(s.Name(), nil) }

type scoreStage struct {
	toggle
	minScore int
	gate     Gate
}

// NewScore creates the stage that scores the CV profile and measures keyword
// coverage. Below minScore the gate decides whether the run continues; a nil
// gate always continues. A non-positive minScore uses DefaultMinScore.
func NewScore(minScore int, gate Gate) Stage {
	if minScore <= 0 {
		minScore = DefaultMinScore
	}
	return &scoreStage{minScore: minScore, gate: gate}
}

func (s *scoreStage) Name() string { return StageScore }

func (s *scoreStage) Validate(app *Application) error {
	if app.Profile == nil {
		return errors.New("profile is required")
	}
	return nil
}

func (s *scoreStage) Run(ctx context.Context, deps Deps, app *Application) error {
	if app.Analysis == nil {
		return errors.New("analysis is missing")
	}

	cv := app.CVProfile()
	result := match.Score(app.Analysis.ScoringInput(), cv.Candidate())
	coverage := match.KeywordCoverage(cv.Text(), app.Analysis.Keywords.ATS)
	app.Match = &result
	app.Coverage = &coverage
	deps.Metrics.ObserveMatch(result.OverallScore)

	deps.Logger.Info("match scored",
		zap.Int("overall_score", result.OverallScore),
		zap.Int("keyword_coverage", coverage.Score),
		zap.Int("keywords_matched", len(coverage.Matched)),
		zap.Int("keywords_total", coverage.Total),
		zap.Strings("missing_required", result.MissingRequired),
	)

	if result.OverallScore >= s.minScore {
		return nil
	}

	app.warn(fmt.Sprintf("match score %d is below %d", result.OverallScore, s.minScore))
	deps.Logger.Warn("low match score, consider adding more details to the master profile",
		zap.Int("overall_score", result.OverallScore),
		zap.Int("minimum", s.minScore),
	)

	if s.gate == nil {
		return nil
	}
	proceed, err := s.gate(ctx, app)
	if err != nil {
		return fmt.Errorf("gate: %w", err)
	}
	if !proceed {
		return ErrAborted
	}
	return nil
}

func (s *scoreStage) Status() Status {
	return s.status(s.Name(), map[string]string{
		"min_score": strconv.Itoa(s.minScore),
		"gated":     strconv.FormatBool(s.gate != nil),
	})
}

type coverLetterStage struct {
	toggle
	writer CoverLetterWriter
}

// NewCoverLetter creates the stage that drafts the cover letter. A failed
// draft is recorded as a warning and the run continues without a letter.
func NewCoverLetter(w CoverLetterWriter) Stage {
	return &coverLetterStage{writer: w}
}

func (s *coverLetterStage) Name() string { return StageCoverLetter }

func (s *coverLetterStage) Validate(*Application) error {
	if s.writer == nil {
		return errors.New("cover letter writer is not configured")
	}
	return nil
}

func (s *coverLetterStage) Run(ctx context.Context, deps Deps, app *Application) error {
	if app.Analysis == nil {
		return errors.New("analysis is missing")
	}

	letter, err := s.writer.Write(ctx, app.Profile, app.Analysis)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		app.warn("cover letter was not generated: " + string(llm.ReasonOf(err)))
		deps.Logger.Warn("cover letter failed, continuing without it",
			zap.String("reason", string(llm.ReasonOf(err))),
			zap.Error(err),
		)
		return nil
	}

	app.CoverLetter = letter
	return nil
}

func (s *coverLetterStage) Status() Status { return s.status(s.Name(), nil) }

type documentsStage struct {
	toggle
	builder DocumentBuilder
}

// NewDocuments creates the stage that writes the CV and, when present, the
// cover letter into the application output directory.
func NewDocuments(b DocumentBuilder) Stage {
	return &documentsStage{builder: b}
}

func (s *documentsStage) Name() string { return StageDocuments }

func (s *documentsStage) Validate(app *Application) error {
	if s.builder == nil {
		return errors.New("document builder is not configured")
	}
	if app.OutputDir == "" {
		return errors.New("output dir is required")
	}
	return nil
}

func (s *documentsStage) Run(_ context.Context, deps Deps, app *Application) error {
	var company, title string
	if app.Analysis != nil {
		company, title = app.Analysis.RoleInfo.Company, app.Analysis.RoleInfo.Title
	}
	cvName, letterName := document.FileNames(company, title, app.RunID)

	cv := app.CVProfile()
	if cv == nil {
		return errors.New("profile is required")
	}
	if err := s.builder.CV(cv, filepath.Join(app.OutputDir, cvName)); err != nil {
		return fmt.Errorf("cv: %w", err)
	}
	app.Files.CV = cvName

	if app.CoverLetter == "" {
		deps.Logger.Info("no cover letter to render")
		return nil
	}
	if err := s.builder.CoverLetter(app.CoverLetter, app.Profile, filepath.Join(app.OutputDir, letterName)); err != nil {
		return fmt.Errorf("cover letter: %w", err)
	}
	app.Files.CoverLetter = letterName
	return nil
}

func (s *documentsStage) Status() Status { return s.status(s.Name(), nil) }
