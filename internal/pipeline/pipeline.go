// Package pipeline runs the ordered stages of one job application: analysis,
// snippet retrieval, CV tailoring, scoring, cover letter and documents.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/job-agent/internal/agents"
	"github.com/spigell/job-agent/internal/logger"
	"github.com/spigell/job-agent/internal/match"
	"github.com/spigell/job-agent/internal/metrics"
	"github.com/spigell/job-agent/internal/profile"
)

// Stage names.
const (
	StageAnalyze     = "analyze"
	StageRetrieve    = "retrieve"
	StageCustomize   = "customize"
	StageScore       = "score"
	StageCoverLetter = "cover_letter"
	StageDocuments   = "documents"
)

// ErrAborted is returned when the gate declines to continue after scoring.
var ErrAborted = errors.New("application aborted")

// Stage is a single step of the pipeline.
type Stage interface {
	Name() string
	Disable(reason string)
	IsEnabled() bool

	Validate(app *Application) error
	Run(ctx context.Context, deps Deps, app *Application) error
}

// Deps aggregates dependencies shared across all stages.
type Deps struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Files are the generated document names, relative to Application.OutputDir.
type Files struct {
	CV          string `json:"cv,omitempty"`
	CoverLetter string `json:"cover_letter,omitempty"`
}

// Step describes an executed or skipped stage.
type Step struct {
	Name     string        `json:"name"`
	Skipped  bool          `json:"skipped,omitempty"`
	Reason   string        `json:"reason,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Application is the state of one run. Stages read what earlier stages wrote.
type Application struct {
	RunID     string
	JobText   string
	Profile   *profile.Profile
	OutputDir string

	Analysis    *agents.JobAnalysis
	Snippets    []match.Snippet
	Tailored    *profile.Profile
	Match       *match.Result
	Coverage    *match.Coverage
	CoverLetter string
	Files       Files

	Warnings []string
	Steps    []Step
}

// CVProfile returns the tailored profile, or the master profile when the
// customize stage did not run.
func (a *Application) CVProfile() *profile.Profile {
	if a.Tailored != nil {
		return a.Tailored
	}
	return a.Profile
}

func (a *Application) warn(msg string) {
	a.Warnings = append(a.Warnings, msg)
}

// Status represents runtime information about a stage.
type Status struct {
	Name    string            `json:"name"`
	Enabled bool              `json:"enabled"`
	Reason  string            `json:"reason,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// statusProvider is implemented by stages that can supply detailed status information.
type statusProvider interface {
	Status() Status
}

// DisableByName marks a stage with the provided name as disabled while keeping it in the list.
func DisableByName(stages []Stage, name, reason string) {
	for _, stage := range stages {
		if stage.Name() == name {
			stage.Disable(reason)
		}
	}
}

// Run executes the stages sequentially over app. Enabled stages are
// validated before any of them runs.
func Run(ctx context.Context, deps Deps, stages []Stage, app *Application) error {
	if app == nil {
		return errors.New("application is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	deps.Logger = deps.Logger.With(zap.String(logger.FieldRunID, app.RunID))

	for _, stage := range stages {
		if !stage.IsEnabled() {
			continue
		}
		if err := stage.Validate(app); err != nil {
			return fmt.Errorf("%s: %w", stage.Name(), err)
		}
	}

	for _, stage := range stages {
		if !stage.IsEnabled() {
			reason := reasonOf(stage)
			deps.Logger.Info("stage disabled", zap.String("name", stage.Name()), zap.String("reason", reason))
			app.Steps = append(app.Steps, Step{Name: stage.Name(), Skipped: true, Reason: reason})
			continue
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		start := time.Now()
		err := stage.Run(ctx, deps, app)
		elapsed := time.Since(start)

		deps.Metrics.ObserveStage(stage.Name(), elapsed)
		app.Steps = append(app.Steps, Step{Name: stage.Name(), Duration: elapsed})

		if err != nil {
			return fmt.Errorf("%s: %w", stage.Name(), err)
		}

		deps.Logger.Info("pipeline step", zap.String("name", stage.Name()), zap.Duration("duration", elapsed))
	}

	return nil
}

// Describe returns status entries for the provided stages.
func Describe(stages []Stage) []Status {
	statuses := make([]Status, 0, len(stages))
	for _, stage := range stages {
		if reporter, ok := stage.(statusProvider); ok {
			statuses = append(statuses, reporter.Status())
			continue
		}

		statuses = append(statuses, Status{
			Name:    stage.Name(),
			Enabled: stage.IsEnabled(),
		})
	}
	return statuses
}

func reasonOf(stage Stage) string {
	if reporter, ok := stage.(statusProvider); ok {
		return reporter.Status().Reason
	}
	return ""
}

// toggle carries the enabled flag shared by every stage.
type toggle struct {
	disabled bool
	reason   string
}

func (t *toggle) Disable(reason string) {
	t.disabled = true
	t.reason = reason
}

func (t *toggle) IsEnabled() bool { return !t.disabled }

func (t *toggle) status(name string, details map[string]string) Status {
	return Status{Name: name, Enabled: !t.disabled, Reason: t.reason, Details: details}
}
