package agents

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/job-agent/internal/llm"
	"github.com/spigell/job-agent/internal/logger"
	"github.com/spigell/job-agent/internal/profile"
	"github.com/spigell/job-agent/internal/utils"
)

// CoverLetterWriter drafts the body of a cover letter.
type CoverLetterWriter struct {
	invoker Invoker
	logger  *zap.Logger
}

func NewCoverLetterWriter(invoker Invoker, l *zap.Logger) *CoverLetterWriter {
	return &CoverLetterWriter{invoker: invoker, logger: logger.Component(l, "cover_letter")}
}

// Write returns the letter body for p applying to the analyzed job.
func (w *CoverLetterWriter) Write(ctx context.Context, p *profile.Profile, analysis *JobAnalysis) (string, error) {
	if p == nil || analysis == nil {
		return "", errors.New("profile and job analysis are required")
	}

	profileJSON, err := indentJSON(p)
	if err != nil {
		return "", fmt.Errorf("marshal profile: %w", err)
	}
	analysisJSON, err := indentJSON(analysis)
	if err != nil {
		return "", fmt.Errorf("marshal job analysis: %w", err)
	}

	w.logger.Info("writing cover letter",
		zap.String("company", analysis.RoleInfo.Company),
		zap.String("title", analysis.RoleInfo.Title),
	)

	out, err := w.invoker.Invoke(ctx, llm.Request{
		System: coverLetterSystem,
		Prompt: render(coverLetterPrompt, map[string]string{
			"PROFILE_JSON":  profileJSON,
			"ANALYSIS_JSON": analysisJSON,
		}),
		Temperature: 0.7,
	}, llm.Options{})
	if err != nil {
		return "", fmt.Errorf("write cover letter: %w", err)
	}

	letter := utils.CollapseBlankLines(out.Text)
	if letter == "" {
		return "", fmt.Errorf("write cover letter: %w", &llm.Error{
			Reason:   llm.ReasonInvalidResponse,
			Attempts: out.Attempts,
			Err:      errors.New("empty letter"),
		})
	}
	return letter, nil
}
