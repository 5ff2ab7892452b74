package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/job-agent/internal/llm"
	"github.com/spigell/job-agent/internal/logger"
	"github.com/spigell/job-agent/internal/profile"
)

// ProfileParser structures raw resume text into a profile.
type ProfileParser struct {
	invoker Invoker
	logger  *zap.Logger
}

func NewProfileParser(invoker Invoker, l *zap.Logger) *ProfileParser {
	return &ProfileParser{invoker: invoker, logger: logger.Component(l, "profile_parser")}
}

// Parse asks the model to structure resumeText.
func (p *ProfileParser) Parse(ctx context.Context, resumeText string) (*profile.Profile, error) {
	resumeText = strings.TrimSpace(resumeText)
	if resumeText == "" {
		return nil, errors.New("resume text is empty")
	}

	p.logger.Info("parsing resume", zap.Int("chars", len(resumeText)))

	out, err := p.invoker.Invoke(ctx, llm.Request{
		System:      profileParserSystem,
		Prompt:      render(parseProfilePrompt, map[string]string{"RESUME_TEXT": resumeText}),
		Temperature: 0.1,
		JSON:        true,
	}, llm.Options{RequiredKeys: []string{"personal_info", "experience"}})
	if err != nil {
		return nil, fmt.Errorf("parse resume: %w", err)
	}

	parsed, err := decodeProfile(out)
	if err != nil {
		return nil, fmt.Errorf("parse resume: %w", err)
	}

	p.logger.Info("resume parsed",
		zap.String("name", parsed.PersonalInfo.Name),
		zap.Int("positions", len(parsed.Experience)),
		zap.Int("skills", parsed.Skills.Len()),
	)
	return parsed, nil
}
