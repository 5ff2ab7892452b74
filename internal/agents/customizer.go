package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/job-agent/internal/llm"
	"github.com/spigell/job-agent/internal/logger"
	"github.com/spigell/job-agent/internal/match"
	"github.com/spigell/job-agent/internal/profile"
)

// Customizer rewrites the master profile for a specific job.
type Customizer struct {
	invoker Invoker
	logger  *zap.Logger
}

// NewCustomizer creates a customizer.
func NewCustomizer(invoker Invoker, l *zap.Logger) *Customizer {
	return &Customizer{invoker: invoker, logger: logger.Component(l, "customizer")}
}

// Customize returns a tailored copy of master. The ranked snippets are put in
// front of the model as the most relevant experience. Contact details and
// education the model leaves out are taken from master.
func (c *Customizer) Customize(
	ctx context.Context,
	master *profile.Profile,
	analysis *JobAnalysis,
	snippets []match.Snippet,
) (*profile.Profile, error) {
	if master == nil {
		return nil, errors.New("master profile is required")
	}
	if analysis == nil {
		return nil, errors.New("job analysis is required")
	}

	profileJSON, err := indentJSON(master)
	if err != nil {
		return nil, fmt.Errorf("marshal profile: %w", err)
	}
	analysisJSON, err := indentJSON(analysis)
	if err != nil {
		return nil, fmt.Errorf("marshal job analysis: %w", err)
	}

	priority := ""
	if len(snippets) > 0 {
		snippetsJSON, err := indentJSON(snippets)
		if err != nil {
			return nil, fmt.Errorf("marshal snippets: %w", err)
		}
		priority = "\nPRIORITY CONTEXT (most relevant experience):\n" + snippetsJSON + "\n"
	}

	c.logger.Info("customizing profile", zap.Int("snippets", len(snippets)))

	out, err := c.invoker.Invoke(ctx, llm.Request{
		System: customizerSystem,
		Prompt: render(customizePrompt, map[string]string{
			"SNIPPETS":      priority,
			"PROFILE_JSON":  profileJSON,
			"ANALYSIS_JSON": analysisJSON,
		}),
		Temperature: 0.5,
		JSON:        true,
	}, llm.Options{RequiredKeys: []string{"summary", "skills", "experience"}})
	if err != nil {
		return nil, fmt.Errorf("customize profile: %w", err)
	}

	tailored, err := decodeProfile(out)
	if err != nil {
		return nil, fmt.Errorf("customize profile: %w", err)
	}

	keepMasterDetails(tailored, master)
	return tailored, nil
}

func keepMasterDetails(tailored, master *profile.Profile) {
	info := &tailored.PersonalInfo
	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&info.Name, master.PersonalInfo.Name)
	fill(&info.Email, master.PersonalInfo.Email)
	fill(&info.Phone, master.PersonalInfo.Phone)
	fill(&info.LinkedIn, master.PersonalInfo.LinkedIn)
	fill(&info.Location, master.PersonalInfo.Location)
	fill(&info.Headline, master.PersonalInfo.Headline)

	if len(tailored.Education) == 0 {
		tailored.Education = master.Education
	}
}

// decodeProfile reads a profile from a JSON outcome through the lenient
// profile decoder.
func decodeProfile(out *llm.Outcome) (*profile.Profile, error) {
	if out.Object() == nil {
		return nil, &llm.Error{
			Reason:   llm.ReasonInvalidResponse,
			Raw:      out.Text,
			Attempts: out.Attempts,
			Err:      errors.New("response is not a JSON object"),
		}
	}

	data, err := json.Marshal(out.Value)
	if err != nil {
		return nil, err
	}
	p, err := profile.Decode(data, ".json")
	if err != nil {
		return nil, &llm.Error{Reason: llm.ReasonInvalidResponse, Raw: out.Text, Attempts: out.Attempts, Err: err}
	}
	return p, nil
}
