// Package agents builds the LLM requests of the application pipeline and
// decodes their answers into typed values.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	_ "embed"

	"github.com/mitchellh/mapstructure"

	"github.com/spigell/job-agent/internal/llm"
	"github.com/spigell/job-agent/internal/match"
)

// Invoker performs one logical LLM call. *llm.Invoker implements it.
type Invoker interface {
	Invoke(ctx context.Context, req llm.Request, opts llm.Options) (*llm.Outcome, error)
}

var (
	//go:embed prompts/analyze.md
	analyzePrompt string
	//go:embed prompts/customize.md
	customizePrompt string
	//go:embed prompts/cover_letter.md
	coverLetterPrompt string
	//go:embed prompts/parse_profile.md
	parseProfilePrompt string
)

const (
	analyzerSystem = `You are a recruitment analyst with 20 years of experience in talent acquisition.
You deconstruct job descriptions into what the employer is actually looking for and identify the exact keywords applicant tracking systems match on.
When a piece of information such as the company name or location is not explicitly stated, return exactly "Unknown". Never guess.
Return raw JSON only.`

	customizerSystem = `You are a career coach and professional resume writer.
You rewrite candidate profiles to align with a target job, quantify achievements with the STAR method and integrate keywords naturally.
Return raw JSON only.`

	coverLetterSystem = `You are a career coach and copywriter specializing in cover letters.
You connect the candidate's value to the company's needs, avoid generic openings such as "I am writing to apply" and keep a professional yet enthusiastic tone.`

	profileParserSystem = `You are an expert resume parser. You extract structured data from resume text exactly as written.
Return raw JSON only.`
)

func render(template string, values map[string]string) string {
	pairs := make([]string, 0, len(values)*2)
	for key, value := range values {
		pairs = append(pairs, "{{"+key+"}}", value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

func indentJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

var (
	stringType      = reflect.TypeOf("")
	stringSliceType = reflect.TypeOf([]string(nil))
)

// decode copies a parsed JSON object into out. Values the model returned in
// the wrong shape are coerced instead of rejected: lists and objects become
// comma separated strings, scalars become one element lists and a non-object
// where a struct is expected decodes as empty.
func decode(input any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       coerce,
		WeaklyTypedInput: true,
		TagName:          "json",
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("create decoder: %w", err)
	}
	return dec.Decode(input)
}

func coerce(_ reflect.Type, to reflect.Type, data any) (any, error) {
	switch {
	case to == stringSliceType:
		return match.Strings(data), nil
	case to == stringType:
		switch data.(type) {
		case []any, map[string]any:
			return strings.Join(match.Strings(data), ", "), nil
		}
	case to.Kind() == reflect.Struct:
		if _, ok := data.(map[string]any); !ok {
			return map[string]any{}, nil
		}
	}
	return data, nil
}
