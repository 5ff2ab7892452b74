package match

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestScoreScenario(t *testing.T) {
	job := JobRequirements{
		RequiredSkills:  Terms{"Python", "SQL"},
		PreferredSkills: Terms{"Docker"},
		Keywords:        Terms{"Agile"},
	}
	profile := CandidateProfile{Skills: Terms{"python", "Docker", "Agile"}}

	res := Score(job, profile)

	if res.CategoryScores[CategoryRequired] != 50 {
		t.Fatalf("expected required score 50, got %d", res.CategoryScores[CategoryRequired])
	}
	if res.CategoryScores[CategoryPreferred] != 100 {
		t.Fatalf("expected preferred score 100, got %d", res.CategoryScores[CategoryPreferred])
	}
	if res.CategoryScores[CategoryKeywords] != 100 {
		t.Fatalf("expected keyword score 100, got %d", res.CategoryScores[CategoryKeywords])
	}
	if res.OverallScore != 75 {
		t.Fatalf("expected overall score 75, got %d", res.OverallScore)
	}
	if !reflect.DeepEqual(res.MissingRequired, []string{"SQL"}) {
		t.Fatalf("unexpected missing required: %v", res.MissingRequired)
	}
	if len(res.MissingPreferred) != 0 {
		t.Fatalf("expected no missing preferred, got %v", res.MissingPreferred)
	}
	if !reflect.DeepEqual(res.Recommendations, []string{strongMatchMessage}) {
		t.Fatalf("unexpected recommendations: %v", res.Recommendations)
	}
}

func TestScoreCategoryEdges(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		job      JobRequirements
		profile  CandidateProfile
		required int
	}{
		{
			name:     "empty required set is a vacuous match",
			job:      JobRequirements{PreferredSkills: Terms{"Go"}},
			profile:  CandidateProfile{Skills: Terms{"Rust"}},
			required: 100,
		},
		{
			name:     "empty required set with empty profile",
			job:      JobRequirements{},
			profile:  CandidateProfile{},
			required: 100,
		},
		{
			name:     "empty profile scores zero",
			job:      JobRequirements{RequiredSkills: Terms{"Go", "Kubernetes"}},
			profile:  CandidateProfile{},
			required: 0,
		},
		{
			name:     "one of three rounds down",
			job:      JobRequirements{RequiredSkills: Terms{"Go", "Rust", "Zig"}},
			profile:  CandidateProfile{Skills: Terms{"go"}},
			required: 33,
		},
		{
			name:     "two of three rounds up",
			job:      JobRequirements{RequiredSkills: Terms{"Go", "Rust", "Zig"}},
			profile:  CandidateProfile{Skills: Terms{"go", "zig"}},
			required: 67,
		},
		{
			name:     "duplicates collapse after normalization",
			job:      JobRequirements{RequiredSkills: Terms{"Go", " go ", "GO", "Rust"}},
			profile:  CandidateProfile{Skills: Terms{"Go"}},
			required: 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := Score(tt.job, tt.profile)
			if got := res.CategoryScores[CategoryRequired]; got != tt.required {
				t.Fatalf("expected required score %d, got %d", tt.required, got)
			}
			if res.OverallScore < 0 || res.OverallScore > 100 {
				t.Fatalf("overall score out of range: %d", res.OverallScore)
			}
		})
	}
}

func TestScoreIsCaseAndWhitespaceInsensitive(t *testing.T) {
	a := Score(
		JobRequirements{RequiredSkills: Terms{"Python"}},
		CandidateProfile{Skills: Terms{"python  "}},
	)
	b := Score(
		JobRequirements{RequiredSkills: Terms{"python"}},
		CandidateProfile{Skills: Terms{"Python"}},
	)

	if a.OverallScore != b.OverallScore || !reflect.DeepEqual(a.CategoryScores, b.CategoryScores) {
		t.Fatalf("expected equal scores, got %+v and %+v", a, b)
	}
	if a.CategoryScores[CategoryRequired] != 100 {
		t.Fatalf("expected full required match, got %d", a.CategoryScores[CategoryRequired])
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	job := JobRequirements{
		RequiredSkills:  Terms{"Kubernetes", "Go", "AWS", "Terraform"},
		PreferredSkills: Terms{"Helm", "gRPC"},
		Keywords:        Terms{"on-call", "SRE"},
	}
	profile := CandidateProfile{Skills: Terms{"go", "helm", "sre"}}

	first := Score(job, profile)
	for i := 0; i < 10; i++ {
		if next := Score(job, profile); !reflect.DeepEqual(first, next) {
			t.Fatalf("expected identical results, got %+v and %+v", first, next)
		}
	}
}

func TestScoreMissingReconstructsRequired(t *testing.T) {
	job := JobRequirements{RequiredSkills: Terms{"Terraform", "AWS", "Go", "Kubernetes"}}
	profile := CandidateProfile{Skills: Terms{"kubernetes", "go", "Java"}}

	res := Score(job, profile)

	union := NewSet(append(append([]string{}, res.MissingRequired...), res.MatchedRequired...)...)
	want := NewSet(job.RequiredSkills...)
	if !reflect.DeepEqual(union.Keys(), want.Keys()) {
		t.Fatalf("expected %v, got %v", want.Keys(), union.Keys())
	}

	if !reflect.DeepEqual(res.MissingRequired, []string{"AWS", "Terraform"}) {
		t.Fatalf("expected sorted missing list, got %v", res.MissingRequired)
	}
}

func TestScoreRecommendations(t *testing.T) {
	job := JobRequirements{
		RequiredSkills:  Terms{"A1", "B2", "C3", "D4", "E5", "F6", "G7"},
		PreferredSkills: Terms{"Helm"},
	}

	res := Score(job, CandidateProfile{Skills: Terms{"helm"}})

	if res.OverallScore >= RecommendThreshold {
		t.Fatalf("expected low score, got %d", res.OverallScore)
	}
	want := []string{
		"add A1 to your profile",
		"add B2 to your profile",
		"add C3 to your profile",
		"add D4 to your profile",
		"add E5 to your profile",
	}
	if !reflect.DeepEqual(res.Recommendations, want) {
		t.Fatalf("unexpected recommendations: %v", res.Recommendations)
	}
}

func TestScoreRecommendationsIgnorePreferred(t *testing.T) {
	job := JobRequirements{
		RequiredSkills:  Terms{"Go"},
		PreferredSkills: Terms{"Helm", "Istio"},
	}

	res := Score(job, CandidateProfile{Skills: Terms{"Go"}})

	if res.OverallScore != 50 {
		t.Fatalf("expected overall 50, got %d", res.OverallScore)
	}
	if len(res.Recommendations) != 0 {
		t.Fatalf("expected no recommendations from preferred gaps, got %v", res.Recommendations)
	}
}

func TestScoreLowWithoutMissingRequiredHasNoRecommendations(t *testing.T) {
	res := Score(JobRequirements{RequiredSkills: Terms{"Go", "SQL"}}, CandidateProfile{Skills: Terms{"go", "sql"}})

	if res.OverallScore != 50 {
		t.Fatalf("expected overall 50, got %d", res.OverallScore)
	}
	if res.Recommendations == nil || len(res.Recommendations) != 0 {
		t.Fatalf("expected an empty recommendation list, got %#v", res.Recommendations)
	}
}

func TestTermsCoerceMalformedJSON(t *testing.T) {
	payload := `{"required_skills": ["Go", 3, true, null, {"b": "Rust", "a": "C#"}], "keywords": "Agile"}`

	var job JobRequirements
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := Terms{"Go", "3", "true", "C#", "Rust"}
	if !reflect.DeepEqual(job.RequiredSkills, want) {
		t.Fatalf("expected %v, got %v", want, job.RequiredSkills)
	}
	if !reflect.DeepEqual(job.Keywords, Terms{"Agile"}) {
		t.Fatalf("expected scalar keyword to be wrapped, got %v", job.Keywords)
	}

	res := Score(job, CandidateProfile{Skills: Terms{"go"}})
	if res.CategoryScores[CategoryRequired] != 20 {
		t.Fatalf("expected required score 20, got %d", res.CategoryScores[CategoryRequired])
	}
}

func TestResultJSONFieldNames(t *testing.T) {
	res := Score(JobRequirements{RequiredSkills: Terms{"Go"}}, CandidateProfile{})

	data, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, key := range []string{"overall_score", "category_scores", "missing_required", "missing_preferred", "recommendations"} {
		if _, ok := decoded[key]; !ok {
			t.Fatalf("expected %q in %s", key, data)
		}
	}
}
