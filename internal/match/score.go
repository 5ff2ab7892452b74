// Package match scores a candidate profile against job requirements without
// calling a model. Every function here is pure and deterministic.
package match

import "fmt"

const (
	// CategoryRequired is the category_scores key for required skills.
	CategoryRequired = "required"
	// CategoryPreferred is the category_scores key for preferred skills.
	CategoryPreferred = "preferred"
	// CategoryKeywords is the category_scores key for ATS keywords.
	CategoryKeywords = "keywords"

	requiredWeight  = 50
	preferredWeight = 30
	keywordWeight   = 20

	// RecommendThreshold is the overall score below which gap recommendations are produced.
	// Below it, recommendations list only missing required skills, so a low score with
	// every required skill matched yields an empty list.
	RecommendThreshold = 70
	maxRecommendations = 5

	strongMatchMessage = "Strong match! Your profile aligns well with this role."
)

// JobRequirements lists what a posting asks for.
type JobRequirements struct {
	RequiredSkills  Terms `json:"required_skills"`
	PreferredSkills Terms `json:"preferred_skills"`
	Keywords        Terms `json:"keywords"`
}

// CandidateProfile is the flattened skill set of a candidate.
type CandidateProfile struct {
	Skills Terms `json:"skills"`
}

// Result is the outcome of a single Score call.
type Result struct {
	OverallScore     int            `json:"overall_score"`
	CategoryScores   map[string]int `json:"category_scores"`
	MissingRequired  []string       `json:"missing_required"`
	MissingPreferred []string       `json:"missing_preferred"`
	Recommendations  []string       `json:"recommendations"`

	MatchedRequired  []string `json:"matched_required"`
	MatchedPreferred []string `json:"matched_preferred"`
	MatchedKeywords  []string `json:"matched_keywords"`
	MissingKeywords  []string `json:"missing_keywords"`
}

// Score compares the job requirements with the candidate skills.
//
// Each category scores |job ∩ profile| / max(|job|, 1) * 100, rounded half up.
// An empty required set scores 100. The overall score weighs required,
// preferred and keyword scores 50/30/20.
func Score(job JobRequirements, profile CandidateProfile) Result {
	skills := NewSet(profile.Skills...)
	required := NewSet(job.RequiredSkills...)
	preferred := NewSet(job.PreferredSkills...)
	keywords := NewSet(job.Keywords...)

	matchedRequired, missingRequired := required.Split(skills)
	matchedPreferred, missingPreferred := preferred.Split(skills)
	matchedKeywords, missingKeywords := keywords.Split(skills)

	requiredScore := 100
	if required.Len() > 0 {
		requiredScore = ratio(len(matchedRequired), required.Len())
	}
	preferredScore := ratio(len(matchedPreferred), preferred.Len())
	keywordScore := ratio(len(matchedKeywords), keywords.Len())

	overall := clamp((requiredWeight*requiredScore + preferredWeight*preferredScore + keywordWeight*keywordScore + 50) / 100)

	return Result{
		OverallScore: overall,
		CategoryScores: map[string]int{
			CategoryRequired:  requiredScore,
			CategoryPreferred: preferredScore,
			CategoryKeywords:  keywordScore,
		},
		MissingRequired:  missingRequired,
		MissingPreferred: missingPreferred,
		Recommendations:  recommendations(overall, missingRequired),
		MatchedRequired:  matchedRequired,
		MatchedPreferred: matchedPreferred,
		MatchedKeywords:  matchedKeywords,
		MissingKeywords:  missingKeywords,
	}
}

// ratio returns round(matched / max(total, 1) * 100) in integer arithmetic.
func ratio(matched, total int) int {
	if total < 1 {
		total = 1
	}
	return clamp((200*matched + total) / (2 * total))
}

func clamp(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

func recommendations(overall int, missingRequired []string) []string {
	if overall >= RecommendThreshold {
		return []string{strongMatchMessage}
	}

	recs := make([]string, 0, min(len(missingRequired), maxRecommendations))
	for _, skill := range missingRequired {
		if len(recs) == maxRecommendations {
			break
		}
		recs = append(recs, fmt.Sprintf("add %s to your profile", skill))
	}
	return recs
}
