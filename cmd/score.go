package cmd

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/job-agent/internal/match"
	"github.com/spigell/job-agent/internal/profile"
)

var scoreCmd = &cobra.Command{
	Use:   "score <requirements.json>",
	Short: "Score the master profile against job requirements without calling an LLM",
	Long: `Score reads a JSON document with required_skills, preferred_skills and keywords
and prints the match result together with the keyword coverage of the profile.`,
	Args: cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		score(args[0])
	},
}

func init() {
	rootCmd.AddCommand(scoreCmd)
}

type scoreReport struct {
	Match    match.Result   `json:"match"`
	Coverage match.Coverage `json:"coverage"`
}

func score(path string) {
	logger, config := setup()

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Fatal("reading requirements", zap.Error(err))
	}

	var job match.JobRequirements
	if err := json.Unmarshal(data, &job); err != nil {
		logger.Fatal("parsing requirements", zap.Error(err), zap.String("file", path))
	}

	master, err := profile.Load(config.Profile)
	if err != nil {
		logger.Fatal("loading master profile", zap.Error(err))
	}

	report := scoreReport{
		Match:    match.Score(job, master.Candidate()),
		Coverage: match.KeywordCoverage(master.Text(), job.Keywords),
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		logger.Fatal("writing report", zap.Error(err))
	}
}
