package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/job-agent/internal/document"
	"github.com/spigell/job-agent/internal/jobsource"
	"github.com/spigell/job-agent/internal/llm"
	"github.com/spigell/job-agent/internal/pipeline"
	"github.com/spigell/job-agent/internal/profile"
)

const (
	PromptYes     = "Yes"
	PromptNo      = "No"
	PromptMissing = "Show missing skills"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Analyze a job description and generate a tailored CV and cover letter",
	Run: func(cmd *cobra.Command, _ []string) {
		run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("job", "J", jobsource.Stdin, "job description source: a file, an http(s) url or - for stdin")
	runCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation on a low match score")
	runCmd.Flags().Bool("no-cover-letter", false, "skip the cover letter")
	runCmd.Flags().Bool("no-documents", false, "do not write docx files")
	runCmd.Flags().StringP("output-dir", "o", "", "directory for generated documents")

	viper.BindPFlag("output-dir", runCmd.Flags().Lookup("output-dir"))
}

// run is the main command for the cli.
func run(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, config := setup()
	logger.Info("starting the job-agent", zap.String("version", version))

	master, err := profile.Load(config.Profile)
	if err != nil {
		logger.Fatal("loading master profile",
			zap.Error(err),
			zap.String("hint", "create one with 'job-agent profile import <resume>' or set the 'profile' key"),
		)
	}
	logger.Info("loaded master profile", zap.String("name", master.PersonalInfo.Name))

	source, _ := cmd.Flags().GetString("job")
	if source == jobsource.Stdin {
		fmt.Fprintln(os.Stderr, "Paste the job description below, then press Ctrl+D:")
	}
	jobText, err := jobsource.New(logger).Load(ctx, source)
	if err != nil {
		logger.Fatal("reading job description", zap.Error(err))
	}

	m, _ := newMetrics()
	inv, err := newInvoker(ctx, config.LLM, m, logger)
	if err != nil {
		logger.Fatal("creating llm client", zap.Error(err))
	}

	disabled := map[string]string{}
	if flag, _ := cmd.Flags().GetBool("no-cover-letter"); flag {
		disabled[pipeline.StageCoverLetter] = "--no-cover-letter flag is set"
	}
	if flag, _ := cmd.Flags().GetBool("no-documents"); flag {
		disabled[pipeline.StageDocuments] = "--no-documents flag is set"
	}

	var gate pipeline.Gate
	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		gate = confirmLowScore
	}

	stages := newStages(inv, config, gate, disabled, logger)
	app := &pipeline.Application{
		RunID:     document.NewRunID(),
		JobText:   jobText,
		Profile:   master,
		OutputDir: config.OutputDir,
	}

	err = pipeline.Run(ctx, pipeline.Deps{Logger: logger, Metrics: m}, stages, app)
	switch {
	case errors.Is(err, pipeline.ErrAborted):
		logger.Info("exiting", zap.String("reason", "got no from prompt"))
		return
	case err != nil:
		fields := []zap.Field{zap.Error(err)}
		if reason := llm.ReasonOf(err); reason != "" {
			fields = append(fields, zap.String("reason", string(reason)))
		}
		logger.Fatal("application failed", fields...)
	}

	printReport(app)
}

// confirmLowScore asks whether to continue after a low match score.
func confirmLowScore(_ context.Context, app *pipeline.Application) (bool, error) {
	prompt := promptui.Select{
		Label: fmt.Sprintf("Match score is %d%%. Proceed?", app.Match.OverallScore),
		Items: []string{PromptYes, PromptNo, PromptMissing},
	}

	for {
		_, action, err := prompt.Run()
		if err != nil {
			return false, err
		}

		switch action {
		case PromptYes:
			return true, nil
		case PromptNo:
			return false, nil
		case PromptMissing:
			fmt.Fprintf(os.Stderr, "missing required: %s\nmissing keywords: %s\n",
				strings.Join(app.Match.MissingRequired, ", "),
				strings.Join(app.Coverage.Missing, ", "),
			)
		}
	}
}

func printReport(app *pipeline.Application) {
	out := os.Stdout
	if app.Analysis != nil {
		fmt.Fprintf(out, "Job: %s at %s\n", app.Analysis.RoleInfo.Title, app.Analysis.RoleInfo.Company)
	}
	if app.Match != nil {
		fmt.Fprintf(out, "Match score: %d%%\n", app.Match.OverallScore)
		for _, rec := range app.Match.Recommendations {
			fmt.Fprintf(out, "  - %s\n", rec)
		}
	}
	if app.Coverage != nil {
		fmt.Fprintf(out, "Keywords matched: %d/%d\n", len(app.Coverage.Matched), app.Coverage.Total)
	}
	for _, warning := range app.Warnings {
		fmt.Fprintf(out, "Warning: %s\n", warning)
	}
	if app.Files.CV != "" {
		fmt.Fprintf(out, "CV: %s\n", filepath.Join(app.OutputDir, app.Files.CV))
	}
	if app.Files.CoverLetter != "" {
		fmt.Fprintf(out, "Cover letter: %s\n", filepath.Join(app.OutputDir, app.Files.CoverLetter))
	}
}
