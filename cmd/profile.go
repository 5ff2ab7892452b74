package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/job-agent/internal/agents"
	"github.com/spigell/job-agent/internal/profile"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage the master profile",
}

var profileImportCmd = &cobra.Command{
	Use:   "import <resume>",
	Short: "Build the master profile from a resume (.pdf, .docx, .txt or .md) with an LLM",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		importProfile(cmd, args[0])
	},
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the master profile as JSON",
	Run: func(_ *cobra.Command, _ []string) {
		showProfile()
	},
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileImportCmd, profileShowCmd)

	profileImportCmd.Flags().StringP("output", "o", "", "where to write the profile (default is the configured profile path)")
	profileImportCmd.Flags().BoolP("force", "f", false, "overwrite an existing profile")
}

func importProfile(cmd *cobra.Command, resume string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, config := setup()

	target, _ := cmd.Flags().GetString("output")
	if target == "" {
		target = config.Profile
	}
	if force, _ := cmd.Flags().GetBool("force"); !force {
		if _, err := os.Stat(target); err == nil {
			logger.Fatal("profile already exists", zap.String("path", target), zap.String("hint", "use --force to overwrite"))
		}
	}

	data, err := os.ReadFile(resume)
	if err != nil {
		logger.Fatal("reading resume", zap.Error(err))
	}
	text, err := profile.ExtractText(filepath.Base(resume), data)
	if err != nil {
		logger.Fatal("extracting resume text", zap.Error(err))
	}
	logger.Info("resume text extracted", zap.String("file", resume), zap.Int("chars", len(text)))

	m, _ := newMetrics()
	inv, err := newInvoker(ctx, config.LLM, m, logger)
	if err != nil {
		logger.Fatal("creating llm client", zap.Error(err))
	}

	parsed, err := agents.NewProfileParser(inv, logger).Parse(ctx, text)
	if err != nil {
		logger.Fatal("parsing resume", zap.Error(err))
	}

	if err := parsed.Save(target); err != nil {
		logger.Fatal("saving profile", zap.Error(err))
	}

	logger.Info("profile imported",
		zap.String("path", target),
		zap.String("name", parsed.PersonalInfo.Name),
		zap.Int("experience", len(parsed.Experience)),
		zap.Int("skills", parsed.Skills.Len()),
	)
	fmt.Println(target)
}

func showProfile() {
	logger, config := setup()

	master, err := profile.Load(config.Profile)
	if err != nil {
		logger.Fatal("loading master profile", zap.Error(err))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(master); err != nil {
		logger.Fatal("writing profile", zap.Error(err))
	}
}
