package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/job-agent/internal/agents"
	"github.com/spigell/job-agent/internal/profile"
	"github.com/spigell/job-agent/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the scoring and application API over HTTP",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (default is :8000)")
	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}

func serve() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, config := setup()
	logger.Info("starting the job-agent server", zap.String("version", version))

	// The server starts without a profile; one can be imported over HTTP.
	master, err := profile.Load(config.Profile)
	if err != nil {
		logger.Warn("master profile is not loaded", zap.Error(err), zap.String("path", config.Profile))
	}

	m, reg := newMetrics()
	inv, err := newInvoker(ctx, config.LLM, m, logger)
	if err != nil {
		logger.Fatal("creating llm client", zap.Error(err))
	}

	// Requests are not interactive, so low scores never stop a run.
	stages := newStages(inv, config, nil, nil, logger)

	srv := server.New(server.Config{
		Addr:        config.Server.Addr,
		Stages:      stages,
		Parser:      agents.NewProfileParser(inv, logger),
		Profile:     master,
		ProfilePath: config.Profile,
		OutputDir:   config.OutputDir,
		Metrics:     m,
		Gatherer:    reg,
	}, logger)

	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Fatal("http server error", zap.Error(err))
	}
}
