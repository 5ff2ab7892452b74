package cmd

import (
	"errors"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/job-agent/internal/llm"
	"github.com/spigell/job-agent/internal/logger"
	"github.com/spigell/job-agent/internal/pipeline"
)

const (
	app = "job-agent"

	defaultProfile   = "data/master_profile.json"
	defaultOutputDir = "output"
	defaultAddr      = ":8000"
)

type Config struct {
	Profile       string        `mapstructure:"profile"`
	OutputDir     string        `mapstructure:"output-dir"`
	MinMatchScore int           `mapstructure:"min-match-score"`
	TopK          int           `mapstructure:"top-k"`
	LLM           *LLMConfig    `mapstructure:"llm"`
	Server        *ServerConfig `mapstructure:"server"`
}

type LLMConfig struct {
	Provider   string `mapstructure:"provider"`
	Model      string `mapstructure:"model"`
	BaseURL    string `mapstructure:"base-url"`
	APIKey     string `mapstructure:"api-key"`
	APIKeyFile string `mapstructure:"api-key-file"`

	llm.Policy `mapstructure:",squash"`

	RequestsPerMinute int `mapstructure:"requests-per-minute"`
	MaxLogLength      int `mapstructure:"max-log-length"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "job-agent tailors a CV and a cover letter to a job description with an LLM",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is job-agent.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().StringP("profile", "p", "", "path to the master profile (json or yaml)")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("profile", rootCmd.PersistentFlags().Lookup("profile"))

	setDefaults()
}

func setDefaults() {
	viper.SetDefault("profile", defaultProfile)
	viper.SetDefault("output-dir", defaultOutputDir)
	viper.SetDefault("min-match-score", pipeline.DefaultMinScore)
	viper.SetDefault("llm.provider", "deepseek")
	viper.SetDefault("llm.max-attempts", llm.DefaultMaxAttempts)
	viper.SetDefault("llm.base-delay", llm.DefaultBaseDelay)
	viper.SetDefault("llm.max-delay", llm.DefaultMaxDelay)
	viper.SetDefault("llm.attempt-timeout", "2m")
	viper.SetDefault("llm.max-log-length", 200)
	viper.SetDefault("server.addr", defaultAddr)
}

func initConfig() {
	// .env is optional; keys set there are read through secrets.Source.Env.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("loading .env: %v", err)
	}

	viper.SetEnvPrefix("JOB_AGENT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// A missing default config is fine, every key has a default.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}
	if config.LLM == nil {
		config.LLM = &LLMConfig{}
	}
	if config.Server == nil {
		config.Server = &ServerConfig{Addr: defaultAddr}
	}

	return config, nil
}

// setup builds the logger and reads the config, exiting on failure.
func setup() (*zap.Logger, *Config) {
	l, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		l.Fatal("getting a config", zap.Error(err))
	}

	l.Debug("starting", zap.String("version", version), zap.Any("config", redacted(config)))
	return l, config
}

func redacted(c *Config) Config {
	out := *c
	if c.LLM != nil {
		llmCfg := *c.LLM
		if llmCfg.APIKey != "" {
			llmCfg.APIKey = "***"
		}
		out.LLM = &llmCfg
	}
	return out
}
