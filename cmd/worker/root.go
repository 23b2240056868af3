package main

import (
	"github.com/spf13/cobra"

	"interview-processor-go/internal/config"
	"interview-processor-go/internal/logger"
)

var (
	envFile string
)

var rootCmd = &cobra.Command{
	Use:          "worker",
	Short:        "Turns interview videos into questions with generated answers",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(processInterviewCmd)
	rootCmd.AddCommand(processVideoCmd)

	rootCmd.PersistentFlags().StringVarP(&envFile, "env-file", "e", ".env", "Path to a .env file loaded before the environment")
}

// setup loads the configuration and builds the service logger with its level.
func setup() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, err
	}
	log := logger.New()
	log.Logger.SetLevel(logger.ParseLevel(cfg.LogLevel))
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}
