package main

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/wb-go/wbf/config"
)

func newRootCommand() *cobra.Command {
	var envFile string

	rootCmd := &cobra.Command{
		Use:           "imagepipeline",
		Short:         "Image upload and rendition pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "./.env", "Path to the env-file")

	rootCmd.AddCommand(newServeCommand(&envFile))
	rootCmd.AddCommand(newMigrateCommand(&envFile))
	return rootCmd
}

// loadConfig - энвы процесса + env-файл, если он есть
func loadConfig(envFile string) (*config.Config, error) {
	appConfig := config.New()
	appConfig.EnableEnv("")
	if strings.TrimSpace(envFile) == "" {
		return appConfig, nil
	}
	if err := appConfig.LoadEnvFiles(envFile); err != nil {
		return nil, fmt.Errorf("failed to load envs from %q: %w", envFile, err)
	}
	return appConfig, nil
}

func envString(cfg *config.Config, key, def string) string {
	if v := strings.TrimSpace(cfg.GetString(key)); v != "" {
		return v
	}
	return def
}

func envInt(cfg *config.Config, key string, def int) int {
	raw := strings.TrimSpace(cfg.GetString(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		log.Printf("Incorrect %s %q. Using default value %d...", key, raw, def)
		return def
	}
	return v
}
