package main

import (
	"time"

	"github.com/UnendingLoop/ImagePipeline/internal/repository"
	"github.com/spf13/cobra"
)

func newMigrateCommand(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := loadConfig(*envFile)
			if err != nil {
				return err
			}

			dbConn, err := repository.ConnectWithRetries(appConfig.GetString("POSTGRES_DSN"), 5, 5*time.Second)
			if err != nil {
				return err
			}
			defer closeDB(dbConn)

			return repository.MigrateWithRetries(dbConn.Master, envString(appConfig, "MIGRATIONS_PATH", "./migrations"), 3, 5*time.Second)
		},
	}
}
