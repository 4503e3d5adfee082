package main

import (
	"fmt"
	"strconv"

	"github.com/bee-cms/bee/internal/config"
	"github.com/bee-cms/bee/internal/database"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newMigrateCommand(log zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate [up | down | VERSION]",
		Short: "Apply, roll back or pin the database schema",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := database.New(&cfg.Database, log)
			if err != nil {
				return err
			}
			defer db.Close()

			target := "up"
			if len(args) == 1 {
				target = args[0]
			}
			switch target {
			case "up":
				return db.RunMigrations()
			case "down":
				return db.MigrateDown()
			default:
				version, err := strconv.ParseUint(target, 10, 32)
				if err != nil {
					return fmt.Errorf("invalid migration target %q: want up, down or a version number", target)
				}
				return db.MigrateToVersion(uint(version))
			}
		},
	}
}
