// Command migrate applies or unwinds schema_migrations entries against the
// Job Store's Postgres database, outside of the server's own
// run-on-startup migration call.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"viralclip-backend/internal/config"
	"viralclip-backend/internal/logging"
	"viralclip-backend/internal/store"
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "migrate",
		Short: "Apply Job Store schema migrations or clear a migration's applied record",
	}

	root.AddCommand(upCmd(), downCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func upCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply every migration not yet recorded",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := logging.New(cfg.Environment)

			db, err := store.Open(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			return store.NewMigrator(db.SQL(), log).Run()
		},
	}
}

func downCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "down [migration-name]",
		Short: "Remove a migration's applied record so it reruns on the next up",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := logging.New(cfg.Environment)

			db, err := store.Open(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			return store.NewMigrator(db.SQL(), log).Down(args[0])
		},
	}
}
