package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fictotum/internal/platform/database"
)

var (
	migrateVersion uint
	migrateForce   int
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the postgres migrations for decisions, import history and the merge log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if !cfg.DatabaseEnabled {
			return eris.New("migrate requires DB_ENABLED=true")
		}

		db, err := database.Open(ctx, database.Config{DSN: cfg.DatabaseDSN()}, logger)
		if err != nil {
			return eris.Wrap(err, "open database")
		}
		defer db.Close()

		version := cfg.DatabaseMigrationVersion
		if cmd.Flags().Changed("version") {
			version = migrateVersion
		}
		force := cfg.DatabaseMigrationForce
		if cmd.Flags().Changed("force") {
			force = migrateForce
		}

		if err := newMigrationService(version, force).Migrate(db); err != nil {
			return eris.Wrap(err, "migrate")
		}
		return nil
	},
}

func newMigrationService(version uint, force int) *database.MigrationService {
	return database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             version,
		Force:               force,
	})
}

func init() {
	migrateCmd.Flags().UintVar(&migrateVersion, "version", 0, "target version (default: latest)")
	migrateCmd.Flags().IntVar(&migrateForce, "force", 0, "force the schema to a version before migrating")
	rootCmd.AddCommand(migrateCmd)
}
