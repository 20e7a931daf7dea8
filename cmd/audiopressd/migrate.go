package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AudioPress/audiopress/records"
)

var migrateRecordsCmd = &cobra.Command{
	Use:   "migrate-records",
	Short: "Fold legacy key-value metadata into versioned records",
	Long: `Migrate-records reads rows from the legacy per-key metadata table and
folds them into versioned TTS records in MySQL. Legacy rows are marked
migrated rather than deleted, so the migration is safe to re-run and
safe to roll back from.`,
	RunE: runMigrateRecords,
}

func init() {
	rootCmd.AddCommand(migrateRecordsCmd)
	migrateRecordsCmd.Flags().String("legacy-table", "", "Legacy metadata table (overrides records.mysql.legacy_table)")
}

func runMigrateRecords(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.GetString("records.backend", "memory") != "mysql" {
		return errors.New(`migrate-records needs records.backend set to "mysql"`)
	}

	legacyTable, _ := cmd.Flags().GetString("legacy-table")
	if legacyTable == "" {
		legacyTable = cfg.GetString("records.mysql.legacy_table", "")
	}
	if legacyTable == "" {
		return errors.New("no legacy table named (set records.mysql.legacy_table or --legacy-table)")
	}

	store, closeStore, err := buildRecordsStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	mysqlStore, ok := store.(*records.MySQLStore)
	if !ok {
		return fmt.Errorf("records store %T cannot run the migration", store)
	}

	migrated, err := mysqlStore.MigrateLegacy(ctx, legacyTable)
	if err != nil {
		return err
	}

	fmt.Printf("✅ Migrated %d records from %s\n", migrated, legacyTable)
	return nil
}
