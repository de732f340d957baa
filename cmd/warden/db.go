package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"guild-warden/internal/config"
	"guild-warden/internal/logger"
	"guild-warden/internal/storage"
)

func dbCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update every table",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, closeDB, err := openDB(*configPath)
			if err != nil {
				return err
			}
			defer closeDB()

			fmt.Println("Migrating database...")
			if err := storage.Migrate(db); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Println(color.New(color.FgGreen).Sprint("Migration completed successfully"))
			return nil
		},
	})

	var yes bool
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Drop and recreate every table",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes && !confirm("WARNING: This will delete all data! Are you sure? (y/N): ") {
				return fmt.Errorf("operation cancelled by user")
			}

			db, closeDB, err := openDB(*configPath)
			if err != nil {
				return err
			}
			defer closeDB()

			fmt.Println("Resetting database...")
			if err := storage.Reset(db); err != nil {
				return fmt.Errorf("reset failed: %w", err)
			}
			fmt.Println(color.New(color.FgGreen).Sprint("Database reset completed successfully"))
			return nil
		},
	}
	reset.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	cmd.AddCommand(reset)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show which tables exist and how many rows they hold",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, closeDB, err := openDB(*configPath)
			if err != nil {
				return err
			}
			defer closeDB()

			fmt.Println("Checking database status...")
			return checkStatus(db)
		},
	})

	return cmd
}

func openDB(configPath string) (*gorm.DB, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.SetOutput(os.Stderr, "WARNING")

	db, err := storage.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	return db, func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}, nil
}

func confirm(prompt string) bool {
	fmt.Print(prompt)
	answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	answer = strings.TrimSpace(answer)
	return answer == "y" || answer == "Y"
}

func checkStatus(db *gorm.DB) error {
	stmt := &gorm.Statement{DB: db}
	for _, table := range storage.Tables() {
		if err := stmt.Parse(table); err != nil {
			return fmt.Errorf("failed to parse model %T: %w", table, err)
		}
		name := stmt.Schema.Table

		if !db.Migrator().HasTable(table) {
			fmt.Printf("%s %s table does not exist\n", color.New(color.FgRed).Sprint("❌"), name)
			continue
		}

		var count int64
		if err := db.Model(table).Count(&count).Error; err != nil {
			fmt.Printf("%s %s table exists, counting failed: %v\n", color.New(color.FgYellow).Sprint("!"), name, err)
			continue
		}
		fmt.Printf("%s %s table exists\n", color.New(color.FgGreen).Sprint("✅"), name)
		fmt.Printf("   - Contains %d records\n", count)
	}
	return nil
}
