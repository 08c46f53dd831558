package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/dripyard/internal/config"
	"github.com/zulandar/dripyard/internal/db"
	"github.com/zulandar/dripyard/internal/faucet"
	"gorm.io/gorm"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBInitCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the Dripyard database",
		Long:  "Creates the database when using MySQL, migrates all tables and seeds the built-in faucet catalog.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Dripyard config file")
	return cmd
}

func runDBInit(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.Database.Driver == "mysql" && cfg.Database.DSN == "" {
		adminDB, err := db.ConnectAdmin(cfg.Database.Host, cfg.Database.Port)
		if err != nil {
			return err
		}
		if err := db.CreateDatabase(adminDB, cfg.Database.Name); err != nil {
			return err
		}
		fmt.Fprintf(out, "Database %s ready\n", cfg.Database.Name)
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return err
	}
	seeded, err := initDatabase(cmd.Context(), gormDB)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))
	fmt.Fprintf(out, "Seeded %d built-in faucets\n", seeded)
	fmt.Fprintln(out, "\nDripyard database initialized successfully.")
	return nil
}

// initDatabase migrates every table and seeds missing built-in faucets.
func initDatabase(ctx context.Context, gormDB *gorm.DB) (int, error) {
	if err := db.AutoMigrate(gormDB); err != nil {
		return 0, err
	}
	return faucet.NewRegistry(gormDB).Seed(ctx, faucet.Builtin())
}
