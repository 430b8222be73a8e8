package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	configPath  string
	optionsPath string
	whereFilter string
)

var rootCmd = &cobra.Command{
	Use:   "mysqlmigrator",
	Short: "MySQL schema and data synchronization tool",
	Long: `mysqlmigrator synchronizes schema and data from one master MySQL
database to one or more destination databases: tables, indexes, triggers,
stored procedures, and row data.`,
}

var overwriteCmd = &cobra.Command{
	Use:   "overwrite",
	Short: "Replace every destination's schema with the master schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(true)
	},
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Add master tables and columns missing from destinations (additive only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(false)
	},
}

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Copy row data from master to every destination",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, opts, err := loadAll()
		if err != nil {
			return err
		}
		if whereFilter != "" {
			opts.Where = whereFilter
		}
		outcomes, err := runDataMigration(context.Background(), cfg, opts)
		if err != nil {
			return err
		}
		return reportOutcomes(outcomes)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file template",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("%s already exists", configPath)
		}
		tmpl := &MigratorConfig{
			Master:       ConnectionTarget{Host: "localhost", User: "root", Database: "master_db"},
			Destinations: []ConnectionTarget{{Host: "localhost", User: "root", Database: "replica_db"}},
		}
		if err := saveMigratorConfig(configPath, tmpl); err != nil {
			return err
		}
		fmt.Printf("wrote %s, fill in credentials before running\n", configPath)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", configFile, "path to JSON credentials file")
	rootCmd.PersistentFlags().StringVar(&optionsPath, "options", "", "path to TOML run options file")
	dataCmd.Flags().StringVar(&whereFilter, "where", "", "row filter expression applied to every master table")
	rootCmd.AddCommand(overwriteCmd, updateCmd, dataCmd, initCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadAll() (*MigratorConfig, *RunOptions, error) {
	cfg, err := loadMigratorConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	opts := defaultRunOptions()
	if optionsPath != "" {
		if opts, err = loadRunOptions(optionsPath); err != nil {
			return nil, nil, err
		}
	}
	return cfg, opts, nil
}

func runSync(overwrite bool) error {
	cfg, _, err := loadAll()
	if err != nil {
		return err
	}
	outcomes, err := runSchemaSync(context.Background(), cfg, overwrite)
	if err != nil {
		return err
	}
	return reportOutcomes(outcomes)
}

// reportOutcomes prints one line per destination and returns an error when
// any destination failed, so the process exits non-zero.
func reportOutcomes(outcomes []MigrationOutcome) error {
	failed := 0
	for _, o := range outcomes {
		switch {
		case o.Success && len(o.Errors) == 0:
			color.Green("OK       %s", o.Target.Identity())
		case o.Success:
			color.Yellow("PARTIAL  %s (%d problem(s))", o.Target.Identity(), len(o.Errors))
		default:
			failed++
			color.Red("FAILED   %s", o.Target.Identity())
		}
		for _, e := range o.Errors {
			log.Printf("    %v", e)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d destination(s) failed", failed, len(outcomes))
	}
	return nil
}
