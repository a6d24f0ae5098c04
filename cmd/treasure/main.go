// Command treasure runs the Trash to Treasure donation API.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/trashtotreasure/treasure/internal/config"
	"github.com/trashtotreasure/treasure/internal/db"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	configPath string
	envFile    string
	dbPath     string
	logPath    string

	rootCmd = &cobra.Command{
		Use:           "treasure",
		Short:         "Trash to Treasure donation matching API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "YAML config file")
	pf.StringVar(&envFile, "env-file", ".env", "dotenv file loaded into the environment if present")
	pf.StringVarP(&dbPath, "db", "d", "", "SQLite database path (overrides config)")
	pf.StringVarP(&logPath, "log", "l", "", "also write logs to this file")

	rootCmd.AddCommand(serveCmd, initCmd, reconcileCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and applies the global flag overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return cfg, err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if logPath != "" {
		cfg.Log.Path = logPath
	}
	return cfg, nil
}

// openDatabase opens the database and brings its schema up to date.
func openDatabase(ctx context.Context, path string) (*sql.DB, error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.EnsureSchema(database); err != nil {
		database.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	if err := database.PingContext(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	slog.Info("database ready", "path", path)
	return database, nil
}
