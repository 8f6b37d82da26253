package cli

import (
	"fmt"

	"github.com/lucasnoah/builddoctor/internal/config"
	"github.com/lucasnoah/builddoctor/internal/db"
	"github.com/spf13/cobra"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "builddoctor",
	Short: "AI diagnosis for failed CI builds",
	Long: `builddoctor ingests build.complete webhooks from Azure DevOps, fetches the
logs of failed builds, runs a two-pass AI analysis (classification, then
root-cause diagnosis), stores the result, and posts a summary to Slack.

Configuration is read from ./builddoctor.yaml or ~/.builddoctor/config.yaml;
the ANTHROPIC_API_KEY and DATABASE_URL environment variables override it.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(pipelineCmd)
	rootCmd.AddCommand(diagnoseCmd)
	rootCmd.AddCommand(slackCmd)
	rootCmd.AddCommand(dbCmd)
}

// loadConfig loads and validates the configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadDefault()
	if err != nil {
		return nil, err
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		for _, e := range errs {
			fmt.Println("config:", e.Error())
		}
		return nil, fmt.Errorf("invalid configuration (%d errors)", len(errs))
	}
	return cfg, nil
}

// openDB opens the configured database and applies migrations.
func openDB(cfg *config.Config) (*db.DB, error) {
	database, err := db.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return database, nil
}
