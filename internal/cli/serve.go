package cli

import (
	"github.com/lucasnoah/builddoctor/internal/ai"
	"github.com/lucasnoah/builddoctor/internal/orchestrator"
	"github.com/lucasnoah/builddoctor/internal/slack"
	"github.com/lucasnoah/builddoctor/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the API server: the webhook receiver for Azure DevOps build events,
the diagnosis trigger, and the setup endpoints. The port and base URL come
from the config file; --port overrides the configured port.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if port, _ := cmd.Flags().GetInt("port"); port != 0 {
			cfg.Server.Port = port
		}

		database, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		analyzer := ai.NewAnalyzer(
			ai.NewAnthropicClient(cfg.Anthropic.APIKey),
			cfg.Anthropic.ClassifyModel,
			cfg.Anthropic.DiagnoseModel,
		)
		notifier := slack.NewNotifier()
		orch := orchestrator.NewOrchestrator(database, &orchestrator.DevOpsLogFetcher{}, analyzer, notifier)

		return web.NewServer(database, orch, notifier, cfg.Server.Port, cfg.Server.BaseURL).Start()
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides config)")
}
