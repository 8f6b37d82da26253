package cli

import (
	"context"
	"fmt"

	"github.com/lucasnoah/builddoctor/internal/ai"
	"github.com/lucasnoah/builddoctor/internal/orchestrator"
	"github.com/lucasnoah/builddoctor/internal/slack"
	"github.com/spf13/cobra"
)

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose <build-id>",
	Short: "Run the diagnosis pipeline for one build synchronously",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
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
		orch := orchestrator.NewOrchestrator(database, &orchestrator.DevOpsLogFetcher{}, analyzer, slack.NewNotifier())

		result, err := orch.Diagnose(context.Background(), args[0])
		if err != nil {
			return err
		}

		diagnosis, err := database.LatestDiagnosis(result.BuildID)
		if err != nil {
			return err
		}
		fmt.Println("Diagnosis:", diagnosis.ID)
		fmt.Println("  Category:  ", diagnosis.ErrorCategory)
		fmt.Println("  Root cause:", diagnosis.RootCause)
		fmt.Println("  Fix:       ", diagnosis.SuggestedFix)
		fmt.Printf("  Confidence: %.2f\n", diagnosis.Confidence)
		return nil
	},
}
