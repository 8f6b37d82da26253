package cli

import (
	"context"
	"fmt"

	"github.com/lucasnoah/builddoctor/internal/db"
	"github.com/lucasnoah/builddoctor/internal/devops"
	"github.com/spf13/cobra"
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Manage monitored pipelines",
}

var pipelineAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a pipeline and subscribe to its build events",
	Long: `Register an Azure DevOps pipeline for monitoring. A fresh webhook secret is
generated for the pipeline and, unless --no-hook is given, a build.complete
service hook pointing at this instance is created on the platform.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, _ := cmd.Flags().GetString("project-id")
		projectName, _ := cmd.Flags().GetString("project-name")
		pipelineID, _ := cmd.Flags().GetString("pipeline-id")
		pipelineName, _ := cmd.Flags().GetString("pipeline-name")
		noHook, _ := cmd.Flags().GetBool("no-hook")

		if projectID == "" || pipelineID == "" {
			return fmt.Errorf("--project-id and --pipeline-id are required")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		database, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		profile, err := database.DefaultProfile()
		if err != nil {
			return fmt.Errorf("no profile configured, run `builddoctor setup` first: %w", err)
		}

		secret := db.NewWebhookSecret()

		if !noHook {
			webhookURL := cfg.Server.BaseURL + "/api/webhooks/azure-devops"
			client := devops.NewClient(profile.AzureDevOpsOrg, profile.AzureDevOpsPAT)
			hookID, err := client.CreateServiceHook(context.Background(), projectID, pipelineID, webhookURL, secret)
			if err != nil {
				return fmt.Errorf("create service hook: %w", err)
			}
			fmt.Println("Service hook created:", hookID)
		}

		pipeline := &db.Pipeline{
			UserID:            profile.ID,
			AzureProjectID:    projectID,
			AzureProjectName:  projectName,
			AzurePipelineID:   pipelineID,
			AzurePipelineName: pipelineName,
			WebhookSecret:     secret,
			IsActive:          true,
		}
		if err := database.CreatePipeline(pipeline); err != nil {
			return err
		}
		fmt.Println("Pipeline registered:", pipeline.ID)
		return nil
	},
}

var pipelineListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered pipelines",
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

		pipelines, err := database.ListPipelines()
		if err != nil {
			return err
		}
		if len(pipelines) == 0 {
			fmt.Println("No pipelines registered.")
			return nil
		}
		for _, p := range pipelines {
			state := "inactive"
			if p.IsActive {
				state = "active"
			}
			fmt.Printf("%s  %-8s  %s / %s (definition %s)\n", p.ID, state, p.AzureProjectName, p.AzurePipelineName, p.AzurePipelineID)
		}
		return nil
	},
}

func setActive(id string, active bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer database.Close()
	return database.SetPipelineActive(id, active)
}

var pipelineActivateCmd = &cobra.Command{
	Use:   "activate <pipeline-id>",
	Short: "Resume accepting events for a pipeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setActive(args[0], true)
	},
}

var pipelineDeactivateCmd = &cobra.Command{
	Use:   "deactivate <pipeline-id>",
	Short: "Stop accepting events for a pipeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setActive(args[0], false)
	},
}

func init() {
	pipelineAddCmd.Flags().String("project-id", "", "Azure DevOps project id")
	pipelineAddCmd.Flags().String("project-name", "", "Azure DevOps project name")
	pipelineAddCmd.Flags().String("pipeline-id", "", "Azure DevOps build definition id")
	pipelineAddCmd.Flags().String("pipeline-name", "", "Azure DevOps build definition name")
	pipelineAddCmd.Flags().Bool("no-hook", false, "Skip creating the service hook on the platform")

	pipelineCmd.AddCommand(pipelineAddCmd)
	pipelineCmd.AddCommand(pipelineListCmd)
	pipelineCmd.AddCommand(pipelineActivateCmd)
	pipelineCmd.AddCommand(pipelineDeactivateCmd)
}
