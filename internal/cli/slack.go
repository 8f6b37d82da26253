package cli

import (
	"context"
	"fmt"

	"github.com/lucasnoah/builddoctor/internal/slack"
	"github.com/spf13/cobra"
)

var slackCmd = &cobra.Command{
	Use:   "slack",
	Short: "Manage Slack notifications",
}

var slackSaveCmd = &cobra.Command{
	Use:   "save <webhook-url>",
	Short: "Store the Slack webhook URL on the profile",
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

		profile, err := database.DefaultProfile()
		if err != nil {
			return fmt.Errorf("no profile configured, run `builddoctor setup` first: %w", err)
		}
		profile.SlackWebhookURL = args[0]
		if err := database.UpdateProfile(profile); err != nil {
			return err
		}
		fmt.Println("Slack webhook saved.")
		return nil
	},
}

var slackTestCmd = &cobra.Command{
	Use:   "test [webhook-url]",
	Short: "Send the connectivity-test message",
	Long: `Send the fixed connectivity-test message. Uses the given webhook URL, or
the one stored on the profile when no argument is passed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		url := ""
		if len(args) == 1 {
			url = args[0]
		} else {
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
				return fmt.Errorf("no profile configured: %w", err)
			}
			url = profile.SlackWebhookURL
		}
		if url == "" {
			return fmt.Errorf("no webhook URL given or stored on the profile")
		}

		if !slack.NewNotifier().SendTestMessage(context.Background(), url) {
			return fmt.Errorf("test message failed")
		}
		fmt.Println("Test message sent.")
		return nil
	},
}

func init() {
	slackCmd.AddCommand(slackSaveCmd)
	slackCmd.AddCommand(slackTestCmd)
}
