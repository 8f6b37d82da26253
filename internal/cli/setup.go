package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/lucasnoah/builddoctor/internal/db"
	"github.com/lucasnoah/builddoctor/internal/devops"
	"github.com/spf13/cobra"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create or update the operator profile",
	Long: `Store the Azure DevOps organization and personal access token on the
instance profile. The credentials are verified against the platform before
being saved.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		org, _ := cmd.Flags().GetString("org")
		pat, _ := cmd.Flags().GetString("pat")
		email, _ := cmd.Flags().GetString("email")
		skipVerify, _ := cmd.Flags().GetBool("skip-verify")

		if org == "" || pat == "" {
			return fmt.Errorf("--org and --pat are required")
		}

		if !skipVerify {
			if !devops.NewClient(org, pat).TestConnection(context.Background()) {
				return fmt.Errorf("could not reach organization %q with the given token", org)
			}
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
		switch {
		case errors.Is(err, db.ErrNotFound):
			profile = &db.Profile{Email: email, AzureDevOpsOrg: org, AzureDevOpsPAT: pat}
			if err := database.CreateProfile(profile); err != nil {
				return err
			}
			fmt.Println("Profile created:", profile.ID)
		case err != nil:
			return err
		default:
			profile.AzureDevOpsOrg = org
			profile.AzureDevOpsPAT = pat
			if email != "" {
				profile.Email = email
			}
			if err := database.UpdateProfile(profile); err != nil {
				return err
			}
			fmt.Println("Profile updated:", profile.ID)
		}
		return nil
	},
}

func init() {
	setupCmd.Flags().String("org", "", "Azure DevOps organization name")
	setupCmd.Flags().String("pat", "", "Azure DevOps personal access token")
	setupCmd.Flags().String("email", "", "Contact email for the profile")
	setupCmd.Flags().Bool("skip-verify", false, "Skip the connectivity check")
}
