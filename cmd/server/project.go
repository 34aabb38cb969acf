package main

import (
	"fmt"

	"github.com/Priya8975/envelope-relay/internal/domain"
	"github.com/spf13/cobra"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
}

var projectAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a project and print its DSN",
	RunE: func(cmd *cobra.Command, _ []string) error {
		name, _ := cmd.Flags().GetString("name")
		platform, _ := cmd.Flags().GetString("platform")
		if name == "" {
			return fmt.Errorf("--name is required")
		}

		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		pgStore, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer pgStore.Close()

		project, err := pgStore.CreateProject(cmd.Context(), domain.CreateProjectRequest{Name: name, Platform: platform})
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "created project %d (%s)\nDSN: %s\n",
			project.ID, project.Name, project.DSN(cfg.Server.PublicScheme, cfg.Server.PublicHost))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(projectCmd)
	projectCmd.AddCommand(projectAddCmd)

	projectAddCmd.Flags().String("name", "", "project name")
	projectAddCmd.Flags().String("platform", "", "SDK platform, e.g. go or python")
}
