package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/deskpilot/deskpilot/internal/config"
	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools exposed by the desktop backend",
	Long: `Connect to the configured desktop backend, print every tool it
exposes, and disconnect.`,
	RunE: runTools,
}

func init() {
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	controller, err := buildController(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	if err := controller.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect desktop backend: %w", err)
	}
	defer controller.Disconnect()

	tools := controller.Catalog().List()
	fmt.Printf("%d tool(s) available (%s backend):\n\n", len(tools), cfg.Desktop.Backend)
	for _, tool := range tools {
		fmt.Printf("  %s\n", tool.Name)
		if tool.Description != "" {
			fmt.Printf("      %s\n", tool.Description)
		}
	}
	return nil
}
