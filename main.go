package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath    string
	systemPath    string
	workspacePath string
)

var rootCmd = &cobra.Command{
	Use:   "pointer",
	Short: "Agentic coding assistant served over chat channels",
	Long: `pointer streams model responses into persistent sessions, runs the
tool calls the model makes and applies the code it writes to a workspace.

  pointer serve              # start the configured channels
  pointer sessions           # list stored sessions`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.json", "Application config file")
	rootCmd.PersistentFlags().StringVar(&systemPath, "system", "system.json", "System tuning file (optional, hot reloaded)")
	rootCmd.PersistentFlags().StringVar(&workspacePath, "workspace", "", "Workspace directory (overrides config)")

	rootCmd.AddCommand(serveCmd, sessionsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
