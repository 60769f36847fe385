package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pointer/pkg/config"
	"pointer/pkg/persist"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List stored sessions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := config.Load(configPath, systemPath)
		if err != nil {
			return err
		}
		backend, err := persist.Open(cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to open session storage: %w", err)
		}
		defer backend.Close()

		list, err := backend.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tMESSAGES\tCREATED")
		for _, s := range list {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.ID, s.Name, s.MessageCount, s.CreatedAt.Local().Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}
