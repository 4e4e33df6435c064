package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"socialpub/internal/history"
)

var (
	historyLimit int

	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "Show recent publish outcomes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			if !cfg.History.Enabled {
				return fmt.Errorf("history recording is disabled in config")
			}
			store, err := history.Open(cfg.History.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.Recent(historyLimit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("no publish history yet")
				return nil
			}
			for _, r := range records {
				line := fmt.Sprintf("%s  %-7s %-15s %q",
					r.CreatedAt.Local().Format("2006-01-02 15:04"), r.Mode, r.Outcome, r.TextPrefix)
				if len(r.Tags) > 0 {
					line += fmt.Sprintf("  [%v]", r.Tags)
				}
				if r.Error != "" {
					line += "  err: " + r.Error
				}
				fmt.Println(line)
			}
			return nil
		},
	}
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of records to show")
}
