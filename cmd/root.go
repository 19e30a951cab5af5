package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/coi-audit/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "coi-audit",
	Short: "Subcontractor certificate of insurance audit",
	Long:  "Matches a subcontractor roster against a folder of insurance certificates, classifies each subcontractor, and reports coverage gaps for the audit window.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
