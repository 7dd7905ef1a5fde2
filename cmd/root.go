package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/legislation-cli/internal/config"
)

var (
	cfg         *config.Config
	sessionYear int
)

var rootCmd = &cobra.Command{
	Use:   "legislation-cli",
	Short: "Legislative document pipeline",
	Long:  "Downloads a session's bills, amendments and fiscal notes, transcodes them to text with struck language marked, merges adopted amendments and annotates each bill with structured answers.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if sessionYear != 0 {
			c.Session.Year = sessionYear
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

func init() {
	rootCmd.PersistentFlags().IntVar(&sessionYear, "year", 0, "session year (default from config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
