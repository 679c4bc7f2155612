package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lazypower/decaytrack/internal/alerts"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one decay check and publish alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, db, err := openEngine()
		if err != nil {
			return err
		}
		defer db.Close()

		pub, err := alerts.New(cfg.Alerts, logger)
		if err != nil {
			return fmt.Errorf("alerts: %w", err)
		}
		defer pub.Close()
		eng.SetPublisher(pub, cfg.Alerts.Threshold)

		n, err := eng.CheckDecay(context.Background())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d alerts published\n", n)
		return nil
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Rebuild cached projections from the review log",
	Long: "Replays every item's review log and rewrites any cached projection that " +
		"does not match. Run after an unclean shutdown or after changing [model] settings.",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, db, err := openEngine()
		if err != nil {
			return err
		}
		defer db.Close()

		res, err := eng.Rebuild(context.Background())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d items checked, %d repaired\n", res.Checked, res.Repaired)
		return nil
	},
}
