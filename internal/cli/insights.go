package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/decaytrack/internal/engine"
)

var (
	insightsUser  string
	insightsLimit int
	insightsDays  int
)

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "Report on a user's knowledge",
}

// insightRun wraps a report with engine setup and user resolution.
func insightRun(report func(ctx context.Context, w io.Writer, eng *engine.Engine, user string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		eng, db, err := openEngine()
		if err != nil {
			return err
		}
		defer db.Close()

		user := insightsUser
		if user == "" {
			user = cfg.Auth.DefaultUser
		}
		return report(cmd.Context(), cmd.OutOrStdout(), eng, user)
	}
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

var insightsSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Counts and averages across all items",
	RunE: insightRun(func(ctx context.Context, w io.Writer, eng *engine.Engine, user string) error {
		s, err := eng.Summary(ctx, user)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "items:            %d\n", s.TotalItems)
		fmt.Fprintf(w, "avg retention:    %.1f%%\n", s.AvgRetention)
		fmt.Fprintf(w, "avg half-life:    %.1f days\n", s.AvgHalfLife)
		fmt.Fprintf(w, "below 60%%:        %d\n", s.ItemsBelow60)
		fmt.Fprintf(w, "below 40%%:        %d\n", s.ItemsBelow40)
		fmt.Fprintf(w, "near floor:       %d\n", s.ItemsNearFloor)
		return nil
	}),
}

func printWeak(w io.Writer, items []engine.WeakItem) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No items.")
		return
	}
	for i, it := range items {
		fmt.Fprintf(w, "%d. [%5.1f%%] %s (#%d)\n", i+1, it.CurrentRetention, it.Topic, it.ID)
		fmt.Fprintf(w, "   half-life %.1f days, k=%.4f\n", it.HalfLifeDays, it.DecayRate)
	}
}

var insightsWeakestCmd = &cobra.Command{
	Use:   "weakest",
	Short: "Items with the lowest current retention",
	RunE: insightRun(func(ctx context.Context, w io.Writer, eng *engine.Engine, user string) error {
		items, err := eng.Weakest(ctx, user, orDefault(insightsLimit, engine.DefaultLimit))
		if err != nil {
			return err
		}
		printWeak(w, items)
		return nil
	}),
}

var insightsHardestCmd = &cobra.Command{
	Use:   "hardest",
	Short: "Items with the shortest half-life",
	RunE: insightRun(func(ctx context.Context, w io.Writer, eng *engine.Engine, user string) error {
		items, err := eng.Hardest(ctx, user, orDefault(insightsLimit, engine.DefaultLimit))
		if err != nil {
			return err
		}
		printWeak(w, items)
		return nil
	}),
}

var insightsTimelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Average retention per day",
	RunE: insightRun(func(ctx context.Context, w io.Writer, eng *engine.Engine, user string) error {
		points, err := eng.Timeline(ctx, user, orDefault(insightsDays, engine.DefaultTimelineDays))
		if err != nil {
			return err
		}
		if len(points) == 0 {
			fmt.Fprintln(w, "No items.")
			return nil
		}
		for _, p := range points {
			fmt.Fprintf(w, "%s  %5.1f%%  (%d items)\n", p.Date.Format(time.DateOnly), p.AvgRetention, p.Items)
		}
		return nil
	}),
}

var insightsUpcomingCmd = &cobra.Command{
	Use:   "upcoming",
	Short: "Items about to be forgotten",
	RunE: insightRun(func(ctx context.Context, w io.Writer, eng *engine.Engine, user string) error {
		forecasts, err := eng.UpcomingForgets(ctx, user, orDefault(insightsDays, engine.DefaultForgetDays))
		if err != nil {
			return err
		}
		if len(forecasts) == 0 {
			fmt.Fprintln(w, "Nothing is about to be forgotten.")
			return nil
		}
		for _, f := range forecasts {
			fmt.Fprintf(w, "%s  in %.1f days  %s (#%d)\n", f.ForgetDate.UTC().Format(time.DateOnly), f.DaysLeft, f.Topic, f.ID)
		}
		return nil
	}),
}

var insightsMostReviewedCmd = &cobra.Command{
	Use:   "most-reviewed",
	Short: "Items with the most revision and practice",
	RunE: insightRun(func(ctx context.Context, w io.Writer, eng *engine.Engine, user string) error {
		views, err := eng.MostReviewed(ctx, user, orDefault(insightsLimit, engine.DefaultLimit))
		if err != nil {
			return err
		}
		if len(views) == 0 {
			fmt.Fprintln(w, "No items.")
			return nil
		}
		for i, v := range views {
			fmt.Fprintf(w, "%d. %s (#%d)  revision %.0f, usage %.0f, retention %.1f%%\n",
				i+1, v.Topic, v.ID, v.RevisionFrequency, v.UsageFrequency, v.CurrentRetention)
		}
		return nil
	}),
}

var insightsSleepCmd = &cobra.Command{
	Use:   "sleep",
	Short: "How much each item's decay depends on sleep",
	RunE: insightRun(func(ctx context.Context, w io.Writer, eng *engine.Engine, user string) error {
		items, err := eng.SleepImpact(ctx, user)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Fprintln(w, "No items.")
			return nil
		}
		for _, it := range items {
			fmt.Fprintf(w, "%s (#%d)  k=%.4f  good sleep %.4f  poor sleep %.4f  x%.2f\n",
				it.Topic, it.ID, it.CurrentK, it.KGoodSleep, it.KPoorSleep, it.Multiplier)
		}
		return nil
	}),
}

func init() {
	insightsCmd.PersistentFlags().StringVarP(&insightsUser, "user", "u", "", "user id (default from [auth] default_user)")
	insightsCmd.PersistentFlags().IntVarP(&insightsLimit, "limit", "n", 0, "maximum number of items")
	insightsCmd.PersistentFlags().IntVarP(&insightsDays, "days", "d", 0, "window in days")

	insightsCmd.AddCommand(insightsSummaryCmd)
	insightsCmd.AddCommand(insightsWeakestCmd)
	insightsCmd.AddCommand(insightsHardestCmd)
	insightsCmd.AddCommand(insightsTimelineCmd)
	insightsCmd.AddCommand(insightsUpcomingCmd)
	insightsCmd.AddCommand(insightsMostReviewedCmd)
	insightsCmd.AddCommand(insightsSleepCmd)
}
