package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lazypower/decaytrack/internal/engine"
)

var (
	exportUser   string
	exportFormat string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a user's items and review log",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportFormat != "json" && exportFormat != "yaml" {
			return fmt.Errorf("export: unknown format %q (json or yaml)", exportFormat)
		}

		eng, db, err := openEngine()
		if err != nil {
			return err
		}
		defer db.Close()

		user := exportUser
		if user == "" {
			user = cfg.Auth.DefaultUser
		}
		histories, err := eng.Export(cmd.Context(), user)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if exportOutput != "" {
			f, err := os.Create(exportOutput)
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}
			defer f.Close()
			w = f
		}
		return writeExport(w, exportFormat, user, histories)
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportUser, "user", "u", "", "user id (default from [auth] default_user)")
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "output format: json or yaml")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write to file instead of stdout")
}

type exportDoc struct {
	User       string         `json:"user" yaml:"user"`
	ExportedAt time.Time      `json:"exported_at" yaml:"exported_at"`
	Items      []exportedItem `json:"items" yaml:"items"`
}

type exportedItem struct {
	ID                  int64      `json:"id" yaml:"id"`
	Topic               string     `json:"topic" yaml:"topic"`
	Content             string     `json:"content,omitempty" yaml:"content,omitempty"`
	Attention           float64    `json:"attention" yaml:"attention"`
	Interest            float64    `json:"interest" yaml:"interest"`
	Difficulty          float64    `json:"difficulty" yaml:"difficulty"`
	BaseMemory          float64    `json:"base_memory" yaml:"base_memory"`
	MemoryFloor         float64    `json:"memory_floor" yaml:"memory_floor"`
	InitialSleepQuality float64    `json:"initial_sleep_quality" yaml:"initial_sleep_quality"`
	K0                  float64    `json:"k0_initial_strength" yaml:"k0_initial_strength"`
	DecayRate           float64    `json:"decay_rate" yaml:"decay_rate"`
	RevisionFrequency   float64    `json:"revision_frequency" yaml:"revision_frequency"`
	UsageFrequency      float64    `json:"usage_frequency" yaml:"usage_frequency"`
	SleepQuality        float64    `json:"sleep_quality" yaml:"sleep_quality"`
	CreatedAt           time.Time  `json:"created_at" yaml:"created_at"`
	LastReviewed        *time.Time `json:"last_reviewed,omitempty" yaml:"last_reviewed,omitempty"`
	LastUsed            *time.Time `json:"last_used,omitempty" yaml:"last_used,omitempty"`
	CurrentRetention    float64    `json:"current_retention" yaml:"current_retention"`
	DaysToForget        *float64   `json:"days_to_forget" yaml:"days_to_forget"` // null: never

	Reviews []exportedReview `json:"reviews" yaml:"reviews"`
}

type exportedReview struct {
	Timestamp      time.Time `json:"timestamp" yaml:"timestamp"`
	UsedInPractice bool      `json:"used_in_practice" yaml:"used_in_practice"`
	SleepQuality   float64   `json:"sleep_quality" yaml:"sleep_quality"`
}

func writeExport(w io.Writer, format, user string, histories []engine.ItemHistory) error {
	doc := exportDoc{User: user, ExportedAt: time.Now().UTC(), Items: make([]exportedItem, 0, len(histories))}
	for _, h := range histories {
		it := exportedItem{
			ID:                  h.ID,
			Topic:               h.Topic,
			Content:             h.Content,
			Attention:           h.Attention,
			Interest:            h.Interest,
			Difficulty:          h.Difficulty,
			BaseMemory:          h.BaseMemory,
			MemoryFloor:         h.MemoryFloor,
			InitialSleepQuality: h.InitialSleepQuality,
			K0:                  h.K0,
			DecayRate:           h.DecayRate,
			RevisionFrequency:   h.RevisionFrequency,
			UsageFrequency:      h.UsageFrequency,
			SleepQuality:        h.SleepQuality,
			CreatedAt:           h.CreatedAt.UTC(),
			LastReviewed:        h.LastReviewed,
			LastUsed:            h.LastUsed,
			CurrentRetention:    h.CurrentRetention,
			Reviews:             make([]exportedReview, 0, len(h.Reviews)),
		}
		if h.Forgets() {
			d := h.DaysToForget
			it.DaysToForget = &d
		}
		for _, r := range h.Reviews {
			it.Reviews = append(it.Reviews, exportedReview{
				Timestamp:      r.Timestamp.UTC(),
				UsedInPractice: r.UsedInPractice,
				SleepQuality:   r.SleepQuality,
			})
		}
		doc.Items = append(doc.Items, it)
	}

	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("export: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	}
}
