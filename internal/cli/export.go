package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/headline-goat/funnel-goat/internal/experiment"
	"github.com/headline-goat/funnel-goat/internal/store"
)

var exportFormat string

var exportCmd = &cobra.Command{
	Use:   "export <page>",
	Short: "Export raw event data",
	Long: `Export raw events for a page in CSV or JSON format, newest first.

Examples:
  funnel-goat export sleep --format csv > sleep-events.csv
  funnel-goat export sleep --format json > sleep-events.json`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "output format (csv or json)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	page := experiment.NormalizePage(args[0])

	if exportFormat != "csv" && exportFormat != "json" {
		return fmt.Errorf("invalid format: must be 'csv' or 'json'")
	}

	return withStore(func(s *store.SQLStore) error {
		events, err := s.ListEvents(cmd.Context(), page)
		if err != nil {
			return err
		}

		if exportFormat == "csv" {
			return exportCSV(cmd.OutOrStdout(), events)
		}
		return exportJSON(cmd.OutOrStdout(), events)
	})
}

var csvHeader = []string{"event_id", "session_id", "page", "event_name", "variant", "is_test", "occurred_at", "device_type"}

func exportCSV(out io.Writer, events []*store.Event) error {
	w := csv.NewWriter(out)

	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, e := range events {
		variant := ""
		if e.Variant != nil {
			variant = *e.Variant
		}
		row := []string{
			e.EventID,
			e.SessionID,
			e.Page,
			e.EventName,
			variant,
			strconv.FormatBool(e.IsTest),
			e.OccurredAt.UTC().Format(time.RFC3339Nano),
			e.DeviceType,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}

type jsonExport struct {
	Events []jsonEvent `json:"events"`
}

type jsonEvent struct {
	EventID    string         `json:"event_id"`
	SessionID  string         `json:"session_id"`
	Page       string         `json:"page"`
	EventName  string         `json:"event_name"`
	Variant    *string        `json:"variant"`
	IsTest     bool           `json:"is_test"`
	OccurredAt time.Time      `json:"occurred_at"`
	DeviceType string         `json:"device_type,omitempty"`
	Metadata   map[string]any `json:"meta,omitempty"`
}

func exportJSON(out io.Writer, events []*store.Event) error {
	export := jsonExport{
		Events: make([]jsonEvent, len(events)),
	}

	for i, e := range events {
		export.Events[i] = jsonEvent{
			EventID:    e.EventID,
			SessionID:  e.SessionID,
			Page:       e.Page,
			EventName:  e.EventName,
			Variant:    e.Variant,
			IsTest:     e.IsTest,
			OccurredAt: e.OccurredAt.UTC(),
			DeviceType: e.DeviceType,
			Metadata:   e.Metadata,
		}
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}
