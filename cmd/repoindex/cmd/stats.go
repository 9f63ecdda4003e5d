package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/repoindex/internal/errors"
	"github.com/Aman-CERP/repoindex/internal/telemetry"
)

func newStatsCmd() *cobra.Command {
	var (
		jsonOutput bool
		days       int
		top        int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show query telemetry",
		Long: `Display what searches recorded in the telemetry database:
  - Query type distribution (term/range/compound/all)
  - Most queried fields
  - Recent zero-result queries
  - Latency distribution`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd, jsonOutput, days, top)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().IntVar(&days, "days", 7, "Number of days to include")
	cmd.Flags().IntVar(&top, "top", 10, "Number of fields and zero-result queries to list")

	return cmd
}

// StatsOutput is the JSON output format for stats.
type StatsOutput struct {
	From                string                 `json:"from"`
	To                  string                 `json:"to"`
	TotalQueries        int64                  `json:"total_queries"`
	QueryTypeCounts     map[string]int64       `json:"query_type_counts"`
	TopFields           []telemetry.FieldCount `json:"top_fields"`
	ZeroResultQueries   []string               `json:"zero_result_queries"`
	LatencyDistribution map[string]int64       `json:"latency_distribution"`
}

func runStats(cmd *cobra.Command, jsonOutput bool, days, top int) error {
	if days <= 0 {
		return errors.ValidationError("--days must be positive", nil)
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	path := filepath.Join(a.dataDir(), TelemetryFileName)
	if _, err := os.Stat(path); err != nil {
		return errors.Newf(errors.ErrCodeFileNotFound, "no telemetry recorded in %s", a.dataDir()).
			WithSuggestion("Run 'repoindex search' to record queries")
	}

	st, err := telemetry.OpenSQLiteMetricsStore(path)
	if err != nil {
		return errors.StorageError("telemetry", "open", err)
	}
	defer func() { _ = st.Close() }()

	out, err := queryStats(st, time.Now(), days, top)
	if err != nil {
		return errors.StorageError("telemetry", "read", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	printStats(a, out)
	return nil
}

func queryStats(st telemetry.QueryMetricsStore, now time.Time, days, top int) (*StatsOutput, error) {
	to := now.Format("2006-01-02")
	from := now.AddDate(0, 0, -(days - 1)).Format("2006-01-02")

	types, err := st.GetQueryTypeCounts(from, to)
	if err != nil {
		return nil, fmt.Errorf("get query types: %w", err)
	}
	fields, err := st.GetTopFields(top)
	if err != nil {
		return nil, fmt.Errorf("get top fields: %w", err)
	}
	zero, err := st.GetZeroResultQueries(top)
	if err != nil {
		return nil, fmt.Errorf("get zero-result queries: %w", err)
	}
	latencies, err := st.GetLatencyCounts(from, to)
	if err != nil {
		return nil, fmt.Errorf("get latencies: %w", err)
	}

	out := &StatsOutput{
		From:                from,
		To:                  to,
		QueryTypeCounts:     make(map[string]int64, len(types)),
		TopFields:           fields,
		ZeroResultQueries:   zero,
		LatencyDistribution: make(map[string]int64, len(latencies)),
	}
	for qt, n := range types {
		out.QueryTypeCounts[string(qt)] = n
		out.TotalQueries += n
	}
	for b, n := range latencies {
		out.LatencyDistribution[string(b)] = n
	}
	if out.TopFields == nil {
		out.TopFields = []telemetry.FieldCount{}
	}
	if out.ZeroResultQueries == nil {
		out.ZeroResultQueries = []string{}
	}
	return out, nil
}

// latencyOrder lists histogram buckets fastest first.
var latencyOrder = []telemetry.LatencyBucket{
	telemetry.BucketP10, telemetry.BucketP50, telemetry.BucketP100, telemetry.BucketP500, telemetry.BucketP1000,
}

func printStats(a *app, out *StatsOutput) {
	a.out.Header("Query Statistics")
	a.out.KeyValue("Period", out.From+" to "+out.To)
	a.out.KeyValue("Total queries", out.TotalQueries)
	a.out.Newline()

	if len(out.QueryTypeCounts) > 0 {
		types := make([]string, 0, len(out.QueryTypeCounts))
		for qt := range out.QueryTypeCounts {
			types = append(types, qt)
		}
		sort.Strings(types)
		rows := [][]string{{"TYPE", "COUNT"}}
		for _, qt := range types {
			rows = append(rows, []string{qt, fmt.Sprint(out.QueryTypeCounts[qt])})
		}
		a.out.Table(rows)
		a.out.Newline()
	}

	if len(out.TopFields) > 0 {
		a.out.Status("", "Top fields:")
		for i, f := range out.TopFields {
			a.out.Statusf("", "  %d. %s (%d)", i+1, f.Field, f.Count)
		}
	} else {
		a.out.Status("", "Top fields: (none recorded yet)")
	}
	a.out.Newline()

	if len(out.ZeroResultQueries) > 0 {
		a.out.Status("", "Recent zero-result queries:")
		for _, q := range out.ZeroResultQueries {
			a.out.Statusf("", "  - %s", q)
		}
	} else {
		a.out.Status("", "Recent zero-result queries: (none)")
	}

	if len(out.LatencyDistribution) > 0 {
		a.out.Newline()
		a.out.Status("", "Latency:")
		for _, b := range latencyOrder {
			if n, ok := out.LatencyDistribution[string(b)]; ok {
				a.out.Statusf("", "  %-6s %d", b, n)
			}
		}
	}
}
