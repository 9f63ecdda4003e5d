package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/repoindex/internal/document"
	"github.com/Aman-CERP/repoindex/internal/errors"
	"github.com/Aman-CERP/repoindex/internal/query"
	"github.com/Aman-CERP/repoindex/internal/telemetry"
	"github.com/Aman-CERP/repoindex/pkg/searcher"
)

// TelemetryFileName is the query telemetry database inside the data dir.
const TelemetryFileName = "telemetry.db"

// searchOptions holds CLI flags for search.
type searchOptions struct {
	terms       []string // field=value
	ranges      []string // field=low..high
	exclusive   bool
	any         bool
	collections []string
	format      string // "text", "json"
	sortBy      string // "id", "updated"
	limit       int
	noTelemetry bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search the metadata and artifact indexes",
		Long: `Search indexed records with term and range clauses.

Clauses are joined with AND unless --any is given. Without clauses every
document matches. Range bounds compare as strings; dates use the
yyyyMMddHHmmss form stored in the index.

Fields: ` + strings.Join(document.KnownFields(), ", "),
		Example: `  # Every version of one artifact
  repoindex search --term groupId=org.example --term artifactId=lib

  # Metadata updated during 2024
  repoindex search --collection metadata --range lastUpdate=20240101000000..20241231235959

  # Artifacts of either group, as JSON
  repoindex search --any --term groupId=org.a --term groupId=org.b --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSearch(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringArrayVar(&opts.terms, "term", nil, "Term clause field=value (repeatable)")
	cmd.Flags().StringArrayVar(&opts.ranges, "range", nil, "Range clause field=low..high (repeatable)")
	cmd.Flags().BoolVar(&opts.exclusive, "exclusive", false, "Exclude range bounds")
	cmd.Flags().BoolVar(&opts.any, "any", false, "Join clauses with OR instead of AND")
	cmd.Flags().StringSliceVarP(&opts.collections, "collection", "c", nil, "Collections to search: metadata, artifact (default: all)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().StringVar(&opts.sortBy, "sort", "id", "Sort order: id, updated")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (0 for all)")
	cmd.Flags().BoolVar(&opts.noTelemetry, "no-telemetry", false, "Do not record query telemetry")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, opts searchOptions) error {
	q, err := buildQuery(opts)
	if err != nil {
		return err
	}
	sortBy, err := parseSort(opts.sortBy)
	if err != nil {
		return err
	}
	if opts.format != "text" && opts.format != "json" {
		return errors.ValidationError(fmt.Sprintf("unknown format %q (valid: text, json)", opts.format), nil)
	}
	names, err := collectionNames(opts.collections)
	if err != nil {
		return err
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	indexes, err := a.openCollections(names, false)
	if err != nil {
		return err
	}

	searchOpts := []searcher.Option{
		searcher.WithLogger(a.logger),
		searcher.WithCacheSize(a.cfg.Search.CacheSize),
		searcher.WithParallelism(a.cfg.Search.Parallel),
		searcher.WithMetrics(a.metrics),
	}
	if !opts.noTelemetry {
		qm, closeTelemetry := a.openTelemetry()
		if qm != nil {
			defer closeTelemetry()
			searchOpts = append(searchOpts, searcher.WithTelemetry(qm))
		}
	}

	start := time.Now()
	hits, err := searcher.New(searchOpts...).SearchAll(ctx, q, indexes...)
	if err != nil {
		return err
	}
	total := len(hits)
	searcher.SortHits(hits, sortBy)
	if opts.limit > 0 && len(hits) > opts.limit {
		hits = hits[:opts.limit]
	}

	a.logger.Info("search_completed",
		slog.String("query", q.String()),
		slog.Int("results", total),
		slog.Duration("duration", time.Since(start)))

	if opts.format == "json" {
		return writeHitsJSON(cmd, hits)
	}
	writeHitsText(a, hits, total)
	return nil
}

// openTelemetry opens the persistent query telemetry store. Failures only
// disable telemetry.
func (a *app) openTelemetry() (*telemetry.QueryMetrics, func()) {
	path := filepath.Join(a.dataDir(), TelemetryFileName)
	st, err := telemetry.OpenSQLiteMetricsStore(path)
	if err != nil {
		a.logger.Warn("telemetry_unavailable", slog.String("path", path), slog.String("error", err.Error()))
		return nil, func() {}
	}
	qm := telemetry.NewQueryMetrics(st)
	return qm, func() {
		if err := qm.Close(); err != nil {
			a.logger.Warn("telemetry_flush_failed", slog.String("error", err.Error()))
		}
		_ = st.Close()
	}
}

// buildQuery turns --term and --range flags into a query tree.
func buildQuery(opts searchOptions) (query.Query, error) {
	var clauses []query.Query
	for _, t := range opts.terms {
		field, value, ok := strings.Cut(t, "=")
		if !ok || field == "" {
			return nil, errors.ValidationError(fmt.Sprintf("invalid --term %q: want field=value", t), nil)
		}
		clauses = append(clauses, query.TermQuery(field, value))
	}
	for _, r := range opts.ranges {
		field, bounds, ok := strings.Cut(r, "=")
		if !ok || field == "" {
			return nil, errors.ValidationError(fmt.Sprintf("invalid --range %q: want field=low..high", r), nil)
		}
		low, high, ok := strings.Cut(bounds, "..")
		if !ok {
			return nil, errors.ValidationError(fmt.Sprintf("invalid --range %q: want field=low..high", r), nil)
		}
		rq, err := query.NewRangeQuery(query.NewTerm(field, low), query.NewTerm(field, high), !opts.exclusive)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, rq)
	}

	var q query.Query
	switch {
	case len(clauses) == 0:
		q = query.All()
	case len(clauses) == 1:
		q = clauses[0]
	case opts.any:
		q = query.Or(clauses...)
	default:
		q = query.And(clauses...)
	}
	if err := query.Validate(q); err != nil {
		return nil, err
	}
	return q, nil
}

func parseSort(s string) (searcher.SortBy, error) {
	switch s {
	case "", "id":
		return searcher.ByID, nil
	case "updated":
		return searcher.ByLastUpdate, nil
	}
	return 0, errors.ValidationError(fmt.Sprintf("unknown sort %q (valid: id, updated)", s), nil)
}

// hitView is the JSON form of a hit.
type hitView struct {
	ID         string              `json:"id"`
	Kind       string              `json:"kind"`
	LastUpdate string              `json:"last_update,omitempty"`
	Fields     map[string][]string `json:"fields"`
}

func newHitView(h searcher.Hit) hitView {
	v := hitView{ID: h.ID, Kind: h.Kind().String()}
	if t := h.LastUpdate(); !t.IsZero() {
		v.LastUpdate = t.UTC().Format(time.RFC3339)
	}
	if fields, err := document.ToFields(h.Record); err == nil {
		v.Fields = fields
	}
	return v
}

func writeHitsJSON(cmd *cobra.Command, hits []searcher.Hit) error {
	views := make([]hitView, 0, len(hits))
	for _, h := range hits {
		views = append(views, newHitView(h))
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(views)
}

func writeHitsText(a *app, hits []searcher.Hit, total int) {
	if total == 0 {
		a.out.Status("🔍", "No results")
		return
	}

	rows := [][]string{{"ID", "KIND", "LAST UPDATE"}}
	for _, h := range hits {
		updated := "-"
		if t := h.LastUpdate(); !t.IsZero() {
			updated = t.UTC().Format("2006-01-02 15:04:05")
		}
		rows = append(rows, []string{h.ID, h.Kind().String(), updated})
	}
	a.out.Table(rows)
	a.out.Newline()
	if len(hits) < total {
		a.out.Statusf("", "Showing %d of %d results", len(hits), total)
		return
	}
	a.out.Statusf("", "%d results", total)
}
