package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chameleon-db/chameleon-mock/pkg/engine"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var (
	queryArgs     string
	queryFilters  []string
	queryIncludes []string
	queryOrder    []string
	queryLimit    int
	queryOffset   int
	querySnapshot string
	querySave     string
	queryDebug    bool
	queryTrace    bool
	queryExplain  bool
	queryMetrics  bool
	queryCompact  bool
)

var queryCmd = &cobra.Command{
	Use:   "query <entity> [operation]",
	Short: "Run one delegate operation against the seeded store",
	Long: `Run a single ORM-style operation against an engine built from the
project seed (or a saved snapshot) and print the result as JSON.

The operation defaults to findMany. Arguments are given as a JSON object
with --args, or for findMany with the --filter/--include/--order flags.
Filters use field:operator:value with operators eq, neq, gt, gte, lt, lte,
like, in, contains, startsWith and endsWith; values are parsed as JSON when
possible.

Write operations change only the in-memory store; use --save to keep the
resulting state as a snapshot.

Examples:
  chameleon-mock query User
  chameleon-mock query User findUnique --args '{"where": {"id": 1}}'
  chameleon-mock query Post --filter published:eq:true --include author --order title:asc
  chameleon-mock query Post groupBy --args '{"by": ["authorId"], "_count": true}'
  chameleon-mock query User create --args '{"data": {"email": "c@x.io"}}' --save with-carla
  chameleon-mock query User --explain`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		ctx := context.Background()

		entity := args[0]
		op := "findMany"
		if len(args) > 1 {
			op = args[1]
		}

		p, err := openProject()
		if err != nil {
			return err
		}

		opts := []engine.Option{}
		if dc := queryDebugContext(cmd.ErrOrStderr()); dc != nil {
			opts = append(opts, engine.WithDebugContext(dc))
		}
		registry := prometheus.NewRegistry()
		if queryMetrics {
			metrics, err := engine.NewMetrics(registry)
			if err != nil {
				return err
			}
			opts = append(opts, engine.WithMetrics(metrics))
		}

		eng, err := p.queryEngine(ctx, opts...)
		if err != nil {
			return err
		}

		result, err := runQuery(ctx, eng, entity, op)
		p.record("query", start, map[string]any{"entity": entity, "operation": op}, err)
		if err != nil {
			return err
		}

		if err := printJSON(cmd.OutOrStdout(), result, queryCompact); err != nil {
			return err
		}

		if querySave != "" {
			if err := p.saveSnapshot(querySave, eng.GetInternalState()); err != nil {
				return err
			}
			printSuccess("Saved snapshot %s", querySave)
		}

		if queryMetrics {
			return printMetrics(cmd.OutOrStdout(), registry)
		}
		return nil
	},
}

func init() {
	queryCmd.Flags().StringVar(&queryArgs, "args", "", "operation arguments as a JSON object")
	queryCmd.Flags().StringArrayVar(&queryFilters, "filter", nil, "findMany filter field:operator:value (repeatable)")
	queryCmd.Flags().StringArrayVar(&queryIncludes, "include", nil, "relation path to include, dotted for nesting (repeatable)")
	queryCmd.Flags().StringArrayVar(&queryOrder, "order", nil, "order field:asc|desc (repeatable)")
	queryCmd.Flags().IntVar(&queryLimit, "limit", 0, "maximum records for findMany")
	queryCmd.Flags().IntVar(&queryOffset, "offset", 0, "records to skip for findMany")
	queryCmd.Flags().StringVar(&querySnapshot, "snapshot", "", "start from a saved snapshot instead of the seed")
	queryCmd.Flags().StringVar(&querySave, "save", "", "save the resulting state as a snapshot")
	queryCmd.Flags().BoolVar(&queryDebug, "debug", false, "log each operation")
	queryCmd.Flags().BoolVar(&queryTrace, "trace", false, "show full operation trace")
	queryCmd.Flags().BoolVar(&queryExplain, "explain", false, "show index usage")
	queryCmd.Flags().BoolVar(&queryMetrics, "metrics", false, "print operation metrics after the result")
	queryCmd.Flags().BoolVar(&queryCompact, "compact", false, "print JSON on one line")

	rootCmd.AddCommand(queryCmd)
}

func queryDebugContext(w io.Writer) *engine.DebugContext {
	var level engine.DebugLevel
	switch {
	case queryExplain:
		level = engine.DebugExplain
	case queryTrace:
		level = engine.DebugTrace
	case queryDebug:
		level = engine.DebugOps
	default:
		return nil
	}
	dc := engine.DefaultDebugContext()
	dc.Level = level
	dc.Writer = w
	dc.EnableTiming = true
	dc.ColorOutput = true
	return dc
}

// queryEngine builds the engine from --snapshot when given, else the seed
func (p *project) queryEngine(ctx context.Context, opts ...engine.Option) (*engine.Engine, error) {
	if querySnapshot == "" {
		return p.seededEngine(ctx, opts...)
	}

	snap, err := p.loadSnapshot(querySnapshot)
	if err != nil {
		return nil, err
	}
	return p.newEngine(snap.State(), opts...)
}

// runQuery dispatches op on the entity's delegate
func runQuery(ctx context.Context, eng *engine.Engine, entity, op string) (any, error) {
	d, err := eng.LookupModel(entity)
	if err != nil {
		return nil, err
	}

	if queryArgs == "" && op == "findMany" && hasBuilderFlags() {
		return buildQuery(eng, entity).Execute(ctx)
	}

	args := engine.M{}
	if queryArgs != "" {
		if err := json.Unmarshal([]byte(queryArgs), &args); err != nil {
			return nil, fmt.Errorf("invalid --args: %w", err)
		}
	}

	switch op {
	case "findMany":
		return d.FindMany(args)
	case "findFirst":
		return d.FindFirst(args)
	case "findFirstOrThrow":
		return d.FindFirstOrThrow(args)
	case "findUnique":
		return d.FindUnique(args)
	case "findUniqueOrThrow":
		return d.FindUniqueOrThrow(args)
	case "count":
		return d.Count(args)
	case "aggregate":
		return d.Aggregate(args)
	case "groupBy":
		return d.GroupBy(args)
	case "create":
		return d.Create(args)
	case "createMany":
		return d.CreateMany(args)
	case "createManyAndReturn":
		return d.CreateManyAndReturn(args)
	case "update":
		return d.Update(args)
	case "updateMany":
		return d.UpdateMany(args)
	case "updateManyAndReturn":
		return d.UpdateManyAndReturn(args)
	case "upsert":
		return d.Upsert(args)
	case "delete":
		return d.Delete(args)
	case "deleteMany":
		return d.DeleteMany(args)
	}
	return nil, &engine.NotImplementedError{Operation: op}
}

func hasBuilderFlags() bool {
	return len(queryFilters) > 0 || len(queryIncludes) > 0 || len(queryOrder) > 0 || queryLimit > 0 || queryOffset > 0
}

// buildQuery maps the builder flags onto a QueryBuilder. Malformed flags
// surface as validation errors from Execute.
func buildQuery(eng *engine.Engine, entity string) *engine.QueryBuilder {
	qb := eng.Query(entity)
	for _, f := range queryFilters {
		field, op, value := parseFilterFlag(f)
		qb.Filter(field, op, value)
	}
	for _, inc := range queryIncludes {
		qb.Include(inc)
	}
	for _, o := range queryOrder {
		field, dir, _ := strings.Cut(o, ":")
		if dir == "" {
			dir = "asc"
		}
		qb.OrderBy(field, dir)
	}
	if queryLimit > 0 {
		qb.Limit(queryLimit)
	}
	if queryOffset > 0 {
		qb.Offset(queryOffset)
	}
	return qb
}

// parseFilterFlag splits field:op:value. The value is decoded as JSON when
// it parses, else kept as a string.
func parseFilterFlag(s string) (field, op string, value any) {
	parts := strings.SplitN(s, ":", 3)
	for len(parts) < 3 {
		parts = append(parts, "")
	}
	field, op = parts[0], parts[1]

	raw := parts[2]
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		value = raw
	}
	if f, ok := value.(float64); ok && f == float64(int(f)) {
		value = int(f)
	}
	return field, op, value
}

func printJSON(w io.Writer, v any, compact bool) error {
	var data []byte
	var err error
	if compact {
		data, err = json.Marshal(v)
	} else {
		data, err = json.MarshalIndent(v, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// printMetrics writes one line per gathered series
func printMetrics(w io.Writer, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	fmt.Fprintln(w)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+strconv.Quote(lp.GetValue()))
			}
			sort.Strings(labels)
			series := mf.GetName() + "{" + strings.Join(labels, ",") + "}"

			switch {
			case m.GetCounter() != nil:
				fmt.Fprintf(w, "%s %g\n", series, m.GetCounter().GetValue())
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				fmt.Fprintf(w, "%s count=%d sum=%gs\n", series, h.GetSampleCount(), h.GetSampleSum())
			}
		}
	}
	return nil
}
