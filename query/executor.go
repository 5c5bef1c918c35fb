package query

import (
	"sort"
	"time"

	"github.com/muddysheep/chronicle/chrnerr"
	"github.com/muddysheep/chronicle/chrntypes"
)

// Engine is the subset of engine.Engine the executor depends on, kept as
// an interface so query can be tested without the full storage stack and
// so it never imports package engine (engine already imports nothing
// from query, but this keeps the dependency graph one-directional).
type Engine interface {
	GetMetric(name string) (chrntypes.Metric, bool)
	GetMetrics() []chrntypes.Metric
	Query(r chrntypes.TimeRange, filter *chrntypes.QueryFilter) ([]chrntypes.Sample, error)
	QueryMetric(metricName string, r chrntypes.TimeRange) ([]chrntypes.Sample, error)
}

// Result is the outcome of executing a Query.
type Result struct {
	Columns         []string
	Rows            []ResultRow
	ExecutionTimeMS int64
	PointsScanned   int
}

// Len reports the number of result rows.
func (r Result) Len() int { return len(r.Rows) }

// IsEmpty reports whether the result has no rows.
func (r Result) IsEmpty() bool { return len(r.Rows) == 0 }

// ToTimeSeries flattens a single-column result to (timestamp, value)
// pairs, for the common case of charting one metric.
func (r Result) ToTimeSeries() []TimePoint {
	if len(r.Columns) == 0 {
		return nil
	}
	first := r.Columns[0]
	points := make([]TimePoint, 0, len(r.Rows))
	for _, row := range r.Rows {
		if v, ok := row.Values[first]; ok {
			points = append(points, TimePoint{Timestamp: row.Timestamp, Value: v})
		}
	}
	return points
}

// TimePoint is a single (timestamp, value) pair.
type TimePoint struct {
	Timestamp int64
	Value     float64
}

// ResultRow is one output row: a bucket start timestamp (or the sample's
// own timestamp for non-aggregated queries) and a value per column.
type ResultRow struct {
	Timestamp int64
	Values    map[string]float64
}

// Get returns the value for column, if present.
func (r ResultRow) Get(column string) (float64, bool) {
	v, ok := r.Values[column]
	return v, ok
}

// Executor resolves, plans, fetches, filters, and aggregates Query values
// against an Engine.
type Executor struct {
	engine Engine
}

// NewExecutor builds an Executor over engine.
func NewExecutor(engine Engine) *Executor {
	return &Executor{engine: engine}
}

// ExecuteString parses queryStr and executes it.
func (e *Executor) ExecuteString(queryStr string) (Result, error) {
	q, err := ParseString(queryStr)
	if err != nil {
		return Result{}, err
	}
	return e.Execute(q)
}

type metricBinding struct {
	name string
	id   uint32
}

// Execute resolves metric names, fetches each metric's samples through the
// Engine, applies post-filters, and aggregates or flattens into a Result.
func (e *Executor) Execute(q Query) (Result, error) {
	start := time.Now()

	bindings, err := e.resolveMetrics(q.Select)
	if err != nil {
		return Result{}, err
	}

	tagFilters := extractEqualityTagFilters(q.Filters)

	var allSamples []chrntypes.Sample
	for _, b := range bindings {
		var points []chrntypes.Sample
		var err error
		if len(tagFilters) == 0 {
			points, err = e.engine.QueryMetric(b.name, q.TimeRange)
		} else {
			id := b.id
			filter := &chrntypes.QueryFilter{MetricID: &id, Tags: tagFilters}
			points, err = e.engine.Query(q.TimeRange, filter)
		}
		if err != nil {
			return Result{}, err
		}
		allSamples = append(allSamples, points...)
	}

	pointsScanned := len(allSamples)

	filtered := applyFilters(allSamples, q.Filters)

	var rows []ResultRow
	if q.GroupBy != nil {
		rows = aggregate(filtered, q.Select, q.GroupBy.Interval, bindings)
	} else {
		rows = toRows(filtered, q.Select, bindings)
	}

	if q.Limit != nil && len(rows) > *q.Limit {
		rows = rows[:*q.Limit]
	}

	columns := make([]string, len(q.Select))
	for i, s := range q.Select {
		columns[i] = s.DisplayName()
	}

	return Result{
		Columns:         columns,
		Rows:            rows,
		ExecutionTimeMS: time.Since(start).Milliseconds(),
		PointsScanned:   pointsScanned,
	}, nil
}

func (e *Executor) resolveMetrics(items []SelectItem) ([]metricBinding, error) {
	var bindings []metricBinding
	for _, item := range items {
		if item.Metric == "*" {
			for _, m := range e.engine.GetMetrics() {
				bindings = append(bindings, metricBinding{name: m.Name, id: m.ID})
			}
			continue
		}
		m, ok := e.engine.GetMetric(item.Metric)
		if !ok {
			return nil, chrnerr.New(chrnerr.KindMetricNotFound, "Executor.Execute", nil)
		}
		bindings = append(bindings, metricBinding{name: item.Metric, id: m.ID})
	}
	return bindings, nil
}

func extractEqualityTagFilters(filters []Filter) map[string]string {
	result := make(map[string]string)
	for _, f := range filters {
		key, isTag := f.Field.TagKey()
		if !isTag || f.Op != OpEq {
			continue
		}
		if v, ok := f.Value.String(); ok {
			result[key] = v
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func applyFilters(samples []chrntypes.Sample, filters []Filter) []chrntypes.Sample {
	if len(filters) == 0 {
		return samples
	}
	out := make([]chrntypes.Sample, 0, len(samples))
	for _, s := range samples {
		if matchesAllFilters(s, filters) {
			out = append(out, s)
		}
	}
	return out
}

func matchesAllFilters(s chrntypes.Sample, filters []Filter) bool {
	for _, f := range filters {
		if !matchesFilter(s, f) {
			return false
		}
	}
	return true
}

func matchesFilter(s chrntypes.Sample, f Filter) bool {
	if f.Field.IsValue() {
		n, ok := f.Value.Number()
		return ok && f.Op.CompareFloat64(s.Value, n)
	}
	if key, isTag := f.Field.TagKey(); isTag {
		tagValue, present := s.Tags[key]
		if !present {
			return f.Op == OpNe
		}
		v, ok := f.Value.String()
		return ok && f.Op.CompareString(tagValue, v)
	}
	// Metric-name filters are already applied at fetch time.
	return true
}

func aggregate(samples []chrntypes.Sample, selects []SelectItem, interval GroupByInterval, bindings []metricBinding) []ResultRow {
	groups := make(map[int64][]chrntypes.Sample)
	for _, s := range samples {
		bucket := interval.Truncate(s.Timestamp)
		groups[bucket] = append(groups[bucket], s)
	}

	rows := make([]ResultRow, 0, len(groups))
	for bucket, points := range groups {
		rows = append(rows, ResultRow{Timestamp: bucket, Values: aggregateGroup(points, selects, bindings)})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Timestamp < rows[j].Timestamp })
	return rows
}

func aggregateGroup(points []chrntypes.Sample, selects []SelectItem, bindings []metricBinding) map[string]float64 {
	values := make(map[string]float64)
	for _, item := range selects {
		metricID, hasID := bindingID(bindings, item.Metric)

		var metricValues []float64
		for _, p := range points {
			if hasID && p.MetricID != metricID {
				continue
			}
			metricValues = append(metricValues, p.Value)
		}
		if len(metricValues) == 0 {
			continue
		}

		agg := chrntypes.AggLast
		if item.Aggregation != nil {
			agg = *item.Aggregation
		}
		values[item.DisplayName()] = agg.Apply(metricValues)
	}
	return values
}

func toRows(points []chrntypes.Sample, selects []SelectItem, bindings []metricBinding) []ResultRow {
	byTimestamp := make(map[int64][]chrntypes.Sample)
	for _, p := range points {
		byTimestamp[p.Timestamp] = append(byTimestamp[p.Timestamp], p)
	}

	rows := make([]ResultRow, 0, len(byTimestamp))
	for ts, group := range byTimestamp {
		values := make(map[string]float64)
		for _, item := range selects {
			metricID, hasID := bindingID(bindings, item.Metric)
			for _, p := range group {
				if hasID && p.MetricID != metricID {
					continue
				}
				values[item.DisplayName()] = p.Value
				break
			}
		}
		rows = append(rows, ResultRow{Timestamp: ts, Values: values})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Timestamp < rows[j].Timestamp })
	return rows
}

func bindingID(bindings []metricBinding, name string) (uint32, bool) {
	for _, b := range bindings {
		if b.name == name {
			return b.id, true
		}
	}
	return 0, false
}

// QueryLastDays queries a single metric over the last n days.
func (e *Executor) QueryLastDays(metric string, days int) (Result, error) {
	return e.Execute(Select(metric).LastDays(days).Build())
}

// QueryDailyAvg queries a single metric over the last n days, averaged
// per calendar day.
func (e *Executor) QueryDailyAvg(metric string, days int) (Result, error) {
	avg := chrntypes.AggAvg
	q := Select(metric).LastDays(days).GroupBy(IntervalDay).Build()
	for i := range q.Select {
		q.Select[i].Aggregation = &avg
	}
	return e.Execute(q)
}

// QueryMetrics queries several metrics over an explicit time range.
func (e *Executor) QueryMetrics(metrics []string, r chrntypes.TimeRange) (Result, error) {
	return e.Execute(Select(metrics...).TimeRange(r).Build())
}
