package query

import (
	"time"

	"github.com/muddysheep/chronicle/chrntypes"
)

// Builder constructs a Query programmatically via chained calls,
// mirroring the original QueryBuilder's fluent API.
type Builder struct {
	selectItems []SelectItem
	timeRange   *chrntypes.TimeRange
	filters     []Filter
	groupBy     *GroupByClause
	limit       *int
}

// Select starts a builder selecting the named metrics.
func Select(metrics ...string) *Builder {
	items := make([]SelectItem, len(metrics))
	for i, m := range metrics {
		items[i] = NewSelectItem(m)
	}
	return &Builder{selectItems: items}
}

// ForMetric starts a builder selecting a single metric.
func ForMetric(name string) *Builder { return Select(name) }

// TimeRange sets an explicit query time range.
func (b *Builder) TimeRange(r chrntypes.TimeRange) *Builder {
	b.timeRange = &r
	return b
}

// LastDays queries the last n days relative to now.
func (b *Builder) LastDays(n int) *Builder { return b.TimeRange(chrntypes.LastDays(n, time.Now())) }

// LastHours queries the last n hours relative to now.
func (b *Builder) LastHours(n int) *Builder { return b.TimeRange(chrntypes.LastHours(n, time.Now())) }

// LastMinutes queries the last n minutes relative to now.
func (b *Builder) LastMinutes(n int) *Builder {
	return b.TimeRange(chrntypes.LastMinutes(n, time.Now()))
}

// GroupBy adds a GROUP BY clause.
func (b *Builder) GroupBy(interval GroupByInterval) *Builder {
	b.groupBy = &GroupByClause{Interval: interval}
	return b
}

// WithAggregation applies agg to every select item.
func (b *Builder) WithAggregation(agg chrntypes.AggregationFunc) *Builder {
	for i := range b.selectItems {
		b.selectItems[i].Aggregation = &agg
	}
	return b
}

// Filter appends a raw filter condition.
func (b *Builder) Filter(f Filter) *Builder {
	b.filters = append(b.filters, f)
	return b
}

// FilterTag appends an equality filter on tag key.
func (b *Builder) FilterTag(key, value string) *Builder {
	return b.Filter(TagFilter(key, OpEq, value))
}

// FilterValue appends a filter on the sample's numeric value.
func (b *Builder) FilterValue(op Operator, value float64) *Builder {
	return b.Filter(ValueFilter(op, value))
}

// Limit caps the number of result rows.
func (b *Builder) Limit(n int) *Builder {
	b.limit = &n
	return b
}

// Build finalizes the query, defaulting the time range to the last 7
// days if none was set.
func (b *Builder) Build() Query {
	timeRange := chrntypes.LastDays(7, time.Now())
	if b.timeRange != nil {
		timeRange = *b.timeRange
	}
	return Query{
		Select:    b.selectItems,
		TimeRange: timeRange,
		Filters:   b.filters,
		GroupBy:   b.groupBy,
		Limit:     b.limit,
	}
}
