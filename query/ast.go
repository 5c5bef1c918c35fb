// Package query implements a small SQL-like query language over the
// storage engine: an AST, a builder, a minimal string parser for the
// common "SELECT ... WHERE ... GROUP BY ..." shape, and an executor that
// resolves metric names, fetches samples through the engine, and
// aggregates results.
package query

import (
	"math"
	"time"

	"github.com/muddysheep/chronicle/chrntypes"
)

// Query is a fully-resolved query ready for execution.
type Query struct {
	Select    []SelectItem
	TimeRange chrntypes.TimeRange
	Filters   []Filter
	GroupBy   *GroupByClause
	Limit     *int
}

// SelectItem names one metric/column in the SELECT clause, with an
// optional aggregation override and display alias.
type SelectItem struct {
	Metric      string
	Aggregation *chrntypes.AggregationFunc
	Alias       *string
}

// NewSelectItem builds a bare select item for metric, no aggregation or
// alias set.
func NewSelectItem(metric string) SelectItem { return SelectItem{Metric: metric} }

// DisplayName returns the alias if set, else the metric name.
func (s SelectItem) DisplayName() string {
	if s.Alias != nil {
		return *s.Alias
	}
	return s.Metric
}

// Filter is one WHERE-clause condition.
type Filter struct {
	Field FilterField
	Op    Operator
	Value FilterValue
}

// TagFilter builds an equality-or-ordering filter on a tag value.
func TagFilter(key string, op Operator, value string) Filter {
	return Filter{Field: TagField(key), Op: op, Value: StringValue(value)}
}

// ValueFilter builds a filter on the sample's numeric value.
func ValueFilter(op Operator, value float64) Filter {
	return Filter{Field: FieldValue, Op: op, Value: NumberValue(value)}
}

// FilterField names what a Filter compares against.
type FilterField struct {
	kind fieldKind
	tag  string
}

type fieldKind int

const (
	fieldMetric fieldKind = iota
	fieldTag
	fieldValue
)

// FieldMetric filters on the sample's owning metric name.
var FieldMetric = FilterField{kind: fieldMetric}

// FieldValue filters on the sample's numeric value.
var FieldValue = FilterField{kind: fieldValue}

// TagField filters on the value of tag key.
func TagField(key string) FilterField { return FilterField{kind: fieldTag, tag: key} }

// TagKey returns the tag key this field filters on, and whether the field
// is in fact a tag field.
func (f FilterField) TagKey() (string, bool) { return f.tag, f.kind == fieldTag }

// IsValue reports whether f filters on the sample's numeric value.
func (f FilterField) IsValue() bool { return f.kind == fieldValue }

// Operator is a comparison operator usable against both numbers and
// (lexicographically) strings.
type Operator int

const (
	OpEq Operator = iota
	OpNe
	OpGt
	OpGte
	OpLt
	OpLte
)

// ParseOperator maps a textual operator to its Operator value.
func ParseOperator(s string) (Operator, bool) {
	switch s {
	case "=", "==":
		return OpEq, true
	case "!=", "<>":
		return OpNe, true
	case ">":
		return OpGt, true
	case ">=":
		return OpGte, true
	case "<":
		return OpLt, true
	case "<=":
		return OpLte, true
	default:
		return 0, false
	}
}

// compareEpsilon is the tolerance used for Eq/Ne on floating-point sample
// values, matching the original's non-exact equality check.
const compareEpsilon = 1e-9

// CompareFloat64 applies op to a, b.
func (op Operator) CompareFloat64(a, b float64) bool {
	switch op {
	case OpEq:
		return math.Abs(a-b) < compareEpsilon
	case OpNe:
		return math.Abs(a-b) >= compareEpsilon
	case OpGt:
		return a > b
	case OpGte:
		return a >= b
	case OpLt:
		return a < b
	case OpLte:
		return a <= b
	default:
		return false
	}
}

// CompareString applies op to a, b lexicographically.
func (op Operator) CompareString(a, b string) bool {
	switch op {
	case OpEq:
		return a == b
	case OpNe:
		return a != b
	case OpGt:
		return a > b
	case OpGte:
		return a >= b
	case OpLt:
		return a < b
	case OpLte:
		return a <= b
	default:
		return false
	}
}

// FilterValue is either a string or a number, matched against the sample
// field a Filter names.
type FilterValue struct {
	str    string
	num    float64
	isText bool
}

func StringValue(s string) FilterValue { return FilterValue{str: s, isText: true} }
func NumberValue(n float64) FilterValue { return FilterValue{num: n} }

// String returns the string value and whether this is in fact a string.
func (v FilterValue) String() (string, bool) { return v.str, v.isText }

// Number returns the numeric value and whether this is in fact a number.
func (v FilterValue) Number() (float64, bool) { return v.num, !v.isText }

// GroupByClause buckets results by a fixed interval.
type GroupByClause struct {
	Interval GroupByInterval
}

// GroupByInterval names a bucketing granularity.
type GroupByInterval int

const (
	IntervalHour GroupByInterval = iota
	IntervalDay
	IntervalWeek
	IntervalMonth
)

// ParseGroupByInterval maps a textual interval to its value.
func ParseGroupByInterval(s string) (GroupByInterval, bool) {
	switch s {
	case "hour", "h":
		return IntervalHour, true
	case "day", "d":
		return IntervalDay, true
	case "week", "w":
		return IntervalWeek, true
	case "month", "m":
		return IntervalMonth, true
	default:
		return 0, false
	}
}

// Truncate returns timestampMillis truncated to the start of its interval
// bucket, in UTC, with weeks starting on Monday.
func (g GroupByInterval) Truncate(timestampMillis int64) int64 {
	t := time.UnixMilli(timestampMillis).UTC()

	var truncated time.Time
	switch g {
	case IntervalHour:
		truncated = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
	case IntervalDay:
		truncated = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case IntervalWeek:
		daysSinceMonday := (int(t.Weekday()) + 6) % 7
		monday := t.AddDate(0, 0, -daysSinceMonday)
		truncated = time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, time.UTC)
	case IntervalMonth:
		truncated = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return timestampMillis
	}
	return truncated.UnixMilli()
}
