package chrntypes

import (
	"fmt"

	"github.com/muddysheep/chronicle/chrnerr"
)

// Category classifies a metric for grouping and filtering purposes.
type Category string

const (
	CategoryHealth       Category = "health"
	CategoryProductivity Category = "productivity"
	CategoryMood         Category = "mood"
	CategoryHabit        Category = "habit"
	CategoryCustom       Category = "custom"
)

// AggregationFunc names a reduction applied to a bucket of values during
// query-time aggregation, and the metric's own default when none is given
// in a query.
type AggregationFunc string

const (
	AggAvg   AggregationFunc = "avg"
	AggSum   AggregationFunc = "sum"
	AggMin   AggregationFunc = "min"
	AggMax   AggregationFunc = "max"
	AggCount AggregationFunc = "count"
	AggLast  AggregationFunc = "last"
	AggFirst AggregationFunc = "first"
)

// Apply reduces values (assumed already in timestamp order for First/Last)
// to a single number according to the aggregation function.
func (a AggregationFunc) Apply(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	switch a {
	case AggSum:
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum
	case AggAvg:
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values))
	case AggMin:
		m := values[0]
		for _, v := range values[1:] {
			if v < m {
				m = v
			}
		}
		return m
	case AggMax:
		m := values[0]
		for _, v := range values[1:] {
			if v > m {
				m = v
			}
		}
		return m
	case AggCount:
		return float64(len(values))
	case AggFirst:
		return values[0]
	case AggLast:
		return values[len(values)-1]
	default:
		return values[len(values)-1]
	}
}

// Metric is a durable descriptor: a stable id, a unique name, a unit label,
// a category, a default aggregation, and optional description and
// validation range.
type Metric struct {
	ID          uint32
	Name        string
	Unit        string
	Category    Category
	Aggregation AggregationFunc
	Description *string
	MinValue    *float64
	MaxValue    *float64
}

// ValidateValue rejects v if the metric declares a [MinValue, MaxValue]
// range and v falls outside it. A metric with no configured range accepts
// any value.
func (m Metric) ValidateValue(v float64) error {
	if m.MinValue != nil && v < *m.MinValue {
		return chrnerr.New(chrnerr.KindConfig, "Metric.ValidateValue",
			fmt.Errorf("value %g below minimum %g for metric %q", v, *m.MinValue, m.Name))
	}
	if m.MaxValue != nil && v > *m.MaxValue {
		return chrnerr.New(chrnerr.KindConfig, "Metric.ValidateValue",
			fmt.Errorf("value %g above maximum %g for metric %q", v, *m.MaxValue, m.Name))
	}
	return nil
}
