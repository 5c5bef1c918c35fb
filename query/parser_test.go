package query

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseStringSimpleTimeCondition(t *testing.T) {
	q, err := ParseString("SELECT mood WHERE time >= now() - 1d")
	require.NoError(t, err)
	require.Len(t, q.Select, 1)
	require.Equal(t, "mood", q.Select[0].Metric)
	require.InDelta(t, 24*3600*1000, q.TimeRange.DurationMillis(), 1000)
}

func TestParseStringTagCondition(t *testing.T) {
	q, err := ParseString("SELECT mood WHERE time >= now() - 7d AND tags.location = 'home'")
	require.NoError(t, err)
	require.Len(t, q.Filters, 1)
	key, isTag := q.Filters[0].Field.TagKey()
	require.True(t, isTag)
	require.Equal(t, "location", key)
	require.Equal(t, OpEq, q.Filters[0].Op)
}

func TestParseStringValueCondition(t *testing.T) {
	q, err := ParseString("SELECT mood WHERE time >= now() - 1d AND value >= 5")
	require.NoError(t, err)
	require.Len(t, q.Filters, 1)
	require.True(t, q.Filters[0].Field.IsValue())
}

func TestParseStringGroupByAndLimit(t *testing.T) {
	q, err := ParseString("SELECT mood WHERE time >= now() - 30d GROUP BY day LIMIT 10")
	require.NoError(t, err)
	require.NotNil(t, q.GroupBy)
	require.Equal(t, IntervalDay, q.GroupBy.Interval)
	require.NotNil(t, q.Limit)
	require.Equal(t, 10, *q.Limit)
}

func TestParseStringMultipleMetrics(t *testing.T) {
	q, err := ParseString("SELECT mood, energy WHERE time >= now() - 1d")
	require.NoError(t, err)
	require.Len(t, q.Select, 2)
	require.Equal(t, "mood", q.Select[0].Metric)
	require.Equal(t, "energy", q.Select[1].Metric)
}

func TestParseStringRejectsMalformedQuery(t *testing.T) {
	_, err := ParseString("not a query")
	require.Error(t, err)
}

func TestParseStringRejectsUnknownInterval(t *testing.T) {
	_, err := ParseString("SELECT mood WHERE time >= now() - 1d GROUP BY fortnight")
	require.Error(t, err)
}
