package query

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGroupByTruncateHour(t *testing.T) {
	// 2024-01-15 14:35:42.123 UTC
	require.Equal(t, int64(1705327200000), IntervalHour.Truncate(1705329342123))
}

func TestGroupByTruncateDay(t *testing.T) {
	require.Equal(t, int64(1705276800000), IntervalDay.Truncate(1705329342123))
}

func TestGroupByTruncateWeek(t *testing.T) {
	monday := int64(1705329342123)   // 2024-01-15, a Monday
	wednesday := int64(1705502142123) // 2024-01-17, a Wednesday
	expected := int64(1705276800000)

	require.Equal(t, expected, IntervalWeek.Truncate(monday))
	require.Equal(t, expected, IntervalWeek.Truncate(wednesday))
}

func TestGroupByTruncateMonth(t *testing.T) {
	require.Equal(t, int64(1704067200000), IntervalMonth.Truncate(1705329342123))
}

func TestOperatorCompareFloat64(t *testing.T) {
	require.True(t, OpEq.CompareFloat64(5.0, 5.0))
	require.False(t, OpEq.CompareFloat64(5.0, 6.0))
	require.True(t, OpGt.CompareFloat64(6.0, 5.0))
	require.False(t, OpGt.CompareFloat64(5.0, 5.0))
	require.True(t, OpGte.CompareFloat64(5.0, 5.0))
	require.True(t, OpLt.CompareFloat64(4.0, 5.0))
	require.True(t, OpLte.CompareFloat64(5.0, 5.0))
	require.True(t, OpNe.CompareFloat64(4.0, 5.0))
}

func TestOperatorCompareString(t *testing.T) {
	require.True(t, OpEq.CompareString("hello", "hello"))
	require.False(t, OpEq.CompareString("hello", "world"))
	require.True(t, OpNe.CompareString("hello", "world"))
}

func TestSelectItemDisplayName(t *testing.T) {
	item := NewSelectItem("mood")
	require.Equal(t, "mood", item.DisplayName())

	alias := "m"
	item.Alias = &alias
	require.Equal(t, "m", item.DisplayName())
}
