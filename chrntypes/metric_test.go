package chrntypes

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/muddysheep/chronicle/chrnerr"
)

func rangedMetric(min, max float64) Metric {
	return Metric{ID: 1, Name: "mood", Category: CategoryMood, Aggregation: AggAvg, MinValue: &min, MaxValue: &max}
}

func TestValidateValueAcceptsInRangeValues(t *testing.T) {
	m := rangedMetric(1, 10)
	require.NoError(t, m.ValidateValue(1))
	require.NoError(t, m.ValidateValue(5.5))
	require.NoError(t, m.ValidateValue(10))
}

func TestValidateValueRejectsBelowMinimum(t *testing.T) {
	m := rangedMetric(1, 10)
	err := m.ValidateValue(0)
	require.Error(t, err)
	kind, ok := chrnerr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, chrnerr.KindConfig, kind)
}

func TestValidateValueRejectsAboveMaximum(t *testing.T) {
	m := rangedMetric(1, 10)
	err := m.ValidateValue(11)
	require.Error(t, err)
	kind, ok := chrnerr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, chrnerr.KindConfig, kind)
}

func TestValidateValueAcceptsAnyValueWithNoConfiguredRange(t *testing.T) {
	m := Metric{ID: 1, Name: "unbounded", Category: CategoryCustom, Aggregation: AggLast}
	require.NoError(t, m.ValidateValue(-1e9))
	require.NoError(t, m.ValidateValue(1e9))
}
