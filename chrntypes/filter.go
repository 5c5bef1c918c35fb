package chrntypes

// QueryFilter narrows a storage-level query by metric and/or tag equality.
// It is the filter shape the engine consults against the index manager;
// richer predicates (ordering, value comparisons) live one layer up in
// package query and are applied as a post-filter.
type QueryFilter struct {
	MetricID   *uint32
	MetricName string
	Tags       map[string]string
	Category   Category
}

// Matches reports whether sample s, whose owning metric is m, satisfies the
// filter. An empty filter matches everything.
func (f QueryFilter) Matches(s Sample, m Metric) bool {
	if f.MetricID != nil && s.MetricID != *f.MetricID {
		return false
	}
	if f.MetricName != "" && m.Name != f.MetricName {
		return false
	}
	if f.Category != "" && m.Category != f.Category {
		return false
	}
	for k, v := range f.Tags {
		if s.Tags[k] != v {
			return false
		}
	}
	return true
}
