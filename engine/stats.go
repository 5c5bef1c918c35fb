package engine

// Stats summarizes the engine's current on-disk and in-memory state.
type Stats struct {
	SegmentCount     int
	TotalPoints      uint64
	BufferPoints     int
	WALEntries       int
	StorageSizeBytes int64
}
