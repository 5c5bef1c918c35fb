package segment

import "github.com/muddysheep/chronicle/chrntypes"

// DefaultTargetBlockSize is the default number of samples buffered before
// Builder auto-flushes a block.
const DefaultTargetBlockSize = 1024

// Builder accumulates samples in memory and flushes them into the
// underlying segment as fixed-size blocks, amortizing per-block codec and
// CRC overhead across many writes instead of compressing on every sample.
type Builder struct {
	seg             *Segment
	targetBlockSize int
	pending         []chrntypes.Sample
}

// NewBuilder wraps seg with buffering; targetBlockSize <= 0 uses
// DefaultTargetBlockSize.
func NewBuilder(seg *Segment, targetBlockSize int) *Builder {
	if targetBlockSize <= 0 {
		targetBlockSize = DefaultTargetBlockSize
	}
	return &Builder{seg: seg, targetBlockSize: targetBlockSize}
}

// Add buffers s, flushing a full block to the underlying segment once the
// pending count reaches the target.
func (b *Builder) Add(s chrntypes.Sample) error {
	b.pending = append(b.pending, s)
	if len(b.pending) >= b.targetBlockSize {
		return b.Flush()
	}
	return nil
}

// AddBatch buffers every sample in samples, flushing as needed.
func (b *Builder) AddBatch(samples []chrntypes.Sample) error {
	for _, s := range samples {
		if err := b.Add(s); err != nil {
			return err
		}
	}
	return nil
}

// Pending returns the number of samples buffered but not yet flushed.
func (b *Builder) Pending() int { return len(b.pending) }

// Flush writes any buffered samples as one block, regardless of whether
// the target size has been reached.
func (b *Builder) Flush() error {
	if len(b.pending) == 0 {
		return nil
	}
	if err := b.seg.AppendBlock(b.pending); err != nil {
		return err
	}
	b.pending = b.pending[:0]
	return nil
}

// Segment returns the underlying segment handle.
func (b *Builder) Segment() *Segment { return b.seg }
