package engine

import (
	"encoding/json"
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/muddysheep/chronicle/chrnerr"
	"github.com/muddysheep/chronicle/segment"
	"github.com/muddysheep/chronicle/wal"
)

// Config controls every tunable of the storage engine. In Open, a zero or
// negative BlockSize, FlushIntervalMillis or MaxSegmentSize is replaced by
// DefaultConfig's value; every other field is used as given.
type Config struct {
	// DataDir is the root directory for all on-disk state.
	DataDir string `json:"data_dir"`
	// BlockSize is the target in-memory buffer size, in bytes, before an
	// automatic flush to a segment block.
	BlockSize int `json:"block_size"`
	// FlushIntervalMillis is the background flush job's period.
	FlushIntervalMillis int64 `json:"flush_interval_ms"`
	// Compression selects the block codec used for new segments.
	Compression segment.CompressionType `json:"compression"`
	// WALSync controls the write-ahead log's fsync policy.
	WALSync wal.SyncMode `json:"wal_sync"`
	// MaxSegmentSize rotates to a new segment once the active one
	// reaches this size in bytes.
	MaxSegmentSize int64 `json:"max_segment_size"`
	// EnableTagIndex turns on the inverted tag index.
	EnableTagIndex bool `json:"enable_tag_index"`
}

// DefaultConfig mirrors the original engine's defaults: 64KB blocks, a
// 5-second flush interval, LZ4 compression, batched WAL sync, 64MB
// segment rotation, tag indexing on.
func DefaultConfig(dataDir string) Config {
	return Config{
		DataDir:             dataDir,
		BlockSize:           64 * 1024,
		FlushIntervalMillis: 5000,
		Compression:         segment.CompressionLZ4,
		WALSync:             wal.SyncBatched,
		MaxSegmentSize:      64 * 1024 * 1024,
		EnableTagIndex:      true,
	}
}

func (c Config) segmentsDir() string { return filepath.Join(c.DataDir, "segments") }
func (c Config) walDir() string      { return filepath.Join(c.DataDir, "wal") }
func (c Config) walPath() string     { return filepath.Join(c.walDir(), "current.wal") }
func (c Config) metaDir() string     { return filepath.Join(c.DataDir, "meta") }
func (c Config) metricsPath() string { return filepath.Join(c.metaDir(), "metrics.json") }
func (c Config) indexDir() string    { return filepath.Join(c.DataDir, "index") }

const configSchema = `{
  "type": "object",
  "required": ["data_dir", "block_size", "flush_interval_ms", "max_segment_size"],
  "properties": {
    "data_dir": {"type": "string", "minLength": 1},
    "block_size": {"type": "integer", "minimum": 1},
    "flush_interval_ms": {"type": "integer", "minimum": 1},
    "compression": {"type": "integer", "minimum": 0, "maximum": 3},
    "wal_sync": {"type": "integer", "minimum": 0, "maximum": 2},
    "max_segment_size": {"type": "integer", "minimum": 1},
    "enable_tag_index": {"type": "boolean"}
  }
}`

var compiledConfigSchema *jsonschema.Schema

func init() {
	sch, err := jsonschema.CompileString("chronicle_config.json", configSchema)
	if err != nil {
		panic(err)
	}
	compiledConfigSchema = sch
}

// Validate marshals c to JSON and checks it against the engine's config
// schema, catching structurally invalid configuration (negative sizes,
// missing data_dir) before anything touches disk.
func (c Config) Validate() error {
	encoded, err := json.Marshal(c)
	if err != nil {
		return chrnerr.New(chrnerr.KindConfig, "Config.Validate", err)
	}

	var instance any
	if err := json.Unmarshal(encoded, &instance); err != nil {
		return chrnerr.New(chrnerr.KindConfig, "Config.Validate", err)
	}

	if err := compiledConfigSchema.Validate(instance); err != nil {
		return chrnerr.New(chrnerr.KindConfig, "Config.Validate", err)
	}
	return nil
}
