// Package endian supplies the single byte-order engine the codec, wal, and
// segment packages use for their fixed binary layouts. Everything on disk
// in this module is little-endian; this package exists so that fact is
// expressed once, as a value, instead of repeated encoding/binary.LittleEndian
// references scattered through each layer.
package endian

import "encoding/binary"

// Engine combines ByteOrder and AppendByteOrder so callers can both decode
// in place and append-encode into a growing buffer through one value.
type Engine interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// LE is the engine used throughout this module's on-disk formats.
var LE Engine = binary.LittleEndian
