// Package compression packs backup copies as zstd frames.
package compression

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Ext is appended to the name of every compressed backup file.
const Ext = ".zst"

// Compressor encodes and decodes whole payloads. The zstd encoder and
// decoder are safe for concurrent EncodeAll/DecodeAll calls.
type Compressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// Level maps 1 (fastest) to 3 (best) onto zstd encoder levels.
func Level(n int) zstd.EncoderLevel {
	switch n {
	case 1:
		return zstd.SpeedFastest
	case 3:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedDefault
	}
}

func NewCompressor(level int) (*Compressor, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(Level(level)), zstd.WithZeroFrames(true))
	if err != nil {
		return nil, err
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, err
	}
	return &Compressor{encoder: encoder, decoder: decoder}, nil
}

// Compress always returns a complete zstd frame, even for tiny inputs, so
// every .zst file can be decoded on its own.
func (c *Compressor) Compress(data []byte) []byte {
	return c.encoder.EncodeAll(data, make([]byte, 0, len(data)/2))
}

func (c *Compressor) Decompress(data []byte) ([]byte, error) {
	out, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	return out, nil
}

func (c *Compressor) Close() error {
	c.encoder.Close()
	c.decoder.Close()
	return nil
}
