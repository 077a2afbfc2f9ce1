package cache

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

var (
	codecOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	codecErr  error
)

func initCodec() {
	encoder, codecErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if codecErr != nil {
		return
	}
	decoder, codecErr = zstd.NewReader(nil)
}

// compress returns the zstd encoding of src.
func compress(src []byte) ([]byte, error) {
	codecOnce.Do(initCodec)
	if codecErr != nil {
		return nil, fmt.Errorf("init zstd: %w", codecErr)
	}
	return encoder.EncodeAll(src, make([]byte, 0, len(src)/2)), nil
}

// decompress reverses compress.
func decompress(src []byte) ([]byte, error) {
	codecOnce.Do(initCodec)
	if codecErr != nil {
		return nil, fmt.Errorf("init zstd: %w", codecErr)
	}
	out, err := decoder.DecodeAll(src, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	return out, nil
}

// encodeEntry serializes e and compresses it. rawSize is the JSON size
// before compression.
func encodeEntry(e *Entry) (packed []byte, rawSize int, err error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal cache entry: %w", err)
	}
	packed, err = compress(raw)
	if err != nil {
		return nil, 0, err
	}
	return packed, len(raw), nil
}

// decodeEntry reverses encodeEntry. Every failure wraps ErrInvalidEntry.
func decodeEntry(packed []byte) (*Entry, error) {
	raw, err := decompress(packed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	return &e, nil
}
