package database

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	decoder, _ = zstd.NewReader(nil)
)

// compressText zstd-compresses s; empty text stays nil.
func compressText(s string) []byte {
	if s == "" {
		return nil
	}
	return encoder.EncodeAll([]byte(s), nil)
}

func decompressText(data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	out, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decompress debug text: %w", err)
	}
	return string(out), nil
}
