package compressstore

import (
	"fmt"

	"github.com/golang/snappy"
)

// snappyCompress compresses data using the snappy block format.
func snappyCompress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

// snappyDecompress decompresses snappy block data.
func snappyDecompress(data []byte) ([]byte, error) {
	decompressed, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("snappy decode failed: %w", err)
	}
	return decompressed, nil
}
