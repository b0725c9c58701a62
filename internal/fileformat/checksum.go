package fileformat

import (
	"fmt"

	"github.com/zeebo/xxh3"
)

const ChecksumAlgo = "xxh3-64"

// Checksum is the chunked xxh3 index stored in snapshot metadata. Hashes are
// hex strings so JSON never rounds them.
type Checksum struct {
	Algo      string   `json:"algo"`
	ChunkSize int      `json:"chunk_size"`
	Hashes    []string `json:"hashes_hex"`
}

// RollXXH3 hashes data in chunk-sized pieces.
func RollXXH3(data []byte, chunk int) []uint64 {
	hashes := make([]uint64, 0, (len(data)+chunk-1)/chunk)
	for i := 0; i < len(data); i += chunk {
		end := i + chunk
		if end > len(data) {
			end = len(data)
		}
		hashes = append(hashes, xxh3.Hash(data[i:end]))
	}
	return hashes
}

func NewChecksum(data []byte, chunk int) Checksum {
	sums := RollXXH3(data, chunk)
	c := Checksum{Algo: ChecksumAlgo, ChunkSize: chunk, Hashes: make([]string, len(sums))}
	for i, h := range sums {
		c.Hashes[i] = fmt.Sprintf("%016x", h)
	}
	return c
}

// Verify returns the indexes of chunks whose hash differs from c.
func (c Checksum) Verify(data []byte) ([]int, error) {
	if c.Algo != ChecksumAlgo {
		return nil, fmt.Errorf("fileformat: unsupported checksum algo %q", c.Algo)
	}
	if c.ChunkSize <= 0 {
		return nil, fmt.Errorf("fileformat: bad checksum chunk size %d", c.ChunkSize)
	}
	have := RollXXH3(data, c.ChunkSize)
	if len(have) != len(c.Hashes) {
		return nil, fmt.Errorf("fileformat: chunk count mismatch: have %d want %d", len(have), len(c.Hashes))
	}
	var bad []int
	for i, h := range have {
		var want uint64
		if _, err := fmt.Sscanf(c.Hashes[i], "%x", &want); err != nil {
			return nil, fmt.Errorf("fileformat: chunk %d hash %q: %w", i, c.Hashes[i], err)
		}
		if h != want {
			bad = append(bad, i)
		}
	}
	return bad, nil
}
