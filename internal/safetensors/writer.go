package safetensors

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Write stores tensors at path in name order. Data offsets in the given
// metas are ignored and recomputed.
func Write(path string, tensors map[string]Tensor, metadata map[string]string) error {
	names := make([]string, 0, len(tensors))
	for n := range tensors {
		names = append(names, n)
	}
	sort.Strings(names)

	header := make(map[string]any, len(tensors)+1)
	if len(metadata) > 0 {
		header[metadataKey] = metadata
	}
	var body bytes.Buffer
	for _, n := range names {
		t := tensors[n]
		if es := DTypeSize(t.Meta.Dtype); es == 0 || t.Meta.Elements()*es != len(t.Data) {
			return fmt.Errorf("safetensors: tensor %q: %d bytes for shape %v of %s", n, len(t.Data), t.Meta.Shape, t.Meta.Dtype)
		}
		start := int64(body.Len())
		body.Write(t.Data)
		header[n] = TensorMeta{Dtype: t.Meta.Dtype, Shape: t.Meta.Shape, Data: []int64{start, int64(body.Len())}}
	}
	hdr, err := json.Marshal(header)
	if err != nil {
		return err
	}
	// pad the header with spaces so tensor data starts 8-byte aligned
	if pad := (8 - len(hdr)%8) % 8; pad > 0 {
		hdr = append(hdr, bytes.Repeat([]byte{' '}, pad)...)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := binary.Write(f, binary.LittleEndian, uint64(len(hdr))); err != nil {
		return err
	}
	if _, err := f.Write(hdr); err != nil {
		return err
	}
	if _, err := f.Write(body.Bytes()); err != nil {
		return err
	}
	return f.Close()
}
