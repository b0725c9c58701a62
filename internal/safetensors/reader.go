// Package safetensors reads and writes single-file safetensors archives:
// [header_len:u64 LE][header JSON][tensor bytes...].
package safetensors

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
)

const metadataKey = "__metadata__"

// maxHeaderLen bounds the JSON header so a corrupt length cannot force a
// huge allocation.
const maxHeaderLen = 100 << 20

type TensorMeta struct {
	Dtype string  `json:"dtype"`
	Shape []int64 `json:"shape"`
	Data  []int64 `json:"data_offsets"`
}

type Tensor struct {
	Meta TensorMeta
	Data []byte
}

// DTypeSize returns the byte width of a safetensors dtype, 0 if unknown.
func DTypeSize(dtype string) int {
	switch dtype {
	case "U8", "I8", "BOOL":
		return 1
	case "F16", "BF16", "I16", "U16":
		return 2
	case "F32", "I32", "U32":
		return 4
	case "F64", "I64", "U64":
		return 8
	}
	return 0
}

// Elements is the product of the shape, 1 for scalars.
func (m TensorMeta) Elements() int {
	n := 1
	for _, d := range m.Shape {
		n *= int(d)
	}
	return n
}

type File struct {
	Metadata map[string]string
	Tensors  map[string]Tensor
}

// Names returns the tensor names in sorted order.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.Tensors))
	for n := range f.Tensors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	br := bufio.NewReader(f)
	var hdrLen uint64
	if err := binary.Read(br, binary.LittleEndian, &hdrLen); err != nil {
		return nil, fmt.Errorf("safetensors: header length: %w", err)
	}
	if hdrLen > maxHeaderLen {
		return nil, fmt.Errorf("safetensors: header length %d too large", hdrLen)
	}
	hdrBytes := make([]byte, hdrLen)
	if _, err := io.ReadFull(br, hdrBytes); err != nil {
		return nil, fmt.Errorf("safetensors: header: %w", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(hdrBytes, &raw); err != nil {
		return nil, fmt.Errorf("safetensors: invalid header: %w", err)
	}
	out := &File{Tensors: make(map[string]Tensor, len(raw))}
	base := int64(8 + hdrLen)
	for name, msg := range raw {
		if name == metadataKey {
			if err := json.Unmarshal(msg, &out.Metadata); err != nil {
				return nil, fmt.Errorf("safetensors: metadata: %w", err)
			}
			continue
		}
		var meta TensorMeta
		if err := json.Unmarshal(msg, &meta); err != nil {
			return nil, fmt.Errorf("safetensors: tensor %q: %w", name, err)
		}
		if len(meta.Data) != 2 || meta.Data[1] < meta.Data[0] || meta.Data[0] < 0 {
			return nil, fmt.Errorf("safetensors: tensor %q: bad data_offsets %v", name, meta.Data)
		}
		size := meta.Data[1] - meta.Data[0]
		if es := DTypeSize(meta.Dtype); es != 0 && int64(meta.Elements()*es) != size {
			return nil, fmt.Errorf("safetensors: tensor %q: %d bytes for shape %v of %s", name, size, meta.Shape, meta.Dtype)
		}
		buf := make([]byte, size)
		if _, err := f.ReadAt(buf, base+meta.Data[0]); err != nil {
			return nil, fmt.Errorf("safetensors: tensor %q: %w", name, err)
		}
		out.Tensors[name] = Tensor{Meta: meta, Data: buf}
	}
	return out, nil
}
