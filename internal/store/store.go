// Package store persists dense matrices as checksummed snapshots and moves
// them in and out of safetensors files.
package store

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"k8s.io/klog/v2"

	"github.com/qrv0/cuv/internal/dense"
	"github.com/qrv0/cuv/internal/fileformat"
	"github.com/qrv0/cuv/internal/memspace"
)

var (
	ErrChecksum = errors.New("store: checksum mismatch")
	ErrDType    = errors.New("store: dtype mismatch")
)

type Compression string

const (
	None Compression = "none"
	ZSTD Compression = "zstd"
	LZ4  Compression = "lz4"
)

func ParseCompression(s string) (Compression, error) {
	switch c := Compression(s); c {
	case None, ZSTD, LZ4:
		return c, nil
	case "":
		return None, nil
	default:
		return "", fmt.Errorf("store: unknown compression %q", s)
	}
}

func (c Compression) flags() uint32 {
	switch c {
	case ZSTD:
		return fileformat.FlagCompZSTD
	case LZ4:
		return fileformat.FlagCompLZ4
	default:
		return 0
	}
}

const (
	LayoutRowMajor = "row-major"
	checksumChunk  = 1 << 20
)

// Meta is the JSON header of a snapshot.
type Meta struct {
	FormatVersion int                 `json:"format_version"`
	Rows          int                 `json:"rows"`
	Cols          int                 `json:"cols"`
	DType         string              `json:"dtype"`
	Layout        string              `json:"layout"`
	Source        string              `json:"source,omitempty"`
	Compression   Compression         `json:"compression"`
	Checksum      fileformat.Checksum `json:"checksum"`
}

func encodeLE[T dense.Element](data []T) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(data) * binary.Size(data[:1]))
	if err := binary.Write(&buf, binary.LittleEndian, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeLE[T dense.Element](raw []byte, n int) ([]T, error) {
	out := make([]T, n)
	if binary.Size(out) != len(raw) {
		return nil, fmt.Errorf("store: %d bytes for %d elements of %s", len(raw), n, dense.DType[T]())
	}
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Save writes m to path. Device matrices are copied to host first.
func Save[T dense.Element](path string, m *dense.Matrix[T], comp Compression) error {
	if m == nil {
		return fmt.Errorf("store: %w: nil matrix", dense.ErrInvalidArgument)
	}
	data, err := m.ToHost()
	if err != nil {
		return fmt.Errorf("store: save %s: %w", path, err)
	}
	raw, err := encodeLE(data)
	if err != nil {
		return err
	}
	meta := Meta{
		FormatVersion: fileformat.Version,
		Rows:          m.Rows(),
		Cols:          m.Cols(),
		DType:         dense.DType[T](),
		Layout:        LayoutRowMajor,
		Source:        m.Location().Name(),
		Compression:   comp,
		Checksum:      fileformat.NewChecksum(raw, checksumChunk),
	}
	mb, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	w := fileformat.NewWriter()
	w.AddSection(fileformat.TypeMeta, mb, 0)
	w.AddSection(fileformat.TypeData, raw, comp.flags())
	if err := w.Write(path); err != nil {
		return fmt.Errorf("store: save %s: %w", path, err)
	}
	klog.V(2).Infof("store: saved %s to %s (%s)", m, path, comp)
	return nil
}

func readMeta(r *fileformat.Reader) (*Meta, error) {
	mb, err := r.SectionUncompressed(fileformat.TypeMeta)
	if err != nil {
		return nil, err
	}
	var meta Meta
	if err := json.Unmarshal(mb, &meta); err != nil {
		return nil, fmt.Errorf("store: meta: %w", err)
	}
	if meta.Layout != LayoutRowMajor {
		return nil, fmt.Errorf("store: unsupported layout %q", meta.Layout)
	}
	return &meta, nil
}

// readData returns the verified element bytes of an open snapshot.
func readData(r *fileformat.Reader, meta *Meta) ([]byte, error) {
	raw, err := r.SectionUncompressed(fileformat.TypeData)
	if err != nil {
		return nil, err
	}
	bad, err := meta.Checksum.Verify(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChecksum, err)
	}
	if len(bad) > 0 {
		return nil, fmt.Errorf("%w: chunks %v", ErrChecksum, bad)
	}
	return raw, nil
}

// Inspect returns the snapshot header without reading the data.
func Inspect(path string) (*Meta, error) {
	r, err := fileformat.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return readMeta(r)
}

// Verify checks every data chunk against the stored checksums.
func Verify(path string) error {
	r, err := fileformat.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()
	meta, err := readMeta(r)
	if err != nil {
		return err
	}
	_, err = readData(r, meta)
	return err
}

// Load reads a snapshot into a new matrix at loc. The stored dtype must
// match T.
func Load[T dense.Element](path string, loc memspace.Location) (*dense.Matrix[T], error) {
	r, err := fileformat.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	meta, err := readMeta(r)
	if err != nil {
		return nil, err
	}
	if want := dense.DType[T](); meta.DType != want {
		return nil, fmt.Errorf("%w: file holds %s, want %s", ErrDType, meta.DType, want)
	}
	raw, err := readData(r, meta)
	if err != nil {
		return nil, err
	}
	return upload[T](loc, meta.Rows, meta.Cols, raw)
}

func upload[T dense.Element](loc memspace.Location, rows, cols int, raw []byte) (*dense.Matrix[T], error) {
	m, err := dense.New[T](loc, rows, cols)
	if err != nil {
		return nil, err
	}
	data, err := decodeLE[T](raw, m.Len())
	if err == nil {
		err = m.CopyFromHost(data)
	}
	if err != nil {
		_ = m.Release()
		return nil, err
	}
	return m, nil
}
