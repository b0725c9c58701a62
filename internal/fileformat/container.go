// Package fileformat implements the sectioned container used for matrix
// snapshots: an 8-byte magic, a header, a table of contents and aligned
// section payloads, each optionally compressed.
package fileformat

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	lz4 "github.com/pierrec/lz4/v4"
)

var magic = [8]byte{'C', 'U', 'V', 'M', 'A', 'T', 0, 0}

var (
	ErrNotContainer = errors.New("fileformat: not a cuv container")
	ErrCorrupt      = errors.New("fileformat: corrupt container")
)

const (
	Version = 1

	TypeMeta uint32 = 1
	TypeData uint32 = 2
)

const (
	FlagCompZSTD uint32 = 1 << 0
	FlagCompLZ4  uint32 = 1 << 1
)

// maxSections bounds the table of contents read from a file.
const maxSections = 1024

// sectionAlign keeps payloads aligned for direct reads into device staging
// buffers.
const sectionAlign = 4096

type header struct {
	Ver, Num, Res uint32
}

// Entry is one table-of-contents record.
type Entry struct {
	TypeID uint32
	Offset uint64
	Size   uint64
	Flags  uint32
}

type section struct {
	typeID uint32
	data   []byte
	flags  uint32
}

type Writer struct {
	sections []section
}

func NewWriter() *Writer { return &Writer{} }

// AddSection queues data under typeID; flags select the compression.
func (w *Writer) AddSection(typeID uint32, data []byte, flags uint32) {
	w.sections = append(w.sections, section{typeID: typeID, data: data, flags: flags})
}

func zstdEncode(b []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(b, make([]byte, 0, len(b))), nil
}

func zstdDecode(b []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(b, nil)
}

func lz4Encode(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(b); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func lz4Decode(b []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(b))
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func alignUp(x, a int64) int64 {
	if r := x % a; r != 0 {
		return x + (a - r)
	}
	return x
}

func encodeSection(s section) ([]byte, error) {
	switch {
	case s.flags&FlagCompZSTD != 0:
		return zstdEncode(s.data)
	case s.flags&FlagCompLZ4 != 0:
		return lz4Encode(s.data)
	default:
		return s.data, nil
	}
}

// Write encodes all sections into a new file at path.
func (w *Writer) Write(path string) error {
	if len(w.sections) == 0 {
		return errors.New("fileformat: no sections")
	}
	payloads := make([][]byte, len(w.sections))
	for i, s := range w.sections {
		p, err := encodeSection(s)
		if err != nil {
			return fmt.Errorf("fileformat: compress section %d: %w", s.typeID, err)
		}
		payloads[i] = p
	}

	toc := make([]Entry, len(w.sections))
	offset := alignUp(int64(len(magic)+12+24*len(w.sections)), sectionAlign)
	for i, s := range w.sections {
		toc[i] = Entry{TypeID: s.typeID, Offset: uint64(offset), Size: uint64(len(payloads[i])), Flags: s.flags}
		offset = alignUp(offset+int64(len(payloads[i])), sectionAlign)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(magic[:]); err != nil {
		return err
	}
	hdr := header{Ver: Version, Num: uint32(len(w.sections))}
	if err := binary.Write(f, binary.LittleEndian, &hdr); err != nil {
		return err
	}
	for i := range toc {
		if err := binary.Write(f, binary.LittleEndian, &toc[i]); err != nil {
			return err
		}
	}
	for i := range toc {
		if _, err := f.WriteAt(payloads[i], int64(toc[i].Offset)); err != nil {
			return err
		}
	}
	return f.Close()
}

type Reader struct {
	f    *os.File
	size int64
	TOC  []Entry
}

func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := readTOC(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func readTOC(f *os.File) (*Reader, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := st.Size()
	head := make([]byte, len(magic))
	if _, err := io.ReadFull(f, head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotContainer, err)
	}
	if !bytes.Equal(head, magic[:]) {
		return nil, ErrNotContainer
	}
	var hdr header
	if err := binary.Read(f, binary.LittleEndian, &hdr); err != nil {
		return nil, err
	}
	if hdr.Ver != Version {
		return nil, fmt.Errorf("fileformat: unsupported version %d", hdr.Ver)
	}
	if hdr.Num > maxSections {
		return nil, fmt.Errorf("%w: %d sections", ErrCorrupt, hdr.Num)
	}
	toc := make([]Entry, hdr.Num)
	for i := range toc {
		if err := binary.Read(f, binary.LittleEndian, &toc[i]); err != nil {
			return nil, err
		}
		e := toc[i]
		if e.Offset > uint64(size) || e.Size > uint64(size)-e.Offset {
			return nil, fmt.Errorf("%w: section %d at %d+%d past end of %d-byte file", ErrCorrupt, e.TypeID, e.Offset, e.Size, size)
		}
	}
	return &Reader{f: f, size: size, TOC: toc}, nil
}

func (r *Reader) Close() error { return r.f.Close() }

func (r *Reader) entry(typeID uint32) (Entry, error) {
	for _, e := range r.TOC {
		if e.TypeID == typeID {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("fileformat: section %d not found", typeID)
}

// Section returns the stored (possibly compressed) payload.
func (r *Reader) Section(typeID uint32) ([]byte, error) {
	e, err := r.entry(typeID)
	if err != nil {
		return nil, err
	}
	if e.Offset > uint64(r.size) || e.Size > uint64(r.size)-e.Offset {
		return nil, fmt.Errorf("%w: section %d outside file", ErrCorrupt, typeID)
	}
	buf := make([]byte, e.Size)
	if _, err := r.f.ReadAt(buf, int64(e.Offset)); err != nil {
		return nil, err
	}
	return buf, nil
}

// SectionUncompressed returns the payload after undoing its compression.
func (r *Reader) SectionUncompressed(typeID uint32) ([]byte, error) {
	e, err := r.entry(typeID)
	if err != nil {
		return nil, err
	}
	buf, err := r.Section(typeID)
	if err != nil {
		return nil, err
	}
	switch {
	case e.Flags&FlagCompZSTD != 0:
		return zstdDecode(buf)
	case e.Flags&FlagCompLZ4 != 0:
		return lz4Decode(buf)
	default:
		return buf, nil
	}
}
