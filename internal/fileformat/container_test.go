package fileformat

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriterReaderWithCompression(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.cuv")
	meta := []byte(`{"rows":2}`)
	raw := bytes.Repeat([]byte{1, 2, 3, 4}, 1024)
	zst := bytes.Repeat([]byte{5, 6, 7, 8}, 2048)

	w := NewWriter()
	w.AddSection(TypeMeta, meta, 0)
	w.AddSection(TypeData, raw, FlagCompLZ4)
	w.AddSection(7, zst, FlagCompZSTD)
	require.NoError(t, w.Write(path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	head := make([]byte, 8)
	_, err = f.Read(head)
	require.NoError(t, err)
	require.Equal(t, magic[:], head)
	var hdr header
	require.NoError(t, binary.Read(f, binary.LittleEndian, &hdr))
	require.Equal(t, uint32(3), hdr.Num)

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()
	for _, e := range r.TOC {
		require.Zero(t, e.Offset%sectionAlign)
	}

	got, err := r.SectionUncompressed(TypeMeta)
	require.NoError(t, err)
	require.Equal(t, meta, got)
	got, err = r.SectionUncompressed(TypeData)
	require.NoError(t, err)
	require.Equal(t, raw, got)
	got, err = r.SectionUncompressed(7)
	require.NoError(t, err)
	require.Equal(t, zst, got)

	stored, err := r.Section(7)
	require.NoError(t, err)
	require.Less(t, len(stored), len(zst))

	_, err = r.Section(99)
	require.Error(t, err)
}

func TestOpenRejectsForeignFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.bin")
	require.NoError(t, os.WriteFile(path, []byte("GGUF\x03\x00\x00\x00"), 0o644))
	_, err := Open(path)
	require.ErrorIs(t, err, ErrNotContainer)

	short := filepath.Join(t.TempDir(), "short.bin")
	require.NoError(t, os.WriteFile(short, []byte("CU"), 0o644))
	_, err = Open(short)
	require.ErrorIs(t, err, ErrNotContainer)

	require.Error(t, NewWriter().Write(filepath.Join(t.TempDir(), "empty.cuv")))
}

func TestOpenRejectsCorruptTOC(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.cuv")
	w := NewWriter()
	w.AddSection(TypeData, bytes.Repeat([]byte{7}, 100), 0)
	require.NoError(t, w.Write(good))
	raw, err := os.ReadFile(good)
	require.NoError(t, err)

	patch := func(name string, off int, v []byte) string {
		b := append([]byte(nil), raw...)
		copy(b[off:], v)
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, b, 0o644))
		return p
	}
	huge := binary.LittleEndian.AppendUint64(nil, 1<<40)

	// section count, then the first entry's size and offset
	_, err = Open(patch("num.cuv", 12, binary.LittleEndian.AppendUint32(nil, 0xffffffff)))
	require.ErrorIs(t, err, ErrCorrupt)
	_, err = Open(patch("size.cuv", 32, huge))
	require.ErrorIs(t, err, ErrCorrupt)
	_, err = Open(patch("offset.cuv", 24, huge))
	require.ErrorIs(t, err, ErrCorrupt)

	r, err := Open(good)
	require.NoError(t, err)
	defer r.Close()
	data, err := r.Section(TypeData)
	require.NoError(t, err)
	require.Len(t, data, 100)
}

func TestChecksum(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789"), 300)
	c := NewChecksum(data, 1024)
	require.Equal(t, ChecksumAlgo, c.Algo)
	require.Len(t, c.Hashes, 3)

	bad, err := c.Verify(data)
	require.NoError(t, err)
	require.Empty(t, bad)

	corrupt := append([]byte(nil), data...)
	corrupt[2000] ^= 0xff
	bad, err = c.Verify(corrupt)
	require.NoError(t, err)
	require.Equal(t, []int{1}, bad)

	_, err = c.Verify(data[:100])
	require.Error(t, err)
}
