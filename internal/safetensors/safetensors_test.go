package safetensors

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func f32bytes(v ...float32) []byte {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(x))
	}
	return b
}

func TestWriteOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.safetensors")
	in := map[string]Tensor{
		"w": {Meta: TensorMeta{Dtype: "F32", Shape: []int64{2, 3}}, Data: f32bytes(1, 2, 3, 4, 5, 6)},
		"b": {Meta: TensorMeta{Dtype: "U8", Shape: []int64{3}}, Data: []byte{7, 8, 9}},
	}
	require.NoError(t, Write(path, in, map[string]string{"format": "pt"}))

	f, err := Open(path)
	require.NoError(t, err)
	require.Equal(t, []string{"b", "w"}, f.Names())
	require.Equal(t, "pt", f.Metadata["format"])
	w := f.Tensors["w"]
	require.Equal(t, "F32", w.Meta.Dtype)
	require.Equal(t, []int64{2, 3}, w.Meta.Shape)
	require.Equal(t, 6, w.Meta.Elements())
	require.Equal(t, in["w"].Data, w.Data)
	require.Equal(t, []byte{7, 8, 9}, f.Tensors["b"].Data)
}

func TestWriteRejectsShapeMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.safetensors")
	err := Write(path, map[string]Tensor{
		"w": {Meta: TensorMeta{Dtype: "F32", Shape: []int64{2, 2}}, Data: f32bytes(1)},
	}, nil)
	require.Error(t, err)
}

func TestOpenRejectsHugeHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "huge.safetensors")
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], 1<<40)
	require.NoError(t, os.WriteFile(path, b[:], 0o644))
	_, err := Open(path)
	require.Error(t, err)
}
