package store

import (
	"fmt"

	"github.com/qrv0/cuv/internal/dense"
	"github.com/qrv0/cuv/internal/memspace"
	"github.com/qrv0/cuv/internal/safetensors"
)

// ImportSafetensors loads tensor name from a safetensors file as a matrix
// at loc. Rank-1 tensors become 1 x n matrices.
func ImportSafetensors[T dense.Element](path, name string, loc memspace.Location) (*dense.Matrix[T], error) {
	f, err := safetensors.Open(path)
	if err != nil {
		return nil, err
	}
	t, ok := f.Tensors[name]
	if !ok {
		return nil, fmt.Errorf("store: tensor %q not in %s (have %v)", name, path, f.Names())
	}
	if want := dense.DType[T](); t.Meta.Dtype != want {
		return nil, fmt.Errorf("%w: tensor %q is %s, want %s", ErrDType, name, t.Meta.Dtype, want)
	}
	var rows, cols int
	switch s := t.Meta.Shape; len(s) {
	case 1:
		rows, cols = 1, int(s[0])
	case 2:
		rows, cols = int(s[0]), int(s[1])
	default:
		return nil, fmt.Errorf("store: %w: tensor %q has rank %d", dense.ErrInvalidDimension, name, len(s))
	}
	return upload[T](loc, rows, cols, t.Data)
}

// ExportSafetensors writes m as a rank-2 tensor called name.
func ExportSafetensors[T dense.Element](path, name string, m *dense.Matrix[T]) error {
	if m == nil {
		return fmt.Errorf("store: %w: nil matrix", dense.ErrInvalidArgument)
	}
	data, err := m.ToHost()
	if err != nil {
		return err
	}
	raw, err := encodeLE(data)
	if err != nil {
		return err
	}
	return safetensors.Write(path, map[string]safetensors.Tensor{
		name: {
			Meta: safetensors.TensorMeta{Dtype: dense.DType[T](), Shape: []int64{int64(m.Rows()), int64(m.Cols())}},
			Data: raw,
		},
	}, map[string]string{"layout": LayoutRowMajor})
}
