package main

import (
	"fmt"
	"math/rand"

	"github.com/spf13/cobra"

	"github.com/qrv0/cuv/internal/dense"
	"github.com/qrv0/cuv/internal/store"
)

func newSaveCmd() *cobra.Command {
	var (
		rows, cols int
		out, comp  string
		loc        string
		seed       int64
	)
	cmd := &cobra.Command{
		Use:   "save",
		Short: "write a random rows x cols float32 matrix snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if out == "" {
				return fmt.Errorf("--out is required")
			}
			c, err := store.ParseCompression(comp)
			if err != nil {
				return err
			}
			e, err := loadEnv()
			if err != nil {
				return err
			}
			defer e.Close()
			l, err := e.location(loc)
			if err != nil {
				return err
			}
			m, err := dense.New[float32](l, rows, cols)
			if err != nil {
				return err
			}
			defer m.Release()
			rng := rand.New(rand.NewSource(seed))
			host := make([]float32, m.Len())
			for i := range host {
				host[i] = float32(rng.NormFloat64())
			}
			if err := m.CopyFromHost(host); err != nil {
				return err
			}
			if err := store.Save(out, m, c); err != nil {
				return err
			}
			fp, err := m.Fingerprint()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s to %s (xxh3 %016x)\n", m, out, fp)
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVar(&rows, "rows", 16, "rows")
	f.IntVar(&cols, "cols", 16, "columns")
	f.StringVarP(&out, "out", "o", "", "output file")
	f.StringVar(&comp, "comp", "none", "data compression: none, zstd, lz4")
	f.StringVar(&loc, "location", "device", "where to build the matrix: host or device")
	f.Int64Var(&seed, "seed", 1, "random seed")
	return cmd
}
