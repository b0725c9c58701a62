package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/qrv0/cuv/internal/dense"
	"github.com/qrv0/cuv/internal/downloader"
	"github.com/qrv0/cuv/internal/store"
)

func newImportCmd() *cobra.Command {
	var in, name, out, comp, loc string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "convert a float32 safetensors tensor into a snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if in == "" || name == "" || out == "" {
				return fmt.Errorf("--in, --name and --out are required")
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
			dir, err := os.MkdirTemp("", "cuv-import-")
			if err != nil {
				return err
			}
			defer os.RemoveAll(dir)
			src, err := downloader.Fetch(cmd.Context(), in, dir)
			if err != nil {
				return err
			}
			m, err := store.ImportSafetensors[float32](src, name, l)
			if err != nil {
				return err
			}
			defer m.Release()
			if err := store.Save(out, m, c); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %s %q as %s\n", in, name, m)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&in, "in", "", "input .safetensors path or http(s) URL")
	f.StringVar(&name, "name", "", "tensor name")
	f.StringVarP(&out, "out", "o", "", "output snapshot")
	f.StringVar(&comp, "comp", "zstd", "data compression: none, zstd, lz4")
	f.StringVar(&loc, "location", "device", "where to stage the matrix: host or device")
	return cmd
}

func newExportCmd() *cobra.Command {
	var in, name, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "convert a float32 snapshot into a safetensors file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if in == "" || out == "" {
				return fmt.Errorf("--in and --out are required")
			}
			e, err := loadEnv()
			if err != nil {
				return err
			}
			defer e.Close()
			m, err := store.Load[float32](in, e.host)
			if err != nil {
				return err
			}
			defer m.Release()
			if err := store.ExportSafetensors(out, name, m); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %s as %s %q (%s)\n", in, out, name, dense.DType[float32]())
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&in, "in", "", "input snapshot")
	f.StringVar(&name, "name", "weight", "tensor name")
	f.StringVarP(&out, "out", "o", "", "output .safetensors")
	return cmd
}
