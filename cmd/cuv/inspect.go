package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qrv0/cuv/internal/store"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file.cuv>",
		Short: "print a snapshot header",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			meta, err := store.Inspect(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "shape:       %dx%d\n", meta.Rows, meta.Cols)
			fmt.Fprintf(out, "dtype:       %s\n", meta.DType)
			fmt.Fprintf(out, "layout:      %s\n", meta.Layout)
			fmt.Fprintf(out, "source:      %s\n", meta.Source)
			fmt.Fprintf(out, "compression: %s\n", meta.Compression)
			fmt.Fprintf(out, "checksum:    %s, %d chunk(s) of %d bytes\n", meta.Checksum.Algo, len(meta.Checksum.Hashes), meta.Checksum.ChunkSize)
			return nil
		},
	}
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file.cuv>",
		Short: "check snapshot data against its checksums",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := store.Verify(args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "checksum verify: OK")
			return nil
		},
	}
}
