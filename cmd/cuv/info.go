package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "show the selected device backend and its memory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			defer e.Close()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "backend:  %s\n", e.drv.Name())
			fmt.Fprintf(out, "device:   %s\n", e.dev.Name())
			free, total, err := e.drv.MemInfo()
			if err != nil {
				return err
			}
			if total < 0 {
				fmt.Fprintln(out, "memory:   unlimited")
			} else {
				fmt.Fprintf(out, "memory:   %d free / %d total bytes\n", free, total)
			}
			return nil
		},
	}
}
