package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "cuv:", err)
		os.Exit(1)
	}
}

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cuv",
		Short:         "cuv - dense host/device matrices",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	gofs := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(gofs)
	root.PersistentFlags().AddGoFlagSet(gofs)
	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (CUV_* env vars override it)")

	root.AddCommand(
		newInfoCmd(),
		newSelftestCmd(),
		newSaveCmd(),
		newInspectCmd(),
		newVerifyCmd(),
		newImportCmd(),
		newExportCmd(),
	)
	return root
}
