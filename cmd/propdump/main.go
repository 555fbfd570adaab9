// propdump inspects saved property streams and class layouts.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOptions struct {
	schemaPath string
	side       string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "propdump",
		Short:         "Inspect saved property streams and class layouts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.schemaPath, "schema", "config/schema.yaml", "class schema file")
	root.PersistentFlags().StringVar(&opts.side, "side", "server", "layout side: server or client")

	root.AddCommand(newDumpCmd(opts), newLayoutCmd(opts))
	return root
}
