package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/enactproject/enact/pkg/protocol"
	"github.com/enactproject/enact/pkg/schema"
)

func newVersionCommand(version, commit, buildDate string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print build and protocol information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			current, _ := schema.BuiltinRegistry().Current()

			if jsonOutput {
				return printJSON(map[string]string{
					"version":          version,
					"commit":           commit,
					"build_date":       buildDate,
					"go_version":       runtime.Version(),
					"protocol_version": protocol.Version,
					"schema_version":   current.String(),
				})
			}

			fmt.Printf("enact %s\n", version)
			fmt.Printf("  commit:     %s\n", commit)
			fmt.Printf("  built:      %s\n", buildDate)
			fmt.Printf("  go:         %s\n", runtime.Version())
			fmt.Printf("  protocol:   %s\n", protocol.Version)
			fmt.Printf("  schema:     %s\n", current)
			return nil
		},
	}

	return cmd
}
