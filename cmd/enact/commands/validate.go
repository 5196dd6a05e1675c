package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <document>",
		Short: "Validate an intent document against the schema",
		Long: `Validate loads an intent document and checks it against the versioned
intent schema: declared schema version, known kinds, parameter types,
enum values, and duplicate intents. Schema defaults are filled in
exactly as a plan or apply run would see them.

Validation is purely local. No backends are contacted and nothing is
changed on the host.`,
		Example: `  # Validate a CUE document
  enact validate site.cue

  # Validate a YAML document
  enact validate site.yaml

  # Print the validated intent set with defaults filled in
  enact validate --json site.cue`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := loadAndValidate(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(set)
			}
			fmt.Printf("✓ Document is valid: %d intents (schema %s)\n", set.Len(), set.SchemaVersion)
			return nil
		},
	}

	return cmd
}
