package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/enactproject/enact/pkg/backend"
	"github.com/enactproject/enact/pkg/protocol"
)

func newBackendsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backends",
		Short: "Discover backends and print the capability matrix",
		Long: `Backends probes every configured backend, negotiates protocol and
capabilities, and prints what the engine would resolve plans against:
the available backends with their declared capabilities, the kind
matrix, and every candidate excluded during discovery with the reason.

An excluded backend is not an error. Plans simply cannot select it.`,
		Example: `  # Show the capability matrix
  enact backends

  # Machine-readable listing
  enact backends --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			p, err := newPipeline()
			if err != nil {
				return err
			}
			defer p.close()

			if len(p.cfg.Backends) == 0 {
				return fmt.Errorf("no backends configured (add a backends section to the config file)")
			}

			step("Discovering backends...")
			registry := backend.Discover(ctx, p.cfg.BackendSpecs(), p.cfg.DiscoveryOptions(buildVersion, p.tel))
			defer registry.Close(context.Background())

			if jsonOutput {
				return printJSON(backendsReport(registry))
			}
			renderBackends(registry)
			return nil
		},
	}

	return cmd
}

// backendEntry is the JSON shape of one available backend.
type backendEntry struct {
	Name            string                `json:"name"`
	ReportedName    string                `json:"reported_name,omitempty"`
	Version         string                `json:"version"`
	ProtocolVersion string                `json:"protocol_version"`
	Capabilities    []protocol.Capability `json:"capabilities"`
}

// backendsListing is the JSON output of the backends command.
type backendsListing struct {
	Backends   []backendEntry      `json:"backends"`
	Exclusions []backend.Exclusion `json:"exclusions,omitempty"`
}

func backendsReport(registry *backend.Registry) backendsListing {
	entries := []backendEntry{}
	for _, h := range registry.Backends() {
		entries = append(entries, backendEntry{
			Name:            h.Name,
			ReportedName:    h.ReportedName,
			Version:         h.Version,
			ProtocolVersion: h.ProtocolVersion,
			Capabilities:    h.Capabilities(),
		})
	}
	return backendsListing{
		Backends:   entries,
		Exclusions: registry.Exclusions(),
	}
}

// renderBackends prints the available backends, the kind matrix, and
// the exclusions as aligned tables.
func renderBackends(registry *backend.Registry) {
	handles := registry.Backends()
	if len(handles) == 0 {
		fmt.Println("No backends available.")
	} else {
		fmt.Printf("Available backends: %d\n\n", len(handles))
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tVERSION\tPROTOCOL\tCAPABILITIES")
		for _, h := range handles {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				h.Name, h.Version, h.ProtocolVersion, formatCapabilities(h.Capabilities()))
		}
		w.Flush()

		fmt.Printf("\nCapability matrix:\n\n")
		w = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KIND\tBACKENDS")
		for _, kind := range registry.Kinds() {
			names := []string{}
			for _, c := range registry.Candidates(kind) {
				names = append(names, fmt.Sprintf("%s (%s)", c.Backend, c.Fidelity))
			}
			fmt.Fprintf(w, "%s\t%s\n", kind, strings.Join(names, ", "))
		}
		w.Flush()
	}

	if exclusions := registry.Exclusions(); len(exclusions) > 0 {
		fmt.Printf("\nExcluded candidates:\n\n")
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tREASON")
		for _, ex := range exclusions {
			fmt.Fprintf(w, "%s\t%s\n", ex.Name, ex.Reason)
		}
		w.Flush()
	}
}

// formatCapabilities renders a capability list as "kind (fidelity)"
// pairs.
func formatCapabilities(caps []protocol.Capability) string {
	if len(caps) == 0 {
		return "-"
	}
	parts := make([]string, len(caps))
	for i, c := range caps {
		parts[i] = fmt.Sprintf("%s (%s)", c.Kind, c.Fidelity)
	}
	return strings.Join(parts, ", ")
}
