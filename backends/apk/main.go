// Package main implements the apk backend: Alpine package and repository
// management driven by the enact negotiation protocol on stdio. Package
// intents shell out to the apk binary; repository-source intents edit the
// repositories file directly. Repository priority has no apk equivalent,
// so repository-source is declared at partial fidelity and the parameter
// is accepted and ignored.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/enactproject/enact/pkg/protocol"
)

const (
	backendName    = "apk"
	backendVersion = "0.2.0"
)

var capabilities = []protocol.Capability{
	{Kind: "package", Fidelity: protocol.FidelityFull},
	{Kind: "repository-source", Fidelity: protocol.FidelityPartial},
}

var ordering = []protocol.OrderingRule{
	{First: "repository-source", Then: "package"},
}

type backend struct {
	apk   apkRunner
	repos string
}

func main() {
	reposPath := flag.String("repositories", "/etc/apk/repositories", "path to the apk repositories file")
	flag.Parse()

	b := &backend{apk: apkCLI{}, repos: *reposPath}
	if err := protocol.Serve(context.Background(), os.Stdin, os.Stdout, b); err != nil {
		fmt.Fprintf(os.Stderr, "apk backend: %v\n", err)
		os.Exit(1)
	}
}

func (b *backend) Handshake(req *protocol.HandshakeRequest) (*protocol.HandshakeResponse, error) {
	return &protocol.HandshakeResponse{
		ProtocolVersion: protocol.Version,
		BackendName:     backendName,
		BackendVersion:  backendVersion,
	}, nil
}

func (b *backend) Describe() (*protocol.DescribeResponse, error) {
	return &protocol.DescribeResponse{
		Capabilities: capabilities,
		Ordering:     ordering,
	}, nil
}

func (b *backend) Apply(ctx context.Context, req *protocol.ApplyRequest) (*protocol.ApplyResponse, error) {
	switch req.Kind {
	case "package":
		return b.applyPackage(ctx, req)
	case "repository-source":
		return b.applyRepository(req)
	default:
		return nil, &protocol.ErrorResponse{
			Code:    protocol.CodeUnsupported,
			Message: fmt.Sprintf("kind %q is not in this backend's capabilities", req.Kind),
		}
	}
}

func applied(req *protocol.ApplyRequest, changed bool, detail string) *protocol.ApplyResponse {
	return &protocol.ApplyResponse{ID: req.ID, Status: protocol.ApplyStatusApplied, Changed: changed, Detail: detail}
}

func failed(req *protocol.ApplyRequest, detail string) *protocol.ApplyResponse {
	return &protocol.ApplyResponse{ID: req.ID, Status: protocol.ApplyStatusFailed, Detail: detail}
}
