package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/enactproject/enact/pkg/protocol"
)

// pkgParams is the resolved parameter shape for package intents.
type pkgParams struct {
	State      string `json:"state"`
	Version    string `json:"version,omitempty"`
	Repository string `json:"repository,omitempty"`
}

// apkRunner is the slice of the apk binary the backend drives. Tests fake
// it; apkCLI shells out.
type apkRunner interface {
	// installedVersion reports the installed version of a package, with
	// ok false when it is not installed.
	installedVersion(ctx context.Context, name string) (version string, ok bool, err error)

	// add installs a package, upgrading an existing install when upgrade
	// is set. A non-empty repository is passed through to apk.
	add(ctx context.Context, name string, upgrade bool, repository string) error

	// del removes a package.
	del(ctx context.Context, name string) error
}

func (b *backend) applyPackage(ctx context.Context, req *protocol.ApplyRequest) (*protocol.ApplyResponse, error) {
	var params pkgParams
	if err := json.Unmarshal(req.Parameters, &params); err != nil {
		return nil, &protocol.ErrorResponse{
			Code:    protocol.CodeBadRequest,
			Message: "undecodable package parameters: " + err.Error(),
		}
	}

	name := req.Target
	version, installed, err := b.apk.installedVersion(ctx, name)
	if err != nil {
		return failed(req, err.Error()), nil
	}

	switch params.State {
	case "present":
		return b.ensurePresent(ctx, req, params, version, installed)
	case "latest":
		return b.ensureLatest(ctx, req, params, version, installed)
	case "absent":
		if !installed {
			return applied(req, false, name+" is not installed"), nil
		}
		if err := b.apk.del(ctx, name); err != nil {
			return failed(req, err.Error()), nil
		}
		return applied(req, true, fmt.Sprintf("removed %s %s", name, version)), nil
	default:
		return nil, &protocol.ErrorResponse{
			Code:    protocol.CodeBadRequest,
			Message: fmt.Sprintf("unknown package state %q", params.State),
		}
	}
}

// ensurePresent installs the package if needed and verifies the version
// constraint. An installed version outside the constraint is upgraded
// once; apk has no way to pin an arbitrary version range, so a repository
// that still cannot satisfy it is a failure, not a silent approximation.
func (b *backend) ensurePresent(ctx context.Context, req *protocol.ApplyRequest, params pkgParams, version string, installed bool) (*protocol.ApplyResponse, error) {
	name := req.Target

	if installed {
		ok, err := satisfies(version, params.Version)
		if err != nil {
			return failed(req, err.Error()), nil
		}
		if ok {
			return applied(req, false, fmt.Sprintf("%s %s already installed", name, version)), nil
		}
	}
	if err := b.apk.add(ctx, name, installed, params.Repository); err != nil {
		return failed(req, err.Error()), nil
	}

	after, ok, err := b.apk.installedVersion(ctx, name)
	if err != nil {
		return failed(req, err.Error()), nil
	}
	if !ok {
		return failed(req, name+" did not install"), nil
	}
	if params.Version != "" {
		ok, err := satisfies(after, params.Version)
		if err != nil {
			return failed(req, err.Error()), nil
		}
		if !ok {
			return failed(req, fmt.Sprintf("installed %s %s does not satisfy %s", name, after, params.Version)), nil
		}
	}
	return applied(req, true, fmt.Sprintf("installed %s %s", name, after)), nil
}

func (b *backend) ensureLatest(ctx context.Context, req *protocol.ApplyRequest, params pkgParams, version string, installed bool) (*protocol.ApplyResponse, error) {
	name := req.Target

	if err := b.apk.add(ctx, name, installed, params.Repository); err != nil {
		return failed(req, err.Error()), nil
	}
	after, ok, err := b.apk.installedVersion(ctx, name)
	if err != nil {
		return failed(req, err.Error()), nil
	}
	if !ok {
		return failed(req, name+" did not install"), nil
	}

	switch {
	case !installed:
		return applied(req, true, fmt.Sprintf("installed %s %s", name, after)), nil
	case after == version:
		return applied(req, false, fmt.Sprintf("%s %s already latest", name, version)), nil
	default:
		return applied(req, true, fmt.Sprintf("upgraded %s %s to %s", name, version, after)), nil
	}
}

// satisfies checks an installed apk version against a version constraint.
// An empty constraint matches anything.
func satisfies(installed, constraint string) (bool, error) {
	if constraint == "" {
		return true, nil
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false, fmt.Errorf("bad version constraint %q: %v", constraint, err)
	}
	v, err := semver.NewVersion(semverOf(installed))
	if err != nil {
		return false, fmt.Errorf("cannot parse installed version %q: %v", installed, err)
	}
	return c.Check(v), nil
}

// semverOf strips the apk package revision, which semver has no slot
// for: "1.24.0-r7" becomes "1.24.0".
func semverOf(apkVersion string) string {
	if i := strings.LastIndex(apkVersion, "-r"); i > 0 && isDigits(apkVersion[i+2:]) {
		return apkVersion[:i]
	}
	return apkVersion
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// apkCLI shells out to the apk binary.
type apkCLI struct{}

func (apkCLI) installedVersion(ctx context.Context, name string) (string, bool, error) {
	out, err := apkOutput(ctx, "list", "--installed", name)
	if err != nil {
		return "", false, err
	}
	version, ok := parseInstalled(out, name)
	return version, ok, nil
}

func (apkCLI) add(ctx context.Context, name string, upgrade bool, repository string) error {
	args := []string{"add", "--no-progress"}
	if upgrade {
		args = append(args, "--upgrade")
	}
	if repository != "" {
		args = append(args, "--repository", repository)
	}
	args = append(args, name)
	_, err := apkOutput(ctx, args...)
	return err
}

func (apkCLI) del(ctx context.Context, name string) error {
	_, err := apkOutput(ctx, "del", "--no-progress", name)
	return err
}

// apkOutput runs one apk command and returns its stdout. Failures carry
// the command line and the stderr tail.
func apkOutput(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "apk", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return "", fmt.Errorf("apk %s: %s", strings.Join(args, " "), detail)
	}
	return string(out), nil
}

// parseInstalled extracts a package's version from apk list --installed
// output, whose match lines open with name-version-rN.
func parseInstalled(out, name string) (string, bool) {
	for _, line := range strings.Split(out, "\n") {
		field, _, _ := strings.Cut(strings.TrimSpace(line), " ")
		rest, ok := strings.CutPrefix(field, name+"-")
		if !ok || rest == "" {
			continue
		}
		// A version opens with a digit; anything else is a longer
		// package name sharing the prefix.
		if rest[0] >= '0' && rest[0] <= '9' {
			return rest, true
		}
	}
	return "", false
}
