package policy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalRego = `package enact

import rego.v1
`

func TestLoader_LoadFromPaths_File(t *testing.T) {
	dir := t.TempDir()
	path := writePolicy(t, dir, "freeze.rego", minimalRego)

	policies, err := NewLoader(nil).LoadFromPaths(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("LoadFromPaths: %v", err)
	}
	if len(policies) != 1 {
		t.Fatalf("policies = %v, want one", policies)
	}

	p := policies[0]
	if p.Name != "freeze" {
		t.Errorf("name = %q", p.Name)
	}
	if p.Source != path {
		t.Errorf("source = %q, want %q", p.Source, path)
	}
	if !p.Enabled {
		t.Error("file policy not enabled")
	}
	if p.Rego != minimalRego {
		t.Errorf("rego = %q", p.Rego)
	}
}

func TestLoader_LoadFromPaths_Directory(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "one.rego", minimalRego)
	writePolicy(t, dir, "notes.txt", "not a policy")

	sub := filepath.Join(dir, "extra")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writePolicy(t, sub, "two.rego", minimalRego)

	policies, err := NewLoader(nil).LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("LoadFromPaths: %v", err)
	}
	if len(policies) != 2 {
		t.Fatalf("policies = %d, want the two .rego files", len(policies))
	}

	names := map[string]bool{}
	for _, p := range policies {
		names[p.Name] = true
	}
	if !names["one"] || !names["two"] {
		t.Errorf("loaded names = %v", names)
	}
}

func TestLoader_DescriptionFromComments(t *testing.T) {
	dir := t.TempDir()
	path := writePolicy(t, dir, "described.rego", `# Denies plans that touch
# the sshd service.
package enact

import rego.v1
`)

	policies, err := NewLoader(nil).LoadFromPaths(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("LoadFromPaths: %v", err)
	}
	want := "Denies plans that touch the sshd service."
	if policies[0].Description != want {
		t.Errorf("description = %q, want %q", policies[0].Description, want)
	}
}

func TestLoader_MissingPathFails(t *testing.T) {
	_, err := NewLoader(nil).LoadFromPaths(context.Background(), []string{"/no/such/path"})
	if err == nil {
		t.Fatal("missing path accepted")
	}
	if !strings.Contains(err.Error(), "/no/such/path") {
		t.Errorf("error = %v", err)
	}
}

func TestLoader_CacheServesUntilCleared(t *testing.T) {
	dir := t.TempDir()
	path := writePolicy(t, dir, "cached.rego", minimalRego)

	l := NewLoader(nil)
	first, err := l.LoadFromPaths(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("LoadFromPaths: %v", err)
	}

	updated := minimalRego + "\ndeny contains \"no\" if { true }\n"
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("rewrite policy: %v", err)
	}

	second, err := l.LoadFromPaths(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("LoadFromPaths: %v", err)
	}
	if second[0].Rego != first[0].Rego {
		t.Error("cache did not serve the previous content")
	}

	l.ClearCache()
	third, err := l.LoadFromPaths(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("LoadFromPaths: %v", err)
	}
	if third[0].Rego != updated {
		t.Error("cleared cache still served stale content")
	}
}

func TestLoader_WatchReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "watched.rego", minimalRego)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan []Policy, 1)
	l := NewLoader(nil)
	err := l.Watch(ctx, []string{dir}, func(policies []Policy) error {
		select {
		case reloaded <- policies:
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer func() { _ = l.StopWatching() }()

	updated := minimalRego + "\ndeny contains \"no\" if { true }\n"
	writePolicy(t, dir, "watched.rego", updated)

	select {
	case policies := <-reloaded:
		if len(policies) != 1 {
			t.Fatalf("reloaded policies = %v", policies)
		}
		if policies[0].Rego != updated {
			t.Error("reload served stale content")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after policy file change")
	}
}

func TestLoader_WatchIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "watched.rego", minimalRego)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan struct{}, 1)
	l := NewLoader(nil)
	err := l.Watch(ctx, []string{dir}, func([]Policy) error {
		select {
		case reloaded <- struct{}{}:
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer func() { _ = l.StopWatching() }()

	writePolicy(t, dir, "notes.txt", "not a policy")

	select {
	case <-reloaded:
		t.Fatal("reload triggered by a non-policy file")
	case <-time.After(quietWait):
	}
}

// quietWait is how long the ignore test waits before concluding nothing
// happened. Longer than the reload debounce with margin.
const quietWait = 1500 * time.Millisecond
