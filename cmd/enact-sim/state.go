package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
)

// simState remembers a fingerprint of every intent the simulator has
// applied, keyed by kind/target. Re-applying an intent with identical
// resolved parameters reports changed=false, the way a real backend
// behaves on an already-converged host. Without a state file the memory
// dies with the process, and since the engine runs each step in a fresh
// session, every step of a run then reports a change.
type simState struct {
	path    string
	entries map[string]string
}

func openState(path string) (*simState, error) {
	s := &simState{path: path, entries: make(map[string]string)}
	if path == "" {
		return s, nil
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}
	if err := json.Unmarshal(raw, &s.entries); err != nil {
		return nil, fmt.Errorf("failed to parse state file %s: %w", path, err)
	}
	return s, nil
}

// record notes one applied intent and reports whether anything changed:
// false when the same parameters were already recorded for the ref.
func (s *simState) record(ref string, params []byte) (bool, error) {
	sum := sha256.Sum256(params)
	fp := hex.EncodeToString(sum[:])

	if s.entries[ref] == fp {
		return false, nil
	}
	s.entries[ref] = fp
	if s.path == "" {
		return true, nil
	}
	return true, s.save()
}

func (s *simState) save() error {
	raw, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	// Write-and-rename so a crash mid-write cannot corrupt the file.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}
