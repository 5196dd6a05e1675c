package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/enactproject/enact/pkg/protocol"
)

// repoParams is the resolved parameter shape for repository-source
// intents. Priority is decoded for completeness but has no apk
// equivalent; the capability is declared partial for it.
type repoParams struct {
	URL      string `json:"url"`
	Enabled  bool   `json:"enabled"`
	Priority int    `json:"priority"`
}

func (b *backend) applyRepository(req *protocol.ApplyRequest) (*protocol.ApplyResponse, error) {
	var params repoParams
	if err := json.Unmarshal(req.Parameters, &params); err != nil {
		return nil, &protocol.ErrorResponse{
			Code:    protocol.CodeBadRequest,
			Message: "undecodable repository parameters: " + err.Error(),
		}
	}
	if params.URL == "" {
		return nil, &protocol.ErrorResponse{
			Code:    protocol.CodeBadRequest,
			Message: "repository url is required",
		}
	}

	content, err := os.ReadFile(b.repos)
	if err != nil && !os.IsNotExist(err) {
		return failed(req, fmt.Sprintf("read %s: %v", b.repos, err)), nil
	}

	state := "disabled"
	if params.Enabled {
		state = "enabled"
	}

	next, changed := ensureRepoLine(string(content), params.URL, params.Enabled)
	if !changed {
		return applied(req, false, fmt.Sprintf("repository %s already %s", req.Target, state)), nil
	}
	if err := writeFileAtomic(b.repos, []byte(next)); err != nil {
		return failed(req, fmt.Sprintf("write %s: %v", b.repos, err)), nil
	}
	return applied(req, true, fmt.Sprintf("%s repository %s", state, req.Target)), nil
}

// ensureRepoLine returns the repositories file content with the url line
// active (enabled) or commented out (disabled), and whether the content
// changed. Unrelated lines are preserved untouched. Disabling a url that
// is not in the file is a no-op: absent and disabled mean the same thing
// to apk.
func ensureRepoLine(content, url string, enabled bool) (string, bool) {
	var lines []string
	if content != "" {
		lines = strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	}

	activeAt := -1
	commentedAt := -1
	for i, line := range lines {
		switch {
		case strings.TrimSpace(line) == url:
			if activeAt < 0 {
				activeAt = i
			}
		case isCommentedRepo(line, url):
			if commentedAt < 0 {
				commentedAt = i
			}
		}
	}

	if enabled {
		switch {
		case activeAt >= 0:
			return content, false
		case commentedAt >= 0:
			lines[commentedAt] = url
		default:
			lines = append(lines, url)
		}
		return joinRepoLines(lines), true
	}

	if activeAt < 0 {
		return content, false
	}
	for i, line := range lines {
		if strings.TrimSpace(line) == url {
			lines[i] = "#" + url
		}
	}
	return joinRepoLines(lines), true
}

// isCommentedRepo matches a commented-out copy of the url line.
func isCommentedRepo(line, url string) bool {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "#") {
		return false
	}
	return strings.TrimSpace(strings.TrimPrefix(trimmed, "#")) == url
}

func joinRepoLines(lines []string) string {
	return strings.Join(lines, "\n") + "\n"
}

// writeFileAtomic replaces path via a temp file and rename, keeping the
// repositories file intact if the write is interrupted.
func writeFileAtomic(path string, content []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
