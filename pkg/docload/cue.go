package docload

import (
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"

	"github.com/enactproject/enact/pkg/document"
)

// LoadCUE compiles a single CUE file and decodes its value into the
// document tree. The value must be fully concrete: an unresolved field
// is a load error, not something to pass downstream.
func LoadCUE(path string) (document.Value, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return document.Value{}, fmt.Errorf("read document: %w", err)
	}

	val := cuecontext.New().CompileString(string(content), cue.Filename(path))
	if err := val.Err(); err != nil {
		return document.Value{}, cueError(path, err)
	}
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return document.Value{}, cueError(path, err)
	}

	var decoded interface{}
	if err := val.Decode(&decoded); err != nil {
		return document.Value{}, cueError(path, err)
	}

	doc, err := document.FromGo(decoded)
	if err != nil {
		return document.Value{}, fmt.Errorf("cue document %s: %w", path, err)
	}
	return doc, nil
}

// cueError flattens CUE's error list, positions included, into one error.
func cueError(path string, err error) error {
	return fmt.Errorf("cue document %s: %s", path, strings.TrimSpace(errors.Details(err, nil)))
}
