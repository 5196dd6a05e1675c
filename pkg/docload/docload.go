package docload

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/enactproject/enact/pkg/document"
)

// Load reads the document at path with the loader its extension names.
// The context bounds Starlark execution; the CUE and YAML loaders do not
// block on anything but the file read.
func Load(ctx context.Context, path string) (document.Value, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".cue":
		return LoadCUE(path)
	case ".yaml", ".yml":
		return LoadYAML(path)
	case ".star":
		return LoadStarlark(ctx, path)
	default:
		return document.Value{}, fmt.Errorf("document %s: unsupported format %q (supported: .cue, .yaml, .yml, .star)", path, ext)
	}
}
