package docload

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/enactproject/enact/pkg/document"
)

func writeDoc(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write document: %v", err)
	}
	return path
}

// requireField fails the test unless doc has the named map field.
func requireField(t *testing.T, doc document.Value, name string) document.Value {
	t.Helper()
	field, ok := doc.Field(name)
	if !ok {
		t.Fatalf("document has no %q field: %s", name, doc)
	}
	return field
}

const yamlDoc = `
schema_version: "1.2"
intents:
  - kind: package
    target: nginx
    parameters:
      state: present
  - kind: service
    target: nginx
    parameters:
      state: running
    backend_hints:
      openrc:
        supervise: true
`

const cueDoc = `
schema_version: "1.2"
intents: [
	{
		kind:   "package"
		target: "nginx"
		parameters: {state: "present"}
	},
	{
		kind:   "service"
		target: "nginx"
		parameters: {state: "running"}
		backend_hints: {openrc: {supervise: true}}
	},
]
`

const starDoc = `
def service(name):
    return {
        "kind": "service",
        "target": name,
        "parameters": {"state": "running"},
        "backend_hints": {"openrc": {"supervise": True}},
    }

def document():
    return {
        "schema_version": "1.2",
        "intents": [
            {"kind": "package", "target": "nginx", "parameters": {"state": "present"}},
            service("nginx"),
        ],
    }
`

// checkSampleDoc asserts the shape every loader must produce for the
// equivalent sample documents above.
func checkSampleDoc(t *testing.T, doc document.Value) {
	t.Helper()

	version := requireField(t, doc, "schema_version")
	if s, _ := version.AsString(); s != "1.2" {
		t.Errorf("schema_version = %s, want \"1.2\"", version)
	}

	intents := requireField(t, doc, "intents")
	if intents.Kind() != document.KindList || intents.Len() != 2 {
		t.Fatalf("intents = %s, want a list of 2", intents)
	}

	first := intents.Items()[0]
	if kind, _ := requireField(t, first, "kind").AsString(); kind != "package" {
		t.Errorf("first intent kind = %q, want package", kind)
	}
	if target, _ := requireField(t, first, "target").AsString(); target != "nginx" {
		t.Errorf("first intent target = %q, want nginx", target)
	}
	params := requireField(t, first, "parameters")
	if state, _ := requireField(t, params, "state").AsString(); state != "present" {
		t.Errorf("first intent state = %q, want present", state)
	}

	second := intents.Items()[1]
	hints := requireField(t, second, "backend_hints")
	openrc := requireField(t, hints, "openrc")
	if supervise, ok := requireField(t, openrc, "supervise").AsBool(); !ok || !supervise {
		t.Errorf("openrc hint supervise = %s, want true", openrc)
	}
}

func TestLoad_DispatchesByExtension(t *testing.T) {
	ctx := context.Background()

	for _, name := range []string{"doc.yaml", "doc.yml"} {
		path := writeDoc(t, name, yamlDoc)
		if _, err := Load(ctx, path); err != nil {
			t.Errorf("Load(%s) failed: %v", name, err)
		}
	}

	path := writeDoc(t, "doc.cue", cueDoc)
	if _, err := Load(ctx, path); err != nil {
		t.Errorf("Load(doc.cue) failed: %v", err)
	}

	path = writeDoc(t, "doc.star", starDoc)
	if _, err := Load(ctx, path); err != nil {
		t.Errorf("Load(doc.star) failed: %v", err)
	}
}

func TestLoad_UnsupportedFormat(t *testing.T) {
	path := writeDoc(t, "doc.json", `{"schema_version": "1.2"}`)
	_, err := Load(context.Background(), path)
	if err == nil || !strings.Contains(err.Error(), "unsupported format") {
		t.Fatalf("err = %v, want unsupported format", err)
	}
}

func TestLoadYAML(t *testing.T) {
	doc, err := LoadYAML(writeDoc(t, "doc.yaml", yamlDoc))
	if err != nil {
		t.Fatalf("LoadYAML failed: %v", err)
	}
	checkSampleDoc(t, doc)
}

func TestLoadYAML_Malformed(t *testing.T) {
	_, err := LoadYAML(writeDoc(t, "doc.yaml", "intents: [\n"))
	if err == nil || !strings.Contains(err.Error(), "yaml document") {
		t.Fatalf("err = %v, want yaml document error", err)
	}
}

func TestLoadYAML_MissingFile(t *testing.T) {
	_, err := LoadYAML(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadCUE(t *testing.T) {
	doc, err := LoadCUE(writeDoc(t, "doc.cue", cueDoc))
	if err != nil {
		t.Fatalf("LoadCUE failed: %v", err)
	}
	checkSampleDoc(t, doc)
}

func TestLoadCUE_NotConcrete(t *testing.T) {
	content := "schema_version: string\nintents: []\n"
	_, err := LoadCUE(writeDoc(t, "doc.cue", content))
	if err == nil || !strings.Contains(err.Error(), "cue document") {
		t.Fatalf("err = %v, want cue document error for non-concrete value", err)
	}
}

func TestLoadCUE_SyntaxError(t *testing.T) {
	_, err := LoadCUE(writeDoc(t, "doc.cue", "intents: [{kind:\n"))
	if err == nil || !strings.Contains(err.Error(), "cue document") {
		t.Fatalf("err = %v, want cue document error", err)
	}
}

func TestLoadStarlark(t *testing.T) {
	doc, err := LoadStarlark(context.Background(), writeDoc(t, "doc.star", starDoc))
	if err != nil {
		t.Fatalf("LoadStarlark failed: %v", err)
	}
	checkSampleDoc(t, doc)
}

func TestLoadStarlark_StructResult(t *testing.T) {
	content := `
def document():
    return struct(schema_version = "1.2", intents = [])
`
	doc, err := LoadStarlark(context.Background(), writeDoc(t, "doc.star", content))
	if err != nil {
		t.Fatalf("LoadStarlark failed: %v", err)
	}
	if s, _ := requireField(t, doc, "schema_version").AsString(); s != "1.2" {
		t.Errorf("schema_version = %q, want 1.2", s)
	}
	if intents := requireField(t, doc, "intents"); intents.Kind() != document.KindList {
		t.Errorf("intents kind = %s, want list", intents.Kind())
	}
}

func TestLoadStarlark_NoDocumentFunction(t *testing.T) {
	_, err := LoadStarlark(context.Background(), writeDoc(t, "doc.star", "x = 1\n"))
	if err == nil || !strings.Contains(err.Error(), "no document() function") {
		t.Fatalf("err = %v, want missing document() error", err)
	}
}

func TestLoadStarlark_DocumentNotAFunction(t *testing.T) {
	_, err := LoadStarlark(context.Background(), writeDoc(t, "doc.star", "document = 4\n"))
	if err == nil || !strings.Contains(err.Error(), "want function") {
		t.Fatalf("err = %v, want non-callable error", err)
	}
}

func TestLoadStarlark_ProgramFails(t *testing.T) {
	content := `
def document():
    fail("refusing to produce a document")
`
	_, err := LoadStarlark(context.Background(), writeDoc(t, "doc.star", content))
	if err == nil || !strings.Contains(err.Error(), "refusing to produce a document") {
		t.Fatalf("err = %v, want fail() message", err)
	}
}

func TestLoadStarlark_UnsupportedValue(t *testing.T) {
	content := `
def document():
    return {"schema_version": "1.2", "intents": [], "window": range(3)}
`
	_, err := LoadStarlark(context.Background(), writeDoc(t, "doc.star", content))
	if err == nil || !strings.Contains(err.Error(), "unsupported starlark type") {
		t.Fatalf("err = %v, want unsupported type error", err)
	}
}

func TestLoadStarlark_NonIntegralNumber(t *testing.T) {
	content := `
def document():
    return {"schema_version": "1.2", "intents": [], "ratio": 2.5}
`
	_, err := LoadStarlark(context.Background(), writeDoc(t, "doc.star", content))
	if err == nil || !strings.Contains(err.Error(), "non-integral") {
		t.Fatalf("err = %v, want non-integral number error", err)
	}
}

func TestLoadStarlark_IntegralFloatFoldsToInt(t *testing.T) {
	content := `
def document():
    return {"schema_version": "1.2", "intents": [], "priority": 10.0}
`
	doc, err := LoadStarlark(context.Background(), writeDoc(t, "doc.star", content))
	if err != nil {
		t.Fatalf("LoadStarlark failed: %v", err)
	}
	if n, ok := requireField(t, doc, "priority").AsInt(); !ok || n != 10 {
		t.Errorf("priority = %v, want int 10", doc)
	}
}

func TestLoadStarlark_CancelledContext(t *testing.T) {
	content := `
x = 0
for i in range(1000000000):
    x += 1

def document():
    return {"schema_version": "1.2", "intents": []}
`
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := LoadStarlark(ctx, writeDoc(t, "doc.star", content))
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}

// The three formats describe the same document; the loaders must agree on
// the tree, whatever syntax it came from.
func TestLoaders_AgreeOnEquivalentDocuments(t *testing.T) {
	ctx := context.Background()

	fromYAML, err := Load(ctx, writeDoc(t, "doc.yaml", yamlDoc))
	if err != nil {
		t.Fatalf("yaml: %v", err)
	}
	fromCUE, err := Load(ctx, writeDoc(t, "doc.cue", cueDoc))
	if err != nil {
		t.Fatalf("cue: %v", err)
	}
	fromStar, err := Load(ctx, writeDoc(t, "doc.star", starDoc))
	if err != nil {
		t.Fatalf("starlark: %v", err)
	}

	if !fromYAML.Equal(fromCUE) {
		t.Errorf("yaml and cue trees differ:\n  yaml: %s\n  cue:  %s", fromYAML, fromCUE)
	}
	if !fromYAML.Equal(fromStar) {
		t.Errorf("yaml and starlark trees differ:\n  yaml: %s\n  star: %s", fromYAML, fromStar)
	}
}
