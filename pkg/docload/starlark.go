package docload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/enactproject/enact/pkg/document"
)

// starlarkTimeout caps one program run, the document() call included.
const starlarkTimeout = 30 * time.Second

// documentFunc is the entry point a document program must define.
const documentFunc = "document"

// LoadStarlark executes a Starlark program and converts the value its
// document() function returns. The thread is cancelled when ctx ends or
// after starlarkTimeout, whichever comes first.
func LoadStarlark(ctx context.Context, path string) (document.Value, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return document.Value{}, fmt.Errorf("read document: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, starlarkTimeout)
	defer cancel()

	thread := &starlark.Thread{
		Name:  "docload " + path,
		Print: func(_ *starlark.Thread, _ string) {},
	}
	stop := context.AfterFunc(ctx, func() {
		thread.Cancel(context.Cause(ctx).Error())
	})
	defer stop()

	predeclared := starlark.StringDict{
		"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
	}
	globals, err := starlark.ExecFile(thread, path, src, predeclared)
	if err != nil {
		return document.Value{}, starlarkError(path, err)
	}

	entry, ok := globals[documentFunc]
	if !ok {
		return document.Value{}, fmt.Errorf("starlark document %s: no document() function defined", path)
	}
	fn, ok := entry.(starlark.Callable)
	if !ok {
		return document.Value{}, fmt.Errorf("starlark document %s: document is %s, want function", path, entry.Type())
	}

	result, err := starlark.Call(thread, fn, nil, nil)
	if err != nil {
		return document.Value{}, starlarkError(path, err)
	}

	doc, err := fromStarlark(result)
	if err != nil {
		return document.Value{}, fmt.Errorf("starlark document %s: %w", path, err)
	}
	return doc, nil
}

// starlarkError keeps the evaluator's backtrace when there is one.
func starlarkError(path string, err error) error {
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		return fmt.Errorf("starlark document %s: %s", path, evalErr.Backtrace())
	}
	return fmt.Errorf("starlark document %s: %w", path, err)
}

// fromStarlark converts an evaluation result into the document tree.
// Dict insertion order carries over into map field order; integral
// floats fold to ints so computed numbers match the other loaders.
func fromStarlark(v starlark.Value) (document.Value, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return document.Null(), nil
	case starlark.Bool:
		return document.Bool(bool(val)), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return document.Value{}, fmt.Errorf("integer %v out of range", val)
		}
		return document.Int(i), nil
	case starlark.Float:
		f := float64(val)
		i := int64(f)
		if float64(i) != f {
			return document.Value{}, fmt.Errorf("unsupported non-integral number %v", f)
		}
		return document.Int(i), nil
	case starlark.String:
		return document.String(string(val)), nil
	case *starlark.List:
		items := make([]document.Value, 0, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := fromStarlark(val.Index(i))
			if err != nil {
				return document.Value{}, fmt.Errorf("list index %d: %w", i, err)
			}
			items = append(items, item)
		}
		return document.List(items...), nil
	case starlark.Tuple:
		items := make([]document.Value, 0, len(val))
		for i, elem := range val {
			item, err := fromStarlark(elem)
			if err != nil {
				return document.Value{}, fmt.Errorf("tuple index %d: %w", i, err)
			}
			items = append(items, item)
		}
		return document.List(items...), nil
	case *starlark.Dict:
		m := document.NewMap()
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return document.Value{}, fmt.Errorf("dict key %s must be a string", item[0])
			}
			field, err := fromStarlark(item[1])
			if err != nil {
				return document.Value{}, fmt.Errorf("field %q: %w", string(key), err)
			}
			m.SetField(string(key), field)
		}
		return m, nil
	case *starlarkstruct.Struct:
		m := document.NewMap()
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				continue
			}
			field, err := fromStarlark(attr)
			if err != nil {
				return document.Value{}, fmt.Errorf("field %q: %w", name, err)
			}
			m.SetField(name, field)
		}
		return m, nil
	default:
		return document.Value{}, fmt.Errorf("unsupported starlark type %s", v.Type())
	}
}
