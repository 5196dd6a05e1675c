package document

import "testing"

func TestValue_Accessors(t *testing.T) {
	s := String("curl")
	if got, ok := s.AsString(); !ok || got != "curl" {
		t.Errorf("Expected string \"curl\", got %q (ok=%v)", got, ok)
	}
	if _, ok := s.AsBool(); ok {
		t.Error("Expected AsBool to fail on a string value")
	}

	b := Bool(true)
	if got, ok := b.AsBool(); !ok || !got {
		t.Errorf("Expected bool true, got %v (ok=%v)", got, ok)
	}

	i := Int(42)
	if got, ok := i.AsInt(); !ok || got != 42 {
		t.Errorf("Expected int 42, got %d (ok=%v)", got, ok)
	}

	if Null().IsZero() || Null().Kind() != KindNull {
		t.Error("Expected Null to be a valid value of KindNull")
	}
	var zero Value
	if !zero.IsZero() {
		t.Error("Expected zero Value to report IsZero")
	}
}

func TestValue_MapPreservesInsertionOrder(t *testing.T) {
	m := NewMap()
	m.SetField("zeta", Int(1))
	m.SetField("alpha", Int(2))
	m.SetField("mid", Int(3))
	m.SetField("alpha", Int(4)) // overwrite must not duplicate the key

	keys := m.FieldKeys()
	want := []string{"zeta", "alpha", "mid"}
	if len(keys) != len(want) {
		t.Fatalf("Expected %d keys, got %d", len(want), len(keys))
	}
	for i, key := range want {
		if keys[i] != key {
			t.Errorf("Expected key %d to be %q, got %q", i, key, keys[i])
		}
	}
	if v, ok := m.Field("alpha"); !ok {
		t.Error("Expected alpha to be present")
	} else if got, _ := v.AsInt(); got != 4 {
		t.Errorf("Expected alpha to be overwritten to 4, got %d", got)
	}
}

func TestValue_Equal(t *testing.T) {
	a := NewMap()
	a.SetField("state", String("present"))
	a.SetField("opts", List(String("x"), Int(1)))

	b := NewMap()
	b.SetField("opts", List(String("x"), Int(1)))
	b.SetField("state", String("present"))

	if !a.Equal(b) {
		t.Error("Expected maps with the same fields to be equal regardless of order")
	}

	b.SetField("state", String("absent"))
	if a.Equal(b) {
		t.Error("Expected maps with different field values to differ")
	}

	if List(Int(1), Int(2)).Equal(List(Int(2), Int(1))) {
		t.Error("Expected list equality to be order sensitive")
	}
}

func TestFromGo_ConvertsNestedStructures(t *testing.T) {
	in := map[string]any{
		"kind":   "package",
		"target": "curl",
		"parameters": map[string]any{
			"state":    "present",
			"priority": float64(5),
			"tags":     []any{"net", true},
		},
	}

	v, err := FromGo(in)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if v.Kind() != KindMap {
		t.Fatalf("Expected a map, got %s", v.Kind())
	}

	params, ok := v.Field("parameters")
	if !ok {
		t.Fatal("Expected parameters field")
	}
	prio, ok := params.Field("priority")
	if !ok {
		t.Fatal("Expected priority field")
	}
	if got, _ := prio.AsInt(); got != 5 {
		t.Errorf("Expected integral float to convert to int 5, got %d", got)
	}

	keys := v.FieldKeys()
	want := []string{"kind", "parameters", "target"}
	for i, key := range want {
		if keys[i] != key {
			t.Errorf("Expected lexically ordered key %d to be %q, got %q", i, key, keys[i])
		}
	}
}

func TestFromGo_RejectsNonIntegralFloat(t *testing.T) {
	if _, err := FromGo(map[string]any{"ratio": 0.5}); err == nil {
		t.Error("Expected an error for a non-integral float")
	}
}
