package hash

import (
	"bytes"
	"testing"
)

func TestSerializeDeterministic(t *testing.T) {
	v := []any{"projection", int64(3), []any{nil, true, 1.5, "x"}}
	a := Serialize(v)
	b := Serialize(v)
	if !bytes.Equal(a, b) {
		t.Fatal("serialization of the same value differs between calls")
	}
}

func TestSerializeDistinguishesShapes(t *testing.T) {
	cases := []struct {
		name string
		a, b any
	}{
		{"int vs float", int64(1), 1.0},
		{"int vs string", int64(1), "1"},
		{"nil vs false", nil, false},
		{"empty tuple vs empty record", []any{}, map[string]any{}},
		{"nesting", []any{[]any{"a"}, "b"}, []any{[]any{"a", "b"}}},
		{"string boundary", []any{"ab", "c"}, []any{"a", "bc"}},
	}
	for _, tc := range cases {
		if bytes.Equal(Serialize(tc.a), Serialize(tc.b)) {
			t.Errorf("%s: distinct values serialize identically", tc.name)
		}
	}
}

func TestSerializeRecordKeyOrder(t *testing.T) {
	a := map[string]any{"x": int64(1), "y": int64(2), "z": int64(3)}
	b := map[string]any{"z": int64(3), "y": int64(2), "x": int64(1)}
	if !bytes.Equal(Serialize(a), Serialize(b)) {
		t.Fatal("record serialization depends on construction order")
	}
}

func TestSerializeNormalizesIntWidths(t *testing.T) {
	if !bytes.Equal(Serialize(7), Serialize(int64(7))) {
		t.Fatal("int and int64 of the same value serialize differently")
	}
}

func TestValueStable(t *testing.T) {
	v := []any{"metadata", uint32(1), []any{}}
	if Value(v) != Value(v) {
		t.Fatal("hash of the same value differs between calls")
	}
	if Value(v) == Value([]any{"metadata", uint32(0), []any{}}) {
		t.Fatal("distinct values hash identically")
	}
}
