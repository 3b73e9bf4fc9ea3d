package properties

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDictionary_CaseInsensitiveKeys(t *testing.T) {
	d := New()
	d.Put("testName", true)

	v, ok := d.Get("testname")
	require.True(t, ok)
	b, ok := v.AsBool()
	require.True(t, ok)
	assert.True(t, b)

	d.Put("TESTNAME", false)
	assert.Equal(t, 1, d.Len())
	assert.Equal(t, []string{"testName"}, d.Keys(), "original casing is preserved")

	v, _ = d.Get("TestName")
	b, _ = v.AsBool()
	assert.False(t, b)
}

func TestDictionary_EmptyKeyIgnored(t *testing.T) {
	d := New()
	d.Put("", "value")
	d.Put("test.non.null", "v1")

	assert.Equal(t, 1, d.Len())
	_, ok := d.Get("")
	assert.False(t, ok)
}

func TestDictionary_NilReceiver(t *testing.T) {
	var d *Dictionary

	require.NotPanics(t, func() { d.Put("a", 1) })
	require.NotPanics(t, func() { d.Delete("a") })
	assert.Equal(t, 0, d.Len())
	assert.False(t, d.Has("a"))
	assert.Nil(t, d.Keys())
	assert.Equal(t, 0, d.Clone().Len())
}

func TestDictionary_NilStoredAsNull(t *testing.T) {
	d := New()
	d.Put("test.null", nil)

	v, ok := d.Get("test.null")
	require.True(t, ok, "key with nil value is still present")
	assert.True(t, v.IsNull())
	assert.Equal(t, KindNull, v.Kind())
}

func TestDictionary_Delete(t *testing.T) {
	d := New()
	d.Put("a", 1)
	d.Put("b", 2)
	d.Put("c", 3)

	d.Delete("B")
	assert.Equal(t, []string{"a", "c"}, d.Keys())

	v, ok := d.Get("c")
	require.True(t, ok)
	n, _ := v.AsInt()
	assert.Equal(t, int64(3), n)

	d.Delete("missing")
	assert.Equal(t, 2, d.Len())
}

func TestDictionary_CloneIsIndependent(t *testing.T) {
	d := New()
	d.Put("objectClass", []string{"A", "B"})
	d.Put("x", "1")

	c := d.Clone()
	d.Put("x", "2")
	d.Put("y", "3")

	v, _ := c.Get("x")
	assert.Equal(t, "1", v.String())
	assert.False(t, c.Has("y"))
	assert.True(t, d.Has("y"))

	items := c.Clone().Keys()
	assert.Equal(t, []string{"objectClass", "x"}, items)
}

func TestDictionary_CloneNil(t *testing.T) {
	var d *Dictionary
	c := d.Clone()
	require.NotNil(t, c)
	assert.Equal(t, 0, c.Len())
}

func TestFromMap_SortedInsertion(t *testing.T) {
	d := FromMap(map[string]any{"b": 2, "a": "x", "c": nil})
	assert.Equal(t, []string{"a", "b", "c"}, d.Keys())
	assert.Equal(t, "{a=x, b=2, c=<null>}", d.String())
}

func TestDictionary_Equal(t *testing.T) {
	a := FromMap(map[string]any{"Key": "v", "n": 1})
	b := FromMap(map[string]any{"n": 1, "key": "v"})
	assert.True(t, a.Equal(b))

	b.Put("n", int64(2))
	assert.False(t, a.Equal(b))
}

func TestDictionary_Map(t *testing.T) {
	d := New()
	d.Put("s", "str")
	d.Put("list", []string{"a", "b"})
	d.Put("n", 7)

	m := d.Map()
	assert.Equal(t, "str", m["s"])
	assert.Equal(t, []any{"a", "b"}, m["list"])
	assert.Equal(t, int64(7), m["n"])
}

func TestDictionary_Lines(t *testing.T) {
	d := New()
	d.Put("b", "2")
	d.Put("A", "1")
	assert.Equal(t, "A=1\nb=2\n", d.Lines())
	assert.Equal(t, "", New().Lines())
}

func TestValueOf(t *testing.T) {
	tests := []struct {
		name string
		in   any
		kind Kind
		str  string
	}{
		{"nil", nil, KindNull, ""},
		{"string", "hello", KindString, "hello"},
		{"int", 42, KindInt, "42"},
		{"int32 min", int32(-2147483648), KindInt, "-2147483648"},
		{"uint8", uint8(7), KindInt, "7"},
		{"float", 1.5, KindFloat, "1.5"},
		{"bool", true, KindBool, "true"},
		{"strings", []string{"A", "B"}, KindList, "[A, B]"},
		{"any slice", []any{"x", 1}, KindList, "[x, 1]"},
		{"huge uint", uint64(1 << 63), KindOpaque, "9223372036854775808"},
		{"struct", struct{ N int }{3}, KindOpaque, "{3}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := ValueOf(tt.in)
			assert.Equal(t, tt.kind, v.Kind())
			assert.Equal(t, tt.str, v.String())
		})
	}
}

func TestValue_Equal(t *testing.T) {
	assert.True(t, Strings("A", "B").Equal(ValueOf([]string{"A", "B"})))
	assert.False(t, Strings("A").Equal(Strings("A", "B")))
	assert.False(t, Int(1).Equal(Float(1)))
	assert.True(t, Null().Equal(ValueOf(nil)))
}

// Keys that differ only in case always collapse onto a single entry.
func TestDictionary_CaseFoldingProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		key := rapid.StringMatching(`[a-zA-Z][a-zA-Z.]{0,10}`).Draw(t, "key")
		values := rapid.SliceOfN(rapid.Int(), 1, 5).Draw(t, "values")

		d := New()
		for i, n := range values {
			k := key
			if i%2 == 1 {
				k = flipCase(key)
			}
			d.Put(k, n)
		}

		if d.Len() != 1 {
			t.Fatalf("expected 1 entry, got %d", d.Len())
		}
		v, ok := d.Get(flipCase(key))
		if !ok {
			t.Fatalf("key %q not found by flipped case", key)
		}
		if n, _ := v.AsInt(); n != int64(values[len(values)-1]) {
			t.Fatalf("expected last written value %d, got %d", values[len(values)-1], n)
		}
	})
}

func flipCase(s string) string {
	out := []rune(s)
	for i, r := range out {
		switch {
		case r >= 'a' && r <= 'z':
			out[i] = r - 'a' + 'A'
		case r >= 'A' && r <= 'Z':
			out[i] = r - 'A' + 'a'
		}
	}
	return string(out)
}
