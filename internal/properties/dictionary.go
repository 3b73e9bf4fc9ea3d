package properties

import (
	"sort"
	"strings"
)

type entry struct {
	key   string
	value Value
}

// Dictionary is an ordered property map with case-insensitive keys.
// The casing used on first insertion is preserved for Keys and String.
//
// A Dictionary is not safe for concurrent mutation. The registry only ever
// publishes clones that are never written again.
type Dictionary struct {
	entries []entry
	index   map[string]int
}

// New returns an empty dictionary.
func New() *Dictionary {
	return &Dictionary{index: make(map[string]int)}
}

// FromMap builds a dictionary from a Go map. Keys are inserted in sorted
// order so the result does not depend on map iteration order.
func FromMap(m map[string]any) *Dictionary {
	d := New()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		d.Put(k, m[k])
	}
	return d
}

func fold(key string) string {
	return strings.ToLower(key)
}

// Get returns the value stored under key, compared case-insensitively.
func (d *Dictionary) Get(key string) (Value, bool) {
	if d == nil {
		return Value{}, false
	}
	i, ok := d.index[fold(key)]
	if !ok {
		return Value{}, false
	}
	return d.entries[i].value, true
}

// Has reports whether key is present, regardless of its value.
func (d *Dictionary) Has(key string) bool {
	_, ok := d.Get(key)
	return ok
}

// Put stores v under key. An empty key is ignored. A nil v is stored as
// the null marker. Replacing an existing key keeps its original casing and
// position. Put on a nil dictionary does nothing.
func (d *Dictionary) Put(key string, v any) {
	if d == nil || key == "" {
		return
	}
	if d.index == nil {
		d.index = make(map[string]int)
	}
	val := ValueOf(v)
	k := fold(key)
	if i, ok := d.index[k]; ok {
		d.entries[i].value = val
		return
	}
	d.index[k] = len(d.entries)
	d.entries = append(d.entries, entry{key: key, value: val})
}

// Delete removes key if present.
func (d *Dictionary) Delete(key string) {
	if d == nil {
		return
	}
	k := fold(key)
	i, ok := d.index[k]
	if !ok {
		return
	}
	d.entries = append(d.entries[:i], d.entries[i+1:]...)
	delete(d.index, k)
	for j := i; j < len(d.entries); j++ {
		d.index[fold(d.entries[j].key)] = j
	}
}

// Len returns the number of keys.
func (d *Dictionary) Len() int {
	if d == nil {
		return 0
	}
	return len(d.entries)
}

// Keys returns the keys in insertion order with their original casing.
func (d *Dictionary) Keys() []string {
	if d == nil {
		return nil
	}
	keys := make([]string, len(d.entries))
	for i, e := range d.entries {
		keys[i] = e.key
	}
	return keys
}

// Range calls fn for each entry in insertion order until fn returns false.
func (d *Dictionary) Range(fn func(key string, v Value) bool) {
	if d == nil {
		return
	}
	for _, e := range d.entries {
		if !fn(e.key, e.value) {
			return
		}
	}
}

// Clone returns a deep copy. Cloning a nil dictionary yields an empty one.
func (d *Dictionary) Clone() *Dictionary {
	out := New()
	if d == nil {
		return out
	}
	out.entries = make([]entry, len(d.entries))
	for i, e := range d.entries {
		if e.value.kind == KindList {
			e.value = List(e.value.list...)
		}
		out.entries[i] = e
		out.index[fold(e.key)] = i
	}
	return out
}

// Map returns the dictionary as a plain Go map keyed by original casing.
func (d *Dictionary) Map() map[string]any {
	out := make(map[string]any, d.Len())
	d.Range(func(k string, v Value) bool {
		out[k] = v.Interface()
		return true
	})
	return out
}

// Equal reports whether both dictionaries hold the same keys (ignoring case
// and order) with equal values.
func (d *Dictionary) Equal(other *Dictionary) bool {
	if d.Len() != other.Len() {
		return false
	}
	equal := true
	d.Range(func(k string, v Value) bool {
		ov, ok := other.Get(k)
		if !ok || !v.Equal(ov) {
			equal = false
		}
		return equal
	})
	return equal
}

// String renders the dictionary as {k=v, ...} in insertion order.
func (d *Dictionary) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	d.Range(func(k string, v Value) bool {
		if sb.Len() > 1 {
			sb.WriteString(", ")
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		if v.IsNull() {
			sb.WriteString("<null>")
		} else {
			sb.WriteString(v.String())
		}
		return true
	})
	sb.WriteByte('}')
	return sb.String()
}

// Lines renders one "key=value" line per entry, sorted by folded key.
// Used to diff snapshots.
func (d *Dictionary) Lines() string {
	lines := make([]string, 0, d.Len())
	d.Range(func(k string, v Value) bool {
		lines = append(lines, k+"="+v.String())
		return true
	})
	sort.Slice(lines, func(i, j int) bool { return fold(lines[i]) < fold(lines[j]) })
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
