package value

import (
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Object maps unique string keys to values and remembers insertion order.
// Setting an existing key replaces its value without moving it.
type Object struct {
	fields *orderedmap.OrderedMap[string, Value]
}

// NewObject returns an empty object with room for size keys.
func NewObject(size int) *Object {
	return &Object{
		fields: orderedmap.New[string, Value](orderedmap.WithCapacity[string, Value](size)),
	}
}

// Set stores v under key. A nil v is stored as Null. The zero Object is
// usable.
func (o *Object) Set(key string, v Value) {
	if v == nil {
		v = Null
	}
	if o.fields == nil {
		o.fields = orderedmap.New[string, Value]()
	}
	o.fields.Set(key, v)
}

func (o *Object) Get(key string) (Value, bool) {
	if o == nil || o.fields == nil {
		return nil, false
	}
	return o.fields.Get(key)
}

func (o *Object) Len() int {
	if o == nil || o.fields == nil {
		return 0
	}
	return o.fields.Len()
}

// Keys returns the keys in insertion order.
func (o *Object) Keys() []string {
	keys := make([]string, 0, o.Len())
	o.Range(func(k string, _ Value) bool {
		keys = append(keys, k)
		return true
	})
	return keys
}

// Range calls fn for every entry in insertion order until fn returns false.
func (o *Object) Range(fn func(key string, v Value) bool) {
	if o == nil || o.fields == nil {
		return
	}
	for pair := o.fields.Oldest(); pair != nil; pair = pair.Next() {
		if !fn(pair.Key, pair.Value) {
			return
		}
	}
}

func (o *Object) isValue()   {}
func (o *Object) Kind() Kind { return KindObject }

// Equal ignores key order.
func (o *Object) Equal(v Value) bool {
	other, ok := v.(*Object)
	if !ok || other.Len() != o.Len() {
		return false
	}
	equal := true
	o.Range(func(k string, ov Value) bool {
		rv, found := other.Get(k)
		equal = found && ov.Equal(rv)
		return equal
	})
	return equal
}

func (o *Object) String() string {
	sb := strings.Builder{}
	sb.WriteString("{")
	first := true
	o.Range(func(k string, v Value) bool {
		if !first {
			sb.WriteString(", ")
		}
		first = false
		sb.WriteString(k)
		sb.WriteString(": ")
		sb.WriteString(v.String())
		return true
	})
	sb.WriteString("}")
	return sb.String()
}

func (o *Object) Clone() Value {
	clone := NewObject(o.Len())
	o.Range(func(k string, v Value) bool {
		clone.Set(k, v.Clone())
		return true
	})
	return clone
}
