package value

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFloat(t *testing.T) {
	f, err := NewFloat(1.5)
	assert.NoError(t, err)
	assert.Equal(t, 1.5, f.Float64())

	_, err = NewFloat(math.NaN())
	assert.ErrorIs(t, err, ErrNaN)

	inf, err := NewFloat(math.Inf(1))
	assert.NoError(t, err)
	assert.True(t, math.IsInf(inf.Float64(), 1))
}

func TestTimestamp_IsUTC(t *testing.T) {
	loc := time.FixedZone("X", 3*3600)
	ts := NewTimestamp(time.Date(2024, 5, 1, 12, 0, 0, 0, loc))
	assert.Equal(t, time.UTC, ts.Time().Location())
	assert.Equal(t, 9, ts.Time().Hour())
}

func TestEqual(t *testing.T) {
	f1, _ := NewFloat(2)
	f2, _ := NewFloat(2)
	assert.True(t, f1.Equal(f2))
	assert.True(t, Null.Equal(Null))
	assert.False(t, Null.Equal(Integer(0)))
	assert.False(t, Integer(1).Equal(Boolean(true)))
	assert.True(t, Bytes("a").Equal(Bytes("a")))
	assert.True(t, Array{Integer(1), Null}.Equal(Array{Integer(1), Null}))
	assert.False(t, Array{Integer(1)}.Equal(Array{Integer(1), Null}))
}

func TestObject_OrderAndOverwrite(t *testing.T) {
	o := NewObject(3)
	o.Set("b", Integer(1))
	o.Set("a", Integer(2))
	o.Set("b", Integer(3))

	assert.Equal(t, 2, o.Len())
	assert.Equal(t, []string{"b", "a"}, o.Keys())
	v, ok := o.Get("b")
	require.True(t, ok)
	assert.Equal(t, Integer(3), v)
}

func TestObject_SetNilStoresNull(t *testing.T) {
	o := NewObject(1)
	o.Set("x", nil)
	v, ok := o.Get("x")
	require.True(t, ok)
	assert.Equal(t, KindNull, v.Kind())
}

func TestObject_EqualIgnoresOrder(t *testing.T) {
	a := NewObject(2)
	a.Set("x", Integer(1))
	a.Set("y", Bytes("z"))
	b := NewObject(2)
	b.Set("y", Bytes("z"))
	b.Set("x", Integer(1))
	assert.True(t, a.Equal(b))

	b.Set("x", Integer(2))
	assert.False(t, a.Equal(b))
}

func TestObject_CloneIsDeep(t *testing.T) {
	o := NewObject(1)
	o.Set("raw", Bytes("abc"))
	clone := o.Clone().(*Object)

	raw, _ := o.Get("raw")
	raw.(Bytes)[0] = 'X'

	cv, _ := clone.Get("raw")
	assert.Equal(t, Bytes("abc"), cv)
}

func TestNilObject(t *testing.T) {
	var o *Object
	assert.Equal(t, 0, o.Len())
	_, ok := o.Get("missing")
	assert.False(t, ok)
	assert.Empty(t, o.Keys())
}

func TestZeroObject(t *testing.T) {
	var o Object
	out, err := json.Marshal(&o)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(out))

	o.Set("b", Integer(2))
	o.Set("a", Integer(1))
	assert.Equal(t, []string{"b", "a"}, o.Keys())

	out, err = json.Marshal(&o)
	require.NoError(t, err)
	assert.Equal(t, `{"b":2,"a":1}`, string(out))
}

func TestMarshalJSON_EscapesKeys(t *testing.T) {
	o := NewObject(1)
	o.Set(`say "hi"`, Bytes("x"))
	out, err := json.Marshal(o)
	require.NoError(t, err)
	assert.Equal(t, `{"say \"hi\"":"x"}`, string(out))
}

func TestMarshalJSON(t *testing.T) {
	f, _ := NewFloat(0.25)
	inner := NewObject(2)
	inner.Set("id", Integer(1))
	inner.Set("name", Bytes("Alice"))
	inner.Set("score", f)
	inner.Set("bin", Bytes{0xff, 0xfe})
	inner.Set("gone", Null)

	o := NewObject(2)
	o.Set("timestamp", NewTimestamp(time.Date(2024, 1, 2, 3, 4, 5, 600, time.UTC)))
	o.Set("message", Array{inner})

	out, err := json.Marshal(o)
	require.NoError(t, err)
	assert.Equal(t,
		`{"timestamp":"2024-01-02T03:04:05.0000006Z","message":[{"id":1,"name":"Alice","score":0.25,"bin":"//4=","gone":null}]}`,
		string(out))
}

func TestMarshalJSON_Infinity(t *testing.T) {
	f, _ := NewFloat(math.Inf(-1))
	out, err := json.Marshal(f)
	require.NoError(t, err)
	assert.Equal(t, `"-Inf"`, string(out))
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "timestamp", KindTimestamp.String())
	assert.Equal(t, "kind(42)", Kind(42).String())
}
