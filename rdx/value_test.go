package rdx

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValueTLV(t *testing.T) {
	values := []Value{
		NullValue(),
		BoolValue(true),
		BoolValue(false),
		IntValue(0),
		IntValue(-11),
		IntValue(math.MaxInt64),
		IntValue(math.MinInt64),
		FloatValue(3.1415),
		FloatValue(-0.5),
		StringValue(""),
		StringValue("https://example.com/cat.png"),
	}
	var all []byte
	for _, v := range values {
		tlv := v.TLV()
		v2, rest, err := TakeValue(tlv)
		assert.NoError(t, err)
		assert.Empty(t, rest)
		assert.True(t, v.Equal(v2), v.String())
		all = v.AppendTLV(all)
	}
	for _, v := range values {
		var v2 Value
		var err error
		v2, all, err = TakeValue(all)
		assert.NoError(t, err)
		assert.Equal(t, v, v2)
	}
	assert.Empty(t, all)
}

func TestValueBadTLV(t *testing.T) {
	bad := [][]byte{
		{'n', 1, 0},
		{'b', 1, 2},
		{'i', 9, 1, 2, 3, 4, 5, 6, 7, 8, 9},
		{'s', 2, 0xff, 0xfe},
		{'x', 0},
		{'i', 5, 1},
		{},
	}
	for _, b := range bad {
		_, _, err := TakeValue(b)
		assert.ErrorIs(t, err, ErrBadValue, "%v", b)
	}
}

func TestValueZero(t *testing.T) {
	var v Value
	assert.True(t, v.IsNull())
	assert.Equal(t, Null, v.Kind())
	assert.True(t, v.Equal(NullValue()))
	assert.Equal(t, "null", v.String())
	assert.Nil(t, v.Native())
}

func TestParseValue(t *testing.T) {
	cases := map[string]Value{
		"null":       NullValue(),
		"true":       BoolValue(true),
		"false":      BoolValue(false),
		"42":         IntValue(42),
		"-7":         IntValue(-7),
		"2.5":        FloatValue(2.5),
		`"Bar"`:      StringValue("Bar"),
		`"a\tb"`:     StringValue("a\tb"),
		"bare-words": StringValue("bare-words"),
	}
	for txt, want := range cases {
		v, err := ParseValue(txt)
		assert.NoError(t, err)
		assert.Equal(t, want, v, txt)
		again, err := ParseValue(v.String())
		assert.NoError(t, err)
		assert.Equal(t, v, again)
	}
	_, err := ParseValue(`"unterminated`)
	assert.ErrorIs(t, err, ErrBadValue)
	assert.Equal(t, "1.0", FloatValue(1).String())
}

func TestValueJSON(t *testing.T) {
	m := map[string]Value{
		"name":  StringValue("Bar"),
		"count": IntValue(3),
		"ratio": FloatValue(0.25),
		"ok":    BoolValue(true),
		"none":  NullValue(),
	}
	data, err := json.Marshal(m)
	assert.NoError(t, err)
	assert.JSONEq(t, `{"name":"Bar","count":3,"ratio":0.25,"ok":true,"none":null}`, string(data))

	var back map[string]Value
	assert.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, m, back)

	_, err = json.Marshal(FloatValue(math.NaN()))
	assert.Error(t, err)
}

func TestFromNative(t *testing.T) {
	v, err := FromNative(12)
	assert.NoError(t, err)
	assert.Equal(t, IntValue(12), v)
	v, err = FromNative(json.Number("1.5"))
	assert.NoError(t, err)
	assert.Equal(t, FloatValue(1.5), v)
	_, err = FromNative([]int{1})
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestFromNativeInts(t *testing.T) {
	for _, x := range []any{int8(-7), int16(-7), int32(-7), int64(-7), int(-7)} {
		v, err := FromNative(x)
		assert.NoError(t, err)
		assert.Equal(t, IntValue(-7), v)
	}
	for _, x := range []any{uint8(7), uint16(7), uint32(7), uint64(7), uint(7)} {
		v, err := FromNative(x)
		assert.NoError(t, err)
		assert.Equal(t, IntValue(7), v)
	}
	v, err := FromNative(uint64(math.MaxInt64))
	assert.NoError(t, err)
	assert.Equal(t, IntValue(math.MaxInt64), v)
	_, err = FromNative(uint64(math.MaxInt64) + 1)
	assert.ErrorIs(t, err, ErrBadValue)
	_, err = FromNative(uint(math.MaxUint))
	assert.ErrorIs(t, err, ErrBadValue)
}

func TestValueCheck(t *testing.T) {
	assert.NoError(t, Value{}.Check())
	assert.NoError(t, StringValue("ünïcode").Check())
	assert.NoError(t, FloatValue(1.5).Check())

	bad := StringValue("\xff\xfe")
	assert.ErrorIs(t, bad.Check(), ErrBadValue)
	// what Check lets through decodes back
	_, _, err := TakeValue(bad.TLV())
	assert.ErrorIs(t, err, ErrBadValue)

	_, err = FromNative("\xff\xfe")
	assert.ErrorIs(t, err, ErrBadValue)
	_, err = ParseValue(`"\xff"`)
	assert.ErrorIs(t, err, ErrBadValue)
	v, err := ParseValue(`"é"`)
	assert.NoError(t, err)
	assert.Equal(t, StringValue("é"), v)
}
