package rdx

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/drpcorg/dokki/protocol"
)

// Kind is the TLV literal of a scalar value.
type Kind byte

const (
	Null   Kind = 'N'
	Bool   Kind = 'B'
	Int    Kind = 'I'
	Float  Kind = 'F'
	String Kind = 'S'
)

func (k Kind) String() string {
	switch k {
	case Null, 0:
		return "null"
	case Bool:
		return "bool"
	case Int:
		return "int"
	case Float:
		return "float"
	case String:
		return "string"
	}
	return fmt.Sprintf("kind(%c)", byte(k))
}

// Value is a document scalar: null, bool, int64, float64 or string.
// The zero Value is null.
type Value struct {
	kind Kind
	num  uint64
	str  string
}

var ErrBadValue = errors.New("rdx: bad value")
var ErrUnsupportedType = errors.New("rdx: unsupported value type")

func NullValue() Value {
	return Value{}
}

func BoolValue(b bool) Value {
	v := Value{kind: Bool}
	if b {
		v.num = 1
	}
	return v
}

func IntValue(i int64) Value {
	return Value{kind: Int, num: uint64(i)}
}

func FloatValue(f float64) Value {
	return Value{kind: Float, num: math.Float64bits(f)}
}

func StringValue(s string) Value {
	return Value{kind: String, str: s}
}

func (v Value) Kind() Kind {
	if v.kind == 0 {
		return Null
	}
	return v.kind
}

// Check tells whether the value can be encoded and decoded back:
// strings must be valid UTF-8.
func (v Value) Check() error {
	switch v.kind {
	case 0, Null, Bool, Int, Float:
		return nil
	case String:
		if !utf8.ValidString(v.str) {
			return fmt.Errorf("%w: string is not valid UTF-8", ErrBadValue)
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrBadValue, v.kind)
}

func (v Value) IsNull() bool {
	return v.Kind() == Null
}

func (v Value) Bool() (b, ok bool) {
	return v.num != 0, v.kind == Bool
}

func (v Value) Int() (i int64, ok bool) {
	return int64(v.num), v.kind == Int
}

func (v Value) Float() (f float64, ok bool) {
	return math.Float64frombits(v.num), v.kind == Float
}

func (v Value) Str() (s string, ok bool) {
	return v.str, v.kind == String
}

func (v Value) Equal(b Value) bool {
	return v.Kind() == b.Kind() && v.num == b.num && v.str == b.str
}

// Native converts to nil, bool, int64, float64 or string.
func (v Value) Native() any {
	switch v.kind {
	case Bool:
		return v.num != 0
	case Int:
		return int64(v.num)
	case Float:
		return math.Float64frombits(v.num)
	case String:
		return v.str
	default:
		return nil
	}
}

// FromNative accepts the usual Go and encoding/json scalar types.
func FromNative(x any) (v Value, err error) {
	switch t := x.(type) {
	case nil:
		return NullValue(), nil
	case Value:
		return t, nil
	case bool:
		return BoolValue(t), nil
	case int:
		return IntValue(int64(t)), nil
	case int8:
		return IntValue(int64(t)), nil
	case int16:
		return IntValue(int64(t)), nil
	case int32:
		return IntValue(int64(t)), nil
	case int64:
		return IntValue(t), nil
	case uint8:
		return IntValue(int64(t)), nil
	case uint16:
		return IntValue(int64(t)), nil
	case uint32:
		return IntValue(int64(t)), nil
	case uint:
		return fromUint64(uint64(t))
	case uint64:
		return fromUint64(t)
	case float32:
		return FloatValue(float64(t)), nil
	case float64:
		return FloatValue(t), nil
	case json.Number:
		if i, e := t.Int64(); e == nil {
			return IntValue(i), nil
		}
		f, e := t.Float64()
		if e != nil {
			return v, ErrBadValue
		}
		return FloatValue(f), nil
	case string:
		v = StringValue(t)
		return v, v.Check()
	}
	return v, fmt.Errorf("%w: %T", ErrUnsupportedType, x)
}

func fromUint64(u uint64) (Value, error) {
	if u > math.MaxInt64 {
		return Value{}, fmt.Errorf("%w: %d overflows int64", ErrBadValue, u)
	}
	return IntValue(int64(u)), nil
}

// String produces a text form (for the REPL and dumps mostly)
func (v Value) String() string {
	switch v.kind {
	case Bool:
		return strconv.FormatBool(v.num != 0)
	case Int:
		return strconv.FormatInt(int64(v.num), 10)
	case Float:
		f := math.Float64frombits(v.num)
		txt := strconv.FormatFloat(f, 'g', -1, 64)
		if !strings.ContainsAny(txt, ".eEnI") {
			txt += ".0"
		}
		return txt
	case String:
		return strconv.Quote(v.str)
	default:
		return "null"
	}
}

// ParseValue parses the text form; anything unquoted that is not
// null, a bool or a number is taken as a bare string.
func ParseValue(txt string) (Value, error) {
	txt = strings.TrimSpace(txt)
	switch txt {
	case "", "null":
		return NullValue(), nil
	case "true":
		return BoolValue(true), nil
	case "false":
		return BoolValue(false), nil
	}
	if txt[0] == '"' {
		s, err := strconv.Unquote(txt)
		if err != nil {
			return Value{}, ErrBadValue
		}
		v := StringValue(s)
		return v, v.Check()
	}
	if i, err := strconv.ParseInt(txt, 10, 64); err == nil {
		return IntValue(i), nil
	}
	if f, err := strconv.ParseFloat(txt, 64); err == nil {
		return FloatValue(f), nil
	}
	v := StringValue(txt)
	return v, v.Check()
}

func (v Value) MarshalJSON() ([]byte, error) {
	if f, ok := v.Float(); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		return nil, fmt.Errorf("%w: %v is not representable in JSON", ErrBadValue, f)
	}
	return json.Marshal(v.Native())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var x any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&x); err != nil {
		return err
	}
	parsed, err := FromNative(x)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func (v Value) payload() []byte {
	switch v.kind {
	case Bool:
		return ZipUint64(v.num)
	case Int:
		return ZipInt64(int64(v.num))
	case Float:
		return ZipFloat64(math.Float64frombits(v.num))
	case String:
		return []byte(v.str)
	default:
		return nil
	}
}

// TLV is the value record: the kind is the record literal.
func (v Value) TLV() []byte {
	return protocol.Record(byte(v.Kind()), v.payload())
}

// AppendTLV appends the value record to buf.
func (v Value) AppendTLV(buf []byte) []byte {
	return protocol.Append(buf, byte(v.Kind()), v.payload())
}

// TakeValue parses a value record off the head of data.
func TakeValue(data []byte) (v Value, rest []byte, err error) {
	var lit byte
	var body []byte
	lit, body, rest, err = protocol.TakeAnyWary(data)
	if err != nil {
		return v, data, ErrBadValue
	}
	switch Kind(lit) {
	case Null:
		if len(body) != 0 {
			return v, data, ErrBadValue
		}
		v = NullValue()
	case Bool:
		if len(body) > 1 || (len(body) == 1 && body[0] != 1) {
			return v, data, ErrBadValue
		}
		v = BoolValue(len(body) == 1)
	case Int:
		if len(body) > 8 {
			return v, data, ErrBadValue
		}
		v = IntValue(UnzipInt64(body))
	case Float:
		if len(body) > 8 {
			return v, data, ErrBadValue
		}
		v = FloatValue(UnzipFloat64(body))
	case String:
		if !utf8.Valid(body) {
			return v, data, ErrBadValue
		}
		v = StringValue(string(body))
	default:
		return v, data, ErrBadValue
	}
	return
}
