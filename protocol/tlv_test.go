package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTLVAppend(t *testing.T) {
	buf := []byte{}
	buf = Append(buf, 'A', []byte{'A'})
	buf = Append(buf, 'b', []byte{'B', 'B'})
	correct2 := []byte{'a', 1, 'A', 'b', 2, 'B', 'B'}
	assert.Equal(t, correct2, buf, "basic TLV fail")

	var c256 [256]byte
	for n := range c256 {
		c256[n] = 'c'
	}
	buf = Append(buf, 'C', c256[:])
	assert.Equal(t, len(correct2)+1+4+len(c256), len(buf))
	assert.Equal(t, uint8('C'), buf[len(correct2)])
	assert.Equal(t, uint8(1), buf[len(correct2)+2])

	lit, body, buf, err := TakeAnyWary(buf)
	assert.Nil(t, err)
	assert.Equal(t, uint8('A'), lit)
	assert.Equal(t, []byte{'A'}, body)

	body2, buf, err2 := TakeWary('B', buf)
	assert.Nil(t, err2)
	assert.Equal(t, []byte{'B', 'B'}, body2)

	body3, rest, err3 := TakeWary('C', buf)
	assert.Nil(t, err3)
	assert.Equal(t, c256[:], body3)
	assert.Empty(t, rest)
}

func TestFeedHeader(t *testing.T) {
	buf := []byte{}
	l, buf := OpenHeader(buf, 'A')
	text := "some text"
	buf = append(buf, text...)
	CloseHeader(buf, l)
	lit, body, rest, err := TakeAnyWary(buf)
	assert.Nil(t, err)
	assert.Equal(t, uint8('A'), lit)
	assert.Equal(t, text, string(body))
	assert.Equal(t, 0, len(rest))
}

func TestTakeWaryErrors(t *testing.T) {
	_, rest, err := TakeWary('A', []byte{'a', 5, 1, 2})
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.Equal(t, []byte{'a', 5, 1, 2}, rest)

	_, _, err = TakeWary('A', []byte{'b', 0})
	assert.ErrorIs(t, err, ErrBadRecord)

	_, _, _, err = TakeAnyWary(nil)
	assert.ErrorIs(t, err, ErrIncomplete)

	_, _, _, err = TakeAnyWary([]byte{'3', 1, 2, 3})
	assert.ErrorIs(t, err, ErrBadRecord)

	_, _, _, err = TakeAnyWary([]byte{'#', 0})
	assert.ErrorIs(t, err, ErrBadRecord)

	_, _, _, err = TakeAnyWary([]byte{'A', 0xff, 0xff, 0xff, 0xff})
	assert.ErrorIs(t, err, ErrBadRecord)
}

func TestTakeTiny(t *testing.T) {
	body, rest := Take('X', []byte{'2', 'a', 'b', 'z'})
	assert.Equal(t, []byte("ab"), body)
	assert.Equal(t, []byte("z"), rest)
}

func TestRecords(t *testing.T) {
	recs := Records{[]byte("abc"), []byte("de"), []byte("fghi")}
	assert.Equal(t, int64(9), recs.TotalLen())
	prefix, rem := recs.WholeRecordPrefix(6)
	assert.Equal(t, Records{[]byte("abc"), []byte("de")}, prefix)
	assert.Equal(t, int64(1), rem)
	prefix, _ = recs.WholeRecordPrefix(2)
	assert.Empty(t, prefix)
}
