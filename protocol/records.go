package protocol

// Records (a batch of) is what changes travel in: hoses, queues and
// the store all move whole records, never parts of them.
type Records [][]byte

// WholeRecordPrefix is the longest prefix that fits into limit bytes.
func (recs Records) WholeRecordPrefix(limit int64) (prefix Records, remainder int64) {
	prelen := 0
	for len(recs) > prelen && int64(len(recs[prelen])) <= limit {
		limit -= int64(len(recs[prelen]))
		prelen++
	}
	return recs[:prelen], limit
}

func (recs Records) TotalLen() (total int64) {
	for _, r := range recs {
		total += int64(len(r))
	}
	return
}
