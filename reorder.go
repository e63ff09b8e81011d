package ctcp

// pendingSegment is a received segment buffered until it can be delivered
// to the output sink in order.
type pendingSegment struct {
	seq     Value
	dataLen int
	fin     bool
	data    []byte // owned by this segment; nil for a bare FIN
}

// reorderBuffer holds received segments ordered by ascending seqno, with at
// most one entry per seqno. Reassembly-by-insertion-position, generalized
// from bytes to whole segments since cTCP never splits or coalesces them.
type reorderBuffer struct {
	segs []*pendingSegment
}

func (b *reorderBuffer) empty() bool { return len(b.segs) == 0 }

func (b *reorderBuffer) peek() *pendingSegment {
	if len(b.segs) == 0 {
		return nil
	}
	return b.segs[0]
}

func (b *reorderBuffer) popFront() {
	b.segs = b.segs[1:]
}

// insert places s in seqno order, discarding it silently (duplicate
// rejection) if an entry with the same seqno already exists. Returns false
// when s was dropped as a duplicate.
func (b *reorderBuffer) insert(s *pendingSegment) bool {
	i := 0
	for i < len(b.segs) && less(b.segs[i].seq, s.seq) {
		i++
	}
	if i < len(b.segs) && b.segs[i].seq == s.seq {
		return false // duplicate: newcomer is freed by the caller dropping its reference.
	}
	b.segs = append(b.segs, nil)
	copy(b.segs[i+1:], b.segs[i:])
	b.segs[i] = s
	return true
}
