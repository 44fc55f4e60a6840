package quant

import (
	"sync/atomic"
	"time"
)

var monotonicSeq uint64

// Timestamp is an integer millisecond Unix time plus an opaque monotonic
// counter used to order events that land in the same millisecond.
type Timestamp struct {
	UnixMilli int64
	Seq       uint64
}

// Now returns the current wall time tagged with the next monotonic sequence
// number, guaranteeing Less-ordering between two Now() calls even when they
// land in the same millisecond.
func Now() Timestamp {
	return Timestamp{
		UnixMilli: time.Now().UnixMilli(),
		Seq:       atomic.AddUint64(&monotonicSeq, 1),
	}
}

// Time converts the timestamp back to a time.Time (wall clock only; Seq is
// lost, since it exists purely for intra-millisecond ordering).
func (t Timestamp) Time() time.Time {
	return time.UnixMilli(t.UnixMilli)
}

// Less reports whether t happened strictly before o.
func (t Timestamp) Less(o Timestamp) bool {
	if t.UnixMilli != o.UnixMilli {
		return t.UnixMilli < o.UnixMilli
	}
	return t.Seq < o.Seq
}

// IsZero reports whether t is the zero value.
func (t Timestamp) IsZero() bool {
	return t.UnixMilli == 0 && t.Seq == 0
}
