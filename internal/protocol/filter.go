package protocol

// SentinelFilter sits on the receive path and withholds the last bytes of the
// stream until it is known whether they are data or the end marker. This makes
// detection independent of how the transport splits or coalesces writes: a
// marker that arrives glued to the final data chunk is still recognized, and a
// short file whose content happens to equal the marker is still delivered.
type SentinelFilter struct {
	tail  [sentinelLen]byte
	held  int
	total int64
	buf   []byte
}

// Feed accepts bytes read from the connection and returns the prefix that is
// safe to commit to the output. The returned slice is only valid until the
// next call.
func (f *SentinelFilter) Feed(p []byte) []byte {
	f.total += int64(len(p))

	f.buf = append(f.buf[:0], f.tail[:f.held]...)
	f.buf = append(f.buf, p...)

	keep := min(len(f.buf), sentinelLen)
	cut := len(f.buf) - keep
	f.held = copy(f.tail[:], f.buf[cut:])

	return f.buf[:cut]
}

// Total returns every byte received so far, including withheld ones
func (f *SentinelFilter) Total() int64 {
	return f.total
}

// Terminated reports whether the stream so far is a complete multi-chunk
// transfer: more than one chunk of data followed by the marker.
func (f *SentinelFilter) Terminated() bool {
	return NeedsSentinel(f.total-int64(sentinelLen)) && IsSentinel(f.tail[:f.held])
}

// Finish resolves the withheld tail once the peer has closed the stream. It
// returns the bytes still to be committed and whether the stream ended the way
// the sender terminates a successful transfer. A transfer that fits in one
// chunk is complete on close alone; a larger one must end with the marker.
func (f *SentinelFilter) Finish() (rest []byte, complete bool) {
	held := f.tail[:f.held]
	if f.Terminated() {
		return nil, true
	}
	if !NeedsSentinel(f.total) {
		return held, true
	}
	return held, false
}
