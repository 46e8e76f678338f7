package desktop

import "bytes"

// lineBuffer reassembles newline-delimited messages from arbitrarily chunked
// reads. Incoming bytes are appended to a rolling buffer; complete lines are
// returned and any trailing fragment is retained for the next chunk, so
// message boundaries never need to align with I/O chunk boundaries.
type lineBuffer struct {
	buf []byte
}

// Append adds a chunk and returns every complete line it closed, without the
// trailing newline. Carriage returns and empty lines are dropped.
func (lb *lineBuffer) Append(chunk []byte) [][]byte {
	lb.buf = append(lb.buf, chunk...)

	var lines [][]byte
	for {
		i := bytes.IndexByte(lb.buf, '\n')
		if i < 0 {
			return lines
		}
		line := bytes.TrimRight(lb.buf[:i], "\r")
		lb.buf = lb.buf[i+1:]
		if len(line) == 0 {
			continue
		}
		out := make([]byte, len(line))
		copy(out, line)
		lines = append(lines, out)
	}
}

// Pending returns the number of buffered bytes awaiting a newline.
func (lb *lineBuffer) Pending() int {
	return len(lb.buf)
}
