package frame

import "encoding/binary"

// Assembler reassembles frames from arbitrarily split input, such as the
// chunks returned by successive socket reads.
type Assembler struct {
	pending []byte
}

// Feed appends chunk and returns every payload it completes, in order.
// Incomplete headers and bodies are kept for the next call.
func (a *Assembler) Feed(chunk []byte) [][]byte {
	a.pending = append(a.pending, chunk...)
	var out [][]byte
	for len(a.pending) >= HeaderLen {
		n := int(binary.LittleEndian.Uint16(a.pending[:HeaderLen]))
		if len(a.pending) < HeaderLen+n {
			break
		}
		payload := make([]byte, n)
		copy(payload, a.pending[HeaderLen:HeaderLen+n])
		out = append(out, payload)
		a.pending = a.pending[HeaderLen+n:]
	}
	if len(a.pending) == 0 {
		a.pending = nil
	}
	return out
}

// Buffered returns the number of bytes held for an incomplete frame.
func (a *Assembler) Buffered() int {
	return len(a.pending)
}

// Err reports what a stream ending now would cut short: nil on a frame
// boundary, ErrShortHeader or ErrShortPayload otherwise.
func (a *Assembler) Err() error {
	switch {
	case len(a.pending) == 0:
		return nil
	case len(a.pending) < HeaderLen:
		return ErrShortHeader
	default:
		return ErrShortPayload
	}
}
