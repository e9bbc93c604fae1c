package protocol

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// MaxFrameSize is the largest declared frame length the reassembler
// accepts. An Update is a few hundred bytes at most; anything bigger
// means the stream lost framing and needs to resynchronize.
const MaxFrameSize = 4096

// ErrResync reports that buffered bytes did not form a plausible length
// prefix and were discarded to regain framing. The stream keeps going.
var ErrResync = errors.New("protocol: stream resynchronized")

// Reassembler accumulates raw notification chunks into complete
// length-delimited frames. A single chunk may complete several frames
// or none; a frame may span any number of chunks.
//
// Not safe for concurrent use; the session feeds it from one goroutine.
type Reassembler struct {
	buf []byte
}

// Feed appends one notification chunk and returns every frame completed
// by it, in stream order. The returned slices are copies; the caller
// owns them. A non-nil error means framing was lost and at least one
// byte was discarded to resynchronize — frames returned alongside the
// error are still valid.
func (r *Reassembler) Feed(chunk []byte) ([][]byte, error) {
	r.buf = append(r.buf, chunk...)

	var frames [][]byte
	var resyncErr error
	for {
		if len(r.buf) == 0 {
			break
		}
		length, n := protowire.ConsumeVarint(r.buf)
		if n < 0 {
			if len(r.buf) >= protowire.SizeVarint(^uint64(0)) {
				// Too many continuation bytes to ever be a prefix.
				r.dropByte()
				resyncErr = fmt.Errorf("%w: malformed length prefix", ErrResync)
				continue
			}
			break // prefix may still be arriving
		}
		if length > MaxFrameSize {
			r.dropByte()
			resyncErr = fmt.Errorf("%w: declared length %d exceeds %d", ErrResync, length, MaxFrameSize)
			continue
		}
		if uint64(len(r.buf)-n) < length {
			break // wait for the rest of the frame
		}
		frame := make([]byte, length)
		copy(frame, r.buf[n:n+int(length)])
		r.buf = r.buf[n+int(length):]
		frames = append(frames, frame)
	}

	// Release the buffer between frames instead of holding the last
	// chunk's backing array alive.
	if len(r.buf) == 0 {
		r.buf = nil
	}
	return frames, resyncErr
}

// dropByte discards the first buffered byte so the next Feed iteration
// retries the length prefix one byte later.
func (r *Reassembler) dropByte() {
	r.buf = r.buf[1:]
}

// Pending returns the number of buffered bytes awaiting a complete frame.
func (r *Reassembler) Pending() int {
	return len(r.buf)
}

// Reset discards all buffered bytes. Called on disconnect so no partial
// frame survives into the next connection.
func (r *Reassembler) Reset() {
	r.buf = nil
}

// AppendFrame appends the length prefix and payload of one frame to b.
// This is the inverse of Feed and is what the synthetic transport uses
// to produce a wire stream.
func AppendFrame(b, payload []byte) []byte {
	b = protowire.AppendVarint(b, uint64(len(payload)))
	return append(b, payload...)
}
