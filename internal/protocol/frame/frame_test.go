package frame

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"testing"

	"github.com/danmuck/dorepo/internal/protocol/datagram"
)

// chunkReader hands out its buffer in random-sized pieces.
type chunkReader struct {
	data []byte
	rng  *rand.Rand
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.data) == 0 {
		return 0, io.EOF
	}
	n := 1 + c.rng.Intn(len(c.data))
	if n > len(p) {
		n = len(p)
	}
	copy(p, c.data[:n])
	c.data = c.data[n:]
	return n, nil
}

func samplePayloads(rng *rand.Rand, count int) [][]byte {
	out := make([][]byte, count)
	for i := range out {
		p := make([]byte, rng.Intn(300))
		rng.Read(p)
		out[i] = p
	}
	return out
}

func TestReadWriteFrameRoundTrip(t *testing.T) {
	payload := []byte{0x78, 0x00, 0x2A, 0x00, 0x00, 0x00}
	var buf bytes.Buffer
	if err := WriteFrame(&buf, payload); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if buf.Len() != HeaderLen+len(payload) {
		t.Fatalf("unexpected wire length: %d", buf.Len())
	}
	if got := buf.Bytes()[:2]; got[0] != 6 || got[1] != 0 {
		t.Fatalf("unexpected header bytes: %v", got)
	}
	out, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if !bytes.Equal(out, payload) {
		t.Fatalf("payload mismatch: %v", out)
	}
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	if _, err := Encode(make([]byte, MaxPayload)); err != nil {
		t.Fatalf("max payload rejected: %v", err)
	}
	_, err := Encode(make([]byte, MaxPayload+1))
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestReadFrameArbitraryChunking(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		payloads := samplePayloads(rng, 1+rng.Intn(20))
		var stream bytes.Buffer
		for _, p := range payloads {
			if err := WriteFrame(&stream, p); err != nil {
				t.Fatalf("write frame: %v", err)
			}
		}
		r := &chunkReader{data: stream.Bytes(), rng: rng}
		for i, want := range payloads {
			got, err := ReadFrame(r)
			if err != nil {
				t.Fatalf("round=%d frame=%d read: %v", round, i, err)
			}
			if !bytes.Equal(got, want) {
				t.Fatalf("round=%d frame=%d mismatch", round, i)
			}
		}
		if _, err := ReadFrame(r); !errors.Is(err, io.EOF) {
			t.Fatalf("expected clean EOF, got %v", err)
		}
	}
}

func TestAssemblerArbitraryChunking(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for round := 0; round < 50; round++ {
		payloads := samplePayloads(rng, 1+rng.Intn(20))
		var stream bytes.Buffer
		for _, p := range payloads {
			_ = WriteFrame(&stream, p)
		}
		data := stream.Bytes()
		var a Assembler
		var got [][]byte
		for len(data) > 0 {
			n := 1 + rng.Intn(len(data))
			got = append(got, a.Feed(data[:n])...)
			data = data[n:]
		}
		if len(got) != len(payloads) {
			t.Fatalf("round=%d got %d frames want %d", round, len(got), len(payloads))
		}
		for i := range payloads {
			if !bytes.Equal(got[i], payloads[i]) {
				t.Fatalf("round=%d frame=%d mismatch", round, i)
			}
		}
		if a.Buffered() != 0 {
			t.Fatalf("round=%d leftover bytes: %d", round, a.Buffered())
		}
	}
}

func TestAssemblerSplitHeader(t *testing.T) {
	wire, err := Encode([]byte("hello"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var a Assembler
	if out := a.Feed(wire[:1]); len(out) != 0 {
		t.Fatalf("dispatched on half a header: %v", out)
	}
	if err := a.Err(); !errors.Is(err, ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader, got %v", err)
	}
	if out := a.Feed(wire[1:4]); len(out) != 0 {
		t.Fatalf("dispatched on partial body: %v", out)
	}
	if err := a.Err(); !errors.Is(err, ErrShortPayload) {
		t.Fatalf("expected ErrShortPayload, got %v", err)
	}
	out := a.Feed(wire[4:])
	if len(out) != 1 || string(out[0]) != "hello" {
		t.Fatalf("unexpected frames: %q", out)
	}
	if err := a.Err(); err != nil {
		t.Fatalf("expected clean boundary, got %v", err)
	}
}

func TestReadFrameTruncatedBody(t *testing.T) {
	wire, _ := Encode([]byte("truncated"))
	_, err := ReadFrame(bytes.NewReader(wire[:5]))
	if !errors.Is(err, ErrShortPayload) {
		t.Fatalf("expected ErrShortPayload, got %v", err)
	}
	_, err = ReadFrame(bytes.NewReader(wire[:1]))
	if !errors.Is(err, ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader, got %v", err)
	}
}

func TestAddressRoundTrip(t *testing.T) {
	dg := datagram.New()
	in := Address{Recipients: []uint64{4000, 4001}, Sender: 100000}
	if err := in.WriteTo(dg); err != nil {
		t.Fatalf("write address: %v", err)
	}
	dg.WriteUint16(2020)

	it := datagram.NewIterator(dg.Bytes())
	out, err := ReadAddress(it)
	if err != nil {
		t.Fatalf("read address: %v", err)
	}
	if len(out.Recipients) != 2 || out.Recipients[1] != 4001 || out.Sender != 100000 {
		t.Fatalf("address mismatch: %+v", out)
	}
	tag, err := it.ReadUint16()
	if err != nil || tag != 2020 {
		t.Fatalf("tag after address: %d %v", tag, err)
	}
}

func TestReadAddressTruncated(t *testing.T) {
	dg := datagram.New()
	dg.WriteUint8(3)
	dg.WriteChannel(1)
	_, err := ReadAddress(datagram.NewIterator(dg.Bytes()))
	if !errors.Is(err, datagram.ErrBufferUnderflow) {
		t.Fatalf("expected underflow, got %v", err)
	}
}
