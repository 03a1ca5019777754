package frame

import (
	"errors"
	"fmt"

	"github.com/danmuck/dorepo/internal/protocol/datagram"
)

var ErrTooManyRecipients = errors.New("frame: too many recipients")

// Address is the routing prefix carried by every message on the message
// director link: [u8 N][N x u64 recipient][u64 sender].
type Address struct {
	Recipients []uint64
	Sender     uint64
}

// ReadAddress consumes the routing prefix from it, leaving the cursor on
// the message type tag.
func ReadAddress(it *datagram.Iterator) (Address, error) {
	n, err := it.ReadUint8()
	if err != nil {
		return Address{}, fmt.Errorf("frame: read recipient count: %w", err)
	}
	addr := Address{Recipients: make([]uint64, 0, n)}
	for i := 0; i < int(n); i++ {
		ch, err := it.ReadChannel()
		if err != nil {
			return Address{}, fmt.Errorf("frame: read recipient %d: %w", i, err)
		}
		addr.Recipients = append(addr.Recipients, ch)
	}
	if addr.Sender, err = it.ReadChannel(); err != nil {
		return Address{}, fmt.Errorf("frame: read sender: %w", err)
	}
	return addr, nil
}

// WriteTo appends the routing prefix to dg.
func (a Address) WriteTo(dg *datagram.Datagram) error {
	if len(a.Recipients) > 0xFF {
		return ErrTooManyRecipients
	}
	dg.WriteUint8(uint8(len(a.Recipients)))
	for _, ch := range a.Recipients {
		dg.WriteChannel(ch)
	}
	dg.WriteChannel(a.Sender)
	return nil
}
