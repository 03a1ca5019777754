package repository

import (
	"errors"

	"github.com/danmuck/dorepo/internal/distobj"
	"github.com/danmuck/dorepo/internal/protocol"
	"github.com/danmuck/dorepo/internal/protocol/datagram"
	"github.com/rs/zerolog/log"
)

var ErrNoZones = errors.New("repository: interest needs at least one zone")

// ClientRepository speaks to a client agent. Frames carry no routing
// prefix.
type ClientRepository struct {
	*Repository
}

func NewClient(opts Options) (*ClientRepository, error) {
	base, err := newRepository(distobj.RoleClient, opts)
	if err != nil {
		return nil, err
	}
	c := &ClientRepository{Repository: base}
	base.handlers[protocol.ClientHelloResp] = c.handleHelloResp
	base.handlers[protocol.ClientEject] = c.handleEject
	base.handlers[protocol.ClientEnterObjectRequired] = func(it *datagram.Iterator) error {
		return base.enter(it, false, false)
	}
	base.handlers[protocol.ClientEnterObjectRequiredOther] = func(it *datagram.Iterator) error {
		return base.enter(it, false, true)
	}
	base.handlers[protocol.ClientEnterObjectRequiredOwner] = func(it *datagram.Iterator) error {
		return base.enter(it, true, false)
	}
	base.handlers[protocol.ClientEnterObjectRequiredOtherOwner] = func(it *datagram.Iterator) error {
		return base.enter(it, true, true)
	}
	base.handlers[protocol.ClientObjectSetField] = base.fieldUpdate
	base.handlers[protocol.ClientObjectLeaving] = func(it *datagram.Iterator) error {
		return base.exitMsg(it, false)
	}
	base.handlers[protocol.ClientObjectLeavingOwner] = func(it *datagram.Iterator) error {
		return base.exitMsg(it, true)
	}
	base.handlers[protocol.ClientObjectLocation] = base.location
	base.handlers[protocol.ClientDoneInterestResp] = c.handleDoneInterest
	return c, nil
}

func (c *ClientRepository) handleHelloResp(*datagram.Iterator) error {
	log.Info().Msg("repository.handleHelloResp")
	if c.events.OnHello != nil {
		c.events.OnHello()
	}
	return nil
}

// handleEject reports the eject; the client agent closes the socket.
func (c *ClientRepository) handleEject(it *datagram.Iterator) error {
	code, err := it.ReadUint16()
	if err != nil {
		return err
	}
	reason, err := it.ReadString()
	if err != nil {
		return err
	}
	log.Warn().Msgf("repository.handleEject code=%d reason=%q", code, reason)
	if c.events.OnEject != nil {
		c.events.OnEject(code, reason)
	}
	return nil
}

func (c *ClientRepository) handleDoneInterest(it *datagram.Iterator) error {
	ctx, err := it.ReadUint32()
	if err != nil {
		return err
	}
	handle, err := it.ReadUint16()
	if err != nil {
		return err
	}
	log.Debug().Msgf("repository.handleDoneInterest ctx=%d handle=%d", ctx, handle)
	if c.events.OnInterestDone != nil {
		c.events.OnInterestDone(ctx, handle)
	}
	return nil
}

func (c *ClientRepository) SendHello(version string, hash uint32) error {
	dg := c.newTyped(protocol.ClientHello)
	dg.WriteUint32(hash)
	if err := dg.WriteString(version); err != nil {
		return err
	}
	return c.send(protocol.ClientHello, dg)
}

func (c *ClientRepository) SendHeartbeat() error {
	return c.send(protocol.ClientHeartbeat, c.newTyped(protocol.ClientHeartbeat))
}

func (c *ClientRepository) SendDisconnect() error {
	return c.send(protocol.ClientDisconnect, c.newTyped(protocol.ClientDisconnect))
}

// AddInterest opens interest handle in zones under parent. More than one
// zone uses the multiple form.
func (c *ClientRepository) AddInterest(handle uint16, ctx, parent uint32, zones ...uint32) error {
	switch {
	case len(zones) == 0:
		return ErrNoZones
	case len(zones) > 0xFFFF:
		return datagram.ErrValueTooLarge
	}
	msgType := protocol.ClientAddInterest
	if len(zones) > 1 {
		msgType = protocol.ClientAddInterestMultiple
	}
	dg := c.newTyped(msgType)
	dg.WriteUint32(ctx)
	dg.WriteUint16(handle)
	dg.WriteUint32(parent)
	if msgType == protocol.ClientAddInterestMultiple {
		dg.WriteUint16(uint16(len(zones)))
	}
	for _, z := range zones {
		dg.WriteUint32(z)
	}
	return c.send(msgType, dg)
}

func (c *ClientRepository) RemoveInterest(handle uint16, ctx uint32) error {
	dg := c.newTyped(protocol.ClientRemoveInterest)
	dg.WriteUint32(ctx)
	dg.WriteUint16(handle)
	return c.send(protocol.ClientRemoveInterest, dg)
}

// SendUpdate sends a field update for obj to the client agent.
func (c *ClientRepository) SendUpdate(obj *distobj.Object, field string, args ...any) error {
	dg, err := formatClientUpdate(c.newDatagram(), obj, field, args)
	if err != nil {
		return err
	}
	return c.send(protocol.ClientObjectSetField, dg)
}
