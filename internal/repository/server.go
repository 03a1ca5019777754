package repository

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/dorepo/internal/distobj"
	"github.com/danmuck/dorepo/internal/idalloc"
	"github.com/danmuck/dorepo/internal/protocol"
	"github.com/danmuck/dorepo/internal/protocol/datagram"
	"github.com/danmuck/dorepo/internal/protocol/schema"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoStateServer  = errors.New("repository: no state server configured")
	ErrNoDatabase     = errors.New("repository: no database channel configured")
	ErrObjectNotFound = errors.New("repository: object not found")
)

// ServerOptions configure the authority role.
type ServerOptions struct {
	Options
	// ObjectMin and ObjectMax bound the doId pool used by GenerateWithRequired.
	ObjectMin uint32
	ObjectMax uint32
	// Channel is our own channel. Zero allocates one from the channel pool.
	Channel     uint64
	StateServer uint64
	Database    uint64
	ConName     string
}

// ServerRepository speaks to a message director as an authority. Every
// inbound frame carries a routing prefix.
type ServerRepository struct {
	*Repository

	objectIDs   *idalloc.Allocator
	ourChannel  uint64
	stateServer uint64
	database    uint64
	conName     string

	chMu       sync.Mutex
	registered map[uint64]struct{}
}

func NewServer(opts ServerOptions) (*ServerRepository, error) {
	base, err := newRepository(distobj.RoleAuthority, opts.Options)
	if err != nil {
		return nil, err
	}
	if opts.ObjectMin == 0 && opts.ObjectMax == 0 {
		opts.ObjectMin, opts.ObjectMax = 100000000, 100999999
	}
	allocOpts := []idalloc.Option{idalloc.WithName("objects")}
	if opts.StrictFree {
		allocOpts = append(allocOpts, idalloc.WithStrictFree())
	}
	objectIDs, err := idalloc.New(opts.ObjectMin, opts.ObjectMax, allocOpts...)
	if err != nil {
		return nil, fmt.Errorf("repository: object pool: %w", err)
	}
	s := &ServerRepository{
		Repository:  base,
		objectIDs:   objectIDs,
		ourChannel:  opts.Channel,
		stateServer: opts.StateServer,
		database:    opts.Database,
		conName:     opts.ConName,
		registered:  make(map[uint64]struct{}),
	}
	if s.ourChannel == 0 {
		if s.ourChannel, err = base.AllocateChannel(); err != nil {
			return nil, err
		}
	}
	base.pools = append(base.pools, objectIDs)
	base.onAttach = s.handleConnected
	base.onRelease = s.releaseObjectID

	h := base.handlers
	h[protocol.StateServerObjectSetField] = base.fieldUpdate
	h[protocol.StateServerObjectEnterAIWithRequired] = s.enterFunc(false)
	h[protocol.StateServerObjectEnterAIWithRequiredOther] = s.enterFunc(true)
	h[protocol.StateServerObjectEnterLocationWithRequired] = s.enterFunc(false)
	h[protocol.StateServerObjectEnterLocationWithRequiredOther] = s.enterFunc(true)
	h[protocol.StateServerObjectChangingAI] = s.handleChangingAI
	h[protocol.StateServerObjectDeleteRAM] = func(it *datagram.Iterator) error {
		return base.exitMsg(it, false)
	}
	h[protocol.StateServerObjectChangingLocation] = base.location
	h[protocol.StateServerObjectGetLocationResp] = s.resolver(protocol.StateServerObjectGetLocationResp)
	h[protocol.StateServerObjectGetAllResp] = s.resolver(protocol.StateServerObjectGetAllResp)
	h[protocol.DBServerCreateObjectResp] = s.resolver(protocol.DBServerCreateObjectResp)
	h[protocol.DBServerObjectGetAllResp] = s.resolver(protocol.DBServerObjectGetAllResp)
	h[protocol.DBSSObjectGetActivatedResp] = s.resolver(protocol.DBSSObjectGetActivatedResp)
	h[protocol.ClientAgentGetNetworkAddressResp] = s.resolver(protocol.ClientAgentGetNetworkAddressResp)
	for _, t := range []protocol.MsgType{
		protocol.DBServerObjectGetFieldResp,
		protocol.DBServerObjectGetFieldsResp,
		protocol.DBServerObjectSetFieldIfEqualsResp,
		protocol.DBServerObjectSetFieldsIfEqualsResp,
	} {
		h[t] = s.ignore(t)
	}
	return s, nil
}

func (s *ServerRepository) OurChannel() uint64 { return s.ourChannel }

func (s *ServerRepository) StateServer() uint64 { return s.stateServer }

func (s *ServerRepository) ObjectIDs() *idalloc.Allocator { return s.objectIDs }

func (s *ServerRepository) handleConnected() error {
	if err := s.RegisterChannel(s.ourChannel); err != nil {
		return err
	}
	if s.conName != "" {
		if err := s.SetConName(s.conName); err != nil {
			return err
		}
	}
	if s.stateServer == 0 {
		return nil
	}
	dg := s.newDatagram()
	dg.WriteServerHeader(s.stateServer, s.ourChannel, uint16(protocol.StateServerDeleteAIObjects))
	dg.WriteChannel(s.ourChannel)
	return s.AddPostRemove(dg.Bytes())
}

func (s *ServerRepository) enterFunc(other bool) handlerFunc {
	return func(it *datagram.Iterator) error {
		return s.enter(it, false, other)
	}
}

// handleChangingAI exits the object unless the new AI channel is ours.
func (s *ServerRepository) handleChangingAI(it *datagram.Iterator) error {
	id, err := it.ReadUint32()
	if err != nil {
		return err
	}
	if newAI, err := it.ReadChannel(); err == nil && newAI == s.ourChannel {
		log.Debug().Msgf("repository.handleChangingAI still ours id=%d", id)
		return nil
	}
	obj, ok := s.Object(id)
	if !ok {
		log.Debug().Msgf("repository.handleChangingAI unknown object id=%d", id)
		return nil
	}
	s.finalize(obj, false)
	return nil
}

func (s *ServerRepository) ignore(t protocol.MsgType) handlerFunc {
	return func(*datagram.Iterator) error {
		log.Debug().Msgf("repository.ignore type=%s", t)
		return nil
	}
}

// resolver matches a response by its leading u32 context.
func (s *ServerRepository) resolver(t protocol.MsgType) handlerFunc {
	return func(it *datagram.Iterator) error {
		ctx, err := it.ReadUint32()
		if err != nil {
			return err
		}
		req, ok := s.pending.Take(ctx, t)
		if !ok {
			log.Debug().Msgf("repository.resolver no pending request ctx=%d type=%s", ctx, t)
			return nil
		}
		if err := req.resolve(it); err != nil {
			req.fail(err)
			return err
		}
		return nil
	}
}

func (s *ServerRepository) releaseObjectID(id uint32) {
	if !s.objectIDs.IsAllocated(id) {
		return
	}
	if err := s.objectIDs.Free(id); err != nil {
		log.Warn().Msgf("repository.releaseObjectID id=%d err=%v", id, err)
	}
}

// RegisterChannel subscribes to ch on the message director. Channels
// already registered are not sent again.
func (s *ServerRepository) RegisterChannel(ch uint64) error {
	s.chMu.Lock()
	defer s.chMu.Unlock()
	if _, ok := s.registered[ch]; ok {
		return nil
	}
	dg := s.newDatagram()
	dg.WriteControlHeader(protocol.ControlChannel, uint16(protocol.ControlAddChannel))
	dg.WriteChannel(ch)
	if err := s.send(protocol.ControlAddChannel, dg); err != nil {
		return err
	}
	s.registered[ch] = struct{}{}
	return nil
}

func (s *ServerRepository) UnregisterChannel(ch uint64) error {
	s.chMu.Lock()
	defer s.chMu.Unlock()
	if _, ok := s.registered[ch]; !ok {
		return nil
	}
	dg := s.newDatagram()
	dg.WriteControlHeader(protocol.ControlChannel, uint16(protocol.ControlRemoveChannel))
	dg.WriteChannel(ch)
	if err := s.send(protocol.ControlRemoveChannel, dg); err != nil {
		return err
	}
	delete(s.registered, ch)
	return nil
}

func (s *ServerRepository) RegisteredChannels() []uint64 {
	s.chMu.Lock()
	defer s.chMu.Unlock()
	out := make([]uint64, 0, len(s.registered))
	for ch := range s.registered {
		out = append(out, ch)
	}
	return out
}

func (s *ServerRepository) SetConName(name string) error {
	dg := s.newDatagram()
	dg.WriteControlHeader(protocol.ControlChannel, uint16(protocol.ControlSetConName))
	if err := dg.WriteString(name); err != nil {
		return err
	}
	return s.send(protocol.ControlSetConName, dg)
}

// AddPostRemove asks the message director to send payload if this
// connection drops.
func (s *ServerRepository) AddPostRemove(payload []byte) error {
	dg := s.newDatagram()
	dg.WriteControlHeader(protocol.ControlChannel, uint16(protocol.ControlAddPostRemove))
	dg.WriteChannel(s.ourChannel)
	if err := dg.WriteBlob(payload); err != nil {
		return err
	}
	return s.send(protocol.ControlAddPostRemove, dg)
}

func (s *ServerRepository) ClearPostRemoves() error {
	dg := s.newDatagram()
	dg.WriteControlHeader(protocol.ControlChannel, uint16(protocol.ControlClearPostRemoves))
	dg.WriteChannel(s.ourChannel)
	return s.send(protocol.ControlClearPostRemoves, dg)
}

// EjectClient asks the client agent owning ch to drop that client.
func (s *ServerRepository) EjectClient(ch uint64, code uint16, reason string) error {
	dg := s.newDatagram()
	dg.WriteServerHeader(ch, s.ourChannel, uint16(protocol.ClientAgentEject))
	dg.WriteUint16(code)
	if err := dg.WriteString(reason); err != nil {
		return err
	}
	return s.send(protocol.ClientAgentEject, dg)
}

// GenerateWithRequired takes a doId from the object pool and generates obj
// on the state server. Callers off the dispatch goroutine must hold the
// lock via Do.
func (s *ServerRepository) GenerateWithRequired(obj *distobj.Object, parent, zone uint32, other ...string) error {
	id := s.objectIDs.Allocate()
	if id == idalloc.Exhausted {
		return fmt.Errorf("%w: %s", ErrPoolExhausted, s.objectIDs.Name())
	}
	obj.DoNotDeallocateID = false
	if err := s.generate(obj, id, parent, zone, other); err != nil {
		s.releaseObjectID(id)
		return err
	}
	return nil
}

// GenerateWithRequiredAndID generates obj under a fixed doId that this
// process does not own.
func (s *ServerRepository) GenerateWithRequiredAndID(obj *distobj.Object, id, parent, zone uint32, other ...string) error {
	obj.DoNotDeallocateID = true
	return s.generate(obj, id, parent, zone, other)
}

func (s *ServerRepository) generate(obj *distobj.Object, id, parent, zone uint32, other []string) error {
	if s.stateServer == 0 {
		return ErrNoStateServer
	}
	if _, dup := s.Object(id); dup {
		return fmt.Errorf("repository: generate id=%d already present", id)
	}
	obj.ID = id
	obj.SetPolicy(distobj.AuthorityPolicy())
	dg, err := formatGenerate(s.newDatagram(), obj, parent, zone, s.stateServer, s.ourChannel, other)
	if err != nil {
		return err
	}
	if err := obj.Transition(distobj.Generating); err != nil {
		return err
	}
	s.table.Insert(obj, parent, zone, false)
	if err := s.send(generateType(other), dg); err != nil {
		s.table.Remove(obj)
		s.transition(obj, distobj.Deleted)
		return err
	}
	obj.RunGenerate()
	if err := obj.Transition(distobj.Generated); err != nil {
		return err
	}
	obj.RunAnnounce()
	log.Debug().Msgf("repository.generate id=%d class=%s parent=%d zone=%d", id, obj.ClassName(), parent, zone)
	if s.events.OnGenerate != nil {
		s.events.OnGenerate(obj)
	}
	return nil
}

// SendUpdate routes a field update to the object's own channel.
func (s *ServerRepository) SendUpdate(obj *distobj.Object, field string, args ...any) error {
	return s.SendUpdateToChannel(obj, uint64(obj.ID), field, args...)
}

func (s *ServerRepository) SendUpdateToChannel(obj *distobj.Object, ch uint64, field string, args ...any) error {
	dg, err := formatServerUpdate(s.newDatagram(), ch, s.ourChannel, obj, field, args)
	if err != nil {
		return err
	}
	return s.send(protocol.StateServerObjectSetField, dg)
}

// RequestDelete asks the state server to delete obj. Local teardown happens
// when the delete comes back.
func (s *ServerRepository) RequestDelete(obj *distobj.Object) error {
	dg := s.newDatagram()
	dg.WriteServerHeader(uint64(obj.ID), s.ourChannel, uint16(protocol.StateServerObjectRequestDelete))
	dg.WriteUint32(obj.ID)
	return s.send(protocol.StateServerObjectRequestDelete, dg)
}

// SetLocation asks the state server to move obj.
func (s *ServerRepository) SetLocation(obj *distobj.Object, parent, zone uint32) error {
	dg := s.newDatagram()
	dg.WriteServerHeader(uint64(obj.ID), s.ourChannel, uint16(protocol.StateServerObjectSetLocation))
	dg.WriteUint32(parent)
	dg.WriteUint32(zone)
	return s.send(protocol.StateServerObjectSetLocation, dg)
}

// Location is a GET_LOCATION answer.
type Location struct {
	DoID   uint32
	Parent uint32
	Zone   uint32
}

// ObjectSnapshot is a GET_ALL answer from the state server.
type ObjectSnapshot struct {
	Location
	Class  *schema.Class
	Fields map[string][]any
}

// DatabaseObject is a GET_ALL answer from the database.
type DatabaseObject struct {
	DoID   uint32
	Class  *schema.Class
	Fields map[string][]any
}

type NetworkAddress struct {
	RemoteIP   string
	RemotePort uint16
	LocalIP    string
	LocalPort  uint16
}

// query registers a pending request and sends the message built by write
// once the context is known.
func (s *ServerRepository) query(to uint64, msgType, resp protocol.MsgType, doID uint32, resolve func(*datagram.Iterator) error, fail func(error), write func(*datagram.Datagram) error) (uint32, error) {
	now := time.Now()
	req := PendingRequest{
		Response: resp,
		DoID:     doID,
		QueuedAt: now,
		resolve:  resolve,
		fail:     fail,
	}
	if s.timeout > 0 {
		req.DeadlineAt = now.Add(s.timeout)
	}
	ctx := s.pending.Add(req)
	dg := s.newDatagram()
	dg.WriteServerHeader(to, s.ourChannel, uint16(msgType))
	dg.WriteUint32(ctx)
	if write != nil {
		if err := write(dg); err != nil {
			s.pending.Remove(ctx)
			return 0, err
		}
	}
	if err := s.send(msgType, dg); err != nil {
		s.pending.Remove(ctx)
		return 0, err
	}
	return ctx, nil
}

// QueryLocation asks the state server where doId lives.
func (s *ServerRepository) QueryLocation(doID uint32, cb func(Location, error)) (uint32, error) {
	return s.query(uint64(doID), protocol.StateServerObjectGetLocation, protocol.StateServerObjectGetLocationResp, doID,
		func(it *datagram.Iterator) error {
			loc, err := readLocation(it)
			if err != nil {
				return err
			}
			cb(loc, nil)
			return nil
		},
		func(err error) { cb(Location{DoID: doID}, err) },
		nil,
	)
}

// QueryObjectAll fetches the full state of doId from the state server.
func (s *ServerRepository) QueryObjectAll(doID uint32, cb func(ObjectSnapshot, error)) (uint32, error) {
	return s.query(uint64(doID), protocol.StateServerObjectGetAll, protocol.StateServerObjectGetAllResp, doID,
		func(it *datagram.Iterator) error {
			snap, err := s.readSnapshot(it)
			if err != nil {
				return err
			}
			cb(snap, nil)
			return nil
		},
		func(err error) { cb(ObjectSnapshot{Location: Location{DoID: doID}}, err) },
		func(dg *datagram.Datagram) error {
			dg.WriteUint32(doID)
			return nil
		},
	)
}

// QueryActivated asks the database state server whether doId is loaded.
func (s *ServerRepository) QueryActivated(doID uint32, cb func(doID uint32, activated bool, err error)) (uint32, error) {
	return s.query(uint64(doID), protocol.DBSSObjectGetActivated, protocol.DBSSObjectGetActivatedResp, doID,
		func(it *datagram.Iterator) error {
			id, err := it.ReadUint32()
			if err != nil {
				return err
			}
			activated, err := it.ReadBool()
			if err != nil {
				return err
			}
			cb(id, activated, nil)
			return nil
		},
		func(err error) { cb(doID, false, err) },
		func(dg *datagram.Datagram) error {
			dg.WriteUint32(doID)
			return nil
		},
	)
}

// QueryNetworkAddress asks the client agent for the addresses of the client
// on ch.
func (s *ServerRepository) QueryNetworkAddress(ch uint64, cb func(NetworkAddress, error)) (uint32, error) {
	return s.query(ch, protocol.ClientAgentGetNetworkAddress, protocol.ClientAgentGetNetworkAddressResp, 0,
		func(it *datagram.Iterator) error {
			var addr NetworkAddress
			var err error
			if addr.RemoteIP, err = it.ReadString(); err != nil {
				return err
			}
			if addr.RemotePort, err = it.ReadUint16(); err != nil {
				return err
			}
			if addr.LocalIP, err = it.ReadString(); err != nil {
				return err
			}
			if addr.LocalPort, err = it.ReadUint16(); err != nil {
				return err
			}
			cb(addr, nil)
			return nil
		},
		func(err error) { cb(NetworkAddress{}, err) },
		nil,
	)
}

// CreateObjectInDB stores a new object of class in the database. Fields are
// written in class order.
func (s *ServerRepository) CreateObjectInDB(className string, fields map[string][]any, cb func(doID uint32, err error)) (uint32, error) {
	if s.database == 0 {
		return 0, ErrNoDatabase
	}
	class, ok := s.schema.ClassByName(className)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownClass, className)
	}
	for name := range fields {
		if _, ok := class.FieldByName(name); !ok {
			return 0, fmt.Errorf("%w: class=%s field=%s", ErrUnknownField, className, name)
		}
	}
	return s.query(s.database, protocol.DBServerCreateObject, protocol.DBServerCreateObjectResp, 0,
		func(it *datagram.Iterator) error {
			id, err := it.ReadUint32()
			if err != nil {
				return err
			}
			if id == 0 {
				cb(0, fmt.Errorf("repository: database refused create of %s", className))
				return nil
			}
			cb(id, nil)
			return nil
		},
		func(err error) { cb(0, err) },
		func(dg *datagram.Datagram) error {
			dg.WriteUint16(class.Number)
			dg.WriteUint16(uint16(len(fields)))
			for _, f := range class.Fields {
				args, ok := fields[f.Name]
				if !ok {
					continue
				}
				dg.WriteUint16(f.Tag)
				if err := schema.PackArgs(dg, f, args); err != nil {
					return err
				}
			}
			return nil
		},
	)
}

// QueryDatabaseObject loads every stored field of doId from the database.
func (s *ServerRepository) QueryDatabaseObject(doID uint32, cb func(DatabaseObject, error)) (uint32, error) {
	if s.database == 0 {
		return 0, ErrNoDatabase
	}
	return s.query(s.database, protocol.DBServerObjectGetAll, protocol.DBServerObjectGetAllResp, doID,
		func(it *datagram.Iterator) error {
			obj, err := s.readDatabaseObject(doID, it)
			if errors.Is(err, ErrObjectNotFound) {
				cb(DatabaseObject{DoID: doID}, err)
				return nil
			}
			if err != nil {
				return err
			}
			cb(obj, nil)
			return nil
		},
		func(err error) { cb(DatabaseObject{DoID: doID}, err) },
		func(dg *datagram.Datagram) error {
			dg.WriteUint32(doID)
			return nil
		},
	)
}

func readLocation(it *datagram.Iterator) (Location, error) {
	var loc Location
	var err error
	if loc.DoID, err = it.ReadUint32(); err != nil {
		return loc, err
	}
	if loc.Parent, err = it.ReadUint32(); err != nil {
		return loc, err
	}
	if loc.Zone, err = it.ReadUint32(); err != nil {
		return loc, err
	}
	return loc, nil
}

func (s *ServerRepository) readSnapshot(it *datagram.Iterator) (ObjectSnapshot, error) {
	loc, err := readLocation(it)
	if err != nil {
		return ObjectSnapshot{}, err
	}
	number, err := it.ReadUint16()
	if err != nil {
		return ObjectSnapshot{}, err
	}
	class, ok := s.schema.ClassByNumber(number)
	if !ok {
		return ObjectSnapshot{}, fmt.Errorf("%w: number=%d id=%d", ErrUnknownClass, number, loc.DoID)
	}
	snap := ObjectSnapshot{Location: loc, Class: class, Fields: make(map[string][]any)}
	for _, f := range class.RequiredFields() {
		args, err := schema.UnpackArgs(it, f)
		if err != nil {
			return ObjectSnapshot{}, err
		}
		snap.Fields[f.Name] = args
	}
	if it.Remaining() == 0 {
		return snap, nil
	}
	if err := readTaggedFields(it, class, snap.Fields); err != nil {
		return ObjectSnapshot{}, err
	}
	return snap, nil
}

func (s *ServerRepository) readDatabaseObject(doID uint32, it *datagram.Iterator) (DatabaseObject, error) {
	ok, err := it.ReadUint8()
	if err != nil {
		return DatabaseObject{}, err
	}
	if ok == 0 {
		return DatabaseObject{}, fmt.Errorf("%w: id=%d", ErrObjectNotFound, doID)
	}
	number, err := it.ReadUint16()
	if err != nil {
		return DatabaseObject{}, err
	}
	class, found := s.schema.ClassByNumber(number)
	if !found {
		return DatabaseObject{}, fmt.Errorf("%w: number=%d id=%d", ErrUnknownClass, number, doID)
	}
	obj := DatabaseObject{DoID: doID, Class: class, Fields: make(map[string][]any)}
	if err := readTaggedFields(it, class, obj.Fields); err != nil {
		return DatabaseObject{}, err
	}
	return obj, nil
}

// readTaggedFields reads [u16 n] then n x ([u16 field][value]) into out.
func readTaggedFields(it *datagram.Iterator, class *schema.Class, out map[string][]any) error {
	n, err := it.ReadUint16()
	if err != nil {
		return err
	}
	for i := 0; i < int(n); i++ {
		tag, err := it.ReadUint16()
		if err != nil {
			return err
		}
		f, ok := class.FieldByTag(tag)
		if !ok {
			return fmt.Errorf("%w: class=%s tag=%d", ErrUnknownField, class.Name, tag)
		}
		args, err := schema.UnpackArgs(it, f)
		if err != nil {
			return err
		}
		out[f.Name] = args
	}
	return nil
}
