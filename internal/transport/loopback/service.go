// Package loopback provides an in-process room service and a client transport
// wired directly to it. It backs tests, the roomctl demo mode and the
// development server behind the websocket and gRPC transports.
package loopback

import (
	"context"
	"encoding/json"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/roomlink/internal/events"
	"github.com/cory-johannsen/roomlink/internal/result"
	"github.com/cory-johannsen/roomlink/internal/room"
	"github.com/cory-johannsen/roomlink/internal/transport"
)

type roomState struct {
	rec     room.Record
	owner   string
	members []string
}

type clientState struct {
	appID  string
	actor  room.Actor
	roomID string
}

type published struct {
	channel string
	ev      events.Event
}

// Service is an in-memory room service implementing transport.Handler.
//
// Service is safe for concurrent use. Events are published after the state
// lock is released, on the goroutine handling the call.
type Service struct {
	mu      sync.Mutex
	rooms   map[string]*roomState
	order   []string
	clients map[string]*clientState
	faults  map[string]transport.Reply

	subMu   sync.RWMutex
	nextSub uint64
	subs    map[string]map[uint64]func(events.Envelope)

	logger *zap.Logger
	now    func() time.Time
}

// NewService creates an empty Service.
//
// Precondition: logger must be non-nil.
func NewService(logger *zap.Logger) *Service {
	return &Service{
		rooms:   make(map[string]*roomState),
		clients: make(map[string]*clientState),
		faults:  make(map[string]transport.Reply),
		subs:    make(map[string]map[uint64]func(events.Envelope)),
		logger:  logger,
		now:     time.Now,
	}
}

// Seed adds rooms with externally owned occupancy. Records with an empty id
// get a generated one.
func (s *Service) Seed(recs ...room.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range recs {
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		rec.Owned = false
		if _, ok := s.rooms[rec.ID]; !ok {
			s.order = append(s.order, rec.ID)
		}
		s.rooms[rec.ID] = &roomState{rec: rec}
	}
}

// Rooms returns a snapshot of every room in listing order.
func (s *Service) Rooms() []room.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked()
}

// SetFault makes every call to method answer with reply until ClearFault.
func (s *Service) SetFault(method string, reply transport.Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[method] = reply
}

// ClearFault removes a fault installed by SetFault.
func (s *Service) ClearFault(method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.faults, method)
}

// Handle implements transport.Handler.
func (s *Service) Handle(ctx context.Context, method string, args json.RawMessage) transport.Reply {
	s.mu.Lock()
	if fault, ok := s.faults[method]; ok {
		s.mu.Unlock()
		return fault
	}
	reply, out := s.handleLocked(method, args)
	s.mu.Unlock()

	for _, p := range out {
		s.publish(p.channel, p.ev)
	}
	s.logger.Debug("loopback call handled",
		zap.String("method", method),
		zap.Stringer("code", reply.Code),
	)
	return reply
}

func (s *Service) handleLocked(method string, args json.RawMessage) (transport.Reply, []published) {
	switch method {
	case transport.MethodBaseInitialize:
		return transport.OK(nil), nil
	case transport.MethodConnect:
		req, bad := decode[transport.ConnectRequest](args)
		if bad != nil {
			return *bad, nil
		}
		if req.AppID == "" {
			return transport.Errorf(result.CodeInvalidArgument, "app id required"), nil
		}
		id := uuid.NewString()
		s.clients[id] = &clientState{appID: req.AppID}
		return transport.OK(transport.ConnectResponse{ClientID: id}), nil
	case transport.MethodSetActor:
		req, bad := decode[transport.SetActorRequest](args)
		if bad != nil {
			return *bad, nil
		}
		c, bad := s.client(req.ClientID)
		if bad != nil {
			return *bad, nil
		}
		if req.Actor.ID == "" {
			return transport.Errorf(result.CodeInvalidArgument, "actor id required"), nil
		}
		c.actor = req.Actor
		return transport.OK(nil), nil
	case transport.MethodListRooms:
		req, bad := decode[transport.ClientRequest](args)
		if bad != nil {
			return *bad, nil
		}
		if _, bad := s.client(req.ClientID); bad != nil {
			return *bad, nil
		}
		return transport.OK(transport.RoomList{Rooms: s.listLocked()}), nil
	case transport.MethodJoinRoom:
		req, bad := decode[transport.JoinRoomRequest](args)
		if bad != nil {
			return *bad, nil
		}
		return s.joinLocked(req)
	case transport.MethodCreateRoom:
		req, bad := decode[transport.CreateRoomRequest](args)
		if bad != nil {
			return *bad, nil
		}
		return s.createLocked(req)
	case transport.MethodLeaveRoom:
		req, bad := decode[transport.ClientRequest](args)
		if bad != nil {
			return *bad, nil
		}
		return s.leaveLocked(req.ClientID)
	case transport.MethodCloseRoom:
		req, bad := decode[transport.ClientRequest](args)
		if bad != nil {
			return *bad, nil
		}
		return s.closeLocked(req.ClientID)
	case transport.MethodRealtimeConnect:
		req, bad := decode[transport.RealtimeConnectRequest](args)
		if bad != nil {
			return *bad, nil
		}
		if _, bad := s.member(req.ClientID, req.RoomID); bad != nil {
			return *bad, nil
		}
		return transport.OK(transport.RealtimeConnectResponse{Channel: transport.RealtimeChannel(req.RoomID)}), nil
	case transport.MethodRealtimeSend:
		req, bad := decode[transport.SendRequest](args)
		if bad != nil {
			return *bad, nil
		}
		c, bad := s.member(req.ClientID, req.RoomID)
		if bad != nil {
			return *bad, nil
		}
		msg := events.Message{RoomID: req.RoomID, SenderID: c.actor.ID, Body: req.Body, SentAt: s.now().UnixMilli()}
		return transport.OK(nil), []published{{transport.RealtimeChannel(req.RoomID), msg}}
	default:
		return transport.Errorf(result.CodeInvalidArgument, "unknown method %q", method), nil
	}
}

func (s *Service) joinLocked(req transport.JoinRoomRequest) (transport.Reply, []published) {
	c, bad := s.client(req.ClientID)
	if bad != nil {
		return *bad, nil
	}
	if c.actor.ID == "" {
		return transport.Errorf(result.CodeInvalidArgument, "actor not set"), nil
	}
	if c.roomID != "" {
		return transport.Errorf(result.CodeInvalidArgument, "already in room %s", c.roomID), nil
	}
	rs, ok := s.rooms[req.RoomID]
	if !ok {
		return transport.Errorf(result.CodeNotFound, "room %s not found", req.RoomID), nil
	}
	if rs.rec.Full() {
		return transport.Errorf(result.CodeRoomFull, "room %s is full", req.RoomID), nil
	}

	out := []published{{transport.MatchmakingChannel(req.ClientID), events.RoomJoined{RoomID: rs.rec.ID, ActorID: c.actor.ID}}}
	for _, m := range rs.members {
		out = append(out, published{transport.MatchmakingChannel(m), events.ActorJoined{RoomID: rs.rec.ID, Actor: c.actor}})
	}
	rs.rec.CurrentPlayers++
	rs.members = append(rs.members, req.ClientID)
	c.roomID = rs.rec.ID
	return transport.OK(rs.rec), out
}

func (s *Service) createLocked(req transport.CreateRoomRequest) (transport.Reply, []published) {
	c, bad := s.client(req.ClientID)
	if bad != nil {
		return *bad, nil
	}
	if c.actor.ID == "" {
		return transport.Errorf(result.CodeInvalidArgument, "actor not set"), nil
	}
	if c.roomID != "" {
		return transport.Errorf(result.CodeInvalidArgument, "already in room %s", c.roomID), nil
	}
	if req.Spec.MaxPlayers <= 0 {
		return transport.Errorf(result.CodeInvalidArgument, "max players must be positive, got %d", req.Spec.MaxPlayers), nil
	}

	rec := room.Record{
		ID:             uuid.NewString(),
		Name:           req.Spec.Name,
		CurrentPlayers: 1,
		MaxPlayers:     req.Spec.MaxPlayers,
		Data:           maps.Clone(req.Spec.Data),
	}
	s.rooms[rec.ID] = &roomState{rec: rec, owner: req.ClientID, members: []string{req.ClientID}}
	s.order = append(s.order, rec.ID)
	c.roomID = rec.ID
	return transport.OK(rec), []published{{transport.MatchmakingChannel(req.ClientID), events.RoomJoined{RoomID: rec.ID, ActorID: c.actor.ID}}}
}

func (s *Service) leaveLocked(clientID string) (transport.Reply, []published) {
	c, bad := s.client(clientID)
	if bad != nil {
		return *bad, nil
	}
	rs, ok := s.rooms[c.roomID]
	if !ok {
		return transport.Errorf(result.CodeNotFound, "not in a room"), nil
	}

	roomID := rs.rec.ID
	rs.members = slices.DeleteFunc(rs.members, func(m string) bool { return m == clientID })
	rs.rec.CurrentPlayers--
	c.roomID = ""

	out := []published{{transport.MatchmakingChannel(clientID), events.RoomLeft{RoomID: roomID, ActorID: c.actor.ID}}}
	for _, m := range rs.members {
		out = append(out, published{transport.MatchmakingChannel(m), events.ActorLeft{RoomID: roomID, ActorID: c.actor.ID, Reason: "left"}})
	}
	if rs.rec.CurrentPlayers <= 0 {
		s.removeLocked(roomID)
	}
	return transport.OK(nil), out
}

func (s *Service) closeLocked(clientID string) (transport.Reply, []published) {
	c, bad := s.client(clientID)
	if bad != nil {
		return *bad, nil
	}
	rs, ok := s.rooms[c.roomID]
	if !ok {
		return transport.Errorf(result.CodeNotFound, "not in a room"), nil
	}
	if rs.owner != clientID {
		return transport.Errorf(result.CodeUnauthorized, "only the owner may close room %s", rs.rec.ID), nil
	}

	var out []published
	for _, m := range rs.members {
		if mc, ok := s.clients[m]; ok {
			mc.roomID = ""
		}
		out = append(out, published{transport.MatchmakingChannel(m), events.RoomClosed{RoomID: rs.rec.ID, Reason: "closed by owner"}})
	}
	s.removeLocked(rs.rec.ID)
	return transport.OK(nil), out
}

func (s *Service) removeLocked(roomID string) {
	delete(s.rooms, roomID)
	s.order = slices.DeleteFunc(s.order, func(id string) bool { return id == roomID })
}

func (s *Service) listLocked() []room.Record {
	out := make([]room.Record, 0, len(s.order))
	for _, id := range s.order {
		rec := s.rooms[id].rec
		rec.Data = maps.Clone(rec.Data)
		out = append(out, rec)
	}
	return out
}

func (s *Service) client(id string) (*clientState, *transport.Reply) {
	c, ok := s.clients[id]
	if !ok {
		r := transport.Errorf(result.CodeUnauthorized, "unknown client %q", id)
		return nil, &r
	}
	return c, nil
}

func (s *Service) member(clientID, roomID string) (*clientState, *transport.Reply) {
	c, bad := s.client(clientID)
	if bad != nil {
		return nil, bad
	}
	if roomID == "" || c.roomID != roomID {
		r := transport.Errorf(result.CodeInvalidArgument, "client is not in room %q", roomID)
		return nil, &r
	}
	return c, nil
}

func decode[T any](args json.RawMessage) (T, *transport.Reply) {
	var v T
	if len(args) == 0 {
		r := transport.Errorf(result.CodeInvalidArgument, "missing arguments")
		return v, &r
	}
	if err := json.Unmarshal(args, &v); err != nil {
		r := transport.Errorf(result.CodeInvalidArgument, "decoding arguments: %v", err)
		return v, &r
	}
	return v, nil
}

// Subscribe implements transport.Handler.
func (s *Service) Subscribe(channel string, fn func(events.Envelope)) func() {
	s.subMu.Lock()
	s.nextSub++
	id := s.nextSub
	if s.subs[channel] == nil {
		s.subs[channel] = make(map[uint64]func(events.Envelope))
	}
	s.subs[channel][id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			delete(s.subs[channel], id)
			if len(s.subs[channel]) == 0 {
				delete(s.subs, channel)
			}
		})
	}
}

// Publish pushes ev to every subscriber of channel.
func (s *Service) Publish(channel string, ev events.Event) {
	s.publish(channel, ev)
}

func (s *Service) publish(channel string, ev events.Event) {
	env, err := events.Encode(ev)
	if err != nil {
		s.logger.Error("loopback event not encodable", zap.String("channel", channel), zap.Error(err))
		return
	}
	s.subMu.RLock()
	fns := slices.Collect(maps.Values(s.subs[channel]))
	s.subMu.RUnlock()
	for _, fn := range fns {
		fn(env)
	}
}
