// Package session drives the room lifecycle for one client: service
// initialization, room discovery and selection, join-or-create, the realtime
// channel, typed event subscriptions and teardown.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/roomlink/internal/config"
	"github.com/cory-johannsen/roomlink/internal/events"
	"github.com/cory-johannsen/roomlink/internal/observability"
	"github.com/cory-johannsen/roomlink/internal/result"
	"github.com/cory-johannsen/roomlink/internal/room"
	"github.com/cory-johannsen/roomlink/internal/services"
)

// State is a step of the session lifecycle.
type State int

const (
	StateUninitialized State = iota
	StateServicesInitializing
	StateServicesReady
	StateSelectingRoom
	StateJoining
	StateCreating
	StateInRoom
	StateLeaving
	StateDisposed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateServicesInitializing:
		return "services_initializing"
	case StateServicesReady:
		return "services_ready"
	case StateSelectingRoom:
		return "selecting_room"
	case StateJoining:
		return "joining"
	case StateCreating:
		return "creating"
	case StateInRoom:
		return "in_room"
	case StateLeaving:
		return "leaving"
	case StateDisposed:
		return "disposed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Observer receives session notifications, typically for metrics. Join
// outcomes are the observability.Outcome* values.
type Observer interface {
	JoinAttempt(outcome string)
	RealtimeFailed()
}

type nopObserver struct{}

func (nopObserver) JoinAttempt(string) {}
func (nopObserver) RealtimeFailed()    {}

// Deps are the collaborators a Session is built from.
type Deps struct {
	Base      services.Base
	Connector services.MatchmakingConnector
	Realtime  services.RealtimeConnector

	// Owned records rooms this application created. Share one store between
	// sessions to keep the join-priority hint across them; nil gives the
	// session a private store.
	Owned room.OwnedStore
	// Timeouts bound each remote step; zero fields use config.DefaultTimeouts.
	Timeouts config.TimeoutConfig
	AppID    string
	// Bonus optionally adds to each candidate's score.
	Bonus room.BonusFunc
	// Registry optionally tracks the session and enforces one in-room session.
	Registry *Registry
	Logger   *zap.Logger
	Observer Observer
}

// Session is the room lifecycle orchestrator for one session key.
//
// Public operations return typed results and never panic on business errors.
// Session is safe for concurrent use, although operations are meant to be
// driven from one sequential flow; the realtime channel initializes on its own
// goroutine.
type Session struct {
	key    string
	deps   Deps
	logger *zap.Logger
	router *events.Router

	mu       sync.Mutex
	state    State
	mm       services.Matchmaking
	roomID   string
	owner    bool
	inRoom   bool
	current  room.Record
	rt       services.Realtime
	ready    bool
	rtCancel context.CancelFunc
	rtDone   chan struct{}

	subscribed  bool
	mmListeners []services.ListenerID
	rtListeners []services.ListenerID
	// endListeners watch for the current room ending remotely. They stay
	// registered from InitializeServices until Dispose.
	endListeners []services.ListenerID
}

// listenerSource is the listener surface shared by Matchmaking and Realtime.
type listenerSource interface {
	RegisterNetworkEventListener(kind events.Kind, handler func(events.Envelope)) (services.ListenerID, error)
	UnregisterNetworkEventListener(id services.ListenerID) error
}

type listenerSet struct {
	src listenerSource
	ids []services.ListenerID
}

// New creates a Session. An empty key is replaced by a generated one.
//
// Precondition: deps.Base, deps.Connector, deps.Realtime and deps.Logger must be non-nil.
// Postcondition: Returns a Session in StateUninitialized, registered in
// deps.Registry when set, or an error if the key is already registered.
func New(key string, deps Deps) (*Session, error) {
	if deps.Base == nil || deps.Connector == nil || deps.Realtime == nil || deps.Logger == nil {
		panic("session.New: Base, Connector, Realtime and Logger must not be nil")
	}
	if key == "" {
		key = uuid.NewString()
	}
	if deps.Owned == nil {
		deps.Owned = room.NewMemoryOwnedStore()
	}
	deps.Timeouts = deps.Timeouts.WithDefaults()
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}

	logger := deps.Logger.With(zap.String("session", key))
	s := &Session{
		key:    key,
		deps:   deps,
		logger: logger,
		router: events.NewRouter(logger),
	}
	s.router.SetContext(zap.String("session", key))

	if deps.Registry != nil {
		if err := deps.Registry.add(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Key returns the session key.
func (s *Session) Key() string { return s.key }

// Events returns the router used for per-kind subscriptions:
//
//	events.On(sess.Events(), func(e events.ActorJoined) { ... })
func (s *Session) Events() *events.Router { return s.router }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RoomID returns the current room id, or "" when not in a room.
func (s *Session) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

// IsOwner reports whether this session created the current room.
func (s *Session) IsOwner() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner
}

// IsInRoom reports whether the session is in a room.
func (s *Session) IsInRoom() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inRoom
}

// MultiplayerReady reports whether the realtime channel of the current room is up.
func (s *Session) MultiplayerReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Room returns the snapshot of the current room taken at join or create.
func (s *Session) Room() (room.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.inRoom
}

// WaitRealtime blocks until the pending realtime initialization finishes or
// ctx ends, and reports MultiplayerReady.
func (s *Session) WaitRealtime(ctx context.Context) bool {
	s.mu.Lock()
	done := s.rtDone
	s.mu.Unlock()
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
		}
	}
	return s.MultiplayerReady()
}

// InitializeServices ensures the base service is initialized and creates the
// matchmaking client for the configured application id. It succeeds
// immediately when services are already ready.
//
// Postcondition: on failure no matchmaking client is retained and the session
// is back in StateUninitialized.
func (s *Session) InitializeServices(ctx context.Context) result.Result[struct{}] {
	s.mu.Lock()
	switch s.state {
	case StateDisposed:
		s.mu.Unlock()
		return result.Fail[struct{}](result.CodeInvalidState, "session disposed")
	case StateServicesInitializing:
		s.mu.Unlock()
		return result.Fail[struct{}](result.CodeInvalidState, "services initialization already in progress")
	case StateUninitialized:
		s.state = StateServicesInitializing
		s.mu.Unlock()
	default:
		s.mu.Unlock()
		return result.Success(struct{}{}, result.Envelope{Message: "services already ready"})
	}

	if !s.deps.Base.Initialized() {
		bctx, cancel := context.WithTimeout(ctx, s.deps.Timeouts.BaseInit)
		r := s.deps.Base.Initialize(bctx)
		cancel()
		if !r.IsSuccess() {
			s.logger.Warn("base service initialization failed",
				zap.Stringer("code", r.Code()),
				zap.String("error", r.ErrorMessage()),
			)
			s.setState(StateUninitialized)
			return r
		}
	}

	mctx, cancel := context.WithTimeout(ctx, s.deps.Timeouts.Matchmaking)
	mr := s.deps.Connector.Connect(mctx, s.deps.AppID)
	cancel()
	if !mr.IsSuccess() {
		s.logger.Warn("matchmaking client creation failed",
			zap.String("app_id", s.deps.AppID),
			zap.Stringer("code", mr.Code()),
			zap.String("error", mr.ErrorMessage()),
		)
		s.setState(StateUninitialized)
		return discard(mr)
	}

	mm := mr.Data()
	ends := s.register(mm, "room end", []events.Kind{events.KindRoomLeft, events.KindRoomClosed}, s.onRoomEnded)

	s.mu.Lock()
	if s.state == StateDisposed {
		s.mu.Unlock()
		s.drop(listenerSet{mm, ends})
		return result.Fail[struct{}](result.CodeInvalidState, "session disposed during initialization")
	}
	s.mm = mm
	s.endListeners = ends
	s.state = StateServicesReady
	subscribed := s.subscribed
	s.mu.Unlock()

	if subscribed {
		s.attachMembership(mm)
	}
	s.logger.Info("services ready",
		zap.String("app_id", s.deps.AppID),
		zap.String("client", mm.ClientID()),
	)
	return result.Success(struct{}{}, mr.Envelope())
}

// JoinOrCreateRoom registers actor, joins the best viable existing room, or
// creates one from spec when every join attempt fails. The realtime channel of
// the entered room is initialized in the background; its failure leaves
// MultiplayerReady false without undoing the join.
//
// Postcondition: returns CodeInvalidState without any network call when the
// session is already in a room, another registered session is in a room, or
// services are not ready.
func (s *Session) JoinOrCreateRoom(ctx context.Context, actor room.Actor, spec room.Spec) result.Result[room.Record] {
	s.mu.Lock()
	switch {
	case s.state == StateDisposed:
		s.mu.Unlock()
		return result.Fail[room.Record](result.CodeInvalidState, "session disposed")
	case s.inRoom:
		s.mu.Unlock()
		return result.Fail[room.Record](result.CodeInvalidState, "already in room "+s.roomID)
	case s.state != StateServicesReady:
		st := s.state
		s.mu.Unlock()
		return result.Fail[room.Record](result.CodeInvalidState, "services not ready: "+st.String())
	}
	if s.deps.Registry != nil && !s.deps.Registry.claim(s.key) {
		s.mu.Unlock()
		return result.Fail[room.Record](result.CodeInvalidState, "another session is already in a room")
	}
	s.state = StateSelectingRoom
	mm := s.mm
	s.mu.Unlock()

	rec, env, fail := s.joinOrCreate(ctx, mm, actor, spec)
	if fail != nil {
		s.mu.Lock()
		if s.state != StateDisposed {
			s.state = StateServicesReady
		}
		s.mu.Unlock()
		if s.deps.Registry != nil {
			s.deps.Registry.release(s.key)
		}
		return *fail
	}
	return result.Success(rec, env)
}

func (s *Session) joinOrCreate(ctx context.Context, mm services.Matchmaking, actor room.Actor, spec room.Spec) (room.Record, result.Envelope, *result.Result[room.Record]) {
	actx, cancel := context.WithTimeout(ctx, s.deps.Timeouts.SetActor)
	ar := mm.SetActor(actx, actor)
	cancel()
	if !ar.IsSuccess() {
		s.logger.Warn("set actor failed", zap.String("actor", actor.ID), zap.String("error", ar.ErrorMessage()))
		f := discardAs[room.Record](ar)
		return room.Record{}, result.Envelope{}, &f
	}

	lctx, cancel := context.WithTimeout(ctx, s.deps.Timeouts.ListRooms)
	lr := mm.GetAvailableRooms(lctx)
	cancel()
	var listed []room.Record
	if lr.IsSuccess() {
		listed = lr.Data()
	} else {
		s.logger.Warn("room listing failed; creating a room instead",
			zap.Stringer("code", lr.Code()),
			zap.String("error", lr.ErrorMessage()),
		)
	}

	candidates := room.Rank(listed, s.deps.Owned, s.deps.Bonus)
	s.logger.Debug("room candidates ranked",
		zap.Int("listed", len(listed)),
		zap.Int("viable", len(candidates)),
	)

	s.setState(StateJoining)
	for _, c := range candidates {
		if ctx.Err() != nil {
			f := canceled[room.Record](ctx)
			return room.Record{}, result.Envelope{}, &f
		}
		jctx, cancel := context.WithTimeout(ctx, s.deps.Timeouts.JoinAttempt)
		jr := mm.JoinRoom(jctx, c.ID)
		cancel()
		if jr.IsSuccess() {
			s.deps.Observer.JoinAttempt(observability.OutcomeJoined)
			rec := jr.Data()
			rec.Owned = c.Owned
			if !s.enter(mm, rec, false) {
				return disposedDuringJoin()
			}
			return rec, jr.Envelope(), nil
		}
		outcome := observability.OutcomeRejected
		if jr.Kind() == result.KindTimeout {
			outcome = observability.OutcomeTimeout
		}
		s.deps.Observer.JoinAttempt(outcome)
		s.logger.Info("join attempt failed; trying next candidate",
			zap.String("room", c.ID),
			zap.Int("score", c.Score),
			zap.Bool("owned", c.Owned),
			zap.Stringer("code", jr.Code()),
			zap.String("error", jr.ErrorMessage()),
		)
	}
	if ctx.Err() != nil {
		f := canceled[room.Record](ctx)
		return room.Record{}, result.Envelope{}, &f
	}

	s.setState(StateCreating)
	cctx, cancel := context.WithTimeout(ctx, s.deps.Timeouts.CreateRoom)
	cr := mm.CreateRoom(cctx, spec)
	cancel()
	if !cr.IsSuccess() {
		s.deps.Observer.JoinAttempt(observability.OutcomeFailed)
		s.logger.Warn("room creation failed",
			zap.String("name", spec.Name),
			zap.Stringer("code", cr.Code()),
			zap.String("error", cr.ErrorMessage()),
		)
		return room.Record{}, result.Envelope{}, &cr
	}
	s.deps.Observer.JoinAttempt(observability.OutcomeCreated)
	rec := cr.Data()
	s.deps.Owned.Add(rec.ID)
	rec.Owned = true
	if !s.enter(mm, rec, true) {
		return disposedDuringJoin()
	}
	return rec, cr.Envelope(), nil
}

func disposedDuringJoin() (room.Record, result.Envelope, *result.Result[room.Record]) {
	f := result.Fail[room.Record](result.CodeInvalidState, "session disposed during join")
	return room.Record{}, result.Envelope{}, &f
}

// enter records room membership and starts the realtime initialization. It
// reports false when the session was disposed while the join was in flight.
func (s *Session) enter(mm services.Matchmaking, rec room.Record, owner bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisposed {
		return false
	}
	s.roomID = rec.ID
	s.owner = owner
	s.inRoom = true
	s.current = rec
	s.ready = false
	s.state = StateInRoom
	s.router.SetContext(zap.String("session", s.key), zap.String("room", rec.ID))

	rtCtx, cancel := context.WithTimeout(context.Background(), s.deps.Timeouts.Realtime)
	done := make(chan struct{})
	s.rtCancel = cancel
	s.rtDone = done
	go s.initRealtime(rtCtx, cancel, done, mm.ClientID(), rec.ID)

	s.logger.Info("entered room",
		zap.String("room", rec.ID),
		zap.String("name", rec.Name),
		zap.Bool("owner", owner),
	)
	return true
}

func (s *Session) initRealtime(ctx context.Context, cancel context.CancelFunc, done chan struct{}, clientID, roomID string) {
	defer close(done)
	defer cancel()

	r := s.deps.Realtime.Initialize(ctx, clientID, roomID)

	s.mu.Lock()
	if !s.inRoom || s.roomID != roomID || ctx.Err() == context.Canceled {
		s.mu.Unlock()
		return
	}
	if !r.IsSuccess() {
		s.mu.Unlock()
		s.deps.Observer.RealtimeFailed()
		s.logger.Warn("realtime channel initialization failed; room membership kept",
			zap.String("room", roomID),
			zap.Stringer("code", r.Code()),
			zap.String("error", r.ErrorMessage()),
		)
		return
	}
	rt := r.Data()
	s.rt = rt
	s.ready = true
	subscribed := s.subscribed
	s.mu.Unlock()

	if subscribed {
		s.attachRealtime(rt)
	}
	s.logger.Info("realtime channel ready", zap.String("room", roomID))
}

// LeaveRoom closes the room when this session owns it and leaves it
// otherwise.
//
// Postcondition: on success RoomID() is "", IsInRoom() and IsOwner() are
// false and MultiplayerReady() is false, whatever the realtime state was.
func (s *Session) LeaveRoom(ctx context.Context) result.Result[struct{}] {
	s.mu.Lock()
	if s.state == StateDisposed || !s.inRoom || s.state != StateInRoom {
		s.mu.Unlock()
		return result.Fail[struct{}](result.CodeInvalidState, "not in a room")
	}
	owner := s.owner
	mm := s.mm
	roomID := s.roomID
	s.state = StateLeaving
	s.mu.Unlock()

	lctx, cancel := context.WithTimeout(ctx, s.deps.Timeouts.Leave)
	var r result.Result[struct{}]
	if owner {
		r = mm.CloseRoom(lctx)
	} else {
		r = mm.LeaveRoom(lctx)
	}
	cancel()

	// The service no longer knows the membership, so the room is already gone.
	if !r.IsSuccess() && r.Code() == result.CodeNotFound {
		s.logger.Info("room already gone remotely",
			zap.String("room", roomID),
			zap.String("error", r.ErrorMessage()),
		)
		r = result.Success(struct{}{}, result.Envelope{CallID: r.Envelope().CallID, Message: r.ErrorMessage()})
	}

	if !r.IsSuccess() {
		s.mu.Lock()
		if s.state == StateLeaving {
			s.state = StateInRoom
		}
		s.mu.Unlock()
		s.logger.Warn("leaving room failed",
			zap.String("room", roomID),
			zap.Bool("owner", owner),
			zap.Stringer("code", r.Code()),
			zap.String("error", r.ErrorMessage()),
		)
		return r
	}

	s.mu.Lock()
	done, rt := s.resetRoomLocked()
	if s.state == StateLeaving {
		s.state = StateServicesReady
	}
	s.mu.Unlock()
	s.finishRoom(done, rt)
	s.logger.Info("left room", zap.String("room", roomID), zap.Bool("closed", owner))
	return r
}

// onRoomEnded handles RoomClosed, and RoomLeft when the service removes this
// client, for the current room. Events for other rooms, or arriving while a
// local leave is in flight, are ignored.
func (s *Session) onRoomEnded(env events.Envelope) {
	if env.ReturnCode != result.CodeSuccess {
		return
	}
	ev, err := events.Decode(events.Kind(env.EventType), env.EventData)
	if err != nil {
		s.logger.Debug("undecodable room end event", zap.Int("event_type", env.EventType), zap.Error(err))
		return
	}
	var roomID, reason string
	switch e := ev.(type) {
	case events.RoomClosed:
		roomID, reason = e.RoomID, e.Reason
	case events.RoomLeft:
		roomID, reason = e.RoomID, "removed"
	default:
		return
	}

	s.mu.Lock()
	if s.state != StateInRoom || s.roomID != roomID {
		s.mu.Unlock()
		return
	}
	done, rt := s.resetRoomLocked()
	s.state = StateServicesReady
	s.mu.Unlock()

	s.finishRoom(done, rt)
	s.logger.Info("room ended remotely", zap.String("room", roomID), zap.String("reason", reason))
}

// finishRoom completes a room reset outside the lock.
func (s *Session) finishRoom(done chan struct{}, rt listenerSet) {
	s.drop(rt)
	if done != nil {
		<-done
	}
	if s.deps.Registry != nil {
		s.deps.Registry.release(s.key)
	}
}

// resetRoomLocked clears room-local state. It returns the channel closed when
// a pending realtime initialization exits and the realtime listeners to drop.
func (s *Session) resetRoomLocked() (chan struct{}, listenerSet) {
	if s.rtCancel != nil {
		s.rtCancel()
	}
	done := s.rtDone
	rt := listenerSet{s.rt, s.rtListeners}
	s.rtListeners = nil
	s.rtCancel = nil
	s.rtDone = nil
	s.rt = nil
	s.ready = false
	s.roomID = ""
	s.owner = false
	s.inRoom = false
	s.current = room.Record{}
	s.router.SetContext(zap.String("session", s.key))
	return done, rt
}

// SendMessage publishes body on the realtime channel of the current room.
func (s *Session) SendMessage(ctx context.Context, body string) result.Result[struct{}] {
	s.mu.Lock()
	rt := s.rt
	ready := s.ready
	s.mu.Unlock()
	if !ready || rt == nil {
		return result.Fail[struct{}](result.CodeInvalidState, "realtime channel not ready")
	}
	return rt.Send(ctx, body)
}

// Subscribe routes membership events, and realtime events once the channel is
// ready, into Events(). It is idempotent.
func (s *Session) Subscribe() {
	s.mu.Lock()
	if s.subscribed || s.state == StateDisposed {
		s.mu.Unlock()
		return
	}
	s.subscribed = true
	mm := s.mm
	var rt services.Realtime
	if s.ready {
		rt = s.rt
	}
	s.mu.Unlock()

	if mm != nil {
		s.attachMembership(mm)
	}
	if rt != nil {
		s.attachRealtime(rt)
	}
}

// Unsubscribe removes every listener registered by Subscribe. It is idempotent.
func (s *Session) Unsubscribe() {
	s.mu.Lock()
	sets := s.unsubscribeLocked()
	s.mu.Unlock()
	s.drop(sets...)
}

func (s *Session) unsubscribeLocked() []listenerSet {
	if !s.subscribed {
		return nil
	}
	s.subscribed = false
	sets := []listenerSet{{s.mm, s.mmListeners}, {s.rt, s.rtListeners}}
	s.mmListeners = nil
	s.rtListeners = nil
	return sets
}

// attachMembership registers the subscriber listeners on mm without holding
// the lock, then keeps them only if mm is still current and nothing else
// attached first.
func (s *Session) attachMembership(mm services.Matchmaking) {
	ids := s.register(mm, "membership", events.MembershipKinds, s.dispatch)
	s.mu.Lock()
	if !s.subscribed || s.mm != mm || len(s.mmListeners) > 0 {
		s.mu.Unlock()
		s.drop(listenerSet{mm, ids})
		return
	}
	s.mmListeners = ids
	s.mu.Unlock()
}

func (s *Session) attachRealtime(rt services.Realtime) {
	ids := s.register(rt, "realtime", events.RealtimeKinds, s.dispatch)
	s.mu.Lock()
	if !s.subscribed || s.rt != rt || len(s.rtListeners) > 0 {
		s.mu.Unlock()
		s.drop(listenerSet{rt, ids})
		return
	}
	s.rtListeners = ids
	s.mu.Unlock()
}

// register may block on the transport, so callers must not hold s.mu.
func (s *Session) register(src listenerSource, what string, kinds []events.Kind, fn func(events.Envelope)) []services.ListenerID {
	ids := make([]services.ListenerID, 0, len(kinds))
	for _, kind := range kinds {
		id, err := src.RegisterNetworkEventListener(kind, fn)
		if err != nil {
			s.logger.Warn("registering listener", zap.String("listener", what), zap.Stringer("kind", kind), zap.Error(err))
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// drop unregisters listeners; callers must not hold s.mu.
func (s *Session) drop(sets ...listenerSet) {
	for _, set := range sets {
		for _, id := range set.ids {
			if err := set.src.UnregisterNetworkEventListener(id); err != nil {
				s.logger.Warn("unregistering listener", zap.Error(err))
			}
		}
	}
}

func (s *Session) dispatch(env events.Envelope) {
	s.router.Dispatch(env)
}

// Dispose unsubscribes, removes the session from its Registry, drops service
// references and clears every event subscriber. It does not leave the room
// remotely. It is idempotent.
func (s *Session) Dispose() {
	s.mu.Lock()
	if s.state == StateDisposed {
		s.mu.Unlock()
		return
	}
	sets := s.unsubscribeLocked()
	done, rt := s.resetRoomLocked()
	sets = append(sets, rt, listenerSet{s.mm, s.endListeners})
	s.endListeners = nil
	s.state = StateDisposed
	s.mm = nil
	s.mu.Unlock()

	s.drop(sets...)
	if done != nil {
		<-done
	}
	if s.deps.Registry != nil {
		s.deps.Registry.remove(s.key)
	}
	s.router.Clear()
	s.logger.Debug("session disposed")
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateDisposed {
		s.state = st
	}
}

func discard[T any](r result.Result[T]) result.Result[struct{}] {
	return discardAs[struct{}](r)
}

func discardAs[U, T any](r result.Result[T]) result.Result[U] {
	return result.Map(r, func(T) U {
		var zero U
		return zero
	})
}

func canceled[T any](ctx context.Context) result.Result[T] {
	return result.Fail[T](result.CodeCanceled, ctx.Err().Error())
}
