package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"tatami/pkg/types"
)

// Peer is the coordinator's view of one connected participant. The websocket
// layer implements it; tests substitute fakes.
type Peer interface {
	ID() string
	Send(env *types.Envelope) error
	Close() error
}

// Config tunes the coordination core.
type Config struct {
	LessonDuration time.Duration
	ChatRateLimit  int           // messages per window, per sender
	ChatRateWindow time.Duration // sliding window length
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		LessonDuration: types.DefaultLessonDuration,
		ChatRateLimit:  100,
		ChatRateWindow: time.Minute,
	}
}

// Coordinator owns all coordination state: the connection registry, the
// presence directory, the waiting queue and the active lesson set. Every
// mutation flows through a single goroutine draining one event channel, which
// is what upholds the at-most-one invariants without locking.
type Coordinator struct {
	events   chan event
	shutdown chan struct{}

	cfg    Config
	logger *slog.Logger

	running bool
	mu      sync.Mutex

	// Loop-confined state. Only the run goroutine touches these.
	participants map[string]*participant
	presence     map[string]*types.TeacherPresence
	queue        []*types.QueuedStudent
	lessons      map[string]*types.Lesson
	timers       map[string]*time.Timer
	chatLimiter  *rateLimiter
}

type eventKind int

const (
	evRegister eventKind = iota
	evDeregister
	evClient
	evLessonExpired
	evQuery
)

type event struct {
	kind     eventKind
	peerID   string
	peer     Peer
	env      *types.Envelope
	lessonID string
	query    func()
}

// New creates a coordinator. Call Start before dispatching events.
func New(cfg Config, logger *slog.Logger) *Coordinator {
	if cfg.LessonDuration <= 0 {
		cfg.LessonDuration = types.DefaultLessonDuration
	}
	if cfg.ChatRateLimit <= 0 {
		cfg.ChatRateLimit = 100
	}
	if cfg.ChatRateWindow <= 0 {
		cfg.ChatRateWindow = time.Minute
	}
	return &Coordinator{
		events:       make(chan event, 1024),
		shutdown:     make(chan struct{}),
		cfg:          cfg,
		logger:       logger,
		participants: make(map[string]*participant),
		presence:     make(map[string]*types.TeacherPresence),
		lessons:      make(map[string]*types.Lesson),
		timers:       make(map[string]*time.Timer),
		chatLimiter:  newRateLimiter(cfg.ChatRateLimit, cfg.ChatRateWindow),
	}
}

// Start launches the coordination loop.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrAlreadyRunning
	}
	c.running = true
	go c.run(ctx)
	c.logger.Info("coordinator started", "lesson_duration", c.cfg.LessonDuration)
	return nil
}

// Stop shuts the loop down. Pending lesson timers fire into a closed
// coordinator and are discarded.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return ErrNotRunning
	}
	c.running = false
	close(c.shutdown)
	c.logger.Info("coordinator stopped")
	return nil
}

// Register admits a new connection into the registry and pushes the initial
// presence snapshot to it.
func (c *Coordinator) Register(peer Peer) error {
	return c.post(event{kind: evRegister, peer: peer, peerID: peer.ID()})
}

// Deregister runs full connection teardown: presence, lesson, queue entry and
// registry entry all go, each independently a no-op if absent.
func (c *Coordinator) Deregister(peerID string) error {
	return c.post(event{kind: evDeregister, peerID: peerID})
}

// Dispatch hands one decoded client event to the loop. Events are processed
// strictly in arrival order.
func (c *Coordinator) Dispatch(peerID string, env *types.Envelope) error {
	if env == nil {
		return ErrNilEvent
	}
	return c.post(event{kind: evClient, peerID: peerID, env: env})
}

// Teachers returns a point-in-time copy of the presence directory.
func (c *Coordinator) Teachers(ctx context.Context) ([]types.TeacherPresence, error) {
	var out []types.TeacherPresence
	err := c.ask(ctx, func() { out = c.presenceSnapshot() })
	return out, err
}

// Stats returns the current aggregate counts.
func (c *Coordinator) Stats(ctx context.Context) (types.Stats, error) {
	var out types.Stats
	err := c.ask(ctx, func() { out = c.computeStats() })
	return out, err
}

// Connections returns the registry size, for health reporting.
func (c *Coordinator) Connections(ctx context.Context) (int, error) {
	var out int
	err := c.ask(ctx, func() { out = len(c.participants) })
	return out, err
}

func (c *Coordinator) post(ev event) error {
	select {
	case c.events <- ev:
		return nil
	case <-c.shutdown:
		return ErrNotRunning
	}
}

// ask runs fn on the loop goroutine and waits for it, so reads observe a
// consistent snapshot without any locking of loop state.
func (c *Coordinator) ask(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	ev := event{kind: evQuery, query: func() {
		fn()
		close(done)
	}}
	select {
	case c.events <- ev:
	case <-c.shutdown:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-c.shutdown:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) run(ctx context.Context) {
	defer c.logger.Info("coordination loop stopped")
	for {
		select {
		case ev := <-c.events:
			c.handle(ev)
		case <-c.shutdown:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (c *Coordinator) handle(ev event) {
	switch ev.kind {
	case evRegister:
		c.handleRegister(ev.peer)
	case evDeregister:
		c.handleDeregister(ev.peerID)
	case evClient:
		c.handleClientEvent(ev.peerID, ev.env)
	case evLessonExpired:
		c.expireLesson(ev.lessonID)
	case evQuery:
		ev.query()
	}
}

// handleClientEvent fans an inbound event out to the owning component.
// Disconnected senders are dropped here: a disconnect already queued behind
// this event must not be pre-empted by a stale message, but a sender gone
// from the registry has nothing left to act on.
func (c *Coordinator) handleClientEvent(peerID string, env *types.Envelope) {
	if _, ok := c.participants[peerID]; !ok {
		return
	}

	switch env.Type {
	case types.EventBecomeAvailable:
		c.setAvailable(peerID, env)
	case types.EventBecomeUnavailable:
		c.setUnavailable(peerID)
	case types.EventRequestSession:
		c.requestLesson(peerID, env)
	case types.EventCancelRequest:
		c.cancelRequest(peerID)
	case types.EventEndSession:
		c.endLessonFor(peerID)
	case types.EventChatMessage:
		c.relayChat(peerID, env)
	case types.EventCallOffer, types.EventCallAnswer, types.EventICECandidate,
		types.EventRejectCall, types.EventEndCall:
		c.relaySignal(peerID, env)
	case types.EventVoiceSignal:
		c.relayVoiceSignal(peerID, env)
	default:
		c.logger.Warn("unknown event type", "type", env.Type, "peer", peerID)
	}
}

func (c *Coordinator) handleRegister(peer Peer) {
	if peer == nil {
		return
	}
	c.addParticipant(peer)
	c.send(peer.ID(), types.EventPresenceSnapshot, types.PresencePayload{Teachers: c.presenceSnapshot()})
	c.logger.Info("participant connected", "peer", peer.ID())
}

func (c *Coordinator) handleDeregister(peerID string) {
	if _, ok := c.participants[peerID]; !ok {
		return
	}

	if _, had := c.presence[peerID]; had {
		delete(c.presence, peerID)
		c.broadcastPresence()
	}
	if lesson := c.lessonFor(peerID); lesson != nil {
		c.endLesson(lesson, types.ReasonPeerDisconnected, peerID)
	}
	c.removeQueued(peerID)
	c.removeParticipant(peerID)
	c.chatLimiter.forget(peerID)
	c.broadcastStats()
	c.logger.Info("participant disconnected", "peer", peerID)
}
