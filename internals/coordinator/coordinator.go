package coordinator

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/huddlehq/huddle-signal/internals/config"
	"github.com/huddlehq/huddle-signal/internals/feed"
	appmetrics "github.com/huddlehq/huddle-signal/internals/metrics"
	"github.com/huddlehq/huddle-signal/internals/presence"
	"github.com/huddlehq/huddle-signal/internals/roomstate"
	"github.com/huddlehq/huddle-signal/internals/signaling"
)

// ErrStopped is returned by Do once the event loop has exited.
var ErrStopped = errors.New("coordinator stopped")

// Broadcaster delivers outbound frames. signaling.Hub implements it.
type Broadcaster interface {
	Join(group, connectionID string)
	Leave(group, connectionID string)
	SendTo(connectionID string, message signaling.Message) bool
	Publish(group string, message signaling.Message, exclude ...string) int
	Unregister(connectionID string)
}

type Options struct {
	InviteSweepInterval time.Duration
	PruneInterval       time.Duration
	HeartbeatMaxAge     time.Duration
	PresenceMaxAge      time.Duration
	RateLimitPerSec     float64
	RateLimitBurst      int
	MaxIDLength         int
	QueueSize           int

	// Now defaults to time.Now.
	Now func() time.Time
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		InviteSweepInterval: cfg.Signaling.InviteSweepInterval,
		PruneInterval:       cfg.Signaling.HeartbeatPruneInterval,
		HeartbeatMaxAge:     cfg.Signaling.HeartbeatMaxAge,
		PresenceMaxAge:      cfg.Signaling.PresenceMaxAge,
		RateLimitPerSec:     cfg.Signaling.RateLimitPerSec,
		RateLimitBurst:      cfg.Signaling.RateLimitBurst,
		MaxIDLength:         cfg.Signaling.MaxIDLength,
		QueueSize:           1024,
	}
}

type handlerFunc func(connectionID string, message signaling.Message) error

// Coordinator turns inbound events into store calls and outbound
// broadcasts. Every mutation runs on the goroutine executing Run, or on the
// caller's goroutine when the synchronous entry points are used directly, so
// the stores need no locking.
type Coordinator struct {
	opts      Options
	rooms     *roomstate.Store
	presence  *presence.Store
	hub       Broadcaster
	feed      feed.Publisher
	validator signaling.Validator
	logger    *zap.Logger
	now       func() time.Time

	limiters   map[string]*rate.Limiter
	quickTalks map[string]*pendingQuickTalk
	handlers   map[signaling.MessageType]handlerFunc

	events  chan func()
	stopped chan struct{}
}

func New(opts Options, hub Broadcaster, publisher feed.Publisher, logger *zap.Logger) *Coordinator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if publisher == nil {
		publisher = feed.Noop{}
	}

	c := &Coordinator{
		opts:       opts,
		rooms:      roomstate.NewStore(),
		presence:   presence.NewStore(),
		hub:        hub,
		feed:       publisher,
		validator:  signaling.Validator{MaxIDLength: opts.MaxIDLength},
		logger:     logger,
		now:        opts.Now,
		limiters:   make(map[string]*rate.Limiter),
		quickTalks: make(map[string]*pendingQuickTalk),
		events:     make(chan func(), opts.QueueSize),
		stopped:    make(chan struct{}),
	}

	c.handlers = map[signaling.MessageType]handlerFunc{
		signaling.MessageTypePresenceConnect:   c.handlePresenceConnect,
		signaling.MessageTypePresenceStatus:    c.handlePresenceStatus,
		signaling.MessageTypePresenceHeartbeat: c.handlePresenceHeartbeat,
		signaling.MessageTypeJoin:              c.handleJoin,
		signaling.MessageTypeLeave:             c.handleLeave,
		signaling.MessageTypeHeartbeat:         c.handleHeartbeat,
		signaling.MessageTypeOffer:             c.handleOffer,
		signaling.MessageTypeAnswer:            c.handleAnswer,
		signaling.MessageTypeICECandidate:      c.handleICECandidate,
		signaling.MessageTypeScreenShareStart:  c.handleScreenShareStart,
		signaling.MessageTypeScreenShareStop:   c.handleScreenShareStop,
		signaling.MessageTypeCrosstalkStart:    c.handleCrosstalkStart,
		signaling.MessageTypeCrosstalkEnd:      c.handleCrosstalkEnd,
		signaling.MessageTypeCrosstalkInvite:   c.handleCrosstalkInvite,
		signaling.MessageTypeCrosstalkAccept:   c.handleCrosstalkAccept,
		signaling.MessageTypeCrosstalkDecline:  c.handleCrosstalkDecline,
		signaling.MessageTypeQuickTalkRequest:  c.handleQuickTalkRequest,
		signaling.MessageTypeQuickTalkAccept:   c.handleQuickTalkAccept,
		signaling.MessageTypeQuickTalkDecline:  c.handleQuickTalkDecline,
		signaling.MessageTypeQuickTalkCancel:   c.handleQuickTalkCancel,
	}
	return c
}

// Run executes queued events and both sweeps until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	inviteTicker := time.NewTicker(c.opts.InviteSweepInterval)
	pruneTicker := time.NewTicker(c.opts.PruneInterval)
	defer func() {
		inviteTicker.Stop()
		pruneTicker.Stop()
		close(c.stopped)
	}()

	c.logger.Info("Coordinator started",
		zap.Duration("inviteSweep", c.opts.InviteSweepInterval),
		zap.Duration("pruneInterval", c.opts.PruneInterval),
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Coordinator stopped")
			return
		case fn := <-c.events:
			fn()
		case <-inviteTicker.C:
			c.SweepInvitations(c.now())
		case <-pruneTicker.C:
			c.PruneInactive(c.now())
		}
	}
}

func (c *Coordinator) enqueue(fn func()) bool {
	select {
	case c.events <- fn:
		return true
	case <-c.stopped:
		return false
	}
}

// Dispatch queues an inbound message. It is safe to call from any goroutine.
func (c *Coordinator) Dispatch(connectionID string, message signaling.Message) {
	if !c.enqueue(func() { c.HandleMessage(connectionID, message) }) {
		c.logger.Debug("Dropping message after shutdown", zap.String("connectionID", connectionID))
	}
}

// Disconnect queues the cleanup cascade of a closed connection.
func (c *Coordinator) Disconnect(connectionID string) {
	c.enqueue(func() { c.HandleDisconnect(connectionID) })
}

// Do runs fn on the event loop and waits for it.
func (c *Coordinator) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case c.events <- func() { fn(); close(done) }:
	case <-c.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-c.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleMessage validates and applies one inbound message. Failures are
// answered with signal:error to the sender only.
func (c *Coordinator) HandleMessage(connectionID string, message signaling.Message) {
	start := time.Now()
	appmetrics.RecordReceived(string(message.Type))

	if !c.limiter(connectionID).AllowN(c.now(), 1) {
		appmetrics.RateLimitedTotal.Inc()
		c.sendError(connectionID, message.Type, errRateLimited)
		return
	}

	handler, ok := c.handlers[message.Type]
	if !ok {
		c.logger.Debug("Unknown message type",
			zap.String("connectionID", connectionID),
			zap.String("type", string(message.Type)),
		)
		c.sendError(connectionID, message.Type, newReplyError(signaling.CodeUnknownEvent, "unknown event "+string(message.Type), false))
		return
	}

	if err := handler(connectionID, message); err != nil {
		c.sendError(connectionID, message.Type, err)
	}
	appmetrics.EventDurationMs.WithLabelValues(string(message.Type)).
		Observe(float64(time.Since(start).Microseconds()) / 1000)
}

func (c *Coordinator) limiter(connectionID string) *rate.Limiter {
	if l, ok := c.limiters[connectionID]; ok {
		return l
	}
	limit := rate.Inf
	if c.opts.RateLimitPerSec > 0 {
		limit = rate.Limit(c.opts.RateLimitPerSec)
	}
	burst := c.opts.RateLimitBurst
	if burst < 1 {
		burst = 1
	}
	l := rate.NewLimiter(limit, burst)
	c.limiters[connectionID] = l
	return l
}

// HandleDisconnect runs the full cleanup cascade for a closed connection. It
// is a no-op for connections that never bound to anything.
func (c *Coordinator) HandleDisconnect(connectionID string) {
	now := c.now()

	if res := c.rooms.LeaveByConnection(connectionID); res != nil {
		c.announceLeave(*res, reasonDisconnected, now)
	}
	if p, ok := c.presence.RemoveByConnection(connectionID); ok {
		c.hub.Leave(signaling.WorkspaceGroup(p.WorkspaceID), connectionID)
		c.announceOffline(p)
	}
	c.cancelQuickTalksFrom(connectionID)

	delete(c.limiters, connectionID)
	c.hub.Unregister(connectionID)
}

// SweepInvitations expires crosstalk invitations older than the TTL.
func (c *Coordinator) SweepInvitations(now time.Time) {
	for _, exp := range c.rooms.ExpireCrosstalkInvitations(now) {
		appmetrics.RecordInvitation("expired")
		c.notifyInvitationExpired(exp.Invitation, expiryReasonTTL)
	}
}

// PruneInactive evicts peers that stopped heartbeating and presence entries
// that went quiet.
func (c *Coordinator) PruneInactive(now time.Time) {
	evicted := c.rooms.PruneInactivePeers(c.opts.HeartbeatMaxAge, now)
	for _, res := range evicted {
		appmetrics.PeersPrunedTotal.Inc()
		c.logger.Info("Pruned inactive peer",
			zap.String("connectionID", res.ConnectionID),
			zap.String("roomKey", res.RoomKey),
			zap.String("userID", res.UserID),
		)
		c.announceLeave(res, reasonTimeout, now)
	}

	for _, p := range c.presence.PruneStale(c.opts.PresenceMaxAge, now) {
		appmetrics.PresencePrunedTotal.Inc()
		c.hub.Leave(signaling.WorkspaceGroup(p.WorkspaceID), p.ConnectionID)
		c.announceOffline(p)
		c.cancelQuickTalksFrom(p.ConnectionID)
	}

	c.refreshGauges()
}

func (c *Coordinator) refreshGauges() {
	rooms, peers := c.rooms.Stats()
	crosstalks := 0
	for _, r := range c.rooms.GetAllRooms("") {
		crosstalks += r.CrosstalkCount
	}
	appmetrics.SetOccupancy(rooms, peers, crosstalks, c.presence.Count())
}
