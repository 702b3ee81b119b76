package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/huddlehq/huddle-signal/internals/metrics"
)

// Event kinds published on workspace channels.
const (
	EventRoomOccupancy   = "room-occupancy"
	EventPresenceChanged = "presence-changed"
)

// Event is one activity record. Consumers outside the signaling server use
// these to keep room lists and member badges fresh.
type Event struct {
	Kind        string          `json:"kind"`
	InstanceID  string          `json:"instance_id"`
	WorkspaceID string          `json:"workspaceId"`
	Data        json.RawMessage `json:"data"`
	At          time.Time       `json:"at"`
}

type RoomOccupancy struct {
	RoomID    string `json:"roomId"`
	PeerCount int    `json:"peerCount"`
}

type PresenceChanged struct {
	UserID      string `json:"userId"`
	Status      string `json:"status,omitempty"`
	CurrentRoom string `json:"currentRoom,omitempty"`
	Online      bool   `json:"online"`
}

// Publisher receives activity events. Publish must not block the caller.
type Publisher interface {
	PublishRoomOccupancy(workspaceID string, o RoomOccupancy)
	PublishPresence(workspaceID string, p PresenceChanged)
	Ping(ctx context.Context) error
	Close() error
}

// Noop is used when Redis is disabled.
type Noop struct{}

func (Noop) PublishRoomOccupancy(string, RoomOccupancy) {}
func (Noop) PublishPresence(string, PresenceChanged) {}
func (Noop) Ping(context.Context) error { return nil }
func (Noop) Close() error { return nil }

// RedisPublisher fans activity out to Redis pub/sub, one channel per
// workspace. Events are published in the order they were queued by a single
// worker. When the queue is full new events are dropped.
type RedisPublisher struct {
	redis      *redis.Client
	prefix     string
	instanceID string
	timeout    time.Duration
	logger     *zap.Logger

	send  func(ctx context.Context, channel string, data []byte) error
	queue chan outbound
	done  chan struct{}

	mu     sync.Mutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
}

type outbound struct {
	channel string
	kind    string
	data    []byte
}

const queueSize = 1024

type RedisOptions struct {
	Addr          string
	Password      string
	DB            int
	ChannelPrefix string
}

func NewRedisPublisher(opts RedisOptions, logger *zap.Logger) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return newRedisPublisher(client, opts.ChannelPrefix, logger)
}

func newRedisPublisher(client *redis.Client, prefix string, logger *zap.Logger) *RedisPublisher {
	ctx, cancel := context.WithCancel(context.Background())

	instanceID := os.Getenv("INSTANCE_ID")
	if instanceID == "" {
		hostname, err := os.Hostname()
		if err != nil {
			instanceID = "unknown"
		} else {
			instanceID = hostname
		}
	}

	p := &RedisPublisher{
		redis:      client,
		prefix:     prefix,
		instanceID: instanceID,
		timeout:    2 * time.Second,
		logger:     logger,
		queue:      make(chan outbound, queueSize),
		done:       make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
	p.send = func(ctx context.Context, channel string, data []byte) error {
		return client.Publish(ctx, channel, data).Err()
	}
	go p.run()

	logger.Info("Activity feed initialized",
		zap.String("instance_id", instanceID),
		zap.String("prefix", prefix),
	)
	return p
}

// Channel returns the Redis channel name for a workspace.
func (p *RedisPublisher) Channel(workspaceID string) string {
	return p.prefix + workspaceID
}

func (p *RedisPublisher) PublishRoomOccupancy(workspaceID string, o RoomOccupancy) {
	p.publish(workspaceID, EventRoomOccupancy, o)
}

func (p *RedisPublisher) PublishPresence(workspaceID string, pc PresenceChanged) {
	p.publish(workspaceID, EventPresenceChanged, pc)
}

func (p *RedisPublisher) publish(workspaceID, kind string, payload interface{}) {
	data, err := encodeEvent(p.instanceID, workspaceID, kind, payload, time.Now())
	if err != nil {
		p.logger.Error("Failed to marshal feed event", zap.String("kind", kind), zap.Error(err))
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- outbound{channel: p.Channel(workspaceID), kind: kind, data: data}:
	default:
		metrics.RedisErrorsTotal.Inc()
		p.logger.Warn("Feed queue full, dropping event", zap.String("kind", kind))
	}
}

// run publishes queued events one at a time until the queue is closed.
func (p *RedisPublisher) run() {
	defer close(p.done)
	for ev := range p.queue {
		ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
		start := time.Now()
		err := p.send(ctx, ev.channel, ev.data)
		cancel()
		metrics.RedisLatencyMs.Observe(float64(time.Since(start).Microseconds()) / 1000)
		if err != nil {
			metrics.RedisErrorsTotal.Inc()
			p.logger.Warn("Failed to publish feed event",
				zap.String("channel", ev.channel),
				zap.String("kind", ev.kind),
				zap.Error(err),
			)
			continue
		}
		metrics.FeedEventsTotal.WithLabelValues(ev.kind).Inc()
	}
}

func encodeEvent(instanceID, workspaceID, kind string, payload interface{}, at time.Time) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return json.Marshal(Event{
		Kind:        kind,
		InstanceID:  instanceID,
		WorkspaceID: workspaceID,
		Data:        data,
		At:          at,
	})
}

// Ping checks that Redis is reachable.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := p.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close drains the queue and closes the client. Events still queued after
// the publish timeout are abandoned.
func (p *RedisPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	select {
	case <-p.done:
	case <-time.After(p.timeout):
		p.cancel()
		<-p.done
	}
	p.cancel()

	if err := p.redis.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	p.logger.Info("Activity feed closed")
	return nil
}
