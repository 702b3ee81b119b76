package feed

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEncodeEvent(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		kind    string
		payload interface{}
		want    string
	}{
		{
			name:    "occupancy",
			kind:    EventRoomOccupancy,
			payload: RoomOccupancy{RoomID: "r1", PeerCount: 3},
			want:    `{"roomId":"r1","peerCount":3}`,
		},
		{
			name:    "offline user omits status",
			kind:    EventPresenceChanged,
			payload: PresenceChanged{UserID: "alice"},
			want:    `{"userId":"alice","online":false}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := encodeEvent("node-1", "ws1", tt.kind, tt.payload, at)
			require.NoError(t, err)

			var ev Event
			require.NoError(t, json.Unmarshal(raw, &ev))
			assert.Equal(t, tt.kind, ev.Kind)
			assert.Equal(t, "node-1", ev.InstanceID)
			assert.Equal(t, "ws1", ev.WorkspaceID)
			assert.True(t, at.Equal(ev.At))
			assert.JSONEq(t, tt.want, string(ev.Data))
		})
	}
}

func TestEncodeEventRejectsUnencodable(t *testing.T) {
	_, err := encodeEvent("node-1", "ws1", EventRoomOccupancy, math.Inf(1), time.Now())
	assert.Error(t, err)
}

func TestRedisPublisherChannel(t *testing.T) {
	t.Setenv("INSTANCE_ID", "node-7")
	p := NewRedisPublisher(RedisOptions{Addr: "127.0.0.1:1", ChannelPrefix: "huddle:ws:"}, zap.NewNop())
	defer p.Close()

	assert.Equal(t, "huddle:ws:ws1", p.Channel("ws1"))
	assert.Equal(t, "node-7", p.instanceID)
}

func TestRedisPublisherUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	p := newRedisPublisher(client, "huddle:ws:", zap.NewNop())

	assert.Error(t, p.Ping(context.Background()))

	// Publishing never blocks the caller, even when Redis is down.
	done := make(chan struct{})
	go func() {
		p.PublishRoomOccupancy("ws1", RoomOccupancy{RoomID: "r1", PeerCount: 1})
		p.PublishPresence("ws1", PresenceChanged{UserID: "alice", Online: true})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked")
	}

	assert.NoError(t, p.Close())
}

func TestRedisPublisherKeepsOrder(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	p := newRedisPublisher(client, "huddle:ws:", zap.NewNop())

	var (
		mu   sync.Mutex
		sent []Event
	)
	p.send = func(_ context.Context, channel string, data []byte) error {
		// Slow down the first event so later ones would overtake it if
		// publishing were concurrent.
		mu.Lock()
		first := len(sent) == 0
		mu.Unlock()
		if first {
			time.Sleep(20 * time.Millisecond)
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		assert.Equal(t, "huddle:ws:ws1", channel)
		mu.Lock()
		sent = append(sent, ev)
		mu.Unlock()
		return nil
	}

	for _, n := range []int{3, 2, 1} {
		p.PublishRoomOccupancy("ws1", RoomOccupancy{RoomID: "r1", PeerCount: n})
	}
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	// Dropped once closed.
	p.PublishRoomOccupancy("ws1", RoomOccupancy{RoomID: "r1", PeerCount: 0})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, sent, 3)
	var counts []int
	for _, ev := range sent {
		var o RoomOccupancy
		require.NoError(t, json.Unmarshal(ev.Data, &o))
		counts = append(counts, o.PeerCount)
	}
	assert.Equal(t, []int{3, 2, 1}, counts)
}

func TestNoop(t *testing.T) {
	var p Publisher = Noop{}
	p.PublishRoomOccupancy("ws1", RoomOccupancy{})
	p.PublishPresence("ws1", PresenceChanged{})
	assert.NoError(t, p.Ping(context.Background()))
	assert.NoError(t, p.Close())
}
