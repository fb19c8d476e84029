package queue

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T, cfg Config, opts ...Option) *RedisQueue {
	t.Helper()

	q := NewRedisQueue(cfg, opts...)
	t.Cleanup(func() { _ = q.Close() })

	return q
}

func redisURL(s *miniredis.Miniredis) string {
	return "redis://" + s.Addr()
}

func waitSubscribed(t *testing.T, s *miniredis.Miniredis, topic string, n int) {
	t.Helper()

	require.Eventually(t, func() bool {
		return s.PubSubNumSub(topic)[topic] == n
	}, waitFor, tick)
}

func TestRedisQueue_GreetScenario(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := miniredis.RunT(t)

	sender := newTestRedis(t, Config{Name: "greetings", TX: Address(redisURL(s))})
	receiver := newTestRedis(t, Config{Name: "greetings", RX: Address(redisURL(s))})

	require.NoError(t, sender.Connect(ctx))
	require.NoError(t, receiver.Connect(ctx))

	rec := &recorder{}
	require.NoError(t, receiver.On("greet", rec.handle))
	waitSubscribed(t, s, "greet", 1)

	require.NoError(t, sender.Emit(ctx, "greet", "hello"))

	require.Eventually(t, func() bool { return rec.count() == 1 }, waitFor, tick)

	msg := rec.messages()[0]
	assert.Equal(t, "greet", msg.Topic)
	assert.Equal(t, []any{"hello"}, msg.Args)
	assert.Nil(t, msg.Delivery, "pub/sub offers no acknowledgement")
}

func TestRedisQueue_DispatchesByChannel(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := miniredis.RunT(t)

	q := newTestRedis(t, Config{RX: Address(redisURL(s)), TX: Address(redisURL(s))})
	require.NoError(t, q.Connect(ctx))

	xRec, yRec := &recorder{}, &recorder{}
	require.NoError(t, q.On("x", xRec.handle))
	require.NoError(t, q.On("y", yRec.handle))
	waitSubscribed(t, s, "x", 1)
	waitSubscribed(t, s, "y", 1)

	require.NoError(t, q.Emit(ctx, "y", "for-y"))
	require.NoError(t, q.Emit(ctx, "x", "for-x", 1))

	require.Eventually(t, func() bool {
		return xRec.count() == 1 && yRec.count() == 1
	}, waitFor, tick)

	assert.Equal(t, [][]any{{"for-x", float64(1)}}, xRec.args())
	assert.Equal(t, [][]any{{"for-y"}}, yRec.args())
}

func TestRedisQueue_SkipsUndecodableMessages(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := miniredis.RunT(t)

	q := newTestRedis(t, Config{RX: Address(redisURL(s)), TX: Address(redisURL(s))})
	require.NoError(t, q.Connect(ctx))

	rec := &recorder{}
	require.NoError(t, q.On("job", rec.handle))
	waitSubscribed(t, s, "job", 1)

	s.Publish("job", "garbage")
	require.NoError(t, q.Emit(ctx, "job", "ok"))

	require.Eventually(t, func() bool { return rec.count() == 1 }, waitFor, tick)
	assert.Equal(t, [][]any{{"ok"}}, rec.args())
}

func TestRedisQueue_Connect_FromEnv(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := miniredis.RunT(t)

	q := newTestRedis(t, Config{RX: FromEnv(), TX: FromEnv()}, WithEnvironment(mapEnv(map[string]string{
		RedisURLEnv: redisURL(s),
	})))

	require.NoError(t, q.Connect(ctx))

	rec := &recorder{}
	require.NoError(t, q.On("greet", rec.handle))
	waitSubscribed(t, s, "greet", 1)

	require.NoError(t, q.Emit(ctx, "greet", "from env"))
	require.Eventually(t, func() bool { return rec.count() == 1 }, waitFor, tick)
}

func TestRedisQueue_Connect_PrefersDirectionVariables(t *testing.T) {
	t.Parallel()

	q := NewRedisQueue(Config{RX: FromEnv(), TX: FromEnv()}, WithEnvironment(mapEnv(map[string]string{
		RedisRxURLEnv: "redis://rx.local:6379",
		RedisURLEnv:   "redis://shared.local:6379",
	})))

	assert.Equal(t, "redis://rx.local:6379", q.cfg.RX.Addr())
	assert.Equal(t, "redis://shared.local:6379", q.cfg.TX.Addr())
}

func TestRedisQueue_Connect_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantDir Direction
		wantErr error
	}{
		{
			name:    "malformed address",
			cfg:     Config{TX: Address("http://not-redis")},
			wantDir: TX,
		},
		{
			name:    "unset environment",
			cfg:     Config{RX: FromEnv()},
			wantDir: RX,
			wantErr: ErrNoEndpoint,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			q := newTestRedis(t, tt.cfg, WithEnvironment(mapEnv(nil)))

			err := q.Connect(context.Background())

			var connErr *ConnectionError
			require.ErrorAs(t, err, &connErr)
			assert.Equal(t, tt.wantDir, connErr.Direction)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestRedisQueue_ConnectAgainRestoresSubscriptions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := miniredis.RunT(t)

	q := newTestRedis(t, Config{RX: Address(redisURL(s)), TX: Address(redisURL(s))})
	require.NoError(t, q.Connect(ctx))

	rec := &recorder{}
	require.NoError(t, q.On("greet", rec.handle))
	waitSubscribed(t, s, "greet", 1)

	require.NoError(t, q.Connect(ctx))

	// The previous subscriber may still be registered for a moment.
	require.Eventually(t, func() bool {
		_ = q.Emit(ctx, "greet", "again")

		return rec.count() > 0
	}, waitFor, 20*time.Millisecond)

	assert.Equal(t, []any{"again"}, rec.messages()[0].Args)
}

// silentServer accepts connections and never answers, so every command on
// them hangs until the client's read timeout or until stop is called.
func silentServer(t *testing.T) (addr string, stop func()) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		conns []net.Conn
	)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}

			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()

	stop = func() {
		_ = ln.Close()

		mu.Lock()
		defer mu.Unlock()

		for _, c := range conns {
			_ = c.Close()
		}
	}
	t.Cleanup(stop)

	return "redis://" + ln.Addr().String() + "/?read_timeout=5s", stop
}

func TestRedisQueue_EmitNotBlockedBySubscribe(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := miniredis.RunT(t)

	rxAddr, stop := silentServer(t)

	q := newTestRedis(t, Config{RX: Address(rxAddr), TX: Address(redisURL(s))})
	t.Cleanup(stop)
	require.NoError(t, q.Connect(ctx))

	go func() { _ = q.On("slow", func(context.Context, Message) {}) }()

	require.Eventually(t, func() bool {
		return len(q.subs.topics()) == 1
	}, waitFor, tick)

	emitted := make(chan error, 1)
	go func() { emitted <- q.Emit(ctx, "other", 1) }()

	select {
	case err := <-emitted:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("emit waited for a pending subscribe")
	}
}

func TestRedisQueue_EmitAndOnErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := miniredis.RunT(t)

	q := newTestRedis(t, Config{RX: Address(redisURL(s)), TX: Address(redisURL(s))})

	require.ErrorIs(t, q.Emit(ctx, "t", 1), ErrNotConnected)
	require.ErrorIs(t, q.On("t", func(context.Context, Message) {}), ErrNotConnected)

	require.NoError(t, q.Connect(ctx))

	var serErr *SerializationError
	require.ErrorAs(t, q.Emit(ctx, "t", make(chan int)), &serErr)
	require.ErrorIs(t, q.On("t", nil), ErrNilHandler)
}

func TestRedisQueue_Close(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := miniredis.RunT(t)

	q := newTestRedis(t, Config{RX: Address(redisURL(s)), TX: Address(redisURL(s))})
	require.NoError(t, q.Connect(ctx))
	require.NoError(t, q.On("greet", func(context.Context, Message) {}))
	waitSubscribed(t, s, "greet", 1)

	require.NoError(t, q.Close())
	require.NoError(t, q.Close(), "closing twice is tolerated")

	waitSubscribed(t, s, "greet", 0)

	require.ErrorIs(t, q.Connect(ctx), ErrClosed)
	require.ErrorIs(t, q.Emit(ctx, "greet", 1), ErrClosed)
	require.ErrorIs(t, q.On("greet", func(context.Context, Message) {}), ErrClosed)
}

func TestRedisQueue_Ping(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := miniredis.RunT(t)

	q := newTestRedis(t, Config{TX: Address(redisURL(s))})
	require.ErrorIs(t, q.Ping(ctx), ErrNotConnected)

	require.NoError(t, q.Connect(ctx))
	require.NoError(t, q.Ping(ctx))

	s.Close()
	require.Error(t, q.Ping(ctx))

	require.NoError(t, q.Close())
	require.ErrorIs(t, q.Ping(ctx), ErrClosed)
}
