package publish

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/fulltick/internal/aggregator"
	"github.com/rickgao/fulltick/internal/config"
	"github.com/rickgao/fulltick/internal/model"
)

var (
	_ aggregator.Handler = (*KafkaPublisher)(nil)
	_ aggregator.Handler = (*RedisPublisher)(nil)
	_ aggregator.Handler = (*NATSPublisher)(nil)
)

func sampleTick() model.Tick {
	ts := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	return model.Tick{
		Symbol:     model.Symbol{Market: model.MarketUS, Code: "BRK.B"},
		Time:       ts,
		LocalTime:  ts.Add(2 * time.Second),
		Price:      decimal.RequireFromString("412.35"),
		Volume:     200,
		Turnover:   decimal.RequireFromString("82470"),
		Direction:  "BUY",
		Sequence:   77,
		Type:       "AUTO_MATCH",
		Endpoint:   model.Endpoint{Host: "127.0.0.1", Port: 11113},
		ReceivedAt: ts.Add(2*time.Second + 5*time.Millisecond),
	}
}

func TestEncode(t *testing.T) {
	tick := sampleTick()
	b, err := Encode(tick)
	require.NoError(t, err)

	var p Payload
	require.NoError(t, json.Unmarshal(b, &p))
	assert.Equal(t, "US.BRK.B", p.Symbol)
	assert.Equal(t, "412.35", p.Price)
	assert.Equal(t, int64(200), p.Volume)
	assert.Equal(t, "82470", p.Turnover)
	assert.Equal(t, int64(77), p.Sequence)
	assert.Equal(t, tick.Time.UnixMilli(), p.Time)
	assert.Equal(t, tick.LocalTime.UnixMilli(), p.LocalTime)
	assert.Equal(t, tick.ReceivedAt.UnixMilli(), p.ReceivedAt)
	assert.Equal(t, "127.0.0.1:11113", p.Endpoint)
}

func TestEncode_ZeroTimes(t *testing.T) {
	b, err := Encode(model.Tick{Symbol: model.Symbol{Market: model.MarketHK, Code: "00700"}})
	require.NoError(t, err)

	var p Payload
	require.NoError(t, json.Unmarshal(b, &p))
	assert.Zero(t, p.Time)
	assert.Zero(t, p.LocalTime)
	assert.Zero(t, p.ReceivedAt)
}

// --- Kafka ---

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisher_KeysBySymbol(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, nil)

	tick := sampleTick()
	require.NoError(t, p.HandleTick(context.Background(), tick))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "US.BRK.B", string(w.msgs[0].Key))
	assert.Equal(t, tick.ReceivedAt, w.msgs[0].Time)

	var payload Payload
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &payload))
	assert.Equal(t, "412.35", payload.Price)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := newKafkaPublisher(w, nil)

	err := p.HandleTick(context.Background(), sampleTick())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "US.BRK.B")
}

func TestNewKafkaPublisher_BuildsWriter(t *testing.T) {
	p := NewKafkaPublisher(config.KafkaSinkConfig{
		Brokers:      []string{"localhost:9092"},
		Topic:        "ticks",
		BatchSize:    50,
		BatchTimeout: 20 * time.Millisecond,
	}, nil)

	w, ok := p.w.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, "ticks", w.Topic)
	assert.Equal(t, 50, w.BatchSize)
	assert.True(t, w.Async)
	assert.IsType(t, &kafka.Hash{}, w.Balancer)
}

// --- Redis ---

type mockPipeline struct {
	redis.Pipeliner

	mu      sync.Mutex
	cmds    []string
	values  map[string]any
	ttls    map[string]time.Duration
	execErr error
	execs   int
}

func (m *mockPipeline) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cmds = append(m.cmds, "SET "+key)
	m.values[key] = value
	m.ttls[key] = expiration
	return redis.NewStatusCmd(ctx)
}

func (m *mockPipeline) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cmds = append(m.cmds, "PUBLISH "+channel)
	return redis.NewIntCmd(ctx)
}

func (m *mockPipeline) Exec(context.Context) ([]redis.Cmder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.execs++
	return nil, m.execErr
}

type mockRedis struct {
	pipe   *mockPipeline
	closed bool
}

func newMockRedis() *mockRedis {
	return &mockRedis{pipe: &mockPipeline{
		values: make(map[string]any),
		ttls:   make(map[string]time.Duration),
	}}
}

func (m *mockRedis) Ping(ctx context.Context) *redis.StatusCmd { return redis.NewStatusCmd(ctx) }
func (m *mockRedis) Pipeline() redis.Pipeliner                  { return m.pipe }
func (m *mockRedis) Close() error                               { m.closed = true; return nil }

func TestRedisPublisher_SetAndPublish(t *testing.T) {
	rdb := newMockRedis()
	p := newRedisPublisher(rdb, config.RedisSinkConfig{
		KeyPrefix: "tick:",
		Channel:   "ticks",
		TTL:       time.Minute,
	}, nil)

	require.NoError(t, p.HandleTick(context.Background(), sampleTick()))

	assert.Equal(t, []string{"SET tick:US.BRK.B", "PUBLISH ticks"}, rdb.pipe.cmds)
	assert.Equal(t, 1, rdb.pipe.execs)
	assert.Equal(t, time.Minute, rdb.pipe.ttls["tick:US.BRK.B"])

	raw, ok := rdb.pipe.values["tick:US.BRK.B"].([]byte)
	require.True(t, ok)
	var payload Payload
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, int64(77), payload.Sequence)

	require.NoError(t, p.Close())
	assert.True(t, rdb.closed)
}

func TestRedisPublisher_ExecError(t *testing.T) {
	rdb := newMockRedis()
	rdb.pipe.execErr = errors.New("connection refused")
	p := newRedisPublisher(rdb, config.RedisSinkConfig{KeyPrefix: "tick:", Channel: "ticks"}, nil)

	err := p.HandleTick(context.Background(), sampleTick())
	require.Error(t, err)
	assert.ErrorContains(t, err, "connection refused")
}

// --- NATS ---

func runEmbeddedNATS(t *testing.T) *server.Server {
	t.Helper()

	ns, err := server.NewServer(&server.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	})
	require.NoError(t, err)

	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatal("nats server not ready")
	}
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return ns
}

func TestNATSPublisher_Subject(t *testing.T) {
	p := NewNATSPublisherFromConn(nil, "ticks", nil)
	assert.Equal(t, "ticks.US.AAPL", p.Subject(model.Symbol{Market: model.MarketUS, Code: "AAPL"}))
	assert.Equal(t, "ticks.US.BRK_B", p.Subject(model.Symbol{Market: model.MarketUS, Code: "BRK.B"}))
}

func TestNATSPublisher_Publishes(t *testing.T) {
	ns := runEmbeddedNATS(t)

	p, err := NewNATSPublisher(ns.ClientURL(), "ticks", "fulltick-test", nil)
	require.NoError(t, err)

	sub, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	defer sub.Close()

	msgs := make(chan *nats.Msg, 4)
	s, err := sub.ChanSubscribe("ticks.US.>", msgs)
	require.NoError(t, err)
	defer s.Unsubscribe()
	require.NoError(t, sub.Flush())

	require.NoError(t, p.HandleTick(context.Background(), sampleTick()))
	require.NoError(t, p.Close())

	select {
	case msg := <-msgs:
		assert.Equal(t, "ticks.US.BRK_B", msg.Subject)
		var payload Payload
		require.NoError(t, json.Unmarshal(msg.Data, &payload))
		assert.Equal(t, "US.BRK.B", payload.Symbol)
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}
}

func TestNATSPublisher_SharedConnStaysOpen(t *testing.T) {
	ns := runEmbeddedNATS(t)

	nc, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	p := NewNATSPublisherFromConn(nc, "ticks", nil)
	require.NoError(t, p.HandleTick(context.Background(), sampleTick()))
	require.NoError(t, p.Close())
	assert.True(t, nc.IsConnected())
}

func TestNewNATSPublisher_BadURL(t *testing.T) {
	_, err := NewNATSPublisher("nats://127.0.0.1:1", "ticks", "fulltick-test", nil)
	require.Error(t, err)
}
