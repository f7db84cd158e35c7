package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/crosve/Csphere/internal/config"
	"github.com/crosve/Csphere/internal/ingest"
	"github.com/crosve/Csphere/internal/logging"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// startTestNATSServer starts an embedded JetStream-enabled NATS server.
func startTestNATSServer(t *testing.T) *natsserver.Server {
	t.Helper()
	opts := &natsserver.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		NoLog:     true,
		NoSigs:    true,
		JetStream: true,
		StoreDir:  t.TempDir(),
	}
	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)
	go server.Start()
	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})
	return server
}

type call struct {
	task    string
	payload string
}

type fakeDispatcher struct {
	mu    sync.Mutex
	calls []call
	fn    func(task string, attempt int) error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, task string, payload []byte) error {
	f.mu.Lock()
	f.calls = append(f.calls, call{task, string(payload)})
	attempt := 0
	for _, c := range f.calls {
		if c.task == task {
			attempt++
		}
	}
	fn := f.fn
	f.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(task, attempt)
}

func (f *fakeDispatcher) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

type fixture struct {
	nc     *nats.Conn
	cfg    config.NATSConfig
	pub    *Publisher
	stream func() jetstream.Stream
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	server := startTestNATSServer(t)
	cfg := config.Default().NATS
	cfg.URL = server.ClientURL()
	cfg.RetryDelay = config.Duration(50 * time.Millisecond)
	cfg.AckWait = config.Duration(5 * time.Second)
	cfg.MaxDeliver = 3

	nc, err := Connect(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	pub, err := NewPublisher(nc, cfg)
	require.NoError(t, err)

	js, err := jetstream.New(nc)
	require.NoError(t, err)
	_, err = EnsureStream(context.Background(), js, cfg)
	require.NoError(t, err)

	return &fixture{
		nc:  nc,
		cfg: cfg,
		pub: pub,
		stream: func() jetstream.Stream {
			s, err := js.Stream(context.Background(), cfg.Stream)
			require.NoError(t, err)
			return s
		},
	}
}

func (fx *fixture) run(t *testing.T, d Dispatcher, logger *zap.Logger) {
	t.Helper()
	w, err := New(fx.nc, fx.cfg, d, logger)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("worker did not stop")
		}
	})
}

func (fx *fixture) pending(t *testing.T) uint64 {
	info, err := fx.stream().Info(context.Background())
	require.NoError(t, err)
	return info.State.Msgs
}

func TestWorker_AcksSuccessfulTasks(t *testing.T) {
	fx := newFixture(t)
	d := &fakeDispatcher{}
	fx.run(t, d, nil)

	ctx := context.Background()
	_, err := fx.pub.Publish(ctx, ingest.TaskProcessMessage, ingest.BookmarkMessage{UserID: "u1"}, "")
	require.NoError(t, err)
	_, err = fx.pub.Publish(ctx, ingest.TaskRemoveFromFolder, ingest.RemovalMessage{UserID: "u1"}, "")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(d.Calls()) == 2 }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return fx.pending(t) == 0 }, 5*time.Second, 10*time.Millisecond)

	tasks := map[string]string{}
	for _, c := range d.Calls() {
		tasks[c.task] = c.payload
	}
	assert.Contains(t, tasks[ingest.TaskProcessMessage], `"user_id":"u1"`)
	assert.Contains(t, tasks, ingest.TaskRemoveFromFolder)
}

func TestWorker_RetriesTransientFailures(t *testing.T) {
	fx := newFixture(t)
	d := &fakeDispatcher{fn: func(_ string, attempt int) error {
		if attempt == 1 {
			return errors.New("database is locked")
		}
		return nil
	}}
	log := logging.NewTestLogger()
	fx.run(t, d, log.Underlying())

	_, err := fx.pub.Publish(context.Background(), ingest.TaskProcessFolder, map[string]string{"user_id": "u1"}, "")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(d.Calls()) == 2 }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return fx.pending(t) == 0 }, 5*time.Second, 10*time.Millisecond)
	log.AssertLogged(t, zap.WarnLevel, "task failed, will retry")
}

func TestWorker_TerminatesPermanentFailures(t *testing.T) {
	fx := newFixture(t)
	d := &fakeDispatcher{fn: func(string, int) error {
		return ingest.Permanent(errors.New("bad payload"))
	}}
	log := logging.NewTestLogger()
	fx.run(t, d, log.Underlying())

	_, err := fx.pub.Publish(context.Background(), ingest.TaskProcessMessage, map[string]string{}, "")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return fx.pending(t) == 0 }, 5*time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Len(t, d.Calls(), 1, "terminated tasks are not redelivered")
	log.AssertLogged(t, zap.ErrorLevel, "task failed permanently")
}

func TestWorker_StopsAfterMaxDeliver(t *testing.T) {
	fx := newFixture(t)
	d := &fakeDispatcher{fn: func(string, int) error { return errors.New("oracle down") }}
	log := logging.NewTestLogger()
	fx.run(t, d, log.Underlying())

	_, err := fx.pub.Publish(context.Background(), ingest.TaskProcessMessage, map[string]string{}, "")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(d.Calls()) == fx.cfg.MaxDeliver }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return fx.pending(t) == 0 }, 5*time.Second, 10*time.Millisecond)
	log.AssertLogged(t, zap.ErrorLevel, "task failed after max deliveries")
}

func TestPublisher_Deduplicates(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	first, err := fx.pub.Publish(ctx, ingest.TaskProcessMessage, map[string]string{"user_id": "u1"}, "bookmark-1")
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	second, err := fx.pub.Publish(ctx, ingest.TaskProcessMessage, map[string]string{"user_id": "u1"}, "bookmark-1")
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, uint64(1), fx.pending(t))
}

func TestWorker_RealRegistryUnknownTask(t *testing.T) {
	fx := newFixture(t)
	fx.run(t, ingest.NewRegistry(), nil)

	_, err := fx.pub.Publish(context.Background(), "reticulate_splines", map[string]string{}, "")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return fx.pending(t) == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "csphere.tasks.process_message", Subject("csphere.tasks", ingest.TaskProcessMessage))
}
