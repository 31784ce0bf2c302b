package uploader

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulse/internal/constants"
	"pulse/internal/logger"
	"pulse/internal/storage"
	"pulse/pkg/crypto"
	"pulse/pkg/errors"
	"pulse/pkg/jsoncodec"
	"pulse/pkg/models"
)

type fakeSender struct {
	mu      sync.Mutex
	bodies  [][]byte
	hosts   []string
	results []error
}

func (f *fakeSender) Upload(_ context.Context, host string, batch []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies = append(f.bodies, append([]byte(nil), batch...))
	f.hosts = append(f.hosts, host)
	if len(f.results) == 0 {
		return nil
	}
	err := f.results[0]
	f.results = f.results[1:]
	return err
}

func (f *fakeSender) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bodies)
}

func (f *fakeSender) batch(t *testing.T, i int) []map[string]interface{} {
	t.Helper()
	f.mu.Lock()
	body := f.bodies[i]
	f.mu.Unlock()

	decoded, err := jsoncodec.UnmarshalMap(body)
	require.NoError(t, err)
	raw, ok := decoded["batch"].([]interface{})
	require.True(t, ok)
	out := make([]map[string]interface{}, len(raw))
	for j := range raw {
		out[j] = raw[j].(map[string]interface{})
	}
	return out
}

func payload(t *testing.T, event string, props map[string]interface{}) models.Payload {
	t.Helper()
	p, err := models.NewPayloadBuilder(models.EventTrack).
		WithAnonymousID("anon").
		WithEvent(event).
		WithProperties(props).
		Build()
	require.NoError(t, err)
	return p
}

func newUploader(t *testing.T, cfg Config, sender Sender, c crypto.Crypto) (*Uploader, storage.Log) {
	t.Helper()
	if cfg.WriteKey == "" {
		cfg.WriteKey = "wk_test"
	}
	log := storage.NewMemoryLog()
	u := New(cfg, log, sender, c, logger.NopLogger())
	t.Cleanup(func() { _ = u.Stop(context.Background()) })
	return u, log
}

func count(t *testing.T, l storage.Log) int {
	t.Helper()
	n, err := l.Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestEnqueue_UploadsAtFlushQueueSize(t *testing.T) {
	sender := &fakeSender{}
	u, log := newUploader(t, Config{FlushQueueSize: 3}, sender, nil)
	ctx := context.Background()

	require.NoError(t, u.Enqueue(ctx, payload(t, "e0", nil)))
	require.NoError(t, u.Enqueue(ctx, payload(t, "e1", nil)))
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, sender.calls())

	require.NoError(t, u.Enqueue(ctx, payload(t, "e2", nil)))
	require.Eventually(t, func() bool { return sender.calls() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return count(t, log) == 0 }, time.Second, 5*time.Millisecond)

	batch := sender.batch(t, 0)
	require.Len(t, batch, 3)
	for i, p := range batch {
		assert.Equal(t, fmt.Sprintf("e%d", i), p["event"])
	}

	decoded, err := jsoncodec.UnmarshalMap(sender.bodies[0])
	require.NoError(t, err)
	assert.Equal(t, "wk_test", decoded["writeKey"])
	_, err = models.ParseTimestamp(decoded["sentAt"].(string))
	assert.NoError(t, err)
}

func TestUpload_TransientKeepsBatch(t *testing.T) {
	sender := &fakeSender{results: []error{errors.ErrTransientDelivery.WithMessage("503")}}
	u, log := newUploader(t, Config{FlushQueueSize: 100}, sender, nil)
	ctx := context.Background()

	require.NoError(t, u.Enqueue(ctx, payload(t, "a", nil)))
	require.NoError(t, u.Enqueue(ctx, payload(t, "b", nil)))
	require.True(t, u.Submit())
	require.Eventually(t, func() bool { return sender.calls() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, count(t, log))

	require.True(t, u.Submit())
	require.Eventually(t, func() bool { return count(t, log) == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, sender.calls())
	assert.Equal(t, sender.batch(t, 0), sender.batch(t, 1), "retried batch is identical")
}

func TestUpload_PermanentDropsBatch(t *testing.T) {
	sender := &fakeSender{results: []error{errors.ErrPermanentDelivery.WithMessage("400")}}
	u, log := newUploader(t, Config{FlushQueueSize: 100}, sender, nil)

	require.NoError(t, u.Enqueue(context.Background(), payload(t, "bad", nil)))
	require.True(t, u.Submit())
	require.Eventually(t, func() bool { return count(t, log) == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, sender.calls())
}

func TestEnqueue_RejectsOversizedPayload(t *testing.T) {
	u, log := newUploader(t, Config{FlushQueueSize: 100}, &fakeSender{}, nil)

	big := payload(t, "big", map[string]interface{}{"blob": strings.Repeat("x", constants.MaxPayloadSize)})
	err := u.Enqueue(context.Background(), big)
	require.Error(t, err)
	assert.True(t, errors.IsPermanentDelivery(err))
	assert.Zero(t, count(t, log))
}

func TestUpload_SplitsAtMaxBatchSize(t *testing.T) {
	sender := &fakeSender{}
	u, log := newUploader(t, Config{FlushQueueSize: 1000}, sender, nil)
	ctx := context.Background()

	filler := strings.Repeat("y", 30000)
	for i := 0; i < 20; i++ {
		require.NoError(t, u.Enqueue(ctx, payload(t, fmt.Sprintf("e%02d", i), map[string]interface{}{"filler": filler})))
	}
	require.True(t, u.Submit())
	require.Eventually(t, func() bool { return count(t, log) == 0 }, 2*time.Second, 5*time.Millisecond)

	require.Equal(t, 2, sender.calls())
	first, second := sender.batch(t, 0), sender.batch(t, 1)
	assert.Equal(t, 20, len(first)+len(second))
	assert.Equal(t, "e00", first[0]["event"])
	assert.Equal(t, fmt.Sprintf("e%02d", len(first)), second[0]["event"], "batches never reorder")
	for i := 0; i < 2; i++ {
		assert.LessOrEqual(t, len(sender.bodies[i]), constants.MaxBatchSize)
	}
}

func TestEnqueue_EvictsOldestWhenFull(t *testing.T) {
	u, log := newUploader(t, Config{FlushQueueSize: 5000}, &fakeSender{}, nil)
	ctx := context.Background()

	for i := 0; i < constants.MaxQueueSize+5; i++ {
		require.NoError(t, u.Enqueue(ctx, payload(t, fmt.Sprintf("e%d", i), nil)))
	}
	assert.Equal(t, constants.MaxQueueSize, count(t, log))

	head, err := log.Peek(ctx, 1)
	require.NoError(t, err)
	decoded, err := jsoncodec.UnmarshalMap(head[0].Data)
	require.NoError(t, err)
	assert.Equal(t, "e5", decoded["event"])
}

func TestAssemble_DropsUnreadableAndHugeEntries(t *testing.T) {
	u, _ := newUploader(t, Config{}, &fakeSender{}, nil)

	entries := []storage.Entry{
		{ID: 1, Data: []byte(strings.Repeat("z", constants.MaxBatchSize))},
		{ID: 2, Data: []byte(`{"event":"ok"}`)},
	}
	batch, ids, dropped := u.assemble(entries)
	assert.Equal(t, []int64{2}, ids)
	assert.Equal(t, []int64{1}, dropped)
	assert.Len(t, batch, 1)
}

func TestUpload_EncryptedAtRest(t *testing.T) {
	key := make([]byte, 32)
	c, err := crypto.NewChaCha20(key)
	require.NoError(t, err)

	sender := &fakeSender{}
	u, log := newUploader(t, Config{FlushQueueSize: 100}, sender, c)
	ctx := context.Background()

	require.NoError(t, u.Enqueue(ctx, payload(t, "Secret Event", nil)))
	head, err := log.Peek(ctx, 1)
	require.NoError(t, err)
	assert.NotContains(t, string(head[0].Data), "Secret Event")

	require.True(t, u.Submit())
	require.Eventually(t, func() bool { return sender.calls() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "Secret Event", sender.batch(t, 0)[0]["event"])
}

func TestStart_IntervalTrigger(t *testing.T) {
	sender := &fakeSender{}
	u, log := newUploader(t, Config{FlushQueueSize: 100, FlushInterval: 20 * time.Millisecond}, sender, nil)
	u.Start()

	require.NoError(t, u.Enqueue(context.Background(), payload(t, "tick", nil)))
	require.Eventually(t, func() bool { return count(t, log) == 0 }, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, sender.calls(), 1)
}

func TestStop(t *testing.T) {
	u, log := newUploader(t, Config{FlushQueueSize: 100, FlushInterval: time.Hour}, &fakeSender{}, nil)
	u.Start()
	require.NoError(t, u.Enqueue(context.Background(), payload(t, "kept", nil)))

	require.NoError(t, u.Stop(context.Background()))
	require.NoError(t, u.Stop(context.Background()))
	assert.False(t, u.Submit())

	err := u.Enqueue(context.Background(), payload(t, "late", nil))
	assert.True(t, errors.IsIllegalState(err))
	assert.Equal(t, 1, count(t, log), "pending entries survive for the next start")
}

func TestDestination(t *testing.T) {
	sender := &fakeSender{}
	u, log := newUploader(t, Config{FlushQueueSize: 100}, sender, nil)

	in, err := NewFactory(u).Create(models.ValueMap{"apiKey": "wk_test", "apiHost": "eu.example.com/v1"}, logger.NopLogger())
	require.NoError(t, err)
	d := in.(*Destination)
	assert.Same(t, u, d.Underlying())

	p, err := models.NewPayloadBuilder(models.EventAlias).WithUserID("new").WithPreviousID("old").Build()
	require.NoError(t, err)
	require.NoError(t, d.Alias(context.Background(), p))
	require.NoError(t, d.Flush(context.Background()))

	require.Eventually(t, func() bool { return count(t, log) == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"eu.example.com/v1"}, sender.hosts)
}
