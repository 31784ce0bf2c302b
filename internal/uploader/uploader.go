// Package uploader moves serialized payloads from the durable log to the
// collection API in size-bounded batches.
package uploader

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"pulse/internal/constants"
	"pulse/internal/logger"
	"pulse/internal/storage"
	"pulse/pkg/crypto"
	"pulse/pkg/errors"
	"pulse/pkg/jsoncodec"
	"pulse/pkg/metrics"
	"pulse/pkg/models"
	"pulse/pkg/tracing"
)

// Sender posts one serialized batch. *client.Client implements it.
type Sender interface {
	Upload(ctx context.Context, host string, batch []byte) error
}

// Config for an Uploader. Workers bounds concurrent upload jobs; values below 2 are
// raised to 2 so a trigger arriving during an upload always finds a slot to wait in.
type Config struct {
	Instance             string
	WriteKey             string
	FlushQueueSize       int
	FlushInterval        time.Duration
	Workers              int
	NanosecondTimestamps bool
}

// envelope is the wire format of one upload.
type envelope struct {
	Batch    []json.RawMessage `json:"batch"`
	SentAt   string            `json:"sentAt"`
	WriteKey string            `json:"writeKey"`
}

type Uploader struct {
	cfg    Config
	log    storage.Log
	sender Sender
	crypto crypto.Crypto
	logger logger.Logger

	group   *errgroup.Group
	sem     *semaphore.Weighted
	apiHost atomic.Value

	lastSuccess atomic.Int64
	stopped     atomic.Bool
	stop        chan struct{}
	stopOnce    sync.Once
	ticker      sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

func New(cfg Config, log storage.Log, sender Sender, c crypto.Crypto, lg logger.Logger) *Uploader {
	if cfg.Workers < 2 {
		cfg.Workers = 2
	}
	if cfg.FlushQueueSize <= 0 {
		cfg.FlushQueueSize = 1
	}
	if c == nil {
		c = crypto.None()
	}

	group := &errgroup.Group{}
	group.SetLimit(cfg.Workers)

	ctx, cancel := context.WithCancel(context.Background())
	u := &Uploader{
		cfg:    cfg,
		log:    log,
		sender: sender,
		crypto: c,
		logger: lg,
		group:  group,
		sem:    semaphore.NewWeighted(1),
		stop:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
	u.apiHost.Store("")
	u.lastSuccess.Store(time.Now().UnixNano())
	return u
}

// SetAPIHost overrides the client's API host, typically from the Segment.io settings.
func (u *Uploader) SetAPIHost(host string) {
	u.apiHost.Store(host)
}

// Start runs the interval trigger until Stop.
func (u *Uploader) Start() {
	if u.cfg.FlushInterval <= 0 {
		return
	}
	u.ticker.Add(1)
	go func() {
		defer u.ticker.Done()
		t := time.NewTicker(u.cfg.FlushInterval)
		defer t.Stop()
		for {
			select {
			case <-u.stop:
				return
			case <-t.C:
				since := time.Since(time.Unix(0, u.lastSuccess.Load()))
				if since < u.cfg.FlushInterval {
					continue
				}
				if n, err := u.log.Count(u.ctx); err == nil && n > 0 {
					u.Submit()
				}
			}
		}
	}()
}

// Enqueue serializes p into the durable log and submits an upload once the log
// holds FlushQueueSize entries.
func (u *Uploader) Enqueue(ctx context.Context, p models.Payload) error {
	if u.stopped.Load() {
		return errors.IllegalState(errors.MsgShutdown)
	}

	data, err := jsoncodec.Marshal(p)
	if err != nil {
		metrics.AddPayloadsDropped("serialize", 1)
		return errors.ErrPermanentDelivery.WithCause(err).WithDetail("message_id", p.MessageID)
	}
	if len(data) > constants.MaxPayloadSize {
		metrics.AddPayloadsDropped("payload_too_large", 1)
		return errors.ErrPermanentDelivery.
			WithMessage("payload exceeds maximum size").
			WithDetail("message_id", p.MessageID).
			WithDetail("size", len(data))
	}

	sealed, err := u.crypto.Encrypt(data)
	if err != nil {
		metrics.AddPayloadsDropped("encrypt", 1)
		return errors.ErrInternal.WithCause(err)
	}

	evicted, err := u.log.Trim(ctx, constants.MaxQueueSize-1)
	if err != nil {
		return errors.ErrInternal.WithCause(err)
	}
	if evicted > 0 {
		u.logger.WarnwCtx(ctx, "Upload log full, evicted oldest payloads", "evicted", evicted)
		metrics.AddPayloadsDropped("queue_full", evicted)
	}

	if err := u.log.Append(ctx, sealed); err != nil {
		return errors.ErrInternal.WithCause(err)
	}

	count, err := u.log.Count(ctx)
	if err != nil {
		return errors.ErrInternal.WithCause(err)
	}
	metrics.SetUploadLogSize(u.cfg.Instance, count)

	if count >= u.cfg.FlushQueueSize {
		u.Submit()
	}
	return nil
}

// Submit schedules an upload without blocking. When every worker slot is taken
// the trigger is dropped: a queued job will see the same entries.
func (u *Uploader) Submit() bool {
	if u.stopped.Load() {
		return false
	}
	return u.group.TryGo(func() error {
		if err := u.sem.Acquire(u.ctx, 1); err != nil {
			return nil
		}
		defer u.sem.Release(1)
		u.drain(u.ctx)
		return nil
	})
}

// Stop ends the interval trigger and waits for in-flight uploads. Entries not yet
// uploaded stay in the log. If ctx ends first, uploads are cancelled.
func (u *Uploader) Stop(ctx context.Context) error {
	u.stopOnce.Do(func() {
		u.stopped.Store(true)
		close(u.stop)
	})
	u.ticker.Wait()

	done := make(chan struct{})
	go func() {
		_ = u.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		u.cancel()
		return nil
	case <-ctx.Done():
		u.cancel()
		<-done
		return ctx.Err()
	}
}

// drain uploads batches until the log is empty or an upload fails transiently.
func (u *Uploader) drain(ctx context.Context) {
	for ctx.Err() == nil {
		entries, err := u.log.Peek(ctx, constants.MaxQueueSize)
		if err != nil {
			u.logger.Errorw("Failed to read upload log", "error", err)
			return
		}
		if len(entries) == 0 {
			return
		}

		batch, ids, dropped := u.assemble(entries)
		if len(dropped) > 0 {
			if err := u.log.Remove(ctx, dropped...); err != nil {
				u.logger.Errorw("Failed to remove dropped entries", "error", err)
				return
			}
		}
		if len(batch) == 0 {
			continue
		}

		if !u.send(ctx, batch, ids) {
			return
		}
	}
}

// assemble takes the longest prefix of entries whose envelope fits MaxBatchSize.
// Entries that cannot be decrypted, or that could never fit, are returned in dropped.
func (u *Uploader) assemble(entries []storage.Entry) (batch []json.RawMessage, ids []int64, dropped []int64) {
	size := len(`{"batch":[],"sentAt":"","writeKey":""}`) + len(u.cfg.WriteKey) + len(models.FormatTimestamp(time.Now(), true))

	for _, e := range entries {
		data, err := u.crypto.Decrypt(e.Data)
		if err != nil {
			u.logger.Warnw("Dropping unreadable upload log entry", "id", e.ID, "error", err)
			metrics.AddPayloadsDropped("decrypt", 1)
			dropped = append(dropped, e.ID)
			continue
		}

		entrySize := len(data) + 1
		if size+entrySize > constants.MaxBatchSize {
			if len(batch) == 0 {
				u.logger.Warnw("Dropping payload larger than a batch", "id", e.ID, "size", len(data))
				metrics.AddPayloadsDropped("batch_too_large", 1)
				dropped = append(dropped, e.ID)
				continue
			}
			break
		}

		size += entrySize
		batch = append(batch, json.RawMessage(data))
		ids = append(ids, e.ID)
	}
	return batch, ids, dropped
}

// send uploads one batch and applies the outcome to the log. It reports whether
// draining may continue.
func (u *Uploader) send(ctx context.Context, batch []json.RawMessage, ids []int64) bool {
	ctx, span := tracing.GetTracer("pulse-uploader").Start(ctx, "upload.batch")
	defer span.End()
	span.SetAttributes(attribute.Int("batch.size", len(batch)), attribute.String("instance", u.cfg.Instance))

	body, err := jsoncodec.Marshal(envelope{
		Batch:    batch,
		SentAt:   models.FormatTimestamp(time.Now(), u.cfg.NanosecondTimestamps),
		WriteKey: u.cfg.WriteKey,
	})
	if err != nil {
		tracing.RecordError(span, err)
		u.logger.Errorw("Failed to encode batch", "error", err)
		return false
	}

	start := time.Now()
	host, _ := u.apiHost.Load().(string)
	err = u.sender.Upload(ctx, host, body)

	switch {
	case err == nil:
		metrics.IncUploadBatch("success")
		metrics.AddUploadPayloads("success", len(ids))
		metrics.ObserveUploadDuration("success", time.Since(start))
		u.lastSuccess.Store(time.Now().UnixNano())
		u.logger.Debugw("Uploaded batch", "payloads", len(ids), "bytes", len(body))
	case errors.IsPermanentDelivery(err):
		tracing.RecordError(span, err)
		metrics.IncUploadBatch("rejected")
		metrics.AddUploadPayloads("rejected", len(ids))
		metrics.ObserveUploadDuration("rejected", time.Since(start))
		u.logger.Errorw("Upload rejected, dropping batch", "payloads", len(ids), "error", err)
	default:
		tracing.RecordError(span, err)
		metrics.IncUploadBatch("retry")
		metrics.ObserveUploadDuration("retry", time.Since(start))
		u.logger.Warnw("Upload failed, batch kept for retry", "payloads", len(ids), "error", err)
		return false
	}

	if err := u.log.Remove(ctx, ids...); err != nil {
		u.logger.Errorw("Failed to remove uploaded entries", "error", err)
		return false
	}
	if count, err := u.log.Count(ctx); err == nil {
		metrics.SetUploadLogSize(u.cfg.Instance, count)
	}
	return true
}
