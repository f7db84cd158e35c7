// Package worker consumes csphere tasks from a NATS JetStream work queue
// and hands each one to the processor registered for its task type.
//
// Tasks are published on "<subject_prefix>.<task_type>". Successful tasks
// are acked, permanent failures are terminated so they are never
// redelivered, and every other failure is nak'ed with a delay until the
// consumer's max_deliver is reached.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/crosve/Csphere/internal/config"
	"github.com/crosve/Csphere/internal/ingest"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("csphere.worker")

const defaultAckWait = 30 * time.Second

// Dispatcher routes a task payload to its processor.
type Dispatcher interface {
	Dispatch(ctx context.Context, taskType string, payload []byte) error
}

// Worker is a JetStream pull consumer.
type Worker struct {
	js         jetstream.JetStream
	cfg        config.NATSConfig
	dispatcher Dispatcher
	logger     *zap.Logger

	sem chan struct{}
	wg  sync.WaitGroup
}

// New creates a worker on nc. Call Run to start consuming.
func New(nc *nats.Conn, cfg config.NATSConfig, d Dispatcher, logger *zap.Logger) (*Worker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("creating jetstream context: %w", err)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.AckWait <= 0 {
		cfg.AckWait = config.Duration(defaultAckWait)
	}
	return &Worker{
		js:         js,
		cfg:        cfg,
		dispatcher: d,
		logger:     logger.With(zap.String("component", "worker")),
		sem:        make(chan struct{}, cfg.Workers),
	}, nil
}

// Run consumes until ctx is cancelled, then waits for in-flight tasks.
// In-flight tasks keep running after cancellation, bounded by ack_wait.
func (w *Worker) Run(ctx context.Context) error {
	stream, err := EnsureStream(ctx, w.js, w.cfg)
	if err != nil {
		return err
	}
	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       w.cfg.Durable,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       w.cfg.AckWait.Duration(),
		MaxDeliver:    w.cfg.MaxDeliver,
		FilterSubject: w.cfg.SubjectPrefix + ".>",
	})
	if err != nil {
		return fmt.Errorf("ensuring consumer %s: %w", w.cfg.Durable, err)
	}

	taskCtx := context.WithoutCancel(ctx)
	cc, err := cons.Consume(func(msg jetstream.Msg) {
		w.sem <- struct{}{}
		w.wg.Add(1)
		go func() {
			defer func() {
				<-w.sem
				w.wg.Done()
			}()
			w.handle(taskCtx, msg)
		}()
	}, jetstream.ConsumeErrHandler(func(_ jetstream.ConsumeContext, err error) {
		w.logger.Warn("jetstream consume error", zap.Error(err))
	}))
	if err != nil {
		return fmt.Errorf("starting consumer: %w", err)
	}

	w.logger.Info("worker started",
		zap.String("stream", w.cfg.Stream),
		zap.String("durable", w.cfg.Durable),
		zap.Int("workers", w.cfg.Workers),
	)
	<-ctx.Done()
	cc.Stop()
	w.wg.Wait()
	w.logger.Info("worker stopped")
	return nil
}

func (w *Worker) handle(ctx context.Context, msg jetstream.Msg) {
	task := strings.TrimPrefix(msg.Subject(), w.cfg.SubjectPrefix+".")

	ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(msg.Headers()))
	ctx, cancel := context.WithTimeout(ctx, w.cfg.AckWait.Duration())
	defer cancel()
	ctx, span := tracer.Start(ctx, "worker.handle",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "nats"),
			attribute.String("messaging.destination.name", msg.Subject()),
			attribute.String("csphere.task", task),
		),
	)
	defer span.End()

	var delivered uint64
	if md, err := msg.Metadata(); err == nil {
		delivered = md.NumDelivered
	}

	InFlight.Inc()
	start := time.Now()
	err := w.dispatcher.Dispatch(ctx, task, msg.Data())
	InFlight.Dec()

	label := task
	if errors.Is(err, ingest.ErrUnknownTask) {
		label = "unknown"
	}
	ProcessDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	result := w.settle(msg, task, delivered, err)
	MessagesTotal.WithLabelValues(label, result).Inc()
}

// settle acks, terminates or naks msg according to err.
func (w *Worker) settle(msg jetstream.Msg, task string, delivered uint64, err error) string {
	log := w.logger.With(zap.String("task", task), zap.Uint64("delivered", delivered))

	var result string
	var ackErr error
	switch {
	case err == nil:
		result = "ok"
		ackErr = msg.Ack()
		log.Debug("task done")
	case ingest.IsPermanent(err):
		result = "terminated"
		ackErr = msg.Term()
		log.Error("task failed permanently", zap.Error(err))
	case w.cfg.MaxDeliver > 0 && delivered >= uint64(w.cfg.MaxDeliver):
		result = "exhausted"
		ackErr = msg.Term()
		log.Error("task failed after max deliveries", zap.Error(err))
	default:
		result = "retry"
		ackErr = msg.NakWithDelay(w.cfg.RetryDelay.Duration())
		log.Warn("task failed, will retry",
			zap.Error(err),
			zap.Duration("retry_delay", w.cfg.RetryDelay.Duration()),
		)
	}
	if ackErr != nil {
		log.Warn("failed to settle message", zap.String("result", result), zap.Error(ackErr))
	}
	return result
}
