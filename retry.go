package mailmerge

import (
	"context"
	"crypto/rand"
	"log/slog"
	"math/big"
	"time"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/lattiq/mailmerge/internal/core"
	"github.com/lattiq/mailmerge/internal/logger"
)

// Delivery describes the transport calls made for one payload.
type Delivery struct {
	// Receipt is set when the transport accepted the message.
	Receipt *Receipt

	// Attempts is the number of transport calls made.
	Attempts int

	// Delays are the backoff sleeps taken, in order.
	Delays []time.Duration
}

// Deliverer sends one payload through a transport, retrying transient failures
// with capped exponential backoff.
type Deliverer struct {
	transport Transport
	userID    string
	config    RetryConfig
	sleep     Sleeper
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewDeliverer creates a deliverer. A nil sleep uses Sleep; a nil logger discards output.
func NewDeliverer(transport Transport, userID string, config RetryConfig, sleep Sleeper, log *slog.Logger) *Deliverer {
	if sleep == nil {
		sleep = Sleep
	}
	if log == nil {
		log = logger.NewNope()
	}
	return &Deliverer{
		transport: transport,
		userID:    userID,
		config:    config,
		sleep:     sleep,
		logger:    log,
		tracer:    noop.NewTracerProvider().Tracer(""),
	}
}

func (d *Deliverer) withTracer(t trace.Tracer) *Deliverer {
	if t != nil {
		d.tracer = t
	}
	return d
}

// backoff returns a fresh schedule: InitialDelay, doubling, capped at MaxDelay.
func (d *Deliverer) backoff() retry.Backoff {
	b := retry.NewExponential(d.config.InitialDelay)
	if d.config.MaxDelay > 0 {
		b = retry.WithCappedDuration(d.config.MaxDelay, b)
	}
	return b
}

// Deliver sends payload, retrying transient failures up to MaxAttempts times.
//
// Every transient failure is followed by a backoff sleep, including the last one,
// after which ErrRetriesExhausted is returned. Any other failure is returned at
// once without sleeping. The returned Delivery is never nil.
func (d *Deliverer) Deliver(ctx context.Context, payload Payload) (*Delivery, error) {
	ctx, span := d.tracer.Start(ctx, "mailmerge.Deliverer.Deliver")
	defer span.End()

	span.SetAttributes(
		attribute.String("mailmerge.transport", d.transport.Name()),
		attribute.Int("mailmerge.payload.size", payload.Size()),
	)

	delivery := &Delivery{}
	b := d.backoff()
	var lastErr error

	for attempt := 1; attempt <= d.config.MaxAttempts; attempt++ {
		delivery.Attempts = attempt

		receipt, err := d.transport.Send(ctx, d.userID, payload)
		if err == nil {
			delivery.Receipt = receipt
			span.SetAttributes(attribute.Int("mailmerge.attempts", attempt))
			if receipt != nil {
				span.SetAttributes(attribute.String("mailmerge.message_id", receipt.MessageID))
			}
			span.SetStatus(codes.Ok, "delivered")
			return delivery, nil
		}
		lastErr = err

		if !IsTransient(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "permanent failure")
			return delivery, &DeliveryError{Attempts: attempt, Cause: err}
		}

		delay, _ := b.Next()
		delivery.Delays = append(delivery.Delays, delay)

		d.logger.WarnContext(ctx, "transient delivery failure, backing off",
			slog.Int("attempt", attempt),
			slog.Int("status", core.StatusCode(err)),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)

		if err := d.sleep(ctx, delay); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "cancelled")
			return delivery, &DeliveryError{Attempts: attempt, Cause: err, Last: lastErr}
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, ErrRetriesExhausted.Error())
	return delivery, &DeliveryError{Attempts: delivery.Attempts, Cause: ErrRetriesExhausted, Last: lastErr}
}

// RandomJitter returns a uniformly distributed duration in [0, max) using
// cryptographically secure randomness.
func RandomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0
	}
	return time.Duration(n.Int64())
}
