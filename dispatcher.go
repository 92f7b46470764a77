package mailmerge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/lattiq/mailmerge/internal/logger"
	"github.com/lattiq/mailmerge/internal/message"
)

// throttleJitterPercent bounds the random part of the pause between sends.
const throttleJitterPercent = 60

// Dispatcher runs a mail merge: one personalized message per record, sent strictly
// in input order through a single transport.
type Dispatcher struct {
	config     Config
	templates  *Templates
	common     []string
	transport  Transport
	deliverer  *Deliverer
	logger     *slog.Logger
	sleep      Sleeper
	jitter     Jitter
	boundaries func() string
	tracer     trace.Tracer
	messages   metric.Int64Counter
	attempts   metric.Int64Histogram
}

// NewConfig returns DefaultConfig with opts applied.
func NewConfig(opts ...Option) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// New creates a dispatcher for cfg. Template files are read here; the transport is
// created on the first Run that needs it unless one is supplied with
// WithTransportInstance.
func New(cfg Config, opts ...DispatcherOption) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	templates, err := LoadTemplates(cfg.Templates)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	d := &Dispatcher{
		config:    cfg,
		templates: templates,
		common:    append([]string(nil), cfg.CommonAttachments...),
		logger:    logger.NewNope(),
		sleep:     Sleep,
		jitter:    RandomJitter,
	}
	for _, opt := range opts {
		opt(d)
	}

	if err := d.initTelemetry(); err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	return d, nil
}

func (d *Dispatcher) initTelemetry() error {
	tracing := d.config.Monitoring.Tracing
	if !tracing.Enabled {
		d.tracer = noop.NewTracerProvider().Tracer("")
		meter := metricnoop.NewMeterProvider().Meter("")
		d.messages, _ = meter.Int64Counter("mailmerge.messages")
		d.attempts, _ = meter.Int64Histogram("mailmerge.delivery.attempts")
		return nil
	}

	name := tracing.ServiceName
	if name == "" {
		name = "github.com/lattiq/mailmerge"
	}
	d.tracer = otel.Tracer(name)

	meter := otel.Meter(name)
	var err error
	d.messages, err = meter.Int64Counter("mailmerge.messages",
		metric.WithDescription("Messages processed, by outcome"))
	if err != nil {
		return err
	}
	d.attempts, err = meter.Int64Histogram("mailmerge.delivery.attempts",
		metric.WithDescription("Transport calls per delivered or failed message"))
	return err
}

// Templates returns the loaded templates.
func (d *Dispatcher) Templates() *Templates {
	return d.templates
}

// Run dispatches one message per record, in order.
//
// Per-record failures are counted and never stop the run. When ctx is cancelled,
// Run stops before the next record or during a pause and returns the partial
// summary together with ctx.Err().
func (d *Dispatcher) Run(ctx context.Context, records []Record) (*RunSummary, error) {
	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)

	ctx, span := d.tracer.Start(ctx, "mailmerge.Dispatcher.Run",
		trace.WithAttributes(
			attribute.String("mailmerge.run_id", runID),
			attribute.Int("mailmerge.records", len(records)),
			attribute.Bool("mailmerge.dry_run", d.config.DryRun),
		),
	)
	defer span.End()

	summary := &RunSummary{RunID: runID, Total: len(records)}

	if len(records) == 0 {
		d.logger.InfoContext(ctx, "no recipients")
		span.SetStatus(codes.Ok, "no recipients")
		return summary, nil
	}

	if !d.config.DryRun {
		if err := d.ensureDeliverer(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "transport unavailable")
			return summary, err
		}
	}

	var attempted int
	for i, record := range records {
		if err := ctx.Err(); err != nil {
			return d.finish(ctx, span, summary, err)
		}

		result := d.dispatch(ctx, i+1, record)
		summary.Record(result)
		d.observe(ctx, result)

		if d.config.DryRun || (result.Outcome != OutcomeSent && result.Outcome != OutcomeFailed) {
			continue
		}
		attempted++

		if i == len(records)-1 {
			break
		}

		if err := d.throttle(ctx); err != nil {
			return d.finish(ctx, span, summary, err)
		}

		if d.config.BatchSize > 0 && attempted%d.config.BatchSize == 0 && d.config.BatchPause > 0 {
			d.logger.InfoContext(ctx, "batch pause",
				slog.Int("sent", attempted),
				slog.Duration("pause", d.config.BatchPause),
			)
			if err := d.sleep(ctx, d.config.BatchPause); err != nil {
				return d.finish(ctx, span, summary, err)
			}
		}
	}

	return d.finish(ctx, span, summary, nil)
}

func (d *Dispatcher) finish(ctx context.Context, span trace.Span, summary *RunSummary, err error) (*RunSummary, error) {
	span.SetAttributes(
		attribute.Int("mailmerge.sent", summary.Sent),
		attribute.Int("mailmerge.failed", summary.Failed),
		attribute.Int("mailmerge.skipped", summary.Skipped),
	)

	attrs := []any{
		slog.Int("sent", summary.Sent),
		slog.Int("failed", summary.Failed),
		slog.Int("skipped", summary.Skipped),
		slog.Int("total", summary.Total),
	}
	if d.config.DryRun {
		attrs = append(attrs, slog.Int("previewed", summary.Previewed))
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "run interrupted")
		d.logger.WarnContext(ctx, "run interrupted", append(attrs, slog.String("error", err.Error()))...)
		return summary, err
	}

	span.SetStatus(codes.Ok, summary.String())
	d.logger.InfoContext(ctx, "run complete", attrs...)
	return summary, nil
}

// throttle pauses for Throttle plus up to 60% random jitter.
func (d *Dispatcher) throttle(ctx context.Context) error {
	base := d.config.Throttle
	if base <= 0 {
		return nil
	}
	pause := base + d.jitter(base*throttleJitterPercent/100)
	return d.sleep(ctx, pause)
}

func (d *Dispatcher) ensureDeliverer(ctx context.Context) error {
	if d.deliverer != nil {
		return nil
	}

	if d.transport == nil {
		t, err := NewTransport(ctx, d.config.Transport, d.logger)
		if err != nil {
			return fmt.Errorf("failed to create transport: %w", err)
		}
		d.transport = t
	}

	d.deliverer = NewDeliverer(d.transport, d.config.UserID, d.config.Retry, d.sleep, d.logger).withTracer(d.tracer)
	return nil
}

// dispatch processes a single record. It never panics.
func (d *Dispatcher) dispatch(ctx context.Context, index int, record Record) (result Result) {
	result = Result{Index: index, Email: record.Email()}

	ctx, span := d.tracer.Start(ctx, "mailmerge.Dispatcher.dispatch",
		trace.WithAttributes(attribute.Int("mailmerge.index", index)))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: %v", ErrRecordPanic, r)
			result.Outcome = OutcomeFailed
			result.Err = err
			span.RecordError(err)
			span.SetStatus(codes.Error, "panic")
			d.logger.ErrorContext(ctx, "recipient processing panicked",
				slog.Int("index", index),
				slog.String("email", result.Email),
				slog.String("error", err.Error()),
			)
		}
	}()

	if result.Email == "" {
		result.Outcome = OutcomeSkipped
		span.SetStatus(codes.Ok, "skipped")
		d.logger.InfoContext(ctx, "skipping record without email", slog.Int("index", index))
		return result
	}
	span.SetAttributes(attribute.String("mailmerge.to", result.Email))

	rendered := d.templates.Render(record)
	result.Subject = rendered.Subject
	if len(rendered.Missing) > 0 {
		d.logger.DebugContext(ctx, "template left unrendered, placeholders missing",
			slog.Int("index", index),
			slog.Any("missing", rendered.Missing),
		)
	}

	paths := message.MergeAttachments(d.common, message.SplitAttachments(record.Field(FieldAttachments)))
	msg, err := message.Build(message.Content{
		From:    d.config.Sender,
		To:      result.Email,
		Subject: rendered.Subject,
		Text:    rendered.Text,
		HTML:    rendered.HTML,
	}, paths,
		message.WithLogger(d.logger.With(slog.Int("index", index), slog.String("email", result.Email))),
		message.WithBoundaries(d.boundaries),
	)
	if err != nil {
		return d.fail(ctx, span, result, fmt.Errorf("failed to build message: %w", err))
	}
	result.Attachments = len(msg.Attachments())

	payload, err := message.Encode(msg)
	if err != nil {
		return d.fail(ctx, span, result, fmt.Errorf("failed to encode message: %w", err))
	}

	if d.config.DryRun {
		result.Outcome = OutcomePreviewed
		span.SetStatus(codes.Ok, "previewed")
		d.logger.InfoContext(ctx, "dry run, not sending",
			slog.Int("index", index),
			slog.String("to", result.Email),
			slog.String("subject", rendered.Subject),
			slog.Int("attachments", result.Attachments),
		)
		return result
	}

	delivery, err := d.deliverer.Deliver(ctx, payload)
	result.Attempts = delivery.Attempts
	if err != nil {
		return d.fail(ctx, span, result, err)
	}

	result.Outcome = OutcomeSent
	result.Receipt = delivery.Receipt
	span.SetStatus(codes.Ok, "sent")

	attrs := []any{
		slog.Int("index", index),
		slog.String("to", result.Email),
		slog.String("subject", rendered.Subject),
		slog.Int("attachments", result.Attachments),
		slog.Int("attempts", result.Attempts),
	}
	if delivery.Receipt != nil {
		attrs = append(attrs, slog.String("message_id", delivery.Receipt.MessageID))
	}
	d.logger.InfoContext(ctx, "sent", attrs...)

	return result
}

func (d *Dispatcher) fail(ctx context.Context, span trace.Span, result Result, err error) Result {
	result.Outcome = OutcomeFailed
	result.Err = err
	span.RecordError(err)
	span.SetStatus(codes.Error, "failed")

	attrs := []any{
		slog.Int("index", result.Index),
		slog.String("to", result.Email),
		slog.String("error", err.Error()),
	}
	if result.Attempts > 0 {
		attrs = append(attrs, slog.Int("attempts", result.Attempts))
	}
	if errors.Is(err, ErrRetriesExhausted) {
		d.logger.ErrorContext(ctx, "giving up after retries", attrs...)
	} else {
		d.logger.ErrorContext(ctx, "failed to send", attrs...)
	}
	return result
}

func (d *Dispatcher) observe(ctx context.Context, result Result) {
	d.messages.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", result.Outcome.String())))
	if result.Attempts > 0 {
		d.attempts.Record(ctx, int64(result.Attempts))
	}
}
