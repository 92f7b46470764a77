package mailmerge

import (
	"time"
)

// DefaultSubject is the subject template used when none is configured.
const DefaultSubject = "Subject"

// DefaultUserID addresses the authenticated account itself.
const DefaultUserID = "me"

// Config holds the complete dispatch configuration.
type Config struct {
	// Sender is the From address of every message.
	Sender string

	// UserID identifies the account the transport sends on behalf of.
	UserID string

	// DryRun builds every message but never calls the transport.
	DryRun bool

	// Throttle is the base pause between sends. Zero disables throttling.
	Throttle time.Duration

	// BatchSize is the number of sends between batch pauses. Zero disables batch pauses.
	BatchSize int

	// BatchPause is the pause after every BatchSize sends.
	BatchPause time.Duration

	// CommonAttachments are attached to every message.
	CommonAttachments []string

	// Templates contains template configuration.
	Templates TemplateConfig

	// Retry contains retry policy configuration.
	Retry RetryConfig

	// Transport selects and configures the mail transport.
	Transport TransportConfig

	// Monitoring contains observability configuration.
	Monitoring MonitoringConfig
}

// TransportType represents the type of mail transport.
type TransportType string

const (
	// TransportGmail represents the Gmail API.
	TransportGmail TransportType = "gmail"

	// TransportSES represents Amazon Simple Email Service.
	TransportSES TransportType = "ses"

	// TransportSMTP represents a generic SMTP server.
	TransportSMTP TransportType = "smtp"

	// TransportMailgun represents the Mailgun email service.
	TransportMailgun TransportType = "mailgun"
)

// String returns the string representation of the transport type.
func (tt TransportType) String() string {
	return string(tt)
}

// Valid checks if the transport type is supported.
func (tt TransportType) Valid() bool {
	switch tt {
	case TransportGmail, TransportSES, TransportSMTP, TransportMailgun:
		return true
	default:
		return false
	}
}

// TransportConfig contains transport-specific settings.
type TransportConfig struct {
	// Type specifies the transport to use.
	Type TransportType

	// Settings contains transport-specific key/value settings.
	Settings TransportSettings

	// Timeout bounds a single transport call. Zero means no limit.
	Timeout time.Duration
}

// TemplateConfig contains template sources.
type TemplateConfig struct {
	// Subject is the subject template. When empty, the body file's frontmatter
	// subject or DefaultSubject is used.
	Subject string

	// BodyFile is the path of the plain text (or markdown) body template.
	BodyFile string

	// HTMLFile is the path of an optional HTML body template.
	HTMLFile string
}

// RetryConfig contains retry policy configuration.
type RetryConfig struct {
	// MaxAttempts is the maximum number of transport calls per message.
	MaxAttempts int

	// InitialDelay is the delay after the first transient failure.
	InitialDelay time.Duration

	// MaxDelay caps the delay between attempts.
	MaxDelay time.Duration
}

// MonitoringConfig contains observability configuration.
type MonitoringConfig struct {
	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig

	// Logging contains logging configuration.
	Logging LoggingConfig
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled indicates whether spans and metrics are recorded.
	Enabled bool

	// ServiceName is the instrumentation scope name.
	ServiceName string
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the logging level (debug, info, warn, error).
	Level string

	// Format is the log format (json, text).
	Format string

	// Output is where to write logs (stdout, stderr, or file path).
	Output string
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		UserID:     DefaultUserID,
		BatchSize:  50,
		BatchPause: 60 * time.Second,
		Retry:      DefaultRetryConfig(),
		Transport: TransportConfig{
			Type:     TransportGmail,
			Settings: TransportSettings{},
		},
		Monitoring: MonitoringConfig{
			Tracing: TracingConfig{
				Enabled:     true,
				ServiceName: "github.com/lattiq/mailmerge",
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "text",
				Output: "stderr",
			},
		},
	}
}

// DefaultRetryConfig returns default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 1500 * time.Millisecond,
		MaxDelay:     120 * time.Second,
	}
}

// Validate checks if the configuration is valid and complete.
func (c *Config) Validate() error {
	if c.Sender == "" {
		return &ValidationError{
			Field:   "sender",
			Message: ErrMissingSender.Error(),
		}
	}

	if c.UserID == "" {
		return &ValidationError{
			Field:   "user_id",
			Message: "user id is required",
		}
	}

	if c.Throttle < 0 {
		return &ValidationError{
			Field:   "throttle",
			Message: "throttle must not be negative",
			Value:   c.Throttle,
		}
	}

	if c.BatchSize < 0 {
		return &ValidationError{
			Field:   "batch_size",
			Message: "batch size must not be negative",
			Value:   c.BatchSize,
		}
	}

	if c.BatchPause < 0 {
		return &ValidationError{
			Field:   "batch_pause",
			Message: "batch pause must not be negative",
			Value:   c.BatchPause,
		}
	}

	if c.Retry.MaxAttempts < 1 {
		return &ValidationError{
			Field:   "retry.max_attempts",
			Message: "max attempts must be at least 1",
			Value:   c.Retry.MaxAttempts,
		}
	}

	if c.Retry.InitialDelay <= 0 {
		return &ValidationError{
			Field:   "retry.initial_delay",
			Message: "initial delay must be greater than 0",
		}
	}

	if c.Retry.MaxDelay < c.Retry.InitialDelay {
		return &ValidationError{
			Field:   "retry.max_delay",
			Message: "max delay must not be less than initial delay",
			Value:   c.Retry.MaxDelay,
		}
	}

	if !c.DryRun && !c.Transport.Type.Valid() {
		return &ValidationError{
			Field:   "transport.type",
			Message: "invalid or unsupported transport type: " + string(c.Transport.Type),
		}
	}

	return nil
}
