package mailmerge

import (
	"log/slog"
	"time"
)

// Option is a functional option for configuring the dispatcher.
type Option func(*Config)

// WithSender sets the From address.
func WithSender(sender string) Option {
	return func(c *Config) {
		c.Sender = sender
	}
}

// WithUserID sets the account the transport sends on behalf of.
func WithUserID(userID string) Option {
	return func(c *Config) {
		c.UserID = userID
	}
}

// WithDryRun enables or disables dry-run mode.
func WithDryRun(enabled bool) Option {
	return func(c *Config) {
		c.DryRun = enabled
	}
}

// WithThrottle sets the base pause between sends.
func WithThrottle(d time.Duration) Option {
	return func(c *Config) {
		c.Throttle = d
	}
}

// WithBatchPause pauses for pause after every size sends.
func WithBatchPause(size int, pause time.Duration) Option {
	return func(c *Config) {
		c.BatchSize = size
		c.BatchPause = pause
	}
}

// WithCommonAttachments sets the files attached to every message.
func WithCommonAttachments(paths ...string) Option {
	return func(c *Config) {
		c.CommonAttachments = append([]string(nil), paths...)
	}
}

// WithTemplates sets the subject template and body template files.
func WithTemplates(subject, bodyFile, htmlFile string) Option {
	return func(c *Config) {
		c.Templates.Subject = subject
		c.Templates.BodyFile = bodyFile
		c.Templates.HTMLFile = htmlFile
	}
}

// WithRetry configures retry behavior.
func WithRetry(maxAttempts int, initialDelay, maxDelay time.Duration) Option {
	return func(c *Config) {
		c.Retry.MaxAttempts = maxAttempts
		c.Retry.InitialDelay = initialDelay
		c.Retry.MaxDelay = maxDelay
	}
}

// WithTransport sets the transport type and its settings.
func WithTransport(transportType TransportType, settings TransportSettings) Option {
	return func(c *Config) {
		c.Transport.Type = transportType
		c.Transport.Settings = settings
	}
}

// WithTransportTimeout bounds a single transport call.
func WithTransportTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Transport.Timeout = timeout
	}
}

// WithTracing configures spans and metrics.
func WithTracing(serviceName string) Option {
	return func(c *Config) {
		c.Monitoring.Tracing.Enabled = true
		c.Monitoring.Tracing.ServiceName = serviceName
	}
}

// WithoutTracing disables spans and metrics.
func WithoutTracing() Option {
	return func(c *Config) {
		c.Monitoring.Tracing.Enabled = false
	}
}

// WithLogging configures logging.
func WithLogging(level, format, output string) Option {
	return func(c *Config) {
		c.Monitoring.Logging.Level = level
		c.Monitoring.Logging.Format = format
		c.Monitoring.Logging.Output = output
	}
}

// WithGmail selects the Gmail API transport.
func WithGmail(credentialsFile, tokenFile string) Option {
	return WithTransport(TransportGmail, TransportSettings{
		"credentials_file": credentialsFile,
		"token_file":       tokenFile,
	})
}

// WithSES selects the AWS SES transport.
func WithSES(region string) Option {
	return WithTransport(TransportSES, TransportSettings{
		"region": region,
	})
}

// WithSMTP selects the SMTP transport.
func WithSMTP(host, port, username, password string) Option {
	return WithTransport(TransportSMTP, TransportSettings{
		"host":     host,
		"port":     port,
		"username": username,
		"password": password,
	})
}

// WithMailgun selects the Mailgun transport.
func WithMailgun(apiKey, domain string) Option {
	return WithTransport(TransportMailgun, TransportSettings{
		"api_key": apiKey,
		"domain":  domain,
	})
}

// DispatcherOption configures collaborators of a Dispatcher that are not
// part of Config.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithTransportInstance uses t instead of building one from TransportConfig.
func WithTransportInstance(t Transport) DispatcherOption {
	return func(d *Dispatcher) {
		d.transport = t
	}
}

// WithSleeper replaces the sleep function used for throttling, batch pauses and backoff.
func WithSleeper(s Sleeper) DispatcherOption {
	return func(d *Dispatcher) {
		if s != nil {
			d.sleep = s
		}
	}
}

// WithJitter replaces the throttle jitter source.
func WithJitter(j Jitter) DispatcherOption {
	return func(d *Dispatcher) {
		if j != nil {
			d.jitter = j
		}
	}
}

// WithBoundaries replaces the MIME boundary generator.
func WithBoundaries(fn func() string) DispatcherOption {
	return func(d *Dispatcher) {
		d.boundaries = fn
	}
}
