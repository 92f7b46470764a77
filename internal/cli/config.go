package cli

import (
	"time"

	"github.com/spf13/viper"

	"github.com/lattiq/mailmerge"
	"github.com/lattiq/mailmerge/internal/logger"
)

// Config keys. Nested keys map to MAILMERGE_SECTION_KEY environment variables.
const (
	keyCSV          = "csv"
	keySender       = "sender"
	keyUserID       = "user_id"
	keyDryRun       = "dry_run"
	keyThrottle     = "throttle"
	keyBatchSize    = "batch_size"
	keyBatchPause   = "batch_pause"
	keyAttachments  = "attachments"
	keySubject      = "templates.subject"
	keyBodyFile     = "templates.body_file"
	keyHTMLFile     = "templates.html_file"
	keyMaxAttempts  = "retry.max_attempts"
	keyMaxRetries   = "max_retries"
	keyInitialDelay = "retry.initial_delay"
	keyMaxDelay     = "retry.max_delay"
	keyTransport    = "transport.type"
	keyTimeout      = "transport.timeout"
	keySettings     = "transport.settings"
	keyTracing      = "tracing.enabled"
	keyServiceName  = "tracing.service_name"
	keyLogLevel     = "log.level"
	keyLogFormat    = "log.format"
	keyLogOutput    = "log.output"
)

// settingNames are the transport settings that may also come from flags or
// MAILMERGE_TRANSPORT_SETTINGS_* variables.
var settingNames = []string{
	"credentials_file", "token_file",
	"region", "access_key", "secret_key", "session_token", "configuration_set",
	"host", "port", "username", "password", "ssl", "tls_skip_verify",
	"api_key", "domain", "base_url",
}

const (
	defaultCSV      = "recipients.csv"
	defaultBodyFile = "send.txt"
	defaultThrottle = 700 * time.Millisecond
)

func setDefaults(v *viper.Viper) {
	def := mailmerge.DefaultConfig()

	v.SetDefault(keyCSV, defaultCSV)
	v.SetDefault(keyUserID, def.UserID)
	v.SetDefault(keyThrottle, defaultThrottle)
	v.SetDefault(keyBatchSize, def.BatchSize)
	v.SetDefault(keyBatchPause, def.BatchPause)
	v.SetDefault(keySubject, "")
	v.SetDefault(keyBodyFile, defaultBodyFile)
	v.SetDefault(keyMaxAttempts, def.Retry.MaxAttempts)
	v.SetDefault(keyInitialDelay, def.Retry.InitialDelay)
	v.SetDefault(keyMaxDelay, def.Retry.MaxDelay)
	v.SetDefault(keyTransport, string(def.Transport.Type))
	v.SetDefault(keyTimeout, def.Transport.Timeout)
	v.SetDefault(keyTracing, def.Monitoring.Tracing.Enabled)
	v.SetDefault(keyServiceName, def.Monitoring.Tracing.ServiceName)
	v.SetDefault(keyLogLevel, def.Monitoring.Logging.Level)
	v.SetDefault(keyLogFormat, def.Monitoring.Logging.Format)
	v.SetDefault(keyLogOutput, def.Monitoring.Logging.Output)
}

// dispatchConfig assembles the dispatcher configuration from every source viper knows.
func dispatchConfig(v *viper.Viper) mailmerge.Config {
	settings := mailmerge.TransportSettings{}
	for k, val := range v.GetStringMapString(keySettings) {
		settings[k] = val
	}
	for _, name := range settingNames {
		if key := keySettings + "." + name; v.IsSet(key) {
			settings[name] = v.GetString(key)
		}
	}

	maxAttempts := v.GetInt(keyMaxAttempts)
	if v.IsSet(keyMaxRetries) {
		maxAttempts = v.GetInt(keyMaxRetries)
	}

	opts := []mailmerge.Option{
		mailmerge.WithSender(v.GetString(keySender)),
		mailmerge.WithUserID(v.GetString(keyUserID)),
		mailmerge.WithDryRun(v.GetBool(keyDryRun)),
		mailmerge.WithThrottle(v.GetDuration(keyThrottle)),
		mailmerge.WithBatchPause(v.GetInt(keyBatchSize), v.GetDuration(keyBatchPause)),
		mailmerge.WithCommonAttachments(v.GetStringSlice(keyAttachments)...),
		mailmerge.WithTemplates(v.GetString(keySubject), v.GetString(keyBodyFile), v.GetString(keyHTMLFile)),
		mailmerge.WithRetry(maxAttempts, v.GetDuration(keyInitialDelay), v.GetDuration(keyMaxDelay)),
		mailmerge.WithTransport(mailmerge.TransportType(v.GetString(keyTransport)), settings),
		mailmerge.WithTransportTimeout(v.GetDuration(keyTimeout)),
		mailmerge.WithLogging(v.GetString(keyLogLevel), v.GetString(keyLogFormat), v.GetString(keyLogOutput)),
	}
	if v.GetBool(keyTracing) {
		opts = append(opts, mailmerge.WithTracing(v.GetString(keyServiceName)))
	} else {
		opts = append(opts, mailmerge.WithoutTracing())
	}

	return mailmerge.NewConfig(opts...)
}

func loggerConfig(v *viper.Viper) logger.Config {
	return logger.Config{
		Level:  v.GetString(keyLogLevel),
		Format: v.GetString(keyLogFormat),
		Output: v.GetString(keyLogOutput),
	}
}
