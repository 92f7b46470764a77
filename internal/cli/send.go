package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lattiq/mailmerge"
	"github.com/lattiq/mailmerge/internal/logger"
	"github.com/lattiq/mailmerge/internal/recipients"
)

// NewSendCommand returns the command that runs a mail merge.
func NewSendCommand(rt *runtimeState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one message per CSV row",
		Long: `Send renders the subject and body templates for every row of the CSV file
and delivers the result through the configured transport.

Use --dry-run first to check recipients, subjects and attachments without sending.`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			rt.bind(cmd.Flags(), map[string]string{
				keyCSV:         "csv",
				keySender:      "sender",
				keyUserID:      "user-id",
				keyDryRun:      "dry-run",
				keyThrottle:    "throttle",
				keyBatchSize:   "batch-size",
				keyBatchPause:  "batch-pause",
				keyMaxRetries:  "max-retries",
				keySubject:     "subject",
				keyBodyFile:    "body",
				keyHTMLFile:    "html",
				keyAttachments: "attach",
				keyTransport:   "transport",

				keySettings + ".credentials_file": "credentials",
				keySettings + ".token_file":       "token",
			})
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return rt.runSend(ctx)
		},
	}

	flags := cmd.Flags()
	flags.String("csv", defaultCSV, "Recipient CSV file with an Email column")
	flags.String("sender", "", "From address")
	flags.String("user-id", mailmerge.DefaultUserID, "Account to send on behalf of")
	flags.Bool("dry-run", false, "Build every message without sending")
	flags.Duration("throttle", defaultThrottle, "Base pause between sends")
	flags.Int("batch-size", 50, "Sends between batch pauses (0 disables)")
	flags.Duration("batch-pause", mailmerge.DefaultConfig().BatchPause, "Pause after every batch")
	flags.Int("max-retries", mailmerge.DefaultRetryConfig().MaxAttempts, "Transport calls per message")
	flags.String("subject", "", "Subject template")
	flags.String("body", defaultBodyFile, "Plain text or markdown body template file")
	flags.String("html", "", "HTML body template file")
	flags.StringSlice("attach", nil, "File attached to every message (repeatable)")
	flags.String("transport", string(mailmerge.TransportGmail), "Transport: gmail, ses, smtp, mailgun")
	flags.String("credentials", "", "Gmail OAuth client file")
	flags.String("token", "", "Gmail OAuth token file")

	return cmd
}

func (rt *runtimeState) runSend(ctx context.Context) error {
	cfg := dispatchConfig(rt.v)

	log, closeLog, err := logger.New(loggerConfig(rt.v), logger.RunIDExtractor())
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = closeLog() }()

	d, err := mailmerge.New(cfg, mailmerge.WithLogger(log))
	if err != nil {
		return err
	}

	records, err := recipients.ReadFile(rt.v.GetString(keyCSV))
	if err != nil {
		return err
	}

	summary, err := d.Run(ctx, records)
	if summary != nil {
		rt.printSummary(cfg.DryRun, summary)
	}
	return err
}

func (rt *runtimeState) printSummary(dryRun bool, s *mailmerge.RunSummary) {
	if dryRun {
		fmt.Fprintf(rt.stdout, "dry run: previewed %d, skipped %d of %d\n", s.Previewed, s.Skipped, s.Total)
		return
	}
	fmt.Fprintf(rt.stdout, "done: %s\n", s.String())
}
