// Package mailmerge sends personalized email to every row of a recipient list.
//
// Each record is rendered through the subject and body templates, assembled into a
// MIME message with optional attachments, encoded, and handed to a single mail
// transport. Transient transport failures are retried with exponential backoff,
// sends are throttled with random jitter, and the run pauses after every batch.
//
// # Basic Usage
//
//	cfg := mailmerge.NewConfig(
//		mailmerge.WithSender("Team <team@example.com>"),
//		mailmerge.WithTemplates("Hello {Name}", "send.txt", ""),
//		mailmerge.WithGmail("credentials.json", "token.json"),
//		mailmerge.WithThrottle(2*time.Second),
//	)
//
//	d, err := mailmerge.New(cfg, mailmerge.WithLogger(slog.Default()))
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	records := []mailmerge.Record{
//		{"Email": "ada@example.com", "Name": "Ada"},
//		{"Email": "alan@example.com", "Name": "Alan", "attachments": "invoices/alan.pdf"},
//	}
//
//	summary, err := d.Run(ctx, records)
//
// # Templates
//
// Placeholders use {Field} syntax, where Field is a column of the recipient list.
// {{ and }} produce literal braces. A template that references a missing column is
// sent verbatim rather than partially filled.
//
// # Transports
//
//   - Gmail API (default), authorized with OAuth2
//   - AWS SES
//   - SMTP
//   - Mailgun
//
// Exactly one transport is used per run; every transport receives the same
// encoded MIME message.
package mailmerge
