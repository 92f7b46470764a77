// Package message assembles personalized messages into MIME trees and encodes them
// into the wire payload accepted by transports.
package message

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/mail"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/lattiq/mailmerge/internal/logger"
)

var (
	// ErrAttachmentMissing indicates an attachment path does not resolve to a regular file.
	ErrAttachmentMissing = errors.New("attachment not found")

	// ErrInvalidAddress indicates a From or To value that cannot be written as a header.
	ErrInvalidAddress = errors.New("invalid address")
)

// Content is the rendered content of one message.
// An empty Text or HTML means that body variant is absent.
type Content struct {
	From    string
	To      string
	Subject string
	Text    string
	HTML    string
}

// Entity is a node of a MIME tree: either a *Part or a *Multipart.
type Entity interface {
	// Header returns the entity's own content headers.
	Header() textproto.MIMEHeader
}

// Part is a leaf entity whose body is already transfer-encoded.
type Part struct {
	header textproto.MIMEHeader
	body   []byte
}

// Header implements Entity.
func (p *Part) Header() textproto.MIMEHeader {
	return p.header
}

// Body returns the transfer-encoded body.
func (p *Part) Body() []byte {
	return p.body
}

// ContentType returns the media type without parameters.
func (p *Part) ContentType() string {
	mt, _, err := mime.ParseMediaType(p.header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return mt
}

// Multipart is a container entity.
type Multipart struct {
	Subtype  string
	Boundary string
	Parts    []Entity
}

// Header implements Entity.
func (m *Multipart) Header() textproto.MIMEHeader {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Type", mime.FormatMediaType("multipart/"+m.Subtype, map[string]string{"boundary": m.Boundary}))
	return h
}

type shape int

const (
	shapeSimple shape = iota
	shapeWrapped
)

// Message is a MIME message under construction.
// It is either Simple (a single part, no multipart wrapper) or Wrapped
// (a multipart/mixed container). Attaching a file to a Simple message
// promotes it to Wrapped first.
type Message struct {
	header      textproto.MIMEHeader
	shape       shape
	simple      *Part
	mixed       *Multipart
	attachments []string
	boundary    func() string
	readFile    func(string) ([]byte, error)
	stat        func(string) (fs.FileInfo, error)
}

// Option configures message construction.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	boundary func() string
	readFile func(string) ([]byte, error)
	stat     func(string) (fs.FileInfo, error)
}

// WithLogger sets the logger used for attachment warnings.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithBoundaries sets the multipart boundary generator.
func WithBoundaries(fn func() string) Option {
	return func(o *options) {
		if fn != nil {
			o.boundary = fn
		}
	}
}

func randomBoundary() string {
	return multipart.NewWriter(io.Discard).Boundary()
}

// Build assembles a message from rendered content and attachment paths.
//
// Attachments, or both body variants, produce a multipart/mixed message holding a
// multipart/alternative with the available bodies. A single body variant produces a
// single part. Missing attachment files are skipped with a warning.
func Build(c Content, attachments []string, opts ...Option) (*Message, error) {
	o := options{
		logger:   logger.NewNope(),
		boundary: randomBoundary,
		readFile: os.ReadFile,
		stat:     os.Stat,
	}
	for _, opt := range opts {
		opt(&o)
	}

	m := &Message{
		header:   make(textproto.MIMEHeader),
		boundary: o.boundary,
		readFile: o.readFile,
		stat:     o.stat,
	}
	from, err := formatAddress(c.From)
	if err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	to, err := formatAddress(c.To)
	if err != nil {
		return nil, fmt.Errorf("invalid to address: %w", err)
	}
	m.header.Set("From", from)
	m.header.Set("To", to)
	m.header.Set("Subject", mime.QEncoding.Encode("utf-8", c.Subject))
	m.header.Set("MIME-Version", "1.0")

	hasText, hasHTML := c.Text != "", c.HTML != ""
	switch {
	case len(attachments) > 0 || (hasText && hasHTML):
		alt := &Multipart{Subtype: "alternative", Boundary: m.boundary()}
		if hasText {
			alt.Parts = append(alt.Parts, textPart("plain", c.Text))
		}
		if hasHTML {
			alt.Parts = append(alt.Parts, textPart("html", c.HTML))
		}
		m.shape = shapeWrapped
		m.mixed = &Multipart{Subtype: "mixed", Boundary: m.boundary(), Parts: []Entity{alt}}
	case hasHTML:
		m.simple = textPart("html", c.HTML)
	default:
		m.simple = textPart("plain", c.Text)
	}

	for _, path := range attachments {
		if err := m.AttachFile(path); err != nil {
			if errors.Is(err, ErrAttachmentMissing) {
				o.logger.Warn("attachment not found, skipping", slog.String("path", path))
				continue
			}
			return nil, err
		}
	}

	return m, nil
}

// AttachFile reads the file at path and adds it as an attachment part.
// Returns ErrAttachmentMissing if the path is not an existing regular file.
func (m *Message) AttachFile(path string) error {
	info, err := m.stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s", ErrAttachmentMissing, path)
	}

	data, err := m.readFile(path)
	if err != nil {
		return fmt.Errorf("failed to read attachment %s: %w", path, err)
	}

	m.Attach(filepath.Base(path), data)
	return nil
}

// Attach adds data as an attachment named filename, promoting a Simple message
// to Wrapped if needed.
func (m *Message) Attach(filename string, data []byte) {
	if m.shape == shapeSimple {
		m.promote()
	}
	m.mixed.Parts = append(m.mixed.Parts, attachmentPart(filename, data))
	m.attachments = append(m.attachments, filename)
}

// promote wraps the single part in a multipart/mixed container.
func (m *Message) promote() {
	m.mixed = &Multipart{Subtype: "mixed", Boundary: m.boundary(), Parts: []Entity{m.simple}}
	m.simple = nil
	m.shape = shapeWrapped
}

// Header returns the message-level headers (From, To, Subject, MIME-Version).
func (m *Message) Header() textproto.MIMEHeader {
	return m.header
}

// IsMultipart reports whether the message is Wrapped.
func (m *Message) IsMultipart() bool {
	return m.shape == shapeWrapped
}

// Root returns the top entity of the MIME tree.
func (m *Message) Root() Entity {
	if m.shape == shapeWrapped {
		return m.mixed
	}
	return m.simple
}

// Attachments returns the filenames attached, in order.
func (m *Message) Attachments() []string {
	return m.attachments
}

// formatAddress re-encodes an address so display names are RFC 2047-safe.
// Values with line breaks or that do not parse as a single address are rejected.
func formatAddress(addr string) (string, error) {
	if strings.ContainsAny(addr, "\r\n") {
		return "", fmt.Errorf("%w: %q contains a line break", ErrInvalidAddress, addr)
	}
	parsed, err := mail.ParseAddress(addr)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidAddress, addr, err)
	}
	if parsed.Name == "" {
		return parsed.Address, nil
	}
	return parsed.String(), nil
}
