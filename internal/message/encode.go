package message

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/mail"
	"net/textproto"
	"sort"

	"github.com/lattiq/mailmerge/internal/core"
)

// headerOrder fixes the position of well-known headers in the output.
var headerOrder = []string{
	"From",
	"To",
	"Subject",
	"MIME-Version",
	"Content-Type",
	"Content-Transfer-Encoding",
	"Content-Disposition",
}

// Encode serializes the message and applies the wire encoding.
func Encode(m *Message) (core.Payload, error) {
	raw, err := m.Bytes()
	if err != nil {
		return core.Payload{}, err
	}
	return core.NewPayload(raw), nil
}

// Bytes returns the canonical CRLF form of the message.
func (m *Message) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteTo implements io.WriterTo.
func (m *Message) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}

	root := m.Root()
	h := make(textproto.MIMEHeader, len(m.header)+3)
	for k, v := range m.header {
		h[k] = v
	}
	for k, v := range root.Header() {
		h[k] = v
	}

	if err := writeHeader(cw, h); err != nil {
		return cw.n, err
	}
	if _, err := io.WriteString(cw, "\r\n"); err != nil {
		return cw.n, err
	}
	if err := writeBody(cw, root); err != nil {
		return cw.n, err
	}
	return cw.n, nil
}

func writeHeader(w io.Writer, h textproto.MIMEHeader) error {
	written := make(map[string]struct{}, len(h))
	for _, name := range headerOrder {
		key := textproto.CanonicalMIMEHeaderKey(name)
		for _, v := range h[key] {
			if _, err := fmt.Fprintf(w, "%s: %s\r\n", name, v); err != nil {
				return err
			}
		}
		written[key] = struct{}{}
	}

	rest := make([]string, 0, len(h))
	for k := range h {
		if _, ok := written[k]; !ok {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		for _, v := range h[k] {
			if _, err := fmt.Fprintf(w, "%s: %s\r\n", k, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeBody(w io.Writer, e Entity) error {
	switch e := e.(type) {
	case *Part:
		_, err := w.Write(e.body)
		return err
	case *Multipart:
		mw := multipart.NewWriter(w)
		if err := mw.SetBoundary(e.Boundary); err != nil {
			return fmt.Errorf("invalid boundary %q: %w", e.Boundary, err)
		}
		for _, child := range e.Parts {
			pw, err := mw.CreatePart(child.Header())
			if err != nil {
				return err
			}
			if err := writeBody(pw, child); err != nil {
				return err
			}
		}
		return mw.Close()
	default:
		return fmt.Errorf("unsupported entity %T", e)
	}
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Envelope extracts the sender and recipient addresses from canonical message
// bytes, for transports that need an SMTP-style envelope.
func Envelope(raw []byte) (from string, to []string, err error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse message: %w", err)
	}

	sender, err := mail.ParseAddress(msg.Header.Get("From"))
	if err != nil {
		return "", nil, fmt.Errorf("invalid From header: %w", err)
	}

	recipients, err := msg.Header.AddressList("To")
	if err != nil {
		return "", nil, fmt.Errorf("invalid To header: %w", err)
	}

	to = make([]string, len(recipients))
	for i, r := range recipients {
		to[i] = r.Address
	}
	return sender.Address, to, nil
}
