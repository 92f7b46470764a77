package message

import (
	"bytes"
	"encoding/base64"
	"mime"
	"mime/quotedprintable"
	"net/textproto"
	"path/filepath"
	"strings"
)

// MIMEOctetStream is the fallback type for attachments.
const MIMEOctetStream = "application/octet-stream"

const base64LineLength = 76

// compressedExtensions mark files whose extension describes a content encoding
// rather than a media type.
var compressedExtensions = map[string]struct{}{
	".gz":  {},
	".bz2": {},
	".xz":  {},
	".z":   {},
	".br":  {},
	".zst": {},
}

// DetectContentType returns the media type for a filename by its extension.
func DetectContentType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := compressedExtensions[ext]; ok {
		return MIMEOctetStream
	}

	switch ext {
	case ".pdf":
		return "application/pdf"
	case ".doc":
		return "application/msword"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".xls":
		return "application/vnd.ms-excel"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".ppt":
		return "application/vnd.ms-powerpoint"
	case ".pptx":
		return "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".txt":
		return "text/plain"
	case ".html", ".htm":
		return "text/html"
	case ".csv":
		return "text/csv"
	case ".zip":
		return "application/zip"
	}

	if ext == "" {
		return MIMEOctetStream
	}
	mt, _, err := mime.ParseMediaType(mime.TypeByExtension(ext))
	if err != nil || !strings.Contains(mt, "/") {
		return MIMEOctetStream
	}
	return mt
}

// SplitAttachments splits a per-recipient attachment field on ';' or ','.
// Entries are trimmed and empty entries dropped.
func SplitAttachments(field string) []string {
	parts := strings.FieldsFunc(field, func(r rune) bool {
		return r == ';' || r == ',' || r == '\n' || r == '\r'
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// MergeAttachments unions the common list with the per-recipient list,
// dropping empty and duplicate paths while keeping first-seen order.
func MergeAttachments(common []string, perRecipient []string) []string {
	seen := make(map[string]struct{}, len(common)+len(perRecipient))
	merged := make([]string, 0, len(common)+len(perRecipient))
	for _, list := range [][]string{common, perRecipient} {
		for _, p := range list {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			merged = append(merged, p)
		}
	}
	return merged
}

func textPart(subtype, body string) *Part {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Type", mime.FormatMediaType("text/"+subtype, map[string]string{"charset": "utf-8"}))
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	var buf bytes.Buffer
	qp := quotedprintable.NewWriter(&buf)
	// Writes to a bytes.Buffer cannot fail.
	_, _ = qp.Write([]byte(body))
	_ = qp.Close()

	return &Part{header: h, body: buf.Bytes()}
}

func attachmentPart(filename string, data []byte) *Part {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Type", DetectContentType(filename))
	h.Set("Content-Transfer-Encoding", "base64")
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))

	return &Part{header: h, body: wrapBase64(data)}
}

// wrapBase64 encodes data as base64 in CRLF-terminated lines of 76 characters.
func wrapBase64(data []byte) []byte {
	encoded := base64.StdEncoding.EncodeToString(data)
	var buf bytes.Buffer
	buf.Grow(len(encoded) + 2*(len(encoded)/base64LineLength+1))
	for len(encoded) > base64LineLength {
		buf.WriteString(encoded[:base64LineLength])
		buf.WriteString("\r\n")
		encoded = encoded[base64LineLength:]
	}
	if encoded != "" {
		buf.WriteString(encoded)
		buf.WriteString("\r\n")
	}
	return buf.Bytes()
}
