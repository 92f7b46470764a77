package mailmerge

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"gopkg.in/yaml.v3"
)

// Record fields that override the configured templates for a single recipient.
const (
	FieldSubject     = "subject"
	FieldBody        = "body"
	FieldBodyHTML    = "body_html"
	FieldAttachments = "attachments"
)

// Rendering is the result of substituting a record into a template.
// When Complete is false, Text is the original template, unchanged.
type Rendering struct {
	// Text is the rendered output.
	Text string

	// Complete is true when every placeholder was resolved.
	Complete bool

	// Missing lists the placeholder names absent from the record.
	Missing []string

	// Malformed is true when the template has unbalanced braces or an empty field.
	Malformed bool
}

// Render substitutes {name} placeholders with record values.
// If any referenced name is missing, or the template is malformed, the template is
// returned unchanged. Use {{ and }} for literal braces.
func Render(template string, record Record) string {
	return RenderDetailed(template, record).Text
}

// RenderDetailed is Render with resolution details.
func RenderDetailed(template string, record Record) Rendering {
	var b strings.Builder
	b.Grow(len(template))
	var missing []string

	for i := 0; i < len(template); {
		switch c := template[i]; c {
		case '{':
			if i+1 < len(template) && template[i+1] == '{' {
				b.WriteByte('{')
				i += 2
				continue
			}
			end := strings.IndexByte(template[i+1:], '}')
			if end < 0 {
				return malformedRendering(template)
			}
			field := template[i+1 : i+1+end]
			name, ok := placeholderName(field)
			if !ok || strings.ContainsRune(field, '{') {
				return malformedRendering(template)
			}
			if v, ok := record[name]; ok {
				b.WriteString(v)
			} else {
				missing = append(missing, name)
			}
			i += end + 2
		case '}':
			if i+1 < len(template) && template[i+1] == '}' {
				b.WriteByte('}')
				i += 2
				continue
			}
			return malformedRendering(template)
		default:
			b.WriteByte(c)
			i++
		}
	}

	if len(missing) > 0 {
		return Rendering{Text: template, Missing: missing}
	}
	return Rendering{Text: b.String(), Complete: true}
}

// placeholderName strips a conversion (!r) or format spec (:>10) from a field.
// It reports false for an empty name or a conversion other than r, s or a.
func placeholderName(field string) (string, bool) {
	idx := strings.IndexAny(field, "!:")
	if idx < 0 {
		return field, field != ""
	}
	name := field[:idx]
	if field[idx] == '!' {
		conv := field[idx+1:]
		if i := strings.IndexByte(conv, ':'); i >= 0 {
			conv = conv[:i]
		}
		if conv != "r" && conv != "s" && conv != "a" {
			return "", false
		}
	}
	return name, name != ""
}

func malformedRendering(template string) Rendering {
	return Rendering{Text: template, Malformed: true}
}

// Templates holds the subject and body templates shared by every recipient.
type Templates struct {
	// Subject is the subject template.
	Subject string

	// Text is the plain text body template. Empty means no text body.
	Text string

	// HTML is the HTML body template. Empty means no HTML body unless the
	// record provides one or Markdown is set.
	HTML string

	// Markdown renders the text body as markdown to produce the HTML body.
	Markdown bool

	md goldmark.Markdown
}

// Rendered is the personalized content for one recipient.
type Rendered struct {
	Subject string
	Text    string
	HTML    string

	// Missing collects unresolved placeholder names across all templates.
	Missing []string
}

// LoadTemplates reads the configured template files.
func LoadTemplates(cfg TemplateConfig) (*Templates, error) {
	t := &Templates{
		Subject: cfg.Subject,
		md:      goldmark.New(),
	}

	if cfg.BodyFile != "" {
		content, err := os.ReadFile(filepath.Clean(cfg.BodyFile))
		if err != nil {
			return nil, NewTemplateError(cfg.BodyFile, "read", "failed to read body template", err)
		}

		meta, body, err := parseFrontmatter(content)
		if err != nil {
			return nil, NewTemplateError(cfg.BodyFile, "parse", "invalid frontmatter", err)
		}
		t.Text = body

		if t.Subject == "" {
			t.Subject = metaString(meta, "subject")
		}

		ext := strings.ToLower(filepath.Ext(cfg.BodyFile))
		t.Markdown = ext == ".md" || ext == ".markdown"
	}

	if cfg.HTMLFile != "" {
		content, err := os.ReadFile(filepath.Clean(cfg.HTMLFile))
		if err != nil {
			return nil, NewTemplateError(cfg.HTMLFile, "read", "failed to read HTML template", err)
		}
		t.HTML = string(content)
	}

	if t.Subject == "" {
		t.Subject = DefaultSubject
	}

	return t, nil
}

// Render personalizes the templates for a record. Per-record subject, body and
// body_html fields take precedence over the shared templates.
func (t *Templates) Render(record Record) Rendered {
	var out Rendered

	subject := t.Subject
	if v := record.Field(FieldSubject); v != "" {
		subject = v
	}
	text := t.Text
	if v := record.Field(FieldBody); v != "" {
		text = v
	}
	html := t.HTML
	if v := record.Field(FieldBodyHTML); v != "" {
		html = v
	}

	render := func(tpl string) string {
		if tpl == "" {
			return ""
		}
		r := RenderDetailed(tpl, record)
		out.Missing = append(out.Missing, r.Missing...)
		return r.Text
	}

	out.Subject = render(subject)
	out.Text = render(text)
	out.HTML = render(html)

	if out.HTML == "" && t.Markdown && out.Text != "" {
		out.HTML = t.markdownToHTML(out.Text)
	}

	return out
}

func (t *Templates) markdownToHTML(src string) string {
	md := t.md
	if md == nil {
		md = goldmark.New()
	}
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return ""
	}
	return buf.String()
}

// parseFrontmatter splits optional YAML frontmatter delimited by --- lines from the body.
func parseFrontmatter(content []byte) (map[string]any, string, error) {
	delimiter := []byte("---")

	if !bytes.HasPrefix(content, delimiter) {
		return map[string]any{}, string(content), nil
	}

	afterFirst := bytes.TrimPrefix(content, delimiter)
	afterFirst = bytes.TrimLeft(afterFirst, "\n\r")

	endIdx := bytes.Index(afterFirst, delimiter)
	if endIdx == -1 {
		return nil, "", fmt.Errorf("closing delimiter not found")
	}

	front := afterFirst[:endIdx]
	bodyStart := endIdx + len(delimiter)
	if bodyStart < len(afterFirst) {
		if afterFirst[bodyStart] == '\r' && bodyStart+1 < len(afterFirst) && afterFirst[bodyStart+1] == '\n' {
			bodyStart += 2
		} else if afterFirst[bodyStart] == '\n' {
			bodyStart++
		}
	}

	meta := map[string]any{}
	if len(bytes.TrimSpace(front)) > 0 {
		if err := yaml.Unmarshal(front, &meta); err != nil {
			return nil, "", err
		}
	}

	return meta, string(afterFirst[bodyStart:]), nil
}

// metaString looks up a string value case-insensitively.
func metaString(meta map[string]any, key string) string {
	for k, v := range meta {
		if strings.EqualFold(k, key) {
			if s, ok := v.(string); ok {
				return s
			}
			return fmt.Sprint(v)
		}
	}
	return ""
}
