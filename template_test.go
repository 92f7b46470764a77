package mailmerge

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	t.Parallel()

	record := Record{"Name": "Ada", "Company": "Analytical Engines", "Empty": ""}

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{"substitutes fields", "Hello {Name} from {Company}", "Hello Ada from Analytical Engines"},
		{"no placeholders", "Plain text", "Plain text"},
		{"empty value", "[{Empty}]", "[]"},
		{"repeated field", "{Name}{Name}", "AdaAda"},
		{"escaped braces", "{{literal}} {Name}", "{literal} Ada"},
		{"closing escape", "a }} b", "a } b"},
		{"format spec ignored", "{Name:>10}!", "Ada!"},
		{"conversion ignored", "{Name!r}", "Ada"},
		{"conversion with spec", "{Name!s:>10}", "Ada"},
		{"empty conversion", "{Name!}", "{Name!}"},
		{"unknown conversion", "{Name!x}", "{Name!x}"},
		{"missing field", "Hello {Missing} and {Name}", "Hello {Missing} and {Name}"},
		{"unclosed brace", "Hello {Name", "Hello {Name"},
		{"stray closing brace", "Hello } {Name}", "Hello } {Name}"},
		{"empty field", "Hello {}", "Hello {}"},
		{"non-ascii", "Grüße, {Name} ✉", "Grüße, Ada ✉"},
		{"empty template", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Render(tt.template, record))
		})
	}
}

func TestRenderDetailed(t *testing.T) {
	t.Parallel()

	complete := RenderDetailed("Hi {Name}", Record{"Name": "Ada"})
	assert.True(t, complete.Complete)
	assert.Empty(t, complete.Missing)
	assert.False(t, complete.Malformed)

	missing := RenderDetailed("Hi {First} {Last}", Record{"First": "Ada"})
	assert.False(t, missing.Complete)
	assert.Equal(t, []string{"Last"}, missing.Missing)
	assert.Equal(t, "Hi {First} {Last}", missing.Text)

	malformed := RenderDetailed("Hi {First", Record{"First": "Ada"})
	assert.False(t, malformed.Complete)
	assert.True(t, malformed.Malformed)
	assert.Equal(t, "Hi {First", malformed.Text)
}

func writeTemplate(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadTemplates_Defaults(t *testing.T) {
	t.Parallel()

	tpl, err := LoadTemplates(TemplateConfig{})
	require.NoError(t, err)
	assert.Equal(t, DefaultSubject, tpl.Subject)
	assert.Empty(t, tpl.Text)
	assert.Empty(t, tpl.HTML)
}

func TestLoadTemplates_FrontmatterSubject(t *testing.T) {
	t.Parallel()

	body := writeTemplate(t, "send.txt", "---\nsubject: Welcome {Name}\n---\nHello {Name}\n")

	tpl, err := LoadTemplates(TemplateConfig{BodyFile: body})
	require.NoError(t, err)
	assert.Equal(t, "Welcome {Name}", tpl.Subject)
	assert.Equal(t, "Hello {Name}\n", tpl.Text)
	assert.False(t, tpl.Markdown)

	explicit, err := LoadTemplates(TemplateConfig{Subject: "Configured", BodyFile: body})
	require.NoError(t, err)
	assert.Equal(t, "Configured", explicit.Subject)
}

func TestLoadTemplates_BracesInBodyAreNotFrontmatter(t *testing.T) {
	t.Parallel()

	body := writeTemplate(t, "send.txt", "Dear {Name},\n--\nregards")

	tpl, err := LoadTemplates(TemplateConfig{BodyFile: body})
	require.NoError(t, err)
	assert.Equal(t, "Dear {Name},\n--\nregards", tpl.Text)
}

func TestLoadTemplates_Errors(t *testing.T) {
	t.Parallel()

	_, err := LoadTemplates(TemplateConfig{BodyFile: filepath.Join(t.TempDir(), "missing.txt")})
	var te *TemplateError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "read", te.Operation)

	unclosed := writeTemplate(t, "bad.txt", "---\nsubject: x\nno closing delimiter")
	_, err = LoadTemplates(TemplateConfig{BodyFile: unclosed})
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "parse", te.Operation)
}

func TestTemplates_RenderMarkdown(t *testing.T) {
	t.Parallel()

	body := writeTemplate(t, "send.md", "Hello **{Name}**\n")

	tpl, err := LoadTemplates(TemplateConfig{Subject: "Hi {Name}", BodyFile: body})
	require.NoError(t, err)
	require.True(t, tpl.Markdown)

	out := tpl.Render(Record{"Name": "Ada"})
	assert.Equal(t, "Hi Ada", out.Subject)
	assert.Equal(t, "Hello **Ada**\n", out.Text)
	assert.Contains(t, out.HTML, "<strong>Ada</strong>")
	assert.Empty(t, out.Missing)
}

func TestTemplates_RenderOverrides(t *testing.T) {
	t.Parallel()

	html := writeTemplate(t, "send.html", "<p>Hello {Name}</p>")
	tpl, err := LoadTemplates(TemplateConfig{Subject: "Shared", HTMLFile: html})
	require.NoError(t, err)

	shared := tpl.Render(Record{"Name": "Ada"})
	assert.Equal(t, "Shared", shared.Subject)
	assert.Empty(t, shared.Text)
	assert.Equal(t, "<p>Hello Ada</p>", shared.HTML)

	overridden := tpl.Render(Record{
		"Name":        "Alan",
		"subject":     "Just for {Name}",
		"body":        "Text for {Name}",
		"body_html":   "<b>{Name}</b>",
		"attachments": "",
	})
	assert.Equal(t, "Just for Alan", overridden.Subject)
	assert.Equal(t, "Text for Alan", overridden.Text)
	assert.Equal(t, "<b>Alan</b>", overridden.HTML)
}

func TestTemplates_RenderCollectsMissing(t *testing.T) {
	t.Parallel()

	tpl := &Templates{Subject: "Hi {Name}", Text: "Your code is {Code}"}
	out := tpl.Render(Record{"Name": "Ada"})

	assert.Equal(t, "Hi Ada", out.Subject)
	assert.Equal(t, "Your code is {Code}", out.Text)
	assert.Equal(t, []string{"Code"}, out.Missing)
}
