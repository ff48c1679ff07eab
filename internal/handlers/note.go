package handlers

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"

	"thinkbox/internal/contextutil"
	"thinkbox/internal/service"
	"thinkbox/internal/storage"
)

// NoteViewHandler serves a stored note as a rendered HTML page.
type NoteViewHandler struct {
	notes    service.NoteService
	markdown goldmark.Markdown
	template *template.Template
}

// notePageData holds template data for rendered note pages.
type notePageData struct {
	Title     string
	Type      storage.NoteType
	Tags      []string
	URL       string
	URLTitle  string
	FileURL   string
	Updated   string
	Content   template.HTML
	Extracted template.HTML
}

var notePage = template.Must(template.New("note").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Title}} · thinkbox</title>
  <style>
    :root { color-scheme: light dark; }
    body {
      font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif;
      margin: 0 auto;
      padding: 2rem;
      max-width: 860px;
      line-height: 1.65;
      background: #0b1020;
      color: #e2e8f0;
    }
    header { margin-bottom: 1.5rem; }
    h1 { margin: 0; font-size: 1.9rem; color: #f8fafc; }
    .meta { color: #94a3b8; font-size: 0.9rem; margin-top: 0.4rem; }
    .tag {
      display: inline-block;
      margin-right: 0.35rem;
      padding: 1px 8px;
      border-radius: 999px;
      background: rgba(56, 189, 248, 0.15);
      color: #7dd3fc;
    }
    article {
      background: rgba(15, 23, 42, 0.9);
      border: 1px solid rgba(56, 189, 248, 0.2);
      border-radius: 12px;
      padding: 1.75rem;
    }
    pre { background: #020617; padding: 1rem; overflow-x: auto; border-radius: 8px; }
    code { font-family: 'SFMono-Regular', Consolas, Menlo, monospace; }
    blockquote { border-left: 3px solid #38bdf8; margin-left: 0; padding-left: 1rem; color: #bae6fd; }
    details { margin-top: 1.5rem; color: #cbd5e1; }
    a { color: #38bdf8; }
    @media (max-width: 640px) {
      body { padding: 1rem; }
      article { padding: 1.1rem; }
    }
  </style>
</head>
<body>
  <header>
    <h1>{{.Title}}</h1>
    <p class="meta">{{.Type}} &middot; updated {{.Updated}}</p>
    {{if .Tags}}<p>{{range .Tags}}<span class="tag">{{.}}</span>{{end}}</p>{{end}}
    {{if .URL}}<p class="meta"><a href="{{.URL}}" rel="noopener noreferrer">{{if .URLTitle}}{{.URLTitle}}{{else}}{{.URL}}{{end}}</a></p>{{end}}
    {{if .FileURL}}<p class="meta"><a href="{{.FileURL}}" rel="noopener noreferrer">Attached file</a></p>{{end}}
  </header>
  <article>
    {{.Content}}
    {{if .Extracted}}<details><summary>Extracted text</summary>{{.Extracted}}</details>{{end}}
  </article>
</body>
</html>`))

// NewNoteViewHandler creates a new NoteViewHandler.
// Raw HTML in note content is not rendered.
func NewNoteViewHandler(notes service.NoteService) *NoteViewHandler {
	return &NoteViewHandler{
		notes: notes,
		markdown: goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				extension.Table,
				extension.TaskList,
				extension.Strikethrough,
				extension.Linkify,
				extension.Typographer,
			),
			goldmark.WithParserOptions(
				parser.WithAutoHeadingID(),
			),
		),
		template: notePage,
	}
}

// ServeHTTP renders GET /notes/{id} as HTML.
func (h *NoteViewHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)
	id := strings.TrimSpace(chi.URLParam(r, "id"))

	note, err := h.notes.Get(ctx, contextutil.OwnerFromContext(ctx), id)
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to get note")
		return
	}

	content, err := h.renderMarkdown(note.Content)
	if err != nil {
		logger.ErrorContext(ctx, "failed to render markdown", "note_id", id, "error", err)
		http.Error(w, "failed to render note", http.StatusInternalServerError)
		return
	}
	extracted, err := h.renderMarkdown(note.ExtractedText)
	if err != nil {
		logger.ErrorContext(ctx, "failed to render extracted text", "note_id", id, "error", err)
		http.Error(w, "failed to render note", http.StatusInternalServerError)
		return
	}

	pageData := notePageData{
		Title:     note.Title,
		Type:      note.Type,
		Tags:      note.Tags,
		URL:       note.URL,
		URLTitle:  note.URLTitle,
		FileURL:   note.FileURL,
		Updated:   note.UpdatedAt.UTC().Format(time.RFC822),
		Content:   content,
		Extracted: extracted,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.template.Execute(w, pageData); err != nil {
		logger.ErrorContext(ctx, "failed to execute note template", "note_id", id, "error", err)
		http.Error(w, "failed to render note", http.StatusInternalServerError)
		return
	}
}

// renderMarkdown converts markdown to HTML. Empty input renders as empty.
func (h *NoteViewHandler) renderMarkdown(content string) (template.HTML, error) {
	if strings.TrimSpace(content) == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := h.markdown.Convert([]byte(content), &buf); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}
