// Package render produces the standalone History.html and
// History_YYYYMMDD.html pages. Output depends only on the page view, so
// re-rendering an unchanged page yields identical bytes.
package render

import (
	"bytes"
	"embed"
	"html/template"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/imgprompt/imgprompt/internal/history"
)

//go:embed assets/history.html.tmpl assets/history.css assets/history.js
var assets embed.FS

// Renderer renders history pages from embedded assets.
type Renderer struct {
	page *template.Template
	css  template.CSS
	js   template.JS
	md   goldmark.Markdown
}

var _ history.Renderer = (*Renderer)(nil)

// pageData is the template data for a history page.
type pageData struct {
	Title         string
	Page          string
	APIBase       string
	ConfirmDelete bool
	Interactive   bool
	Archives      []archiveLink
	Cards         []card
	CSS           template.CSS
	JS            template.JS
}

type archiveLink struct {
	Href  string
	Label string
}

type card struct {
	ID       string
	TS       string
	Prompt   string
	Preview  template.HTML
	Image    string
	HasImage bool
}

// New parses the embedded template and assets.
func New() *Renderer {
	css, err := assets.ReadFile("assets/history.css")
	if err != nil {
		panic(err)
	}
	js, err := assets.ReadFile("assets/history.js")
	if err != nil {
		panic(err)
	}

	return &Renderer{
		page: template.Must(template.New("history.html.tmpl").ParseFS(assets, "assets/history.html.tmpl")),
		css:  template.CSS(css),
		js:   template.JS(js),
		// Raw HTML in prompts is omitted, not passed through.
		md: goldmark.New(
			goldmark.WithExtensions(extension.Strikethrough),
			goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
		),
	}
}

// Render implements history.Renderer. Cards are ordered newest first.
func (r *Renderer) Render(view history.PageView) ([]byte, error) {
	entries := make([]history.Entry, len(view.Entries))
	copy(entries, view.Entries)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].ID > entries[j].ID })

	data := pageData{
		Title:         view.Title,
		Page:          string(view.Page),
		APIBase:       view.APIBase,
		ConfirmDelete: view.ConfirmDelete,
		Interactive:   view.APIBase != "",
		CSS:           r.css,
		JS:            r.js,
	}
	if data.Title == "" {
		data.Title = view.Page.Title()
	}
	for _, key := range view.Archives {
		p := history.Page(key)
		data.Archives = append(data.Archives, archiveLink{Href: p.HTMLFile(), Label: p.HTMLFile()})
	}
	for _, e := range entries {
		img := e.Image()
		data.Cards = append(data.Cards, card{
			ID:       e.ID,
			TS:       e.TS,
			Prompt:   e.Prompt,
			Preview:  r.markdown(e.Prompt),
			Image:    img,
			HasImage: img != "",
		})
	}

	var buf bytes.Buffer
	if err := r.page.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// markdown converts a prompt to HTML for the preview pane.
func (r *Renderer) markdown(md string) template.HTML {
	// "[section]: value" lines would otherwise parse as link reference
	// definitions and vanish from the preview.
	lines := strings.Split(md, "\n")
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimLeft(line, " "), "[") {
			lines[i] = `\` + strings.TrimLeft(line, " ")
		}
	}

	var buf bytes.Buffer
	if err := r.md.Convert([]byte(strings.Join(lines, "\n")), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}
