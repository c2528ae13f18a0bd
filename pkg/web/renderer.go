package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"os"

	"github.com/platinummonkey/workbench/pkg/auth"
	"github.com/platinummonkey/workbench/pkg/projects"
)

//go:embed templates/*.html
var embedded embed.FS

// Page names known to the renderer
const (
	PageLogin     = "login"
	PageRegister  = "register"
	PageDashboard = "dashboard"
	PageProject   = "project"
	PageProfile   = "profile"
	PageAdmin     = "admin"
	PageError     = "error"
)

var pages = []string{PageLogin, PageRegister, PageDashboard, PageProject, PageProfile, PageAdmin, PageError}

// Page is the data every template receives
type Page struct {
	Title    string
	Identity *auth.Identity
	Error    string

	// Form state
	Next  string
	Email string
	Name  string

	Projects []*projects.Project
	Project  *projects.Project
	Tasks    []*projects.Task
	Updates  []*projects.Update
	Users    []*auth.Identity
}

// Renderer writes a named page
type Renderer interface {
	Render(w io.Writer, name string, page *Page) error
}

// TemplateRenderer renders html/template pages. Each page is parsed
// together with layout.html.
type TemplateRenderer struct {
	templates map[string]*template.Template
}

// NewTemplateRenderer parses the pages under dir, or the built-in pages when
// dir is empty
func NewTemplateRenderer(dir string) (*TemplateRenderer, error) {
	var fsys fs.FS
	if dir == "" {
		sub, err := fs.Sub(embedded, "templates")
		if err != nil {
			return nil, fmt.Errorf("failed to open built-in templates: %w", err)
		}
		fsys = sub
	} else {
		fsys = os.DirFS(dir)
	}

	r := &TemplateRenderer{templates: make(map[string]*template.Template, len(pages))}
	for _, name := range pages {
		tmpl, err := template.New("layout").ParseFS(fsys, "layout.html", name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		r.templates[name] = tmpl
	}
	return r, nil
}

// Render executes the named page into w. Nothing is written when execution
// fails.
func (r *TemplateRenderer) Render(w io.Writer, name string, page *Page) error {
	tmpl, ok := r.templates[name]
	if !ok {
		return fmt.Errorf("unknown template: %s", name)
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", page); err != nil {
		return fmt.Errorf("failed to render %s: %w", name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}
