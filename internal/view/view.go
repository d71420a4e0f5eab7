package view

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/kdimtricp/phasewatch/internal/phase"
	"github.com/kdimtricp/phasewatch/web"
)

// Fragments are the two HTML pieces refreshed on every frame.
type Fragments struct {
	Banner template.HTML `json:"banner"`
	Phases template.HTML `json:"phases"`
}

type Renderer struct {
	tmpl *template.Template
}

func NewRenderer() (*Renderer, error) {
	tmpl, err := template.ParseFS(web.Templates(), "partials/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse partials: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

func (r *Renderer) Render(snap phase.Snapshot) (Fragments, error) {
	banner, err := r.exec("banner", snap)
	if err != nil {
		return Fragments{}, err
	}
	phases, err := r.exec("phases", snap)
	if err != nil {
		return Fragments{}, err
	}
	return Fragments{Banner: banner, Phases: phases}, nil
}

func (r *Renderer) exec(name string, data any) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return template.HTML(buf.String()), nil
}
