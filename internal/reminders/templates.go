package reminders

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = mustParseTemplates()

func mustParseTemplates() map[string]*template.Template {
	files, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		panic(err)
	}

	base := template.Must(template.New("base.html").ParseFS(templateFS, "templates/base.html"))

	sets := make(map[string]*template.Template)
	for _, file := range files {
		if file == "templates/base.html" {
			continue
		}
		set := template.Must(base.Clone())
		template.Must(set.ParseFS(templateFS, file))
		sets[strings.TrimSuffix(strings.TrimPrefix(file, "templates/"), ".html")] = set
	}
	return sets
}

// emailItem is one line in a reminder digest.
type emailItem struct {
	Title   string
	When    string
	Detail  string
	Overdue bool
}

type emailData struct {
	Name   string
	AppURL string
	Items  []emailItem
}

func render(name string, data emailData) (string, error) {
	set, ok := templates[name]
	if !ok {
		return "", fmt.Errorf("unknown email template %q", name)
	}
	var buf bytes.Buffer
	if err := set.ExecuteTemplate(&buf, "base.html", data); err != nil {
		return "", fmt.Errorf("render %s email: %w", name, err)
	}
	return buf.String(), nil
}
