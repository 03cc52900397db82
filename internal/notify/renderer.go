package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html"
	"strings"
	"text/template"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// Renderer renders reminder messages and the HTML email shell from templates.
type Renderer struct {
	templates map[string]*template.Template
}

// NewRenderer creates a new renderer and loads all templates.
func NewRenderer() (*Renderer, error) {
	funcMap := template.FuncMap{
		"title":      titleCase,
		"formatDate": formatClassDate,
		"formatTime": formatClassTime,
	}

	r := &Renderer{templates: make(map[string]*template.Template)}

	for _, name := range []string{"email_html", "reminder_body"} {
		filename := fmt.Sprintf("templates/%s.tmpl", name)

		content, err := templatesFS.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", filename, err)
		}

		tmpl, err := template.New(name).Funcs(funcMap).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}

		r.templates[name] = tmpl
	}

	return r, nil
}

// reminderData is the context for the reminder body template.
type reminderData struct {
	StudentName string
	ClassDate   string
	ClassTime   string
}

// RenderReminder renders the subject and plain-text body of a class reminder.
func (r *Renderer) RenderReminder(studentName string, classTime time.Time) (subject, body string, err error) {
	data := reminderData{
		StudentName: studentName,
		ClassDate:   formatClassDate(classTime),
		ClassTime:   formatClassTime(classTime),
	}

	subject = fmt.Sprintf("Class Reminder - %s", data.ClassDate)

	var buf bytes.Buffer
	if err := r.templates["reminder_body"].Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("execute reminder template: %w", err)
	}

	body = strings.TrimSpace(buf.String())
	return subject, body, nil
}

// RenderHTML wraps a plain-text message in the branded HTML email shell.
// Falls back to the escaped message on template failure.
func (r *Renderer) RenderHTML(message string) string {
	escaped := strings.ReplaceAll(html.EscapeString(message), "\n", "<br>")

	var buf bytes.Buffer
	if err := r.templates["email_html"].Execute(&buf, struct{ Body string }{Body: escaped}); err != nil {
		return escaped
	}

	return buf.String()
}

// Template functions

var titleCaser = cases.Title(language.English)

// titleCase normalizes lowercased profile names for the greeting line.
func titleCase(s string) string {
	return titleCaser.String(s)
}

func formatClassDate(t time.Time) string {
	return t.UTC().Format("Monday, January 2, 2006")
}

func formatClassTime(t time.Time) string {
	return t.UTC().Format("3:04 PM") + " UTC"
}
