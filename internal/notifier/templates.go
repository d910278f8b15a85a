package notifier

import (
	"bytes"
	"embed"
	"strings"
	"text/template"

	"github.com/blue-kelp-bio/reactormon/internal/models"
)

//go:embed templates/*
var templateFS embed.FS

// Templates holds parsed email templates.
type Templates struct {
	html  *template.Template
	plain *template.Template
}

// TemplateData contains data for template rendering.
type TemplateData struct {
	ReactorName    string
	FieldName      string
	Severity       string
	SeverityColor  string
	Message        string
	CurrentValue   float64
	ThresholdValue float64
	ThresholdType  string
	Timestamp      string
}

// LoadTemplates loads embedded email templates.
func LoadTemplates() (*Templates, error) {
	funcs := template.FuncMap{
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
	}

	htmlTmpl, err := template.New("alert.html").Funcs(funcs).ParseFS(templateFS, "templates/alert.html")
	if err != nil {
		return nil, err
	}

	plainTmpl, err := template.New("alert.txt").Funcs(funcs).ParseFS(templateFS, "templates/alert.txt")
	if err != nil {
		return nil, err
	}

	return &Templates{
		html:  htmlTmpl,
		plain: plainTmpl,
	}, nil
}

// RenderHTML renders the HTML email body.
func (t *Templates) RenderHTML(data *TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := t.html.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderPlain renders the plain text email body.
func (t *Templates) RenderPlain(data *TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := t.plain.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// severityColor returns the banner color for a severity level.
func severityColor(severity models.Severity) string {
	switch severity {
	case models.SeverityCritical:
		return "#e74c3c" // red
	case models.SeverityWarning:
		return "#f39c12" // orange
	case models.SeverityInfo:
		return "#3498db" // blue
	default:
		return "#757575" // gray
	}
}

// AlertToTemplateData converts an alert to template data.
func AlertToTemplateData(reactor *models.Reactor, alert *models.Alert) *TemplateData {
	return &TemplateData{
		ReactorName:    reactor.Name,
		FieldName:      alert.FieldName,
		Severity:       string(alert.Severity),
		SeverityColor:  severityColor(alert.Severity),
		Message:        alert.Message,
		CurrentValue:   alert.CurrentValue,
		ThresholdValue: alert.ThresholdValue,
		ThresholdType:  string(alert.ThresholdType),
		Timestamp:      alert.CreatedAt.Format("2006-01-02 15:04:05 MST"),
	}
}
