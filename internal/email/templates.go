package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

type baseEmailData struct {
	Title      string
	Heading    string
	Subheading string
}

type confirmationEmailData struct {
	baseEmailData
	Greeting string
	Lines    []string
}

func renderEmailTemplate(name string, data any) (string, error) {
	templates := []string{"templates/base.html", "templates/" + name}
	tmpl, err := template.New("base.html").ParseFS(templateFS, templates...)
	if err != nil {
		return "", fmt.Errorf("parse email template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", fmt.Errorf("execute email template %s: %w", name, err)
	}
	return buf.String(), nil
}

// confirmationData splits a plain-text body into a greeting and the
// non-empty lines that follow it.
func confirmationData(subject, body string) confirmationEmailData {
	data := confirmationEmailData{
		baseEmailData: baseEmailData{Title: titleConfirmation, Heading: subject},
	}
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if data.Greeting == "" && strings.HasPrefix(line, "Dear ") {
			data.Greeting = line
			continue
		}
		data.Lines = append(data.Lines, line)
	}
	return data
}
