package mailer

import (
	"bytes"
	"fmt"
	"html/template"
)

// Template ids.
const (
	TemplateWelcome              = "welcome"
	TemplateResetCode            = "reset_code"
	TemplateLoginCode            = "login_code"
	TemplateAppointmentScheduled = "appointment_scheduled"
	TemplateAppointmentCancelled = "appointment_cancelled"
)

type entry struct {
	subject string
	body    *template.Template
}

const layout = `<!DOCTYPE html><html><body style="font-family:Arial,sans-serif;color:#1f2933">{{template "content" .}}<p style="color:#7b8794;font-size:12px">MedVision</p></body></html>`

var catalogue = map[string]struct {
	subject string
	content string
}{
	TemplateWelcome: {
		subject: "Bem-vindo ao MedVision",
		content: `<h2>Olá, {{.Name}}!</h2><p>Sua conta foi criada com o e-mail <strong>{{.Email}}</strong>.</p><p><a href="{{.AppURL}}">Acessar o MedVision</a></p>`,
	},
	TemplateResetCode: {
		subject: "Código de recuperação de senha",
		content: `<h2>Olá, {{.Name}}</h2><p>Seu código de recuperação é:</p><p style="font-size:28px;letter-spacing:4px"><strong>{{.Code}}</strong></p><p>O código expira em {{.ExpiresInMinutes}} minutos.</p>`,
	},
	TemplateLoginCode: {
		subject: "Seu código de acesso",
		content: `<h2>Olá, {{.Name}}</h2><p>Use o código abaixo para entrar:</p><p style="font-size:28px;letter-spacing:4px"><strong>{{.Code}}</strong></p><p>O código expira em {{.ExpiresInMinutes}} minutos.</p>`,
	},
	TemplateAppointmentScheduled: {
		subject: "Nova consulta agendada",
		content: `<h2>Olá, {{.DoctorName}}</h2><p>Uma consulta com <strong>{{.PatientName}}</strong> foi agendada para {{.Date}}.</p><p>Motivo: {{.Reason}}</p>{{if .RoomURL}}<p><a href="{{.RoomURL}}">Sala da consulta</a></p>{{end}}`,
	},
	TemplateAppointmentCancelled: {
		subject: "Consulta cancelada",
		content: `<h2>Olá, {{.DoctorName}}</h2><p>A consulta com <strong>{{.PatientName}}</strong> marcada para {{.Date}} foi cancelada.</p>`,
	},
}

// Templates renders the built-in email catalogue.
type Templates struct {
	entries map[string]entry
}

// NewTemplates parses every built-in template.
func NewTemplates() (*Templates, error) {
	t := &Templates{entries: make(map[string]entry, len(catalogue))}
	for id, c := range catalogue {
		tpl, err := template.New(id).Parse(layout)
		if err != nil {
			return nil, fmt.Errorf("parse layout for %s: %w", id, err)
		}
		if _, err := tpl.New("content").Parse(c.content); err != nil {
			return nil, fmt.Errorf("parse template %s: %w", id, err)
		}
		t.entries[id] = entry{subject: c.subject, body: tpl}
	}
	return t, nil
}

// Render returns the subject and HTML body of template id.
func (t *Templates) Render(id string, data interface{}) (string, string, error) {
	e, ok := t.entries[id]
	if !ok {
		return "", "", fmt.Errorf("template %q not found", id)
	}
	var buf bytes.Buffer
	if err := e.body.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render template %s: %w", id, err)
	}
	return e.subject, buf.String(), nil
}
