// Package mailer renders account notification mails and hands them to a
// delivery backend.
package mailer

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Template keys.
const (
	TemplateEmailConfirmation = "email_confirmation_on_create"
	TemplateResetPassword     = "reset_password_instructions"
	TemplateApprovalRequest   = "approval_request"
)

var ErrNoRecipients = errors.New("no recipients")

// Message is a rendered mail ready for delivery.
type Message struct {
	Template string   `json:"template"`
	From     string   `json:"from"`
	To       []string `json:"to"`
	Subject  string   `json:"subject"`
	Body     string   `json:"body"`
}

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Mailer renders a named template and passes the result to its Sender.
type Mailer struct {
	sender   Sender
	from     string
	siteName string
	tmpl     *template.Template
}

func New(sender Sender, from, siteName string) (*Mailer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse mail templates: %w", err)
	}
	return &Mailer{sender: sender, from: from, siteName: siteName, tmpl: tmpl}, nil
}

// Send renders templateKey with data and delivers it synchronously. data is
// exposed to the template together with SiteName.
func (m *Mailer) Send(ctx context.Context, templateKey string, to []string, data map[string]any) error {
	if len(to) == 0 {
		return ErrNoRecipients
	}
	msg, err := m.render(templateKey, data)
	if err != nil {
		return err
	}
	msg.From = m.from
	msg.To = to
	if err := m.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("deliver %s: %w", templateKey, err)
	}
	return nil
}

func (m *Mailer) render(key string, data map[string]any) (Message, error) {
	t := m.tmpl.Lookup(key + ".tmpl")
	if t == nil {
		return Message{}, fmt.Errorf("unknown mail template %q", key)
	}
	vars := make(map[string]any, len(data)+1)
	for k, v := range data {
		vars[k] = v
	}
	vars["SiteName"] = m.siteName

	var buf bytes.Buffer
	if err := t.Execute(&buf, vars); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", key, err)
	}
	subject, body, ok := strings.Cut(buf.String(), "\n\n")
	if !ok || !strings.HasPrefix(subject, "Subject: ") {
		return Message{}, fmt.Errorf("template %s has no subject header", key)
	}
	return Message{
		Template: key,
		Subject:  strings.TrimPrefix(subject, "Subject: "),
		Body:     strings.TrimLeft(body, "\n"),
	}, nil
}
