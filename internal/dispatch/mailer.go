package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
	"time"

	gomail "github.com/wneessen/go-mail"

	"github.com/nvidal/pairtask/internal/config"
	"github.com/nvidal/pairtask/internal/task"
)

// EmailMessage is one templated delivery to a single recipient.
type EmailMessage struct {
	To       string
	ToName   string
	FromName string
	Subject  string
	Body     string
}

// EmailChannel sends one message. Retries are the caller's concern; email is
// advisory and duplicate sends are acceptable.
type EmailChannel interface {
	Send(ctx context.Context, msg *EmailMessage) error
}

// Mailer implements EmailChannel over SMTP.
type Mailer struct {
	env *config.SMTPEnv
}

func NewMailer(env *config.SMTPEnv) *Mailer {
	return &Mailer{env: env}
}

func (m *Mailer) Send(ctx context.Context, msg *EmailMessage) error {
	if m.env.Host == "" {
		return fmt.Errorf("smtp not configured")
	}

	mm := gomail.NewMsg()
	if err := mm.From(m.env.From); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err := mm.To(msg.To); err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}
	mm.Subject(msg.Subject)
	mm.SetBodyString(gomail.TypeTextPlain, msg.Body)

	client, err := gomail.NewClient(m.env.Host,
		gomail.WithPort(m.env.Port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(m.env.User),
		gomail.WithPassword(m.env.Password),
	)
	if err != nil {
		return fmt.Errorf("failed to create smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, mm)
}

var taskEmailTmpl = template.Must(template.New("task-email").Parse(
	`Hola {{.ToName}},

{{.FromName}} {{.Action}}: "{{.Title}}"

Descripción: {{.Description}}
Tipo: {{.Type}}
Prioridad: {{.Priority}}
Fecha límite: {{.DueDate}}

{{.AppURL}}
`))

// renderTaskEmail fills the task email template for one recipient.
func renderTaskEmail(toName, fromName, action, appURL string, t *task.Task) (string, error) {
	description := t.Description
	if description == "" {
		description = "Sin descripción"
	}
	dueDate := "Sin fecha"
	if t.DueDate != nil {
		dueDate = t.DueDate.Format(time.DateOnly)
	}
	var buf bytes.Buffer
	err := taskEmailTmpl.Execute(&buf, map[string]string{
		"ToName":      toName,
		"FromName":    fromName,
		"Action":      action,
		"Title":       t.Title,
		"Description": description,
		"Type":        t.Type,
		"Priority":    string(t.Priority),
		"DueDate":     dueDate,
		"AppURL":      appURL,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render email template: %w", err)
	}
	return buf.String(), nil
}
