package mail

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"text/template"

	"github.com/99minutos/identity-service/internal/core/domain"
)

// Message is a rendered notification ready for a provider.
type Message struct {
	To      string
	Name    string
	Subject string
	Text    string
	HTML    string
}

type layout struct {
	subject *template.Template
	text    *template.Template
	html    *htmltemplate.Template
}

type templateData struct {
	App  string
	Name string
	Link string
}

var layouts = map[domain.MailKind]layout{
	domain.MailVerification: mustLayout(
		"Verify your {{.App}} account",
		"Hi {{.Name}},\n\nConfirm your email address by opening the link below:\n\n{{.Link}}\n\nIf you did not create an account you can ignore this message.\n",
		`<p>Hi {{.Name}},</p><p>Confirm your email address:</p><p><a href="{{.Link}}">Verify email</a></p>`,
	),
	domain.MailResetRequest: mustLayout(
		"Reset your {{.App}} password",
		"Hi {{.Name}},\n\nA password reset was requested for your account. Open the link below to choose a new password:\n\n{{.Link}}\n\nThe link can be used once.\n",
		`<p>Hi {{.Name}},</p><p>A password reset was requested for your account.</p><p><a href="{{.Link}}">Choose a new password</a></p>`,
	),
	domain.MailResetConfirmation: mustLayout(
		"Your {{.App}} password was changed",
		"Hi {{.Name}},\n\nYour password was changed. You can sign in here:\n\n{{.Link}}\n",
		`<p>Hi {{.Name}},</p><p>Your password was changed.</p><p><a href="{{.Link}}">Sign in</a></p>`,
	),
}

func mustLayout(subject, text, html string) layout {
	return layout{
		subject: template.Must(template.New("subject").Parse(subject)),
		text:    template.Must(template.New("text").Parse(text)),
		html:    htmltemplate.Must(htmltemplate.New("html").Parse(html)),
	}
}

// Render builds the subject and bodies for n.
func Render(app string, n domain.Notification) (Message, error) {
	l, ok := layouts[n.Kind]
	if !ok {
		return Message{}, fmt.Errorf("mail: unknown kind %q", n.Kind)
	}
	name := n.Name
	if name == "" {
		name = n.To
	}
	data := templateData{App: app, Name: name, Link: n.Link}

	var subject, text, html bytes.Buffer
	if err := l.subject.Execute(&subject, data); err != nil {
		return Message{}, fmt.Errorf("mail: render subject: %w", err)
	}
	if err := l.text.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("mail: render text: %w", err)
	}
	if err := l.html.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("mail: render html: %w", err)
	}
	return Message{To: n.To, Name: n.Name, Subject: subject.String(), Text: text.String(), HTML: html.String()}, nil
}
