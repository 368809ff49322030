// Package email provides email sending capabilities via SMTP.
package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// Service provides email sending
type Service struct {
	config Config
	server string
	auth   smtp.Auth
}

// NewService creates a new email service
func NewService(config Config) *Service {
	auth := smtp.PlainAuth("", config.Username, config.Password, config.Host)

	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendEmail sends a plain text email
func (s *Service) SendEmail(to []string, subject, body string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	msg := []byte(fmt.Sprintf(
		"To: %s\r\n"+
			"From: %s\r\n"+
			"Subject: %s\r\n"+
			"Content-Type: text/plain; charset=UTF-8\r\n"+
			"\r\n"+
			"%s",
		strings.Join(to, ", "),
		from,
		subject,
		body,
	))

	return smtp.SendMail(s.server, s.auth, s.config.From, to, msg)
}

// SendHTMLEmail sends an HTML email
func (s *Service) SendHTMLEmail(to []string, subject, htmlBody string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	boundary := "boundary-custodian"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	// Plain text part (fallback)
	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "Please view this email in an HTML-capable email client.\r\n")
	fmt.Fprintf(&msg, "\r\n")

	// HTML part
	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return smtp.SendMail(s.server, s.auth, s.config.From, to, msg.Bytes())
}

type requestCreatedData struct {
	AppName       string
	RequesterName string
	Kind          string
	DocumentTitle string
	Reason        string
}

type requestResolvedData struct {
	AppName       string
	UserName      string
	Kind          string
	DocumentTitle string
	Outcome       string
	Note          string
}

// SendRequestCreatedEmail notifies an admin that a permission request is
// waiting for review.
func (s *Service) SendRequestCreatedEmail(to, requesterName, kind, documentTitle, reason string) error {
	data := requestCreatedData{
		AppName:       "Custodian",
		RequesterName: requesterName,
		Kind:          kind,
		DocumentTitle: documentTitle,
		Reason:        reason,
	}

	subject := fmt.Sprintf("Permission request pending: %s on %q", kind, documentTitle)
	html, err := renderTemplate(requestCreatedEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render request created template: %w", err)
	}
	return s.SendHTMLEmail([]string{to}, subject, html)
}

// SendRequestResolvedEmail notifies a requester of the decision on their
// permission request.
func (s *Service) SendRequestResolvedEmail(to, userName, kind, documentTitle, outcome, note string) error {
	data := requestResolvedData{
		AppName:       "Custodian",
		UserName:      userName,
		Kind:          kind,
		DocumentTitle: documentTitle,
		Outcome:       outcome,
		Note:          note,
	}

	subject := fmt.Sprintf("Your %s request on %q was %s", kind, documentTitle, strings.ToLower(outcome))
	html, err := renderTemplate(requestResolvedEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render request resolved template: %w", err)
	}
	return s.SendHTMLEmail([]string{to}, subject, html)
}

func renderTemplate(tmpl string, data interface{}) (string, error) {
	t := template.Must(template.New("email").Parse(tmpl))
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const requestCreatedEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Permission request pending</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #0066cc; padding-bottom: 10px; margin-bottom: 20px; }
        .detail { background: #f6f8fa; padding: 12px; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>Permission request pending review</h2>

    <p>{{.RequesterName}} is asking for <strong>{{.Kind}}</strong> permission on <strong>{{.DocumentTitle}}</strong>.</p>

    {{if .Reason}}<div class="detail">Reason: {{.Reason}}</div>{{end}}

    <p>Sign in to review the request.</p>

    <div class="footer">
        <p>You received this email because you are an administrator of {{.AppName}}.</p>
    </div>
</body>
</html>`

const requestResolvedEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Permission request {{.Outcome}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #0066cc; padding-bottom: 10px; margin-bottom: 20px; }
        .detail { background: #f6f8fa; padding: 12px; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>Your request was {{.Outcome}}</h2>

    <p>Hi {{.UserName}},</p>

    <p>Your <strong>{{.Kind}}</strong> request on <strong>{{.DocumentTitle}}</strong> has been <strong>{{.Outcome}}</strong>.</p>

    {{if .Note}}<div class="detail">Reviewer note: {{.Note}}</div>{{end}}

    <div class="footer">
        <p>This is an automated message from {{.AppName}}.</p>
    </div>
</body>
</html>`
