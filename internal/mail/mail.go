package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/url"

	"github.com/NeFoRMaLiK-pixel/upcontacts/pkg/breaker"
)

// Message is a single outgoing email.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers email messages.
type Sender interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

type breakerSender struct {
	next Sender
	cb   *breaker.Breaker
}

// WithBreaker wraps next so that a failing mail server trips the breaker
// instead of stalling every caller on dial timeouts.
func WithBreaker(next Sender, cb *breaker.Breaker) Sender {
	return &breakerSender{next: next, cb: cb}
}

func (s *breakerSender) Name() string { return s.next.Name() }

func (s *breakerSender) Send(ctx context.Context, msg Message) error {
	return s.cb.Run(ctx, func(ctx context.Context) error {
		return s.next.Send(ctx, msg)
	})
}

var (
	verificationTmpl = template.Must(template.New("verification").Parse(`<html>
  <body>
    <h2>Confirm your email</h2>
    <p>Thanks for signing up! Please confirm your email address:</p>
    <a href="{{.Link}}" style="padding: 10px 20px; background: #007bff; color: white; text-decoration: none; border-radius: 5px;">Confirm email</a>
    <p>Or copy this link: {{.Link}}</p>
  </body>
</html>`))

	resetTmpl = template.Must(template.New("reset").Parse(`<html>
  <body>
    <h2>Password reset</h2>
    <p>You requested a password reset. Follow the link below:</p>
    <a href="{{.Link}}" style="padding: 10px 20px; background: #dc3545; color: white; text-decoration: none; border-radius: 5px;">Reset password</a>
    <p>Or copy this link: {{.Link}}</p>
    <p>The link is valid for {{.TTL}}.</p>
    <p>If you did not request a password reset, ignore this email.</p>
  </body>
</html>`))
)

// Link builds baseURL+path with the token as a query parameter.
func Link(baseURL, path, token string) string {
	return baseURL + path + "?" + url.Values{"token": {token}}.Encode()
}

// VerificationEmail renders the email-confirmation message.
func VerificationEmail(to, link string) (Message, error) {
	html, err := render(verificationTmpl, map[string]any{"Link": link})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      to,
		Subject: "Confirm your email",
		Text:    "Confirm your email address: " + link,
		HTML:    html,
	}, nil
}

// PasswordResetEmail renders the password reset message. ttl is a
// human-readable validity period such as "1h0m0s".
func PasswordResetEmail(to, link, ttl string) (Message, error) {
	html, err := render(resetTmpl, map[string]any{"Link": link, "TTL": ttl})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      to,
		Subject: "Password reset",
		Text:    fmt.Sprintf("Reset your password: %s (valid for %s)", link, ttl),
		HTML:    html,
	}, nil
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s email: %w", t.Name(), err)
	}
	return buf.String(), nil
}
