package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/NeFoRMaLiK-pixel/upcontacts/internal/mail"
)

// Config holds SMTP connection settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// Sender delivers mail through an SMTP relay, upgrading to TLS with
// STARTTLS when the server offers it.
type Sender struct {
	cfg Config
}

// New creates an SMTP sender.
func New(cfg Config) *Sender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Sender{cfg: cfg}
}

// Name returns the name of this sender.
func (s *Sender) Name() string {
	return "smtp"
}

// Send delivers msg. The dial and the whole SMTP exchange are bounded by
// ctx and the configured timeout.
func (s *Sender) Send(ctx context.Context, msg mail.Message) error {
	from := s.cfg.From
	if from == "" {
		from = s.cfg.Username
	}
	if from == "" {
		return fmt.Errorf("smtp from not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}

	if s.cfg.Username != "" || s.cfg.Password != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := c.Mail(from); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := c.Rcpt(msg.To); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(buildMessage(from, msg)); err != nil {
		return fmt.Errorf("smtp write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp end data: %w", err)
	}

	return c.Quit()
}

// buildMessage renders a MIME message. HTML bodies are sent as
// multipart/alternative with the plain text part first.
func buildMessage(from string, msg mail.Message) []byte {
	headers := []string{
		"From: " + from,
		"To: " + msg.To,
		"Subject: " + msg.Subject,
		"Date: " + time.Now().UTC().Format(time.RFC1123Z),
		"MIME-Version: 1.0",
	}

	var body string
	if msg.HTML == "" {
		headers = append(headers, "Content-Type: text/plain; charset=UTF-8")
		body = msg.Text
	} else {
		boundary := strings.ReplaceAll(uuid.NewString(), "-", "")
		headers = append(headers, `Content-Type: multipart/alternative; boundary="`+boundary+`"`)
		body = strings.Join([]string{
			"--" + boundary,
			"Content-Type: text/plain; charset=UTF-8",
			"",
			msg.Text,
			"--" + boundary,
			"Content-Type: text/html; charset=UTF-8",
			"",
			msg.HTML,
			"--" + boundary + "--",
		}, "\r\n")
	}

	return []byte(strings.Join(headers, "\r\n") + "\r\n\r\n" + body + "\r\n")
}
