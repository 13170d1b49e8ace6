package notify

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/polyphonica/booking/pkg/logger"
	"go.uber.org/zap"
)

// Email is a plain-text transactional message
type Email struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers transactional email
type Mailer interface {
	Send(ctx context.Context, msg *Email) error
}

// SMTPConfig holds SMTP relay settings
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	Timeout  time.Duration
}

// SMTPMailer sends through an authenticated SMTP relay using STARTTLS when offered
type SMTPMailer struct {
	cfg  SMTPConfig
	from *mail.Address
}

// NewSMTPMailer validates the sender address
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	from, err := mail.ParseAddress(cfg.From)
	if err != nil {
		return nil, fmt.Errorf("invalid from address %q: %w", cfg.From, err)
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SMTPMailer{cfg: cfg, from: from}, nil
}

// Send delivers msg, giving up when ctx ends or the relay stalls past the timeout
func (m *SMTPMailer) Send(ctx context.Context, msg *Email) error {
	to, err := mail.ParseAddress(msg.To)
	if err != nil {
		return fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	var auth smtp.Auth
	if m.cfg.User != "" {
		auth = smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)
	}
	body := m.render(to, msg)

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(addr, auth, m.from.Address, []string{to.Address}, body)
	}()

	timer := time.NewTimer(m.cfg.Timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send to %s: %w", to.Address, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("smtp send to %s: timed out after %s", to.Address, m.cfg.Timeout)
	}
}

func (m *SMTPMailer) render(to *mail.Address, msg *Email) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", m.from.String())
	fmt.Fprintf(&b, "To: %s\r\n", to.String())
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Message-ID: <%s@%s>\r\n", uuid.NewString(), m.cfg.Host)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
	b.WriteString(msg.Body)
	return b.Bytes()
}

// LogMailer writes emails to the log instead of sending them; used when email is disabled
type LogMailer struct {
	log *logger.Logger
}

func NewLogMailer(log *logger.Logger) *LogMailer {
	return &LogMailer{log: log}
}

func (m *LogMailer) Send(ctx context.Context, msg *Email) error {
	m.log.Info("Email not sent, delivery disabled",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}
