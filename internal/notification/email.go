package notification

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"sync"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"gopkg.in/gomail.v2"
)

// SMTPConfig carries the connection and sender-identity settings for
// the SMTP sender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// SMTPEmailSender delivers email over plain SMTP
type SMTPEmailSender struct {
	from     string
	fromName string
	dialer   *gomail.Dialer
}

func NewSMTPEmailSender(cfg SMTPConfig) (*SMTPEmailSender, error) {
	if cfg.Host == "" || cfg.Username == "" || cfg.Password == "" || cfg.From == "" {
		return nil, fmt.Errorf("incomplete SMTP configuration")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.FromName == "" {
		cfg.FromName = "Sangam"
	}

	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	dialer.TLSConfig = &tls.Config{InsecureSkipVerify: false}

	return &SMTPEmailSender{from: cfg.From, fromName: cfg.FromName, dialer: dialer}, nil
}

func (s *SMTPEmailSender) Send(ctx context.Context, msg *EmailMessage) error {
	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(s.from, s.fromName))
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	if msg.HTML != "" {
		m.SetBody("text/html", msg.HTML)
		if msg.Body != "" {
			m.AddAlternative("text/plain", msg.Body)
		}
	} else {
		m.SetBody("text/plain", msg.Body)
	}

	if err := s.dialer.DialAndSend(m); err != nil {
		emailDeliveries.WithLabelValues("error").Inc()
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	emailDeliveries.WithLabelValues("ok").Inc()
	return nil
}

// SendGridEmailSender delivers email through the SendGrid API
type SendGridEmailSender struct {
	apiKey   string
	from     string
	fromName string
}

func NewSendGridEmailSender(apiKey, from, fromName string) (*SendGridEmailSender, error) {
	if apiKey == "" || from == "" {
		return nil, fmt.Errorf("sendgrid API key and from address must be set")
	}
	if fromName == "" {
		fromName = "Sangam"
	}
	return &SendGridEmailSender{apiKey: apiKey, from: from, fromName: fromName}, nil
}

func (s *SendGridEmailSender) Send(ctx context.Context, msg *EmailMessage) error {
	from := mail.NewEmail(s.fromName, s.from)
	to := mail.NewEmail("", msg.To)
	message := mail.NewSingleEmail(from, msg.Subject, to, msg.Body, msg.HTML)

	client := sendgrid.NewSendClient(s.apiKey)
	resp, err := client.Send(message)
	if err != nil {
		emailDeliveries.WithLabelValues("error").Inc()
		return fmt.Errorf("sendgrid send to %s: %w", msg.To, err)
	}
	if resp.StatusCode >= 400 {
		emailDeliveries.WithLabelValues("error").Inc()
		return fmt.Errorf("sendgrid returned status %d for %s", resp.StatusCode, msg.To)
	}
	emailDeliveries.WithLabelValues("ok").Inc()
	return nil
}

// MockEmailSender records sends for tests and local runs
type MockEmailSender struct {
	mu   sync.Mutex
	Sent []*EmailMessage
	Err  error
}

func NewMockEmailSender() *MockEmailSender {
	return &MockEmailSender{}
}

func (m *MockEmailSender) Send(ctx context.Context, msg *EmailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, msg)
	log.Printf("mock email: %q to %s", msg.Subject, msg.To)
	return nil
}
