package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"time"

	"github.com/price-alerts/internal/config"
)

// Mailer delivers a rendered message.
type Mailer interface {
	Send(ctx context.Context, msg *Message) error
}

// SMTPMailer submits mail over an authenticated connection: implicit TLS
// (SMTPS, port 465), STARTTLS (port 587), or plain to a local relay.
type SMTPMailer struct {
	host      string
	port      int
	username  string
	password  string
	from      mail.Address
	tlsMode   string
	tlsConfig *tls.Config
	timeout   time.Duration
}

// NewSMTPMailer creates a mailer from the mail settings. The authenticated
// user is also the envelope and header sender.
func NewSMTPMailer(cfg *config.MailConfig) *SMTPMailer {
	return &SMTPMailer{
		host:      cfg.Host,
		port:      cfg.Port,
		username:  cfg.Username,
		password:  cfg.Password,
		from:      mail.Address{Name: cfg.FromName, Address: cfg.Username},
		tlsMode:   cfg.TLSMode,
		tlsConfig: &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12},
		timeout:   30 * time.Second,
	}
}

// Send delivers msg to its recipient.
func (s *SMTPMailer) Send(ctx context.Context, msg *Message) error {
	body, err := msg.Bytes(s.from, time.Now())
	if err != nil {
		return err
	}

	client, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	auth := smtp.PlainAuth("", s.username, s.password, s.host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("failed to authenticate: %w", err)
	}

	if err := client.Mail(s.from.Address); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to get data writer: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	return client.Quit()
}

// dial opens the connection and completes the TLS handshake for either mode.
func (s *SMTPMailer) dial(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	dialer := &net.Dialer{Timeout: s.timeout}

	var conn net.Conn
	var err error
	if s.tlsMode == config.TLSImplicit {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: s.tlsConfig}
		conn, err = tlsDialer.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}

	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	if s.tlsMode == config.TLSStartTLS {
		if err := client.StartTLS(s.tlsConfig); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to start TLS: %w", err)
		}
	}

	return client, nil
}
