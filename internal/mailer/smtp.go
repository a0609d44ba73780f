package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/kiranshivaraju/mindalert/internal/config"
)

// SMTP sends messages through a single relay. The configuration is fixed
// at construction time; a new connection is opened for every message.
type SMTP struct {
	addr     string
	host     string
	from     *mail.Address
	username string
	password string
	tlsMode  string
	timeout  time.Duration
	now      func() time.Time

	// tlsConfig is used for both STARTTLS and implicit TLS.
	tlsConfig *tls.Config
}

// NewSMTP creates an SMTP transport from the process-wide SMTP settings.
func NewSMTP(cfg config.SMTPConfig) *SMTP {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SMTP{
		addr:      net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		host:      cfg.Host,
		from:      &mail.Address{Name: cfg.FromName, Address: cfg.FromAddress},
		username:  cfg.Username,
		password:  cfg.Password,
		tlsMode:   cfg.TLSMode,
		timeout:   timeout,
		now:       time.Now,
		tlsConfig: &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12},
	}
}

// Send delivers msg. Any failure is wrapped in ErrSendFailed unless the
// recipient address itself is unusable.
func (s *SMTP) Send(ctx context.Context, msg Message) error {
	raw, err := Compose(s.from, msg, s.now())
	if err != nil {
		return err
	}
	rcpt, err := mail.ParseAddress(msg.To)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidRecipient, msg.To)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	conn, err := s.dial(ctx)
	if err != nil {
		return fmt.Errorf("%w: dialing %s: %v", ErrSendFailed, s.addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c, err := smtp.NewClient(conn, s.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("%w: greeting: %v", ErrSendFailed, err)
	}
	defer c.Close()
	c.CommandTimeout = s.timeout
	c.SubmissionTimeout = s.timeout

	if err := s.deliver(c, rcpt.Address, raw); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return nil
}

func (s *SMTP) dial(ctx context.Context) (net.Conn, error) {
	d := &net.Dialer{Timeout: s.timeout}
	if s.tlsMode == "implicit" {
		td := &tls.Dialer{NetDialer: d, Config: s.tlsConfig}
		return td.DialContext(ctx, "tcp", s.addr)
	}
	return d.DialContext(ctx, "tcp", s.addr)
}

func (s *SMTP) deliver(c *smtp.Client, to string, raw []byte) error {
	if s.tlsMode == "starttls" {
		if ok, _ := c.Extension("STARTTLS"); !ok {
			return fmt.Errorf("server does not support STARTTLS")
		}
		if err := c.StartTLS(s.tlsConfig); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	if s.username != "" {
		if err := c.Auth(sasl.NewPlainClient("", s.username, s.password)); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := c.Mail(s.from.Address, nil); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return fmt.Errorf("writing data: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finishing data: %w", err)
	}
	// the relay accepted the message once DATA is acknowledged
	if err := c.Quit(); err != nil {
		slog.Warn("smtp quit failed after message accepted", "addr", s.addr, "error", err)
	}
	return nil
}
