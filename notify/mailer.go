package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

const (
	// dialTimeout bounds connecting to the SMTP server.
	dialTimeout = 10 * time.Second
	// sendTimeout bounds a whole SMTP conversation when the caller sets no earlier deadline.
	sendTimeout = 30 * time.Second
)

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer sends emails.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig holds the connection settings of an SMTP server.
type SMTPConfig struct {
	Host     string `json:"host" env:"POSTY_SMTP_HOST"`
	Port     int    `json:"port" env:"POSTY_SMTP_PORT"`
	Username string `json:"username" env:"POSTY_SMTP_USERNAME"`
	Password string `json:"password" env:"POSTY_SMTP_PASSWORD"`
	From     string `json:"from" env:"POSTY_SMTP_FROM"`
}

// SMTPMailer sends mail through an SMTP server. Every conversation with the
// server is bounded by the caller's context and by sendTimeout. Sends go through
// a circuit breaker that opens after three consecutive failures.
type SMTPMailer struct {
	cfg  SMTPConfig
	cb   *gobreaker.CircuitBreaker
	send func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPMailer returns an SMTPMailer for the given server.
func NewSMTPMailer(cfg SMTPConfig, log *logrus.Logger) *SMTPMailer {
	st := gobreaker.Settings{
		Name:        "SMTP-Mailer",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warnf("CircuitBreaker[%s] state changed from %s to %s", name, from, to)
		},
	}
	return &SMTPMailer{
		cfg:  cfg,
		cb:   gobreaker.NewCircuitBreaker(st),
		send: sendMail,
	}
}

// Send delivers the message. It fails immediately while the breaker is open.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	// The envelope sender is the bare address of the From header.
	from := m.cfg.From
	if a, err := mail.ParseAddress(from); err == nil {
		from = a.Address
	}
	_, err := m.cb.Execute(func() (interface{}, error) {
		return nil, m.send(ctx, addr, auth, from, []string{msg.To}, m.format(msg))
	})
	return err
}

// sendMail does what smtp.SendMail does, but over a connection whose deadline
// follows ctx, so a silent server cannot block the caller.
func sendMail(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return pkgerrors.Wrap(err, "dial smtp server")
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return pkgerrors.Wrap(err, "set smtp deadline")
	}
	// Cancellation unblocks whatever read or write is in flight.
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	host, _, _ := net.SplitHostPort(addr)
	c, err := smtp.NewClient(conn, host)
	if err != nil {
		return pkgerrors.Wrap(err, "smtp greeting")
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return pkgerrors.Wrap(err, "smtp starttls")
		}
	}
	if a != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(a); err != nil {
				return pkgerrors.Wrap(err, "smtp auth")
			}
		}
	}
	if err := c.Mail(from); err != nil {
		return pkgerrors.Wrap(err, "smtp mail from")
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return pkgerrors.Wrap(err, "smtp rcpt to")
		}
	}
	w, err := c.Data()
	if err != nil {
		return pkgerrors.Wrap(err, "smtp data")
	}
	if _, err := w.Write(msg); err != nil {
		return pkgerrors.Wrap(err, "write smtp body")
	}
	if err := w.Close(); err != nil {
		return pkgerrors.Wrap(err, "finish smtp body")
	}
	return c.Quit()
}

// format renders the message with the headers a mail server expects.
func (m *SMTPMailer) format(msg Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return []byte(b.String())
}

// LogMailer only logs messages. It is used when no SMTP server is configured.
type LogMailer struct {
	log *logrus.Logger
}

// NewLogMailer returns a LogMailer.
func NewLogMailer(log *logrus.Logger) *LogMailer {
	return &LogMailer{log: log}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.log.WithFields(logrus.Fields{
		"mail.to":      msg.To,
		"mail.subject": msg.Subject,
	}).Info(msg.Body)
	return nil
}
