package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/errors"
	"github.com/davidleathers/clinic-security-monitor/internal/infrastructure/config"
)

// SMTPSender delivers notices through a submission server. STARTTLS is used
// whenever the server offers it.
type SMTPSender struct {
	addr     string
	host     string
	auth     smtp.Auth
	from     string
	fromName string
	logger   *zap.Logger
	now      func() time.Time
}

var _ Sender = (*SMTPSender)(nil)

func NewSMTPSender(cfg config.NotificationConfig, logger *zap.Logger) *SMTPSender {
	s := &SMTPSender{
		addr:     net.JoinHostPort(cfg.SMTP.Host, strconv.Itoa(cfg.SMTP.Port)),
		host:     cfg.SMTP.Host,
		from:     cfg.FromAddress,
		fromName: cfg.FromName,
		logger:   logger.With(zap.String("component", "smtp_sender")),
		now:      time.Now,
	}
	if cfg.SMTP.Username != "" {
		s.auth = smtp.PlainAuth("", cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.Host)
	}
	return s
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := s.send(ctx, msg); err != nil {
		return errors.NewExternalError("smtp", "send email failed").WithCause(err)
	}
	s.logger.Info("notice delivered", zap.String("reference", msg.Reference))
	return nil
}

func (s *SMTPSender) send(ctx context.Context, msg Message) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return err
		}
	}

	c, err := smtp.NewClient(conn, s.host)
	if err != nil {
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if s.auth != nil {
		if err := c.Auth(s.auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}
	if err := c.Mail(s.from); err != nil {
		return err
	}
	if err := c.Rcpt(msg.To); err != nil {
		return err
	}

	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(s.compose(msg)); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

// compose renders the message with RFC 5322 headers and CRLF line endings
func (s *SMTPSender) compose(msg Message) []byte {
	var b bytes.Buffer
	header := func(k, v string) { fmt.Fprintf(&b, "%s: %s\r\n", k, v) }

	header("From", formatAddress(s.fromName, s.from))
	header("To", formatAddress(msg.ToName, msg.To))
	header("Subject", mime.QEncoding.Encode(charset, msg.Subject))
	header("Date", s.now().UTC().Format(time.RFC1123Z))
	header("Message-ID", fmt.Sprintf("<%s@%s>", uuid.NewString(), s.host))
	if msg.Reference != "" {
		header("X-Notification-ID", msg.Reference)
	}
	header("MIME-Version", "1.0")
	header("Content-Type", "text/plain; charset="+charset)
	header("Content-Transfer-Encoding", "8bit")
	b.WriteString("\r\n")

	body := strings.ReplaceAll(msg.Body, "\r\n", "\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	if !strings.HasSuffix(body, "\n") {
		b.WriteString("\r\n")
	}
	return b.Bytes()
}
