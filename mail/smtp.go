package mail

import (
	"context"
	"crypto/tls"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/teranos/briefing/am"
	"github.com/teranos/briefing/errors"
	"github.com/teranos/briefing/logger"
)

// SMTPTransport delivers messages through an SMTP relay.
type SMTPTransport struct {
	dialer  *gomail.Dialer
	from    string
	timeout time.Duration
	logger  *zap.SugaredLogger

	// send is swapped out in tests
	send func(msgs ...*gomail.Message) error
}

// NewSMTPTransport creates an SMTP transport from mail config.
func NewSMTPTransport(cfg am.MailConfig) *SMTPTransport {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.TLSConfig = &tls.Config{
		ServerName:         cfg.Host,
		InsecureSkipVerify: cfg.InsecureSkipTLS,
	}

	timeout := time.Duration(cfg.SendTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	t := &SMTPTransport{
		dialer:  d,
		from:    cfg.From,
		timeout: timeout,
		logger:  logger.AddMailSymbol(logger.ComponentLogger("mail")),
	}
	t.send = d.DialAndSend
	return t
}

// Send builds a MIME message and hands it to the relay. Bcc recipients get
// the message without appearing in its headers.
func (t *SMTPTransport) Send(ctx context.Context, msg Message) (string, error) {
	if err := validate(msg); err != nil {
		return "", err
	}

	id := newMessageID(t.from)
	m := t.build(msg, id)

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- t.send(m) }()

	select {
	case err := <-done:
		if err != nil {
			return "", errors.Mark(errors.Wrapf(err, "smtp send to %s:%d", t.dialer.Host, t.dialer.Port), errors.ErrTransport)
		}
	case <-ctx.Done():
		return "", errors.Mark(errors.Wrap(ctx.Err(), "smtp send timed out"), errors.ErrTransport)
	}

	t.logger.Infow("Mail sent",
		logger.FieldMessageID, id,
		logger.FieldRecipients, len(msg.To)+len(msg.CC)+len(msg.BCC),
		logger.FieldHost, t.dialer.Host)
	return id, nil
}

func (t *SMTPTransport) build(msg Message, id string) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", t.from)
	m.SetHeader("To", msg.To...)
	if len(msg.CC) > 0 {
		m.SetHeader("Cc", msg.CC...)
	}
	if len(msg.BCC) > 0 {
		m.SetHeader("Bcc", msg.BCC...)
	}
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-ID", id)
	m.SetDateHeader("Date", time.Now())
	m.SetBody("text/html", msg.HTML)
	return m
}
