// Package mail hands rendered reports to an outbound mail transport.
package mail

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/teranos/briefing/am"
	"github.com/teranos/briefing/errors"
)

// Message is one outbound HTML email. Address lists are passed through
// as given.
type Message struct {
	To      []string `json:"to"`
	CC      []string `json:"cc,omitempty"`
	BCC     []string `json:"bcc,omitempty"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// Transport sends messages. Send returns the transport's message id; a
// failure is marked errors.ErrTransport.
type Transport interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// New builds the transport selected by cfg, wrapped in a rate limiter.
func New(cfg am.MailConfig) (*RateLimited, error) {
	var inner Transport
	switch cfg.Transport {
	case am.MailTransportSMTP:
		if cfg.Host == "" {
			return nil, errors.WithHint(errors.New("mail.host is required for the smtp transport"),
				"set mail.host in am.toml or BRIEFING_MAIL_HOST")
		}
		inner = NewSMTPTransport(cfg)
	case am.MailTransportLog, "":
		inner = NewLogTransport(cfg.From)
	default:
		return nil, errors.Newf("unknown mail transport %q", cfg.Transport)
	}
	return NewRateLimited(inner, cfg.MaxPerMinute), nil
}

// newMessageID returns an RFC 5322 message id under the sender's domain.
func newMessageID(from string) string {
	domain := "briefing.local"
	if at := strings.LastIndex(from, "@"); at >= 0 && at < len(from)-1 {
		domain = strings.TrimSuffix(from[at+1:], ">")
	}
	return "<msg" + strings.ReplaceAll(uuid.NewString(), "-", "") + "@" + domain + ">"
}

func validate(msg Message) error {
	if len(msg.To) == 0 {
		return errors.Mark(errors.New("message has no To recipients"), errors.ErrTransport)
	}
	return nil
}
