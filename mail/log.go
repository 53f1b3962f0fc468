package mail

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/briefing/errors"
	"github.com/teranos/briefing/logger"
)

// LogTransport is a dry-run transport: it logs each message instead of
// sending it.
type LogTransport struct {
	from   string
	logger *zap.SugaredLogger
}

// NewLogTransport creates a dry-run transport.
func NewLogTransport(from string) *LogTransport {
	return &LogTransport{
		from:   from,
		logger: logger.AddMailSymbol(logger.ComponentLogger("mail")),
	}
}

// Send logs the message envelope and returns a generated message id.
func (t *LogTransport) Send(ctx context.Context, msg Message) (string, error) {
	if err := validate(msg); err != nil {
		return "", err
	}
	id := newMessageID(t.from)
	t.logger.Infow("Mail (dry run)",
		logger.FieldMessageID, id,
		"to", msg.To,
		"cc", msg.CC,
		"bcc", msg.BCC,
		"subject", msg.Subject,
		"html_bytes", len(msg.HTML))
	return id, nil
}

// Outbox keeps sent messages in memory. Set Fail to make every send fail.
type Outbox struct {
	mu   sync.Mutex
	msgs []Message
	Fail error
}

// Send records msg, or returns Fail marked as a transport error.
func (o *Outbox) Send(ctx context.Context, msg Message) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Fail != nil {
		return "", errors.Mark(o.Fail, errors.ErrTransport)
	}
	if err := validate(msg); err != nil {
		return "", err
	}
	o.msgs = append(o.msgs, msg)
	return newMessageID("outbox@briefing.local"), nil
}

// Messages returns a copy of everything sent so far.
func (o *Outbox) Messages() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Message(nil), o.msgs...)
}
