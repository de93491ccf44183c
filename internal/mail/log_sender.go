package mail

import (
	"context"

	"github.com/ignatzorin/nova-auth/internal/logger"
)

// LogSender пишет письма в лог вместо отправки. Используется в development,
// когда SMTP_HOST не задан.
type LogSender struct{}

func (LogSender) Send(_ context.Context, msg Message) error {
	logger.ForIdentifier(msg.To).
		WithField("subject", msg.Subject).
		WithField("body", msg.Body).
		Info("mail: SMTP не настроен, письмо записано в лог")
	return nil
}
