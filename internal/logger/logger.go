package logger

import (
	"strings"

	"github.com/sirupsen/logrus"
)

var Log *logrus.Logger

func init() {
	// Пакеты, которые логируют до Init (тесты, cobra-команды), получают логгер по умолчанию.
	Log = logrus.New()
}

// Init инициализирует структурированный логгер.
func Init(level string) {
	Log = logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Log.SetLevel(lvl)

	// Используем JSON формат для production, text для development
	Log.SetFormatter(&logrus.JSONFormatter{})
}

// SetTextFormatter устанавливает текстовый формат логов (для development).
func SetTextFormatter() {
	if Log != nil {
		Log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
}

// ForIdentifier возвращает запись лога с замаскированным email пользователя.
func ForIdentifier(identifier string) *logrus.Entry {
	return Log.WithField("identifier", MaskEmail(identifier))
}

// MaskEmail оставляет первый символ локальной части и домен: "a***@mail.ru".
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		if email == "" {
			return ""
		}
		return email[:1] + "***"
	}
	return email[:1] + "***" + email[at:]
}
