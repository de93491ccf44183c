// Package metrics содержит счётчики Prometheus сервиса авторизации.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты операций для метки result.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// OTPIssued считает выпущенные коды по назначению (signup, password_reset).
var OTPIssued = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "nova_auth_otp_issued_total",
		Help: "Количество выпущенных OTP",
	},
	[]string{"purpose"},
)

// OTPVerifications считает проверки кода по результату (ok, not_found, expired, mismatch).
var OTPVerifications = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "nova_auth_otp_verifications_total",
		Help: "Количество проверок OTP",
	},
	[]string{"result"},
)

// MailDeliveries считает отправку писем (ok, error, dropped).
var MailDeliveries = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "nova_auth_mail_deliveries_total",
		Help: "Количество попыток доставки писем",
	},
	[]string{"result"},
)

// TokensIssued считает выданные пары токенов по причине (signup, login, refresh, self).
var TokensIssued = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "nova_auth_tokens_issued_total",
		Help: "Количество выданных пар токенов",
	},
	[]string{"reason"},
)

// TokensRevoked считает отзывы refresh токенов.
var TokensRevoked = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "nova_auth_tokens_revoked_total",
		Help: "Количество отозванных refresh токенов",
	},
)

// PasswordHashDuration измеряет время вычисления bcrypt, включая ожидание в очереди.
var PasswordHashDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "nova_auth_password_hash_duration_seconds",
		Help:    "Время хеширования и проверки паролей",
		Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5},
	},
	[]string{"op"},
)

// SweptRows считает строки, удалённые периодической очисткой.
var SweptRows = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "nova_auth_swept_rows_total",
		Help: "Количество удалённых устаревших записей",
	},
	[]string{"table"},
)

// RegisterMetrics регистрирует все метрики пакета. Паникует при повторной регистрации.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(
		OTPIssued,
		OTPVerifications,
		MailDeliveries,
		TokensIssued,
		TokensRevoked,
		PasswordHashDuration,
		SweptRows,
	)
}

func RecordOTPIssued(purpose string) {
	OTPIssued.WithLabelValues(purpose).Inc()
}

func RecordOTPVerification(result string) {
	OTPVerifications.WithLabelValues(result).Inc()
}

func RecordMailDelivery(result string) {
	MailDeliveries.WithLabelValues(result).Inc()
}

func RecordTokensIssued(reason string) {
	TokensIssued.WithLabelValues(reason).Inc()
}

func RecordTokenRevoked() {
	TokensRevoked.Inc()
}

func RecordPasswordHash(op string, d time.Duration) {
	PasswordHashDuration.WithLabelValues(op).Observe(d.Seconds())
}

func RecordSwept(table string, n int64) {
	if n > 0 {
		SweptRows.WithLabelValues(table).Add(float64(n))
	}
}
