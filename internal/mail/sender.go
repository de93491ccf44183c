// Package mail доставляет письма с одноразовыми кодами.
package mail

import (
	"context"
	"fmt"
)

// Message описывает письмо одному получателю.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender отправляет письмо. Реализации: SMTPSender, LogSender, Dispatcher.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

const otpSubject = "Your NOVA OTP Code"

// OTPMessage формирует письмо с кодом подтверждения.
func OTPMessage(to, code string) Message {
	return Message{
		To:      to,
		Subject: otpSubject,
		Body:    fmt.Sprintf("Your OTP is: %s", code),
	}
}
