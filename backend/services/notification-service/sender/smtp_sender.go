package sender

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
)

type SMTPSettings struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type SMTPSender struct {
	settings SMTPSettings
	send     sendMailFunc
}

func NewSMTPSender(s SMTPSettings) (*SMTPSender, error) {
	if s.Host == "" || s.Port == "" {
		return nil, fmt.Errorf("SMTP host and port are required")
	}
	if s.From == "" {
		s.From = s.Username
	}
	return &SMTPSender{settings: s, send: smtp.SendMail}, nil
}

func (s *SMTPSender) SendEmail(ctx context.Context, to, subject, body string) (SendResult, error) {
	if strings.ContainsAny(to, "\r\n") || strings.ContainsAny(subject, "\r\n") {
		return SendResult{}, fmt.Errorf("smtp send failed: header contains a line break")
	}
	if err := ctx.Err(); err != nil {
		return SendResult{}, err
	}

	messageID := uuid.NewString()
	msg := []byte(
		"From: " + s.settings.From + "\r\n" +
			"To: " + to + "\r\n" +
			"Subject: " + subject + "\r\n" +
			"Message-ID: <" + messageID + "@" + s.settings.Host + ">\r\n" +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n" +
			"\r\n" +
			body,
	)

	var auth smtp.Auth
	if s.settings.Username != "" {
		auth = smtp.PlainAuth("", s.settings.Username, s.settings.Password, s.settings.Host)
	}
	addr := net.JoinHostPort(s.settings.Host, s.settings.Port)
	if err := s.send(addr, auth, s.settings.From, []string{to}, msg); err != nil {
		return SendResult{}, fmt.Errorf("smtp send failed: %w", err)
	}

	return SendResult{MessageID: messageID, SentAt: time.Now()}, nil
}
