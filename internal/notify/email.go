package notify

import (
	"fmt"
	"net/smtp"
)

// EmailSender delivers plain-text mail over SMTP.
type EmailSender struct {
	host     string
	port     string
	username string
	password string
	from     string
}

func NewEmailSender(host, port, username, password, from string) *EmailSender {
	if from == "" {
		from = username
	}
	return &EmailSender{host: host, port: port, username: username, password: password, from: from}
}

// Configured reports whether SMTP credentials are present.
func (e *EmailSender) Configured() bool {
	return e.host != "" && e.username != "" && e.password != ""
}

func (e *EmailSender) Send(to, subject, body string) error {
	msg := buildMessage(e.from, to, subject, body)
	auth := smtp.PlainAuth("", e.username, e.password, e.host)
	if err := smtp.SendMail(e.host+":"+e.port, auth, e.from, []string{to}, msg); err != nil {
		return fmt.Errorf("notify: send email: %w", err)
	}
	return nil
}

func buildMessage(from, to, subject, body string) []byte {
	return []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", from, to, subject, body))
}
