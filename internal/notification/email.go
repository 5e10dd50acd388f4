package notification

import (
	"fmt"
	"html"
	"net/smtp"
)

// EmailConfig holds SMTP settings.
type EmailConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	FromName string
	// ResetLinkTTL is quoted in the reset email body.
	ResetLinkTTL string
}

// Enabled reports whether an SMTP host is configured.
func (c EmailConfig) Enabled() bool {
	return c.Host != "" && c.From != ""
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailService sends account emails over SMTP.
type EmailService struct {
	config   EmailConfig
	sendMail sendMailFunc
}

func NewEmailService(config EmailConfig) *EmailService {
	if config.ResetLinkTTL == "" {
		config.ResetLinkTTL = "1 hour"
	}
	return &EmailService{config: config, sendMail: smtp.SendMail}
}

// SendPasswordResetEmail mails a password reset link.
func (s *EmailService) SendPasswordResetEmail(to, resetURL string) error {
	link := html.EscapeString(resetURL)
	subject := "Reset Your Password"
	body := fmt.Sprintf(`<html><body>
		<h2>Reset Your Password</h2>
		<p>A password reset has been requested for your account.</p>
		<p><a href="%s">Click here to reset your password</a></p>
		<p>Or copy this link to your browser: %s</p>
		<p>This link will expire in %s.</p>
		<p>If you did not request this password reset, please ignore this email.</p>
	</body></html>`, link, link, s.config.ResetLinkTTL)
	return s.sendEmail(to, subject, body)
}

func (s *EmailService) sendEmail(to, subject, body string) error {
	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		from, to, subject, body)

	var auth smtp.Auth
	if s.config.User != "" {
		auth = smtp.PlainAuth("", s.config.User, s.config.Password, s.config.Host)
	}
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	return s.sendMail(addr, auth, s.config.From, []string{to}, []byte(msg))
}
