package mailer

import (
	"context"
	"fmt"
	"net"
	"net/smtp"

	"github.com/edermartinez/bienesraices/config"

	"github.com/sirupsen/logrus"
)

// SMTPMailer sends the confirmation and reset emails through a plain SMTP
// relay. Links are built from the configured base URL so they work behind
// a proxy.
type SMTPMailer struct {
	cfg     config.SMTPConfig
	baseURL string
}

func NewSMTP(cfg config.SMTPConfig, baseURL string) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, baseURL: baseURL}
}

func (m *SMTPMailer) SendAccountConfirmation(ctx context.Context, nombre, email, token string) error {
	link := fmt.Sprintf("%s/auth/confirmar/%s", m.baseURL, token)
	body := fmt.Sprintf(`<p>Hola %s, comprueba tu cuenta en Bienes Raices.</p>
<p>Tu cuenta ya esta lista, solo debes confirmarla en el siguiente enlace:
<a href="%s">Confirmar Cuenta</a></p>
<p>Si tu no creaste esta cuenta, puedes ignorar el mensaje.</p>`, nombre, link)

	return m.send(ctx, email, "Confirma tu cuenta en Bienes Raices", body)
}

func (m *SMTPMailer) SendPasswordReset(ctx context.Context, nombre, email, token string) error {
	link := fmt.Sprintf("%s/auth/olvide-password/%s", m.baseURL, token)
	body := fmt.Sprintf(`<p>Hola %s, has solicitado reestablecer tu password en Bienes Raices.</p>
<p>Sigue el siguiente enlace para generar un password nuevo:
<a href="%s">Reestablecer Password</a></p>
<p>Si tu no solicitaste el cambio, puedes ignorar el mensaje.</p>`, nombre, link)

	return m.send(ctx, email, "Reestablece tu password en Bienes Raices", body)
}

func (m *SMTPMailer) send(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := []byte("From: " + m.cfg.From + "\r\n" +
		"To: " + to + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/html; charset=\"UTF-8\"\r\n" +
		"\r\n" +
		htmlBody + "\r\n")

	addr := net.JoinHostPort(m.cfg.Host, m.cfg.Port)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	return smtp.SendMail(addr, auth, m.cfg.From, []string{to}, msg)
}

// LogMailer is the development fallback used when no SMTP relay is
// configured: it writes the links to the log instead of sending anything.
type LogMailer struct {
	baseURL string
}

func NewLog(baseURL string) *LogMailer {
	return &LogMailer{baseURL: baseURL}
}

func (m *LogMailer) SendAccountConfirmation(_ context.Context, nombre, email, token string) error {
	logrus.WithFields(logrus.Fields{
		"nombre": nombre,
		"email":  email,
		"link":   fmt.Sprintf("%s/auth/confirmar/%s", m.baseURL, token),
	}).Info("confirmation email (smtp not configured)")
	return nil
}

func (m *LogMailer) SendPasswordReset(_ context.Context, nombre, email, token string) error {
	logrus.WithFields(logrus.Fields{
		"nombre": nombre,
		"email":  email,
		"link":   fmt.Sprintf("%s/auth/olvide-password/%s", m.baseURL, token),
	}).Info("password reset email (smtp not configured)")
	return nil
}
