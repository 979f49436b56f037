// Package mail отправляет транзакционные письма через SMTP.
package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"time"

	"github.com/dajohi/goemail"

	"github.com/ignatzorin/orderdesk-backend/internal/goroutine"
	"github.com/ignatzorin/orderdesk-backend/internal/logger"
)

// ErrSendTimeout - SMTP сервер не ответил за отведённое время.
var ErrSendTimeout = errors.New("mail: send timeout")

// Mailer отправляет одно письмо одному получателю.
type Mailer interface {
	Send(ctx context.Context, to string, email Email) error
}

// Config - параметры SMTP.
type Config struct {
	Host     string
	User     string
	Password string
	From     string
	Timeout  time.Duration
}

// SMTPMailer реализует Mailer поверх goemail.
type SMTPMailer struct {
	smtp        *goemail.SMTP
	fromName    string
	fromAddress string
	timeout     time.Duration
	disabled    bool
}

// NewSMTPMailer создаёт SMTP клиент. Без хоста или учётных данных отправка отключена.
func NewSMTPMailer(cfg Config) (*SMTPMailer, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Host == "" || cfg.User == "" || cfg.Password == "" {
		logger.Log.Info("mail: SMTP не настроен, отправка писем отключена")
		return &SMTPMailer{disabled: true, timeout: cfg.Timeout}, nil
	}

	u, err := url.Parse(fmt.Sprintf("smtps://%s@%s", url.UserPassword(cfg.User, cfg.Password).String(), cfg.Host))
	if err != nil {
		return nil, fmt.Errorf("mail: некорректный SMTP_HOST: %w", err)
	}

	from, err := mail.ParseAddress(cfg.From)
	if err != nil {
		return nil, fmt.Errorf("mail: некорректный SMTP_FROM: %w", err)
	}

	client, err := goemail.NewSMTP(u.String(), &tls.Config{ServerName: u.Hostname()})
	if err != nil {
		return nil, fmt.Errorf("mail: %w", err)
	}

	return &SMTPMailer{
		smtp:        client,
		fromName:    from.Name,
		fromAddress: from.Address,
		timeout:     cfg.Timeout,
	}, nil
}

// Enabled сообщает, будут ли письма действительно отправляться.
func (m *SMTPMailer) Enabled() bool {
	return !m.disabled
}

// Send отправляет письмо, ограничивая ожидание таймаутом.
// goemail не принимает context, поэтому отправка идёт в отдельной горутине.
func (m *SMTPMailer) Send(ctx context.Context, to string, email Email) error {
	if m.disabled {
		return nil
	}
	if to == "" {
		return errors.New("mail: пустой адрес получателя")
	}

	msg := goemail.NewMessage(m.fromAddress, email.Subject, email.Body)
	msg.SetName(m.fromName)
	msg.AddTo(to)

	done := make(chan error, 1)
	goroutine.SafeGo(func() {
		done <- m.smtp.Send(msg)
	})

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return ErrSendTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
