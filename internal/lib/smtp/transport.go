// Package smtp реализует SMTP транспорт для отправки почтовых уведомлений.
package smtp

import (
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/smtp"

	"github.com/savelyevra/mechanic-access/internal/config"
)

// Client интерфейс для SMTP клиента.
type Client interface {
	Mail(from string) error
	Rcpt(to string) error
	Data() (io.WriteCloser, error)
	Quit() error
	Close() error
}

// Transport инкапсулирует параметры подключения к SMTP серверу.
type Transport struct {
	cfg config.SMTPConnection
}

// clientWrapper адаптирует *smtp.Client к интерфейсу Client.
type clientWrapper struct {
	client *smtp.Client
}

func (w *clientWrapper) Mail(from string) error {
	return w.client.Mail(from)
}

func (w *clientWrapper) Rcpt(to string) error {
	return w.client.Rcpt(to)
}

func (w *clientWrapper) Data() (io.WriteCloser, error) {
	return w.client.Data()
}

func (w *clientWrapper) Quit() error {
	return w.client.Quit()
}

func (w *clientWrapper) Close() error {
	return w.client.Close()
}

// NewTransport создает новый SMTP транспорт из конфигурации.
func NewTransport(cfg config.SMTPConnection) *Transport {
	return &Transport{cfg: cfg}
}

// GetSMTPUser возвращает адрес отправителя.
func (t *Transport) GetSMTPUser() string {
	return t.cfg.User
}

// Connect устанавливает TLS соединение с SMTP сервером и проходит аутентификацию.
func (t *Transport) Connect() (Client, error) {
	const op = "smtp.Connect"

	addr := net.JoinHostPort(t.cfg.Host, t.cfg.Port)
	tlsConfig := &tls.Config{
		ServerName: t.cfg.Host,
		MinVersion: tls.VersionTLS12,
	}

	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	client, err := smtp.NewClient(conn, t.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	auth := smtp.PlainAuth("", t.cfg.User, t.cfg.Password, t.cfg.Host)
	if err := client.Auth(auth); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &clientWrapper{client: client}, nil
}
