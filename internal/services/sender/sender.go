// Package services содержит отправку почтовых уведомлений: напоминаний об
// истечении подписки и сообщений о начисленных реферальных наградах.
package services

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/savelyevra/mechanic-access/internal/lib/sl"
	"github.com/savelyevra/mechanic-access/internal/lib/smtp"
	"github.com/savelyevra/mechanic-access/internal/models"
)

// Transport описывает SMTP транспорт отправителя.
type Transport interface {
	Connect() (smtp.Client, error)
	GetSMTPUser() string
}

// SenderService отправляет почтовые уведомления из очередей RabbitMQ.
type SenderService struct {
	transport Transport
	log       *slog.Logger
}

// NewSenderService создает новый экземпляр SenderService.
func NewSenderService(transport Transport, log *slog.Logger) *SenderService {
	return &SenderService{
		transport: transport,
		log:       log,
	}
}

// SendExpiringNotification отправляет напоминание о скором окончании доступа.
// body — JSON из очереди notification.expiring.
func (s *SenderService) SendExpiringNotification(body []byte) error {
	var message models.ExpiringSubscription
	if err := json.Unmarshal(body, &message); err != nil {
		s.log.Error("failed to unmarshal message body", sl.Err(err))
		return fmt.Errorf("error unmarshalling message: %w", err)
	}

	subject := "Доступ к консультациям скоро закончится"
	bodyText := fmt.Sprintf(
		"Здравствуйте, %s!\n\nВаш доступ к консультациям механиков заканчивается %s.\n\nПродлите подписку заранее, чтобы не потерять доступ.",
		message.Username, message.ExpiresAt.Format("02.01.2006 15:04"))

	return s.sendEmail([]string{message.Email}, subject, bodyText)
}

// SendRewardNotification отправляет сообщение о начисленной реферальной награде.
// body — JSON из очереди notification.reward.
func (s *SenderService) SendRewardNotification(body []byte) error {
	var message models.RewardNotification
	if err := json.Unmarshal(body, &message); err != nil {
		s.log.Error("failed to unmarshal message body", sl.Err(err))
		return fmt.Errorf("error unmarshalling message: %w", err)
	}

	subject := "Вам начислена реферальная награда"
	bodyText := fmt.Sprintf(
		"Здравствуйте, %s!\n\nТри приглашённых вами пользователя оплатили доступ, и вам начислено %d дней бесплатного доступа (цикл %d).\n\nСпасибо, что рекомендуете нас!",
		message.Username, message.RewardDays, message.RewardCycle)

	return s.sendEmail([]string{message.Email}, subject, bodyText)
}

func (s *SenderService) sendEmail(to []string, subject, bodyText string) error {
	msg := strings.Join([]string{
		"From: " + s.transport.GetSMTPUser(),
		"To: " + strings.Join(to, ";"),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		bodyText,
	}, "\r\n")

	client, err := s.transport.Connect()
	if err != nil {
		s.log.Error("failed to connect to SMTP server", sl.Err(err))
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Mail(s.transport.GetSMTPUser()); err != nil {
		s.log.Error("failed to set MAIL FROM", sl.Err(err))
		return err
	}
	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			s.log.Error("failed to set RCPT TO", "recipient", addr, sl.Err(err))
			return err
		}
	}

	wc, err := client.Data()
	if err != nil {
		s.log.Error("failed to get data writer", sl.Err(err))
		return err
	}
	if _, err = wc.Write([]byte(msg)); err != nil {
		s.log.Error("failed to write email body", sl.Err(err))
		return err
	}
	if err = wc.Close(); err != nil {
		s.log.Error("failed to close data writer", sl.Err(err))
		return err
	}
	if err = client.Quit(); err != nil {
		s.log.Error("failed to quit SMTP client", sl.Err(err))
		return err
	}

	s.log.Info("email sent", "to", to)
	return nil
}
