package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Статусы подписки. Доступ к сервису даёт только строка со статусом
// SubscriptionStatusActive и expires_at в будущем.
const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusCanceled = "canceled"
)

// Subscription представляет одну запись оплаченного или подаренного доступа.
// Записей у пользователя может быть несколько; строки никогда не удаляются,
// истёкшая запись просто перестаёт давать доступ.
type Subscription struct {
	ID          string    `json:"id"`           // Уникальный идентификатор записи
	UserUID     string    `json:"user_uid"`     // Владелец подписки
	Amount      float64   `json:"amount"`       // Оплаченная сумма, 0 для наград и админских начислений
	Status      string    `json:"status"`       // active или canceled
	PurchasedAt time.Time `json:"purchased_at"` // Момент покупки/начисления
	ExpiresAt   time.Time `json:"expires_at"`   // Момент окончания доступа
}

// NewSubscription создает новую запись подписки со статусом active,
// действующую durationDays дней начиная с now.
func NewSubscription(userUID string, amount float64, now time.Time, durationDays int) (*Subscription, error) {
	const op = "models.NewSubscription"
	if durationDays <= 0 {
		return nil, fmt.Errorf("%s: non-positive duration %d", op, durationDays)
	}
	return &Subscription{
		ID:          uuid.NewString(),
		UserUID:     userUID,
		Amount:      amount,
		Status:      SubscriptionStatusActive,
		PurchasedAt: now,
		ExpiresAt:   now.AddDate(0, 0, durationDays),
	}, nil
}

// IsActive сообщает, даёт ли запись доступ в момент now.
func (s *Subscription) IsActive(now time.Time) bool {
	return s.Status == SubscriptionStatusActive && s.ExpiresAt.After(now)
}
