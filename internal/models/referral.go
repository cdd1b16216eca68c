package models

import (
	"time"

	"github.com/google/uuid"
)

// Статусы реферального цикла. У одного пользователя в любой момент
// может быть не больше одной записи в статусе pending — текущий цикл.
const (
	RewardStatusPending = "pending"
	RewardStatusAwarded = "awarded"
)

// RewardTypeFreeAccess — единственный тип награды: бесплатные дни доступа.
const RewardTypeFreeAccess = "free_month"

// Параметры реферальной программы.
const (
	// RequiredReferralsPerCycle — сколько оплативших рефералов закрывают цикл.
	RequiredReferralsPerCycle = 3
	// RewardValueDays — сколько дней доступа даёт закрытый цикл.
	RewardValueDays = 30
)

// ReferralReward представляет прогресс и результат одного реферального
// цикла пользователя.
type ReferralReward struct {
	ID                string     `json:"id"`                     // Уникальный идентификатор записи
	ReferrerUID       string     `json:"referrer_uid"`           // Пользователь, который приглашает
	ReferredUID       *string    `json:"referred_uid,omitempty"` // Реферал, открывший цикл; nil после ручного сброса цикла
	RewardType        string     `json:"reward_type"`            // Тип награды
	RewardValueDays   int        `json:"reward_value_days"`      // Размер награды в днях
	RequiredReferrals int        `json:"required_referrals"`     // Порог срабатывания награды
	CurrentReferrals  int        `json:"current_referrals"`      // Текущий прогресс цикла
	RewardCycle       int        `json:"reward_cycle"`           // Номер цикла, начиная с 1
	Status            string     `json:"status"`                 // pending или awarded
	AwardedAt         *time.Time `json:"awarded_at,omitempty"`   // Момент начисления награды
	CreatedAt         time.Time  `json:"created_at"`             // Момент создания записи
}

// ReferralDashboard — сводка реферальной программы пользователя.
type ReferralDashboard struct {
	ReferralCode     string            `json:"referral_code"`
	TotalReferrals   int               `json:"total_referrals"`
	ActiveReferrals  int               `json:"active_referrals"`
	CanStartNewCycle bool              `json:"can_start_new_cycle"`
	ReferredUsers    []ReferredUser    `json:"referred_users"`
	Rewards          []*ReferralReward `json:"rewards"`
}

// ReferredUser — приглашённый пользователь в сводке реферера.
type ReferredUser struct {
	UID             string    `json:"uid"`
	Username        string    `json:"username"`
	HasSubscription bool      `json:"has_subscription"`
	RegisteredAt    time.Time `json:"registered_at"`
}

// NewReferralReward создает запись нового цикла в статусе pending.
func NewReferralReward(referrerUID string, referredUID *string, cycle, currentReferrals int, now time.Time) *ReferralReward {
	return &ReferralReward{
		ID:                uuid.NewString(),
		ReferrerUID:       referrerUID,
		ReferredUID:       referredUID,
		RewardType:        RewardTypeFreeAccess,
		RewardValueDays:   RewardValueDays,
		RequiredReferrals: RequiredReferralsPerCycle,
		CurrentReferrals:  currentReferrals,
		RewardCycle:       cycle,
		Status:            RewardStatusPending,
		CreatedAt:         now,
	}
}
