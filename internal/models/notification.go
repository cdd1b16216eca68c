package models

import "time"

// ExpiringSubscription — данные для письма о скором окончании подписки.
type ExpiringSubscription struct {
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RewardNotification — данные для письма о начисленной реферальной награде.
type RewardNotification struct {
	Email       string `json:"email"`
	Username    string `json:"username"`
	RewardDays  int    `json:"reward_days"`
	RewardCycle int    `json:"reward_cycle"`
}
