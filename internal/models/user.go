// Package models содержит доменные структуры: пользователь, подписка
// и реферальная награда. Структуры используются в бизнес-логике и хранилище.
package models

import "time"

// User представляет зарегистрированного пользователя сервиса.
type User struct {
	UID             string    // Уникальный идентификатор пользователя
	Username        string    // Имя пользователя (уникальное)
	Email           string    // Электронная почта
	PasswordHash    string    // Хэш пароля пользователя
	Role            string    // Роль пользователя, admin или user
	HasSubscription bool      // Денормализованный флаг наличия активной подписки, только проекция
	ReferralCode    *string   // Реферальный код, генерируется лениво, неизменен после установки
	ReferredBy      *string   // UID пригласившего пользователя, задаётся один раз при регистрации
	CreatedAt       time.Time // Дата регистрации
}
