// Package clock определяет источник текущего времени для бизнес-логики.
//
// Вся арифметика сроков действия подписок считается относительно Clock,
// чтобы в тестах можно было подставить фиксированное время.
package clock

import "time"

// Clock возвращает текущее время.
type Clock interface {
	Now() time.Time
}

// System реализует Clock через time.Now.
type System struct{}

// Now возвращает текущее системное время в UTC.
func (System) Now() time.Time {
	return time.Now().UTC()
}

// Fixed реализует Clock с неизменным временем, используется в тестах.
type Fixed struct {
	Time time.Time
}

// Now возвращает зафиксированное время.
func (f Fixed) Now() time.Time {
	return f.Time
}
