// Package userlock реализует пер-пользовательские мьютексы.
//
// Операции над подписками и реферальным прогрессом одного пользователя
// должны выполняться последовательно, чтобы последовательность
// "прочитал-решил-записал" не теряла обновления. Операции разных
// пользователей независимы и выполняются параллельно.
package userlock

import "sync"

// Registry выдаёт мьютекс по строковому ключу (UID пользователя).
// Мьютексы создаются лениво и не освобождаются: количество активных
// пользователей на процесс ограничено.
type Registry struct {
	locks sync.Map
}

// New создает новый Registry.
func New() *Registry {
	return &Registry{}
}

// Lock захватывает мьютекс ключа и возвращает функцию освобождения.
//
//	unlock := locks.Lock(userUID)
//	defer unlock()
func (r *Registry) Lock(key string) func() {
	v, _ := r.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
