// Package refcode генерирует реферальные коды пользователей.
//
// Код — строка фиксированной длины из алфавита без неоднозначных символов
// (исключены 0/O, 1/I/L), чтобы пользователь мог продиктовать код без ошибок.
package refcode

import (
	"crypto/rand"
	"fmt"
)

// Alphabet — допустимые символы реферального кода.
const Alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// Length — длина генерируемого кода.
const Length = 8

// Generate возвращает новый случайный реферальный код.
//
// Уникальность кода не гарантируется — её обеспечивает вызывающая сторона
// через уникальный индекс в хранилище и повторные попытки при коллизии.
func Generate() (string, error) {
	const op = "refcode.Generate"

	buf := make([]byte, Length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	for i, b := range buf {
		buf[i] = Alphabet[int(b)%len(Alphabet)]
	}
	return string(buf), nil
}
