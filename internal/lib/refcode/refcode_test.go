package refcode

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	tests := []struct {
		name string
	}{
		{name: "код фиксированной длины из разрешённого алфавита"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := Generate()
			require.NoError(t, err)
			assert.Len(t, code, Length)
			for _, r := range code {
				assert.True(t, strings.ContainsRune(Alphabet, r),
					"unexpected character %q in code %s", r, code)
			}
		})
	}
}

func TestGenerate_Uniqueness(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for range 1000 {
		code, err := Generate()
		require.NoError(t, err)
		seen[code] = struct{}{}
	}
	// 31^8 вариантов, коллизии на тысяче кодов быть не должно
	assert.Len(t, seen, 1000)
}
