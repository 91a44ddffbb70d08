package storage

import (
	"errors"
	"strings"
	"testing"

	"github.com/dafibh/fortuna/fortuna-budget/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestNewIconKey(t *testing.T) {
	key := NewIconKey(7)

	assert.True(t, strings.HasPrefix(key, "icons/7/"))
	assert.True(t, strings.HasSuffix(key, ".png"))
	assert.True(t, OwnsIconKey(7, key))
	assert.NotEqual(t, key, NewIconKey(7))
}

func TestOwnsIconKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want bool
	}{
		{"own key", "icons/7/abc.png", true},
		{"other workspace", "icons/9/abc.png", false},
		{"workspace prefix collision", "icons/70/abc.png", false},
		{"nested path", "icons/7/sub/abc.png", false},
		{"traversal", "icons/7/../9/abc.png", false},
		{"not a png", "icons/7/abc.jpg", false},
		{"bare suffix", "icons/7/.png", false},
		{"foreign root", "images/7/abc.png", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OwnsIconKey(7, tt.key))
		})
	}
}

func TestErrIconNotOwned_IsNotFound(t *testing.T) {
	assert.True(t, errors.Is(ErrIconNotOwned, domain.ErrNotFound))
}
