package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRoomCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code := newRoomCode()
		assert.Len(t, code, 6)
		assert.Regexp(t, `^[A-Z0-9]{6}$`, code)
		seen[code] = true
	}
	// 200 draws from a 36^6 space should essentially never collide.
	assert.Greater(t, len(seen), 190)
}
