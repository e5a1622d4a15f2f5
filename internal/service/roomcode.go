package service

import "math/rand/v2"

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 6
)

// newRoomCode returns a random 6-character uppercase alphanumeric room
// code. Uniqueness is enforced by the store's unique index; callers
// retry on collision.
func newRoomCode() string {
	code := make([]byte, codeLength)
	for i := range code {
		code[i] = codeAlphabet[rand.IntN(len(codeAlphabet))]
	}
	return string(code)
}
