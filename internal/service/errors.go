package service

import "errors"

var (
	ErrEmptyUsername = errors.New("username is required")
	ErrRoomNotFound  = errors.New("room not found")
	ErrRoomFull      = errors.New("room is full")
	ErrUsernameTaken = errors.New("username is already taken")
	ErrNotHost       = errors.New("only the host can perform this action")
	ErrNotMember     = errors.New("not a member of this room")
	ErrCodeExhausted = errors.New("could not allocate a unique room code")
)
