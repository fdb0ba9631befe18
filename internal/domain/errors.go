package domain

import "errors"

var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrBoardNotFound          = errors.New("board not found")
	ErrAuthRejected           = errors.New("identity assertion rejected")
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
	ErrMalformedOperation     = errors.New("malformed operation")
	ErrUnknownRoom            = errors.New("unknown room")
	ErrNotRoomMember          = errors.New("connection is not a member of the room")
)
