package game

import "errors"

// Validation failures returned to the requesting player. They are carried
// back as {success:false, error} payloads and never escape into the round loop.
var (
	ErrInvalidPhase        = errors.New("not allowed in the current round phase")
	ErrUnknownPlayer       = errors.New("player not found")
	ErrNotAuthenticated    = errors.New("not authenticated")
	ErrInvalidAmount       = errors.New("invalid bet amount")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrDuplicateBet        = errors.New("you already have an active bet this round")
	ErrNoActiveBet         = errors.New("no active bet")
	ErrAlreadyCashedOut    = errors.New("already cashed out this round")
)

// ErrPersistenceUnavailable marks storage failures. Non-fatal: the round
// loop logs it and keeps going.
var ErrPersistenceUnavailable = errors.New("persistence unavailable")
