package repository

import "errors"

var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInvalidBucket       = errors.New("invalid credit bucket")
	ErrInvalidUserID       = errors.New("user id is required")
)
