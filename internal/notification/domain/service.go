package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

//go:generate mockgen -source=service.go -destination=../mocks/mock_dispatcher.go -package=mocks

// Dispatcher writes notification rows. It never touches other entities, and
// callers treat its errors as non-fatal.
type Dispatcher interface {
	Notify(ctx context.Context, recipients []snowflake.ID, payload Payload) error
	NotifySingle(ctx context.Context, recipient snowflake.ID, payload Payload) error
}

var (
	ErrInvalidPayload = errors.New("invalid_notification_payload")
)
