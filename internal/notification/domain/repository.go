package domain

import (
	"context"
)

type Repository interface {
	InsertBatch(ctx context.Context, notifications []Notification) error
}
