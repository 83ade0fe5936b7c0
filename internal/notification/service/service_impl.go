package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/inspira/internal/clock"
	"github.com/smallbiznis/inspira/internal/notification/domain"
	"github.com/smallbiznis/inspira/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    domain.Repository
	Clock   clock.Clock
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	log     *zap.Logger
	genID   *snowflake.Node
	repo    domain.Repository
	clock   clock.Clock
	metrics *metrics.Metrics
}

func NewService(p Params) domain.Dispatcher {
	return &Service{
		log:     p.Log.Named("notification.dispatcher"),
		genID:   p.GenID,
		repo:    p.Repo,
		clock:   p.Clock,
		metrics: p.Metrics,
	}
}

func (s *Service) Notify(ctx context.Context, recipients []snowflake.ID, payload domain.Payload) error {
	if !payload.Type.Valid() || strings.TrimSpace(payload.Title) == "" {
		return domain.ErrInvalidPayload
	}

	targets := uniqueRecipients(recipients)
	if len(targets) == 0 {
		return nil
	}

	now := s.clock.Now()
	rows := make([]domain.Notification, 0, len(targets))
	for _, recipient := range targets {
		row := domain.Notification{
			ID:          s.genID.Generate(),
			RecipientID: recipient,
			SenderID:    payload.SenderID,
			Type:        payload.Type,
			Title:       payload.Title,
			Message:     payload.Message,
			Metadata:    cloneMetadata(payload.Metadata),
			CreatedAt:   now,
		}
		if payload.Related != nil {
			relatedID := payload.Related.ID
			row.RelatedEntityType = payload.Related.Type
			row.RelatedEntityID = &relatedID
		}
		rows = append(rows, row)
	}

	if err := s.repo.InsertBatch(ctx, rows); err != nil {
		s.metrics.RecordNotificationFailure(ctx, string(payload.Type))
		return fmt.Errorf("insert notifications: %w", err)
	}

	s.log.Debug("notifications dispatched",
		zap.String("type", string(payload.Type)),
		zap.Int("recipients", len(rows)),
	)
	return nil
}

func (s *Service) NotifySingle(ctx context.Context, recipient snowflake.ID, payload domain.Payload) error {
	return s.Notify(ctx, []snowflake.ID{recipient}, payload)
}

func uniqueRecipients(recipients []snowflake.ID) []snowflake.ID {
	seen := make(map[snowflake.ID]struct{}, len(recipients))
	out := make([]snowflake.ID, 0, len(recipients))
	for _, id := range recipients {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func cloneMetadata(in map[string]any) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for k, v := range in {
		out[k] = v
	}
	return out
}
