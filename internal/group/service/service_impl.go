package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/inspira/internal/clock"
	"github.com/smallbiznis/inspira/internal/group/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxNameLength = 120

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	clock clock.Clock
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("group.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: p.Clock,
	}
}

func (s *Service) Create(ctx context.Context, creatorID snowflake.ID, req domain.CreateGroupRequest) (*domain.Group, error) {
	if creatorID == 0 {
		return nil, domain.ErrInvalidUser
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > maxNameLength {
		return nil, domain.ErrInvalidName
	}
	if req.MaxMembers < 0 {
		return nil, domain.ErrInvalidMaxMembers
	}

	now := s.clock.Now()
	group := domain.Group{
		ID:          s.genID.Generate(),
		Name:        name,
		Slug:        slug.Make(name),
		Description: strings.TrimSpace(req.Description),
		IsPrivate:   req.IsPrivate,
		MemberCount: 1,
		MaxMembers:  req.MaxMembers,
		CreatorID:   creatorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateGroup(ctx, group); err != nil {
			return err
		}
		_, err := repo.AddMember(ctx, domain.Member{
			ID:        s.genID.Generate(),
			GroupID:   group.ID,
			UserID:    creatorID,
			Role:      domain.RoleCreator,
			CreatedAt: now,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("group created",
		zap.String("group_id", group.ID.String()),
		zap.Bool("is_private", group.IsPrivate),
	)
	return &group, nil
}

func (s *Service) Get(ctx context.Context, groupID snowflake.ID) (*domain.Group, error) {
	if groupID == 0 {
		return nil, domain.ErrInvalidGroup
	}
	group, err := s.repo.FindByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, domain.ErrGroupNotFound
	}
	return group, nil
}

// Join admits a user to a public group without a vote.
func (s *Service) Join(ctx context.Context, groupID, userID snowflake.ID) error {
	if groupID == 0 {
		return domain.ErrInvalidGroup
	}
	if userID == 0 {
		return domain.ErrInvalidUser
	}

	now := s.clock.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		group, err := repo.FindByID(ctx, groupID)
		if err != nil {
			return err
		}
		if group == nil {
			return domain.ErrGroupNotFound
		}
		if group.IsPrivate {
			return domain.ErrPrivateGroup
		}

		inserted, err := repo.AddMember(ctx, domain.Member{
			ID:        s.genID.Generate(),
			GroupID:   groupID,
			UserID:    userID,
			Role:      domain.RoleMember,
			CreatedAt: now,
		})
		if err != nil {
			return err
		}
		if !inserted {
			return domain.ErrAlreadyMember
		}

		ok, err := repo.IncrementMemberCountWithinCap(ctx, groupID, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrGroupFull
		}
		return nil
	})
}

func (s *Service) Leave(ctx context.Context, groupID, userID snowflake.ID) error {
	if groupID == 0 {
		return domain.ErrInvalidGroup
	}
	if userID == 0 {
		return domain.ErrInvalidUser
	}

	now := s.clock.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		member, err := repo.FindMember(ctx, groupID, userID)
		if err != nil {
			return err
		}
		if member == nil {
			group, err := repo.FindByID(ctx, groupID)
			if err != nil {
				return err
			}
			if group == nil {
				return domain.ErrGroupNotFound
			}
			return domain.ErrNotMember
		}
		if member.Role == domain.RoleCreator {
			return domain.ErrCreatorCannotLeave
		}

		removed, err := repo.RemoveMember(ctx, groupID, userID)
		if err != nil {
			return err
		}
		if !removed {
			return domain.ErrNotMember
		}
		return repo.DecrementMemberCount(ctx, groupID, now)
	})
}

func (s *Service) MemberRole(ctx context.Context, groupID, userID snowflake.ID) (string, error) {
	if groupID == 0 || userID == 0 {
		return "", nil
	}
	member, err := s.repo.FindMember(ctx, groupID, userID)
	if err != nil {
		return "", err
	}
	if member == nil {
		return "", nil
	}
	return member.Role, nil
}

// ReconcileMemberCounts rewrites member_count for up to limit drifted groups.
func (s *Service) ReconcileMemberCounts(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	ids, err := s.repo.ListDriftedGroupIDs(ctx, limit)
	if err != nil {
		return 0, err
	}

	fixed := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return fixed, err
		}
		if err := s.repo.RecountMembers(ctx, id, s.clock.Now()); err != nil {
			return fixed, err
		}
		fixed++
		s.log.Warn("member count drift repaired", zap.String("group_id", id.String()))
	}
	return fixed, nil
}
