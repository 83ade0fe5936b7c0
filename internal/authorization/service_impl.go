package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectApplication = "application"
	ObjectGroup       = "group"
)

const (
	ActionApplicationVote   = "application.vote"
	ActionApplicationView   = "application.view"
	ActionApplicationSweep  = "application.sweep"
	ActionApplicationResume = "application.resume"
	ActionGroupReconcile    = "group.reconcile"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer builds an in-memory enforcer with the seeded capability policies.
func NewEnforcer() (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, groupID snowflake.ID, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}

	role, err := s.resolveRole(ctx, actor, groupID)
	if err != nil {
		return err
	}
	if err := s.AuthorizeRole(ctx, role, object, action); err != nil {
		if err == ErrForbidden {
			s.log.Info("authorization denied",
				zap.String("actor", actor),
				zap.String("group_id", groupID.String()),
				zap.String("object", object),
				zap.String("action", action),
			)
		}
		return err
	}
	return nil
}

func (s *ServiceImpl) AuthorizeRole(_ context.Context, role string, object string, action string) error {
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return ErrForbidden
	}

	allowed, err := s.enforcer.Enforce(fmt.Sprintf("role:%s", role), object, action)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) resolveRole(ctx context.Context, actor string, groupID snowflake.ID) (string, error) {
	if actor == ActorSystem {
		return RoleSystem, nil
	}
	if !strings.HasPrefix(actor, "user:") {
		return "", ErrInvalidActor
	}
	userID, err := snowflake.ParseString(strings.TrimPrefix(actor, "user:"))
	if err != nil || userID == 0 {
		return "", ErrInvalidActor
	}
	if groupID == 0 {
		return "", ErrForbidden
	}
	return s.roleForUser(ctx, groupID, userID)
}

func (s *ServiceImpl) roleForUser(ctx context.Context, groupID snowflake.ID, userID snowflake.ID) (string, error) {
	var row struct {
		Role string `gorm:"column:role"`
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT role
		 FROM group_members
		 WHERE group_id = ? AND user_id = ?
		 LIMIT 1`,
		groupID,
		userID,
	).Scan(&row).Error; err != nil {
		return "", err
	}

	role := strings.TrimSpace(row.Role)
	if role == "" {
		return "", ErrForbidden
	}
	return role, nil
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{"role:creator", ObjectApplication, ActionApplicationVote},
		{"role:creator", ObjectApplication, ActionApplicationView},

		{"role:member", ObjectApplication, ActionApplicationVote},
		{"role:member", ObjectApplication, ActionApplicationView},

		{"role:system", ObjectApplication, ActionApplicationSweep},
		{"role:system", ObjectApplication, ActionApplicationResume},
		{"role:system", ObjectGroup, ActionGroupReconcile},
	}
	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy[0], policy[1], policy[2]); err != nil {
			return err
		}
	}
	return nil
}
