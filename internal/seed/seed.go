package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/inspira/internal/auth/domain"
	"github.com/smallbiznis/inspira/internal/config"
	groupdomain "github.com/smallbiznis/inspira/internal/group/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultCuratorUsername = "curator"
	defaultCuratorEmail    = "curator@inspira.local"
	defaultGroupName       = "Inspiration Circle"
	defaultGroupDesc       = "Share what inspired you today."
	demoSessionTTL         = 7 * 24 * time.Hour
)

var Module = fx.Module("seed",
	fx.Invoke(registerDemoSeed),
)

type Result struct {
	UserID  snowflake.ID
	GroupID snowflake.ID
	Token   string
}

// EnsureDemo bootstraps a local environment with one curator who owns one
// public group, and issues the curator a fresh bearer token.
func EnsureDemo(ctx context.Context, db *gorm.DB, auth authdomain.Service, groups groupdomain.Service) (*Result, error) {
	if db == nil || auth == nil || groups == nil {
		return nil, errors.New("seed dependencies are required")
	}

	var user authdomain.User
	err := db.WithContext(ctx).Where("username = ?", defaultCuratorUsername).First(&user).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		created, err := auth.CreateUser(ctx, authdomain.CreateUserRequest{
			Username: defaultCuratorUsername,
			Email:    defaultCuratorEmail,
		})
		if err != nil {
			return nil, err
		}
		user = *created
	}

	var group groupdomain.Group
	err = db.WithContext(ctx).
		Where("creator_id = ? AND name = ?", user.ID, defaultGroupName).
		First(&group).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		created, err := groups.Create(ctx, user.ID, groupdomain.CreateGroupRequest{
			Name:        defaultGroupName,
			Description: defaultGroupDesc,
		})
		if err != nil {
			return nil, err
		}
		group = *created
	}

	token, err := auth.IssueSession(ctx, user.ID, demoSessionTTL)
	if err != nil {
		return nil, err
	}

	return &Result{UserID: user.ID, GroupID: group.ID, Token: token}, nil
}

func registerDemoSeed(lc fx.Lifecycle, cfg config.Config, db *gorm.DB, auth authdomain.Service, groups groupdomain.Service, log *zap.Logger) {
	if !cfg.SeedDemo {
		return
	}
	if cfg.IsProduction() {
		log.Warn("demo seed is disabled in production")
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			result, err := EnsureDemo(ctx, db, auth, groups)
			if err != nil {
				return err
			}
			log.Info("demo data ready",
				zap.String("user_id", result.UserID.String()),
				zap.String("group_id", result.GroupID.String()),
				zap.String("bearer_token", result.Token),
			)
			return nil
		},
	})
}
