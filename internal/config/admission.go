package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/smallbiznis/inspira/internal/quorum"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// AdmissionPolicy tunes the group admission vote.
type AdmissionPolicy struct {
	Quorum               quorum.Rule `mapstructure:"quorum"`
	ApplicationTTLMonths int         `mapstructure:"applicationTTLMonths"`
}

func DefaultAdmissionPolicy() AdmissionPolicy {
	return AdmissionPolicy{
		Quorum:               quorum.DefaultRule(),
		ApplicationTTLMonths: 1,
	}
}

// PolicyHolder serves the current admission policy and swaps it when admission.yml changes.
type PolicyHolder struct {
	current atomic.Value // holds AdmissionPolicy
}

// NewStaticPolicyHolder returns a holder pinned to policy.
func NewStaticPolicyHolder(policy AdmissionPolicy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func NewPolicyHolder() (*PolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("admission")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/inspira")
	v.AddConfigPath(".")

	v.SetEnvPrefix("INSPIRA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultAdmissionPolicy()
	v.SetDefault("admission.quorum.largeGroupThreshold", defaults.Quorum.LargeGroupThreshold)
	v.SetDefault("admission.quorum.smallGroupDivisor", defaults.Quorum.SmallGroupDivisor)
	v.SetDefault("admission.quorum.largeGroupDivisor", defaults.Quorum.LargeGroupDivisor)
	v.SetDefault("admission.applicationTTLMonths", defaults.ApplicationTTLMonths)

	watch := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		watch = false
	}

	policy, err := unmarshalAdmissionPolicy(v)
	if err != nil {
		return nil, err
	}
	if err := validateAdmissionPolicy(policy); err != nil {
		return nil, err
	}

	holder := NewStaticPolicyHolder(policy)
	if !watch {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := unmarshalAdmissionPolicy(v)
		if err != nil {
			zap.L().Warn("admission policy reload failed", zap.Error(err))
			return
		}
		if err := validateAdmissionPolicy(updated); err != nil {
			zap.L().Warn("invalid admission policy ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		zap.L().Info("admission policy reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// unmarshalAdmissionPolicy goes through AllSettings so defaults fill keys the file omits.
func unmarshalAdmissionPolicy(v *viper.Viper) (AdmissionPolicy, error) {
	var file struct {
		Admission AdmissionPolicy `mapstructure:"admission"`
	}
	if err := v.Unmarshal(&file); err != nil {
		return AdmissionPolicy{}, err
	}
	return file.Admission, nil
}

func (h *PolicyHolder) Get() AdmissionPolicy {
	if h == nil {
		return DefaultAdmissionPolicy()
	}
	policy, ok := h.current.Load().(AdmissionPolicy)
	if !ok {
		return DefaultAdmissionPolicy()
	}
	return policy
}

func validateAdmissionPolicy(policy AdmissionPolicy) error {
	if !policy.Quorum.Valid() {
		return errors.New("admission.quorum values must be positive")
	}
	if policy.ApplicationTTLMonths <= 0 {
		return errors.New("admission.applicationTTLMonths must be positive")
	}
	return nil
}
