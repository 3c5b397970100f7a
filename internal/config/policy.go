package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PolicyConfig carries the enforcement defaults used when no ConfigVariable
// row overrides them. Values are in hours.
type PolicyConfig struct {
	DefaultMaxLeaseDuration float64 `mapstructure:"defaultMaxLeaseDuration"`
	DefaultUpdateWindow     float64 `mapstructure:"defaultUpdateWindow"`
	PendingResourcePrefix   string  `mapstructure:"pendingResourcePrefix"`
}

func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		DefaultMaxLeaseDuration: 7 * 24,
		DefaultUpdateWindow:     48,
		PendingResourcePrefix:   "pending",
	}
}

// PolicyHolder exposes the current policy config and hot-reloads it when the
// backing file changes.
type PolicyHolder struct {
	current atomic.Value // holds PolicyConfig
}

func NewPolicyHolder() (*PolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("policy")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/balanced/config")
	v.AddConfigPath("/etc/balanced")
	v.AddConfigPath(".")

	v.SetEnvPrefix("BALANCED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPolicyConfig()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		v.SetDefault("policy.defaultMaxLeaseDuration", defaults.DefaultMaxLeaseDuration)
		v.SetDefault("policy.defaultUpdateWindow", defaults.DefaultUpdateWindow)
		v.SetDefault("policy.pendingResourcePrefix", defaults.PendingResourcePrefix)
	}

	var cfg PolicyConfig
	if err := v.UnmarshalKey("policy", &cfg); err != nil {
		return nil, err
	}
	applyPolicyDefaults(&cfg, defaults)
	if err := validatePolicyConfig(cfg); err != nil {
		return nil, err
	}

	holder := &PolicyHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PolicyConfig
		if err := v.UnmarshalKey("policy", &updated); err != nil {
			log.Printf("[policy-config] reload failed: %v", err)
			return
		}
		applyPolicyDefaults(&updated, defaults)
		if err := validatePolicyConfig(updated); err != nil {
			log.Printf("[policy-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[policy-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *PolicyHolder) Get() PolicyConfig {
	return h.current.Load().(PolicyConfig)
}

// NewStaticPolicyHolder returns a holder pinned to cfg. Test helper.
func NewStaticPolicyHolder(cfg PolicyConfig) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(cfg)
	return holder
}

func applyPolicyDefaults(cfg *PolicyConfig, defaults PolicyConfig) {
	if cfg.DefaultMaxLeaseDuration == 0 {
		cfg.DefaultMaxLeaseDuration = defaults.DefaultMaxLeaseDuration
	}
	if cfg.DefaultUpdateWindow == 0 {
		cfg.DefaultUpdateWindow = defaults.DefaultUpdateWindow
	}
	if strings.TrimSpace(cfg.PendingResourcePrefix) == "" {
		cfg.PendingResourcePrefix = defaults.PendingResourcePrefix
	}
}

func validatePolicyConfig(cfg PolicyConfig) error {
	if cfg.DefaultMaxLeaseDuration <= 0 {
		return errors.New("policy.defaultMaxLeaseDuration must be positive")
	}
	if cfg.DefaultUpdateWindow <= 0 {
		return errors.New("policy.defaultUpdateWindow must be positive")
	}
	return nil
}
