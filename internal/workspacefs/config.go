package workspacefs

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the engine's runtime configuration, resolved through three
// layers: built-in defaults, then the workspace's config/config.json, then
// environment variables. Env wins.
type Config struct {
	AgentID         string        `mapstructure:"agent_id"`
	Enforcement     string        `mapstructure:"enforcement"`
	LockTimeout     time.Duration `mapstructure:"lock_timeout"`
	HookTimeout     time.Duration `mapstructure:"hook_timeout"`
	HooksDir        string        `mapstructure:"hooks_dir"`
}

const (
	EnforcementStrict   = "strict"
	EnforcementStandard = "standard"
	EnforcementAdvisory = "advisory"
)

func defaults() Config {
	return Config{
		Enforcement: EnforcementStandard,
		LockTimeout: 10 * time.Second,
		HookTimeout: 5 * time.Second,
		HooksDir:    "hooks",
	}
}

// LoadConfig layers defaults -> config/config.json (if present) -> TM_*
// env vars.
func LoadConfig(w *Workspace) (Config, error) {
	v := viper.New()
	d := defaults()
	v.SetDefault("agent_id", d.AgentID)
	v.SetDefault("enforcement", d.Enforcement)
	v.SetDefault("lock_timeout", d.LockTimeout)
	v.SetDefault("hook_timeout", d.HookTimeout)
	v.SetDefault("hooks_dir", d.HooksDir)

	v.SetConfigFile(w.Path("config", "config.json"))
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !isNotExist(err) {
				return Config{}, fmt.Errorf("workspacefs: reading config/config.json: %w", err)
			}
		}
	}

	v.SetEnvPrefix("TM")
	v.AutomaticEnv()
	for _, key := range []string{"agent_id", "enforcement", "lock_timeout", "hook_timeout", "hooks_dir"} {
		_ = v.BindEnv(key)
	}

	cfg := d
	if err := v.Unmarshal(&cfg, viperDurationHook()); err != nil {
		return Config{}, fmt.Errorf("workspacefs: unmarshalling config: %w", err)
	}
	if cfg.Enforcement != EnforcementStrict && cfg.Enforcement != EnforcementStandard && cfg.Enforcement != EnforcementAdvisory {
		return Config{}, fmt.Errorf("workspacefs: invalid enforcement mode %q", cfg.Enforcement)
	}
	return cfg, nil
}
