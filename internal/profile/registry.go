package profile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"sentra/internal/logger"
	"sentra/internal/position"
	"sentra/internal/strategy"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Profile 描述一组策略调优参数，非零字段覆盖主配置。
type Profile struct {
	ID                    string  `mapstructure:"id" yaml:"id" json:"id"`
	Description           string  `mapstructure:"description" yaml:"description" json:"description"`
	MinConfidence         float64 `mapstructure:"min_confidence" yaml:"min_confidence" json:"min_confidence"`
	MinStrength           int     `mapstructure:"min_strength" yaml:"min_strength" json:"min_strength"`
	MinRiskReward         float64 `mapstructure:"min_risk_reward" yaml:"min_risk_reward" json:"min_risk_reward"`
	HighVolMinConfidence  float64 `mapstructure:"high_vol_min_confidence" yaml:"high_vol_min_confidence" json:"high_vol_min_confidence"`
	TimeframeWeight       float64 `mapstructure:"timeframe_weight" yaml:"timeframe_weight" json:"timeframe_weight"`
	TrailingActivationPct float64 `mapstructure:"trailing_activation_pct" yaml:"trailing_activation_pct" json:"trailing_activation_pct"`
	TrailingDistancePct   float64 `mapstructure:"trailing_distance_pct" yaml:"trailing_distance_pct" json:"trailing_distance_pct"`
	MaxHoldMinutes        int     `mapstructure:"max_hold_minutes" yaml:"max_hold_minutes" json:"max_hold_minutes"`
	CooldownMinutes       int     `mapstructure:"cooldown_minutes" yaml:"cooldown_minutes" json:"cooldown_minutes"`
	HoldSignalsToExit     int     `mapstructure:"hold_signals_to_exit" yaml:"hold_signals_to_exit" json:"hold_signals_to_exit"`
}

// ApplyComposer 将 profile 的非零阈值叠加到信号合成配置上。
func (p Profile) ApplyComposer(cfg strategy.ComposerConfig) strategy.ComposerConfig {
	if p.MinConfidence > 0 {
		cfg.MinConfidence = p.MinConfidence
	}
	if p.MinStrength > 0 {
		cfg.MinStrength = strategy.Strength(p.MinStrength)
	}
	if p.MinRiskReward > 0 {
		cfg.MinRiskReward = p.MinRiskReward
	}
	if p.HighVolMinConfidence > 0 {
		cfg.HighVolMinConfidence = p.HighVolMinConfidence
	}
	if p.TimeframeWeight > 0 {
		cfg.TimeframeWeight = p.TimeframeWeight
	}
	return cfg
}

// ApplyRisk 将 profile 的非零风控参数叠加到持仓管理配置上。
func (p Profile) ApplyRisk(cfg position.Config) position.Config {
	if p.TrailingActivationPct > 0 {
		cfg.TrailingActivationPct = p.TrailingActivationPct
	}
	if p.TrailingDistancePct > 0 {
		cfg.TrailingDistancePct = p.TrailingDistancePct
	}
	if p.MaxHoldMinutes > 0 {
		cfg.MaxHold = time.Duration(p.MaxHoldMinutes) * time.Minute
	}
	if p.CooldownMinutes > 0 {
		cfg.Cooldown = time.Duration(p.CooldownMinutes) * time.Minute
	}
	if p.HoldSignalsToExit > 0 {
		cfg.HoldSignalsToExit = p.HoldSignalsToExit
	}
	return cfg
}

// FileConfig 映射 profiles 文件。
type FileConfig struct {
	Profiles map[string]Profile `mapstructure:"profiles" yaml:"profiles"`
}

// Snapshot 公开的 profile 快照。
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Profiles map[string]Profile
}

// ChangeListener 在 registry 重载时触发。
type ChangeListener func(Snapshot)

// Registry 管理策略 profile，文件变更后自动重载。
type Registry struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// profileSchema 约束每个 profile 的取值范围，加载时统一校验。
const profileSchema = `{
  "type": "object",
  "properties": {
    "min_confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "min_strength": {"type": "integer", "minimum": 0, "maximum": 4},
    "min_risk_reward": {"type": "number", "minimum": 0},
    "high_vol_min_confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "timeframe_weight": {"type": "number", "minimum": 0},
    "trailing_activation_pct": {"type": "number", "minimum": 0},
    "trailing_distance_pct": {"type": "number", "minimum": 0},
    "max_hold_minutes": {"type": "integer", "minimum": 0},
    "cooldown_minutes": {"type": "integer", "minimum": 0},
    "hold_signals_to_exit": {"type": "integer", "minimum": 0}
  }
}`

var compiledSchema = jsonschema.MustCompileString("profile.json", profileSchema)

// NewRegistry 读取 profile 文件并监听更新。
func NewRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("profile registry requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read profile config failed: %w", err)
	}
	r := &Registry{path: path, v: v}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("profile reload failed: %v", err)
			return
		}
		r.notifyListeners()
	})
	v.WatchConfig()
	return r, nil
}

// Snapshot 返回当前 profile 集。
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSnapshot(r.snapshot)
}

// Profile 返回指定 ID 的 profile。
func (r *Registry) Profile(id string) (Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.snapshot.Profiles[strings.TrimSpace(id)]
	return p, ok
}

// OnChange 注册重载回调。
func (r *Registry) OnChange(fn ChangeListener) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *Registry) reload() error {
	cfg, err := readProfileFile(r.path)
	if err != nil {
		return err
	}
	profiles := make(map[string]Profile)
	for name, p := range cfg.Profiles {
		norm, err := normalizeProfile(name, p)
		if err != nil {
			return err
		}
		profiles[norm.ID] = norm
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Profiles: profiles,
	}
	r.mu.Unlock()
	logger.Infof("Profile registry loaded %d profiles from %s", len(profiles), filepath.Base(r.path))
	return nil
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	snap := cloneSnapshot(r.snapshot)
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		if fn == nil {
			continue
		}
		go func(cb ChangeListener) {
			defer safeRecover("profile listener")
			cb(snap)
		}(fn)
	}
}

func normalizeProfile(name string, p Profile) (Profile, error) {
	p.ID = strings.TrimSpace(p.ID)
	if p.ID == "" {
		p.ID = strings.TrimSpace(name)
	}
	p.Description = strings.TrimSpace(p.Description)
	if err := validateProfile(p); err != nil {
		return Profile{}, fmt.Errorf("profile %s: %w", p.ID, err)
	}
	return p, nil
}

func validateProfile(p Profile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return compiledSchema.Validate(doc)
}

func cloneSnapshot(src Snapshot) Snapshot {
	dst := Snapshot{
		Version:  src.Version,
		LoadedAt: src.LoadedAt,
		Profiles: make(map[string]Profile, len(src.Profiles)),
	}
	for id, p := range src.Profiles {
		dst.Profiles[id] = p
	}
	return dst
}

func safeRecover(tag string) {
	if r := recover(); r != nil {
		logger.Errorf("%s panic: %v", tag, r)
	}
}

func readProfileFile(path string) (FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("read profile config failed: %w", err)
	}
	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return FileConfig{}, fmt.Errorf("parse profile config failed: %w", err)
	}
	return cfg, nil
}
