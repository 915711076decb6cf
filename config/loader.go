// =============================================================================
// 📦 Chaos 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("chaos.yaml").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Loader 配置加载器
type Loader struct {
	configPath string
}

// NewLoader 创建配置加载器
func NewLoader() *Loader {
	return &Loader{}
}

// WithConfigPath 设置 YAML 配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// Load 加载并校验配置
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := loadYAML(l.configPath, cfg); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", l.configPath, err)
		}
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv applies the environment overrides. Variable names follow the
// upstream DashScope convention plus per-role model bindings.
func applyEnv(cfg *Config) {
	setString(&cfg.LLM.APIKey, "DASHSCOPE_API_KEY")
	setString(&cfg.LLM.BaseURL, "DASHSCOPE_BASE_URL")

	setString(&cfg.Roles.DefaultModel, "DEFAULT_MODEL_ID")
	setString(&cfg.Roles.Designer, "DESIGNER_MODEL_ID")
	setString(&cfg.Roles.Implementer, "IMPLEMENTER_MODEL_ID")
	setString(&cfg.Roles.Reviewer, "REVIEWER_MODEL_ID")
	setString(&cfg.Roles.Verifier, "VERIFIER_MODEL_ID")
	setString(&cfg.Roles.HumanProxy, "HUMAN_PROXY_MODEL_ID")

	setInt(&cfg.Orchestration.MaxRounds, "CHAOS_MAX_ROUNDS")
	setInt(&cfg.Orchestration.SubMaxRounds, "CHAOS_SUB_MAX_ROUNDS")
	setInt(&cfg.Compressor.MaxChars, "CHAOS_COMPRESS_MAX_CHARS")
	setInt(&cfg.Compressor.KeepRounds, "CHAOS_COMPRESS_KEEP_ROUNDS")
	setString(&cfg.Log.Level, "CHAOS_LOG_LEVEL")
	setString(&cfg.Log.Format, "CHAOS_LOG_FORMAT")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
