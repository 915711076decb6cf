// =============================================================================
// 📦 Chaos 配置结构
// =============================================================================
// 角色模型绑定、回合预算、上下文压缩与日志配置。
// =============================================================================
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ccc1994/Chaos/llm"
	"github.com/ccc1994/Chaos/types"
)

// Config 是 Chaos 的完整配置结构
type Config struct {
	// LLM 上游端点配置
	LLM LLMConfig `yaml:"llm"`

	// Roles 各角色的模型绑定
	Roles RolesConfig `yaml:"roles"`

	// Orchestration 编排配置
	Orchestration OrchestrationConfig `yaml:"orchestration"`

	// Compressor 上下文压缩配置
	Compressor CompressorConfig `yaml:"compressor"`

	// Workspace 工作目录配置
	Workspace WorkspaceConfig `yaml:"workspace"`

	// Log 日志配置
	Log LogConfig `yaml:"log"`
}

// LLMConfig 上游 OpenAI 兼容端点配置
type LLMConfig struct {
	// API Key（env: DASHSCOPE_API_KEY）
	APIKey string `yaml:"api_key"`
	// Base URL（env: DASHSCOPE_BASE_URL）
	BaseURL string `yaml:"base_url"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout"`
}

// RolesConfig 各角色模型绑定。为空的角色回退到 DefaultModel。
type RolesConfig struct {
	// 默认模型（env: DEFAULT_MODEL_ID）
	DefaultModel string `yaml:"default_model"`
	// 设计师模型（env: DESIGNER_MODEL_ID）
	Designer string `yaml:"designer"`
	// 实现者模型（env: IMPLEMENTER_MODEL_ID）
	Implementer string `yaml:"implementer"`
	// 评审者模型（env: REVIEWER_MODEL_ID）
	Reviewer string `yaml:"reviewer"`
	// 验证者模型（env: VERIFIER_MODEL_ID）
	Verifier string `yaml:"verifier"`
	// 人类代理模型（env: HUMAN_PROXY_MODEL_ID）
	HumanProxy string `yaml:"human_proxy"`
}

// OrchestrationConfig 编排配置
type OrchestrationConfig struct {
	// 主会话回合预算
	MaxRounds int `yaml:"max_rounds"`
	// 从属会话回合预算
	SubMaxRounds int `yaml:"sub_max_rounds"`
	// 委派触发哨兵（为空则禁用嵌套委派）
	DelegationSentinel string `yaml:"delegation_sentinel"`
	// 委派任务切割标记
	DelegationCutMarker string `yaml:"delegation_cut_marker"`
}

// CompressorConfig 上下文压缩配置
type CompressorConfig struct {
	// 压缩触发字符阈值
	MaxChars int `yaml:"max_chars"`
	// 原样保留的最近轮数（保留 2*KeepRounds 条消息）
	KeepRounds int `yaml:"keep_rounds"`
}

// WorkspaceConfig 工作目录配置
type WorkspaceConfig struct {
	// 会话状态目录
	StateDir string `yaml:"state_dir"`
	// 代码工作区目录
	Playground string `yaml:"playground"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 级别: debug, info, warn, error
	Level string `yaml:"level"`
	// 格式: json, console
	Format string `yaml:"format"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Timeout: 60 * time.Second,
		},
		Orchestration: OrchestrationConfig{
			MaxRounds:    50,
			SubMaxRounds: 10,
		},
		Compressor: CompressorConfig{
			MaxChars:   60000,
			KeepRounds: 5,
		},
		Workspace: WorkspaceConfig{
			StateDir:   ".ca",
			Playground: "playground",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// roleModels maps each role to its configured model id, applying the
// default-model fallback.
func (c *Config) roleModels() map[types.Role]string {
	pick := func(id string) string {
		if id != "" {
			return id
		}
		return c.Roles.DefaultModel
	}
	return map[types.Role]string{
		types.RoleDesigner:    pick(c.Roles.Designer),
		types.RoleImplementer: pick(c.Roles.Implementer),
		types.RoleReviewer:    pick(c.Roles.Reviewer),
		types.RoleVerifier:    pick(c.Roles.Verifier),
		types.RoleHumanProxy:  pick(c.Roles.HumanProxy),
	}
}

// ModelRefs 返回每个角色的模型绑定。
func (c *Config) ModelRefs() map[types.Role]llm.ModelRef {
	refs := make(map[types.Role]llm.ModelRef)
	for role, model := range c.roleModels() {
		refs[role] = llm.ModelRef{
			ModelID:      model,
			APIKey:       c.LLM.APIKey,
			BaseURL:      c.LLM.BaseURL,
			ProviderType: "openai_compat",
		}
	}
	return refs
}

// SummaryModelRef 返回摘要压缩使用的模型绑定（默认模型）。
func (c *Config) SummaryModelRef() llm.ModelRef {
	return llm.ModelRef{
		ModelID:      c.Roles.DefaultModel,
		APIKey:       c.LLM.APIKey,
		BaseURL:      c.LLM.BaseURL,
		ProviderType: "openai_compat",
	}
}

// Validate 校验配置。缺失的角色模型绑定会被一次性汇总报告，
// 而不是在第一个缺失处停下。
func (c *Config) Validate() error {
	var missing []string
	for role, model := range c.roleModels() {
		if model == "" {
			missing = append(missing, string(role))
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return types.NewError(types.ErrConfiguration,
			"no model configured for roles: "+strings.Join(missing, ", ")+
				" (set per-role model ids or DEFAULT_MODEL_ID)")
	}
	if c.LLM.APIKey == "" {
		return types.NewError(types.ErrConfiguration, "missing API key (set DASHSCOPE_API_KEY)")
	}
	if c.Orchestration.MaxRounds <= 0 {
		return types.NewError(types.ErrConfiguration,
			fmt.Sprintf("max_rounds must be positive, got %d", c.Orchestration.MaxRounds))
	}
	if c.Compressor.KeepRounds <= 0 {
		return types.NewError(types.ErrConfiguration,
			fmt.Sprintf("keep_rounds must be positive, got %d", c.Compressor.KeepRounds))
	}
	return nil
}
