// config 包提供 Chaos 的统一配置加载。
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量。
package config
