// Package openaicompat implements llm.Provider against any
// OpenAI-compatible chat completions endpoint (DashScope compatible
// mode, Volcengine Ark, vLLM, and friends). Only the base URL, API key,
// and default model differ between deployments.
package openaicompat
