package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ccc1994/Chaos/types"
)

// Executor resolves capability calls against a Registry. Failures never
// abort anything: they come back verbatim inside the ToolResult so the
// issuing role can decide to retry or escalate.
type Executor struct {
	registry *Registry
	logger   *zap.Logger
}

// NewExecutor 创建能力执行器。
func NewExecutor(registry *Registry, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		registry: registry,
		logger:   logger.With(zap.String("component", "capability_executor")),
	}
}

// Execute resolves all calls issued by the given role. Calls run
// concurrently; results come back in call order.
func (e *Executor) Execute(ctx context.Context, role types.Role, calls []types.ToolCall) []types.ToolResult {
	results := make([]types.ToolResult, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(idx int, c types.ToolCall) {
			defer wg.Done()
			results[idx] = e.ExecuteOne(ctx, role, c)
		}(i, call)
	}
	wg.Wait()

	return results
}

// ExecuteOne resolves a single capability call with timeout control.
func (e *Executor) ExecuteOne(ctx context.Context, role types.Role, call types.ToolCall) types.ToolResult {
	start := time.Now()
	result := types.ToolResult{
		ToolCallID: call.ID,
		Name:       call.Name,
	}

	fn, meta, err := e.registry.Get(call.Name)
	if err != nil {
		result.Error = fmt.Sprintf("capability not found: %s", err.Error())
		result.Duration = time.Since(start)
		e.logger.Error("capability not found", zap.String("name", call.Name), zap.Error(err))
		return result
	}

	if !meta.allows(role) {
		result.Error = fmt.Sprintf("capability %s not permitted for role %s", call.Name, role)
		result.Duration = time.Since(start)
		e.logger.Warn("capability not permitted",
			zap.String("name", call.Name),
			zap.String("role", string(role)))
		return result
	}

	// 参数校验（简单校验：确保是有效 JSON）
	if len(call.Arguments) > 0 {
		var tmp interface{}
		if err := json.Unmarshal(call.Arguments, &tmp); err != nil {
			result.Error = fmt.Sprintf("invalid arguments: %s", err.Error())
			result.Duration = time.Since(start)
			e.logger.Error("invalid capability arguments", zap.String("name", call.Name), zap.Error(err))
			return result
		}
	}

	execCtx, cancel := context.WithTimeout(ctx, meta.Timeout)
	defer cancel()

	// 使用带缓冲的 channel 防止 goroutine 泄漏：
	// 即使超时后没人接收，goroutine 也能正常退出。
	doneChan := make(chan struct {
		res json.RawMessage
		err error
	}, 1)

	go func() {
		res, err := fn(execCtx, call.Arguments)
		select {
		case doneChan <- struct {
			res json.RawMessage
			err error
		}{res, err}:
		case <-execCtx.Done():
		}
	}()

	select {
	case done := <-doneChan:
		result.Duration = time.Since(start)
		if done.err != nil {
			result.Error = done.err.Error()
			e.logger.Error("capability execution failed",
				zap.String("name", call.Name),
				zap.Error(done.err),
				zap.Duration("duration", result.Duration))
		} else {
			result.Content = string(done.res)
			e.logger.Info("capability executed",
				zap.String("name", call.Name),
				zap.Duration("duration", result.Duration))
		}

	case <-execCtx.Done():
		result.Duration = time.Since(start)
		result.Error = fmt.Sprintf("capability timed out after %s", meta.Timeout)
		e.logger.Warn("capability timed out",
			zap.String("name", call.Name),
			zap.Duration("timeout", meta.Timeout))
	}

	return result
}
