package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ccc1994/Chaos/config"
	"github.com/ccc1994/Chaos/groupchat"
	"github.com/ccc1994/Chaos/llm"
	"github.com/ccc1994/Chaos/llm/providers/openaicompat"
	"github.com/ccc1994/Chaos/session"
	"github.com/ccc1994/Chaos/tools"
)

func newRunCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start an interactive collaboration session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewLoader().WithConfigPath(*configPath).Load()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Log)
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			defer logger.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSession(ctx, cfg, logger)
		},
	}
}

func runSession(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	fmt.Println(bannerStyle.Render(banner))

	if err := session.EnsureWorkspace(cfg.Workspace.StateDir, cfg.Workspace.Playground, logger); err != nil {
		return err
	}
	store := session.NewStore(cfg.Workspace.StateDir, logger)
	if prev := store.Load(); prev != nil && prev.Status == session.StatusActive {
		fmt.Println(noticeStyle.Render(fmt.Sprintf(
			"Previous session found (task: %q, %d messages). Starting fresh; the checkpoint will be overwritten.",
			prev.CurrentTask, prev.HistoryCount)))
	}

	registry := llm.NewProviderRegistry()
	provider := openaicompat.New(openaicompat.Config{
		ProviderName: "openai_compat",
		APIKey:       cfg.LLM.APIKey,
		BaseURL:      cfg.LLM.BaseURL,
		Timeout:      cfg.LLM.Timeout,
	}, logger)
	registry.Register("openai_compat", provider)
	if err := registry.SetDefault("openai_compat"); err != nil {
		return err
	}

	capabilities := tools.NewRegistry(logger)
	executor := tools.NewExecutor(capabilities, logger)
	engine := groupchat.NewLLMEngine(registry, capabilities, cfg.SummaryModelRef(), logger)
	metrics := groupchat.NewMetrics(nil)

	agents, err := groupchat.NewRoleAgents(cfg.ModelRefs())
	if err != nil {
		return err
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Print("\ntask> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		task := strings.TrimSpace(scanner.Text())
		switch task {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		group, err := newMainGroup(cfg, agents, engine, executor, metrics, logger)
		if err != nil {
			return err
		}

		if err := store.Save(&session.State{CurrentTask: task, Status: session.StatusActive}); err != nil {
			logger.Warn("checkpoint save failed", zap.Error(err))
		}

		result, runErr := group.Run(ctx, task)
		printResult(result)

		state := &session.State{
			CurrentTask:  task,
			Status:       statusFor(result, runErr),
			HistoryCount: group.Transcript().Len(),
		}
		if err := store.Save(state); err != nil {
			logger.Warn("checkpoint save failed", zap.Error(err))
		}
		if runErr != nil && ctx.Err() != nil {
			return nil
		}
	}
}

// newMainGroup assembles a fresh top-level group for one task. Each task
// gets its own transcript and round budget.
func newMainGroup(cfg *config.Config, agents []*groupchat.RoleAgent, engine *groupchat.LLMEngine, executor *tools.Executor, metrics *groupchat.Metrics, logger *zap.Logger) (*groupchat.ChatGroup, error) {
	compressor := groupchat.NewContextCompressor(groupchat.CompressorConfig{
		MaxChars:   cfg.Compressor.MaxChars,
		KeepRounds: cfg.Compressor.KeepRounds,
	}, engine, logger)

	opts := []groupchat.GroupOption{
		groupchat.WithExecutor(executor),
		groupchat.WithCompressor(compressor),
		groupchat.WithMetrics(metrics),
		groupchat.WithLogger(logger),
	}

	if cfg.Orchestration.DelegationSentinel != "" {
		trigger := groupchat.DelegationTrigger{
			Sentinel:  cfg.Orchestration.DelegationSentinel,
			CutMarker: cfg.Orchestration.DelegationCutMarker,
		}
		factory := func() (*groupchat.ChatGroup, error) {
			return newSubGroup(cfg, agents, engine, executor, logger)
		}
		opts = append(opts, groupchat.WithDelegator(
			groupchat.NewDelegator(trigger, "subtask", factory, metrics, logger)))
	}

	return groupchat.NewChatGroup(groupchat.GroupConfig{
		Name:      "main",
		MaxRounds: cfg.Orchestration.MaxRounds,
	}, agents, groupchat.NewProceduralPolicy(), engine, opts...)
}

// newSubGroup assembles the subordinate group used by nested delegation:
// a declarative implement-review loop with its own, smaller budget.
func newSubGroup(cfg *config.Config, agents []*groupchat.RoleAgent, engine *groupchat.LLMEngine, executor *tools.Executor, logger *zap.Logger) (*groupchat.ChatGroup, error) {
	policy := groupchat.NewDeclarativePolicy(groupchat.SubGroupFirstSpeaker(), groupchat.SubGroupTransitions())
	return groupchat.NewChatGroup(groupchat.GroupConfig{
		Name:      "subtask",
		MaxRounds: cfg.Orchestration.SubMaxRounds,
	}, agents, policy, engine,
		groupchat.WithExecutor(executor),
		groupchat.WithLogger(logger))
}

func statusFor(result *groupchat.EpisodeResult, runErr error) session.Status {
	switch {
	case runErr != nil:
		return session.StatusFailed
	case result.Status == groupchat.EpisodeCompleted:
		return session.StatusCompleted
	default:
		return session.StatusAwaitingUser
	}
}

func printResult(result *groupchat.EpisodeResult) {
	fmt.Println()
	fmt.Println(noticeStyle.Render(fmt.Sprintf("episode %s (%s) after %d rounds",
		result.Status, result.Reason, result.Rounds)))
	if result.Final.Content != "" {
		fmt.Printf("[%s] %s\n", result.Final.Sender, result.Final.Content)
	}
}
