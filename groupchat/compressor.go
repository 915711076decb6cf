package groupchat

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ccc1994/Chaos/llm/tokenizer"
	"github.com/ccc1994/Chaos/types"
)

// summaryPrompt asks the backend to fold the aging prefix into a
// compact record the remaining roles can keep reasoning over.
const summaryPrompt = "Condense the following conversation into a concise record of key decisions and action items:"

// degradedSummary replaces the summary when the backend fails; the
// episode continues with reduced context rather than aborting.
const degradedSummary = "[Earlier conversation history was compressed; the summary backend was unavailable, so details before this point are lost.]"

// Summarizer produces a condensed rendition of transcript text.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// CompressorConfig bounds the transcript.
type CompressorConfig struct {
	// MaxChars is the character threshold above which compression runs.
	MaxChars int
	// KeepRounds is the number of recent rounds preserved verbatim;
	// 2*KeepRounds messages are kept.
	KeepRounds int
}

// DefaultCompressorConfig 返回默认压缩参数。
func DefaultCompressorConfig() CompressorConfig {
	return CompressorConfig{MaxChars: 60000, KeepRounds: 5}
}

// SummaryCache remembers the latest summary and the transcript index it
// anchors at. The anchor never moves backward within an episode: the
// compressed prefix does not re-grow.
type SummaryCache struct {
	Text        string
	AnchorIndex int
	valid       bool
}

// ContextCompressor bounds the owning group's transcript. When the
// total character length reaches the threshold, everything before the
// preserved tail is replaced with a single synthetic summary message.
type ContextCompressor struct {
	cfg        CompressorConfig
	summarizer Summarizer
	cache      SummaryCache
	counter    tokenizer.Tokenizer
	logger     *zap.Logger
}

// NewContextCompressor creates a compressor. summarizer may not be nil;
// logger may be, in which case a no-op logger is used.
func NewContextCompressor(cfg CompressorConfig, summarizer Summarizer, logger *zap.Logger) *ContextCompressor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultCompressorConfig().MaxChars
	}
	if cfg.KeepRounds <= 0 {
		cfg.KeepRounds = DefaultCompressorConfig().KeepRounds
	}
	return &ContextCompressor{
		cfg:        cfg,
		summarizer: summarizer,
		counter:    tokenizer.GetTokenizerOrEstimator("gpt-4"),
		logger:     logger.With(zap.String("component", "compressor")),
	}
}

// Cache returns a copy of the current summary cache.
func (c *ContextCompressor) Cache() SummaryCache { return c.cache }

// Compress checks the transcript against the threshold and rewrites it
// when needed. It reports whether a rewrite happened and whether the
// summary is degraded. Re-invoking on an already-compressed transcript
// that is back under the threshold is a no-op.
func (c *ContextCompressor) Compress(ctx context.Context, t *Transcript) (compressed, degraded bool) {
	if t.CharLen() < c.cfg.MaxChars {
		return false, false
	}

	keep := 2 * c.cfg.KeepRounds
	msgs := t.Messages()
	if len(msgs) <= keep {
		// Over threshold but nothing outside the preserved window; the
		// recent messages themselves are simply large.
		return false, false
	}

	old := msgs[:len(msgs)-keep]
	recent := msgs[len(msgs)-keep:]
	if c.cache.valid && len(old) == 1 && old[0].Index == c.cache.AnchorIndex {
		// Only the previous summary sits outside the window.
		return false, false
	}

	text := renderForSummary(c.cache, old)
	estTokens, _ := c.counter.CountTokens(text)
	c.logger.Debug("compressing transcript",
		zap.Int("chars", t.CharLen()),
		zap.Int("old_messages", len(old)),
		zap.Int("estimated_tokens", estTokens))

	summary, err := c.summarizer.Summarize(ctx, summaryPrompt+"\n\n"+text)
	if err != nil || strings.TrimSpace(summary) == "" {
		c.logger.Warn("summarization failed, inserting placeholder", zap.Error(err))
		summary = degradedSummary
		degraded = true
	}

	anchor := types.NewMessage(types.RoleHumanProxy, summary)
	anchor.Name = "context_summary"
	anchor = anchor.WithMetadata(map[string]any{"summary": true})

	t.Rewrite(append([]types.Message{anchor}, recent...))
	c.cache = SummaryCache{Text: summary, AnchorIndex: 0, valid: true}
	c.logger.Info("transcript compressed",
		zap.Int("kept_messages", keep),
		zap.Int("chars_after", t.CharLen()),
		zap.Bool("degraded", degraded))
	return true, degraded
}

// renderForSummary flattens the aging prefix into plain text. The
// previous summary text is carried forward so its decisions survive
// repeated compression.
func renderForSummary(cache SummaryCache, old []types.Message) string {
	var b strings.Builder
	if cache.valid {
		b.WriteString("Previously summarized context:\n")
		b.WriteString(cache.Text)
		b.WriteString("\n\n")
	}
	for _, m := range old {
		if v, ok := m.Metadata["summary"]; ok {
			if tagged, isBool := v.(bool); isBool && tagged {
				continue
			}
		}
		fmt.Fprintf(&b, "[%s] %s\n", m.Sender, m.Content)
	}
	return b.String()
}
