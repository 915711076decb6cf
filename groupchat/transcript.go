package groupchat

import (
	"github.com/ccc1994/Chaos/types"
)

// Transcript is the ordered, append-only message sequence owned by
// exactly one ChatGroup. It is never reordered; the only wholesale
// mutation is Rewrite, used by the context compressor to replace a
// prefix with a single synthetic summary message.
//
// Single-writer: only the owning group's episode loop touches it.
type Transcript struct {
	msgs  []types.Message
	chars int
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{}
}

// Append adds a message at the tail, assigning its order index.
func (t *Transcript) Append(msg types.Message) {
	msg.Index = len(t.msgs)
	t.msgs = append(t.msgs, msg)
	t.chars += len(msg.Content)
}

// Rewrite replaces the entire message sequence. Reserved for the
// compressor; indexes are reassigned from zero.
func (t *Transcript) Rewrite(msgs []types.Message) {
	t.msgs = make([]types.Message, 0, len(msgs))
	t.chars = 0
	for _, m := range msgs {
		t.Append(m)
	}
}

// Messages returns a copy of the message sequence.
func (t *Transcript) Messages() []types.Message {
	out := make([]types.Message, len(t.msgs))
	copy(out, t.msgs)
	return out
}

// Last returns the most recent message, or false when empty.
func (t *Transcript) Last() (types.Message, bool) {
	if len(t.msgs) == 0 {
		return types.Message{}, false
	}
	return t.msgs[len(t.msgs)-1], true
}

// Tail returns a copy of the last n messages (fewer if not available).
func (t *Transcript) Tail(n int) []types.Message {
	if n > len(t.msgs) {
		n = len(t.msgs)
	}
	out := make([]types.Message, n)
	copy(out, t.msgs[len(t.msgs)-n:])
	return out
}

// Len returns the number of messages.
func (t *Transcript) Len() int { return len(t.msgs) }

// CharLen returns the total content length in bytes, the measure the
// compressor bounds.
func (t *Transcript) CharLen() int { return t.chars }
