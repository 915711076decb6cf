// Package groupchat implements the multi-role collaboration engine: a
// fixed set of specialized conversational roles (design, implementation,
// review, verification, and a human proxy) scheduled over a shared
// append-only transcript.
//
// A ChatGroup owns one transcript and drives one episode: the transition
// policy selects the next speaker, the speaker's turn is generated
// through the llm backend, capability calls are resolved synchronously,
// and the context compressor keeps the transcript bounded. A message may
// trigger nested delegation to a subordinate ChatGroup with its own
// round budget; only the subordinate's final message folds back into the
// parent transcript.
package groupchat
