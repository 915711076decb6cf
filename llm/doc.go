// Package llm defines the language-model backend surface consumed by the
// orchestrator: a unified Provider interface, wire types for chat
// completion requests, and a thread-safe provider registry.
//
// The orchestration core never talks to a vendor API directly; it goes
// through Provider so backends can be swapped or stubbed in tests.
package llm
