// Package session persists the lightweight cross-process checkpoint: the
// current task, its lifecycle status, and the transcript length at save
// time. The checkpoint is advisory; a live episode never depends on it.
package session
