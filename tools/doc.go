// Package tools provides the capability registry and executor used by
// chat group roles. The orchestration core never interprets capability
// semantics: it hands opaque ToolCalls to the Executor and records the
// invocation/result pairs inside transcript messages. Concrete handlers
// (file edit, shell, version control, code search) are registered by the
// embedding application.
package tools
