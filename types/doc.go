// Package types provides core types used across the Chaos orchestrator.
// This package has ZERO dependencies on other Chaos packages to avoid
// circular imports. All other packages should import types from here.
package types
