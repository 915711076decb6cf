package session

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
)

// EnsureWorkspace creates the state and playground directories and makes
// sure both are listed in .gitignore so checkpoints and generated code
// never land in version control.
func EnsureWorkspace(stateDir, playground string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, dir := range []string{stateDir, playground} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	if err := ensureIgnored(".gitignore", []string{stateDir + "/", playground + "/"}); err != nil {
		return err
	}
	logger.Debug("workspace ready",
		zap.String("state_dir", stateDir),
		zap.String("playground", playground))
	return nil
}

// ensureIgnored appends the missing entries to the ignore file,
// creating it if needed. Existing content is preserved.
func ensureIgnored(path string, entries []string) error {
	existing := map[string]bool{}
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read %s: %w", path, err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		existing[strings.TrimSpace(line)] = true
	}

	var missing []string
	for _, e := range entries {
		if !existing[e] && !existing[strings.TrimSuffix(e, "/")] {
			missing = append(missing, e)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var b strings.Builder
	if len(data) > 0 && !strings.HasSuffix(string(data), "\n") {
		b.WriteString("\n")
	}
	for _, e := range missing {
		b.WriteString(e)
		b.WriteString("\n")
	}
	if _, err := f.WriteString(b.String()); err != nil {
		return fmt.Errorf("append to %s: %w", path, err)
	}
	return nil
}
