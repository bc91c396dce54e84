package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// RunLogPattern matches the per-run log files quill writes.
const RunLogPattern = "quill-*.log"

// RunLogRetention describes which per-run logs survive a prune.
type RunLogRetention struct {
	Dir string
	// Days is the age limit; zero keeps everything.
	Days int
	// Current is the active run's log. It is kept regardless of age, as is
	// anything a symlink in Dir (the quill.log pointer) resolves to.
	Current string
}

// PruneRunLogs removes per-run logs older than the retention window and
// returns how many were deleted.
func PruneRunLogs(logger *slog.Logger, r RunLogRetention) int {
	if r.Days <= 0 || r.Dir == "" {
		return 0
	}
	entries, err := os.ReadDir(r.Dir)
	if err != nil {
		return 0
	}
	cutoff := time.Now().AddDate(0, 0, -r.Days)

	keep := make(map[string]struct{})
	if r.Current != "" {
		keep[absPath(r.Current)] = struct{}{}
	}
	for _, entry := range entries {
		if entry.Type()&os.ModeSymlink == 0 {
			continue
		}
		if target, err := filepath.EvalSymlinks(filepath.Join(r.Dir, entry.Name())); err == nil {
			keep[absPath(target)] = struct{}{}
		}
	}

	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if ok, _ := filepath.Match(RunLogPattern, entry.Name()); !ok {
			continue
		}
		path := absPath(filepath.Join(r.Dir, entry.Name()))
		if _, skip := keep[path]; skip {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			WarnWithContext(logger, "old run log not removed", "log_retention_failed",
				String("path", path),
				Error(err),
				String(FieldErrorHint, "check ownership of the state directory"),
			)
			continue
		}
		removed++
	}
	if removed > 0 && logger != nil {
		logger.Info("old run logs pruned",
			Int("removed_count", removed),
			Int("retention_days", r.Days),
			String(FieldEventType, "log_pruned"),
		)
	}
	return removed
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
