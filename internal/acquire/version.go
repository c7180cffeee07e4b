package acquire

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

// ToolVersion asks a binary for its version with -V and returns the
// last whitespace-separated token of the first line, or "unknown".
// All four external tools (prefetch, fasterq-dump, kmerfreq, gce)
// answer this convention.
func ToolVersion(ctx context.Context, bin string) string {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, bin, "-V").CombinedOutput()
	if err != nil {
		return "unknown"
	}
	line := strings.TrimSpace(string(out))
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "unknown"
	}
	return fields[len(fields)-1]
}
