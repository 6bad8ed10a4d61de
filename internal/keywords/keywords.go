// Package keywords loads the search keyword list shared by all crawlers.
package keywords

import (
	"bufio"
	"log"
	"os"
	"strings"
)

// Defaults is used when the keyword file is missing or unreadable.
var Defaults = []string{
	"medical device", "skin analyzer", "3D imaging", "facial scanner",
	"skin care", "portable device", "spectral analysis", "AI device",
}

// Load reads one keyword per line from path, skipping blanks and `#`
// comments. A missing file falls back to Defaults rather than failing:
// keyword-less deployments still crawl something useful.
func Load(path string, logger *log.Logger) []string {
	if logger == nil {
		logger = log.Default()
	}

	f, err := os.Open(path)
	if err != nil {
		logger.Printf("keywords | %s unreadable, using defaults: %v", path, err)
		return append([]string(nil), Defaults...)
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		logger.Printf("keywords | read %s: %v", path, err)
	}
	if len(out) == 0 {
		logger.Printf("keywords | %s empty, using defaults", path)
		return append([]string(nil), Defaults...)
	}
	logger.Printf("keywords | loaded %d keywords from %s", len(out), path)
	return out
}
