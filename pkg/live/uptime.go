package live

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var uptimePart = regexp.MustCompile(`^(\d+)([dhm])$`)

// FormatUptime renders d as "{days}d {hours}h {minutes}m"
func FormatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	minutes := int64(d / time.Minute)
	return fmt.Sprintf("%dd %dh %dm", minutes/(24*60), (minutes/60)%24, minutes%60)
}

// ParseUptime reads a humanized uptime such as "3d 4h 12m". Parts may be
// omitted or reordered; an empty string is zero.
func ParseUptime(s string) (time.Duration, error) {
	var total time.Duration
	for _, field := range strings.Fields(strings.ToLower(s)) {
		m := uptimePart.FindStringSubmatch(field)
		if m == nil {
			return 0, fmt.Errorf("invalid uptime %q: unexpected %q", s, field)
		}
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid uptime %q: %w", s, err)
		}
		switch m[2] {
		case "d":
			total += time.Duration(n) * 24 * time.Hour
		case "h":
			total += time.Duration(n) * time.Hour
		case "m":
			total += time.Duration(n) * time.Minute
		}
	}
	return total, nil
}

// ParseSeeds parses configured per-server uptime seeds
func ParseSeeds(raw map[string]string) (map[string]time.Duration, error) {
	seeds := make(map[string]time.Duration, len(raw))
	for id, value := range raw {
		d, err := ParseUptime(value)
		if err != nil {
			return nil, fmt.Errorf("seed for %s: %w", id, err)
		}
		seeds[id] = d
	}
	return seeds, nil
}
