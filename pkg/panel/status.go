package panel

import (
	"strings"

	"github.com/cuemby/panelsync/pkg/types"
)

// DefaultPersistentKeywords mark servers meant to run continuously
var DefaultPersistentKeywords = []string{"roleplay", "persistent", "24/7"}

// StatusClassifier derives the displayed status from the panel's literal one.
//
// A server whose name contains one of Keywords (case-insensitive) is live
// unless suspended, whatever the panel reports. The panel's status field is
// not reliable for long-lived services, so this override is intentional.
type StatusClassifier struct {
	Keywords []string
}

// NewStatusClassifier normalizes keywords, dropping empty entries
func NewStatusClassifier(keywords []string) StatusClassifier {
	normalized := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			normalized = append(normalized, k)
		}
	}
	return StatusClassifier{Keywords: normalized}
}

// Classify maps a name, upstream status and suspension flag to a ServerStatus
func (c StatusClassifier) Classify(name, upstream string, suspended bool) types.ServerStatus {
	if !suspended && c.persistent(name) {
		return types.StatusLive
	}

	switch upstream {
	case "running":
		return types.StatusLive
	case "stopped":
		return types.StatusOffline
	case "":
		return types.StatusUnknown
	default:
		return types.ServerStatus(upstream)
	}
}

func (c StatusClassifier) persistent(name string) bool {
	lower := strings.ToLower(name)
	for _, k := range c.Keywords {
		if k != "" && strings.Contains(lower, strings.ToLower(k)) {
			return true
		}
	}
	return false
}
