package panel

import (
	"testing"

	"github.com/cuemby/panelsync/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestStatusClassifier_Classify(t *testing.T) {
	c := NewStatusClassifier(DefaultPersistentKeywords)

	tests := []struct {
		name      string
		server    string
		upstream  string
		suspended bool
		want      types.ServerStatus
	}{
		{"persistent name overrides stopped", "Roleplay Alpha", "stopped", false, types.StatusLive},
		{"keyword is case-insensitive", "Our PERSISTENT world", "", false, types.StatusLive},
		{"slash keyword", "Creative 24/7", "starting", false, types.StatusLive},
		{"suspended persistent keeps upstream", "Roleplay Alpha", "stopped", true, types.StatusOffline},
		{"suspended persistent passes suspended", "Roleplay Beta", "suspended", true, types.StatusSuspended},
		{"running", "Survival", "running", false, types.StatusLive},
		{"stopped", "Survival", "stopped", false, types.StatusOffline},
		{"pass through", "Survival", "installing", false, types.StatusInstalling},
		{"unknown value passes through", "Survival", "restoring_backup", false, types.ServerStatus("restoring_backup")},
		{"empty", "Survival", "", false, types.StatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.server, tt.upstream, tt.suspended))
		})
	}
}

func TestStatusClassifier_ConfiguredKeywords(t *testing.T) {
	c := NewStatusClassifier([]string{" Lobby ", ""})
	assert.Equal(t, []string{"lobby"}, c.Keywords)
	assert.Equal(t, types.StatusLive, c.Classify("Main lobby", "stopped", false))
	assert.Equal(t, types.StatusOffline, c.Classify("Roleplay Alpha", "stopped", false))
}

func TestStatusClassifier_NoKeywords(t *testing.T) {
	var c StatusClassifier
	assert.Equal(t, types.StatusOffline, c.Classify("Roleplay Alpha", "stopped", false))
}
