package demo

import (
	"context"
	"testing"

	"github.com/cuemby/panelsync/pkg/panel"
	"github.com/cuemby/panelsync/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetcher_EmbeddedDirectory(t *testing.T) {
	f := NewFetcher(panel.NewStatusClassifier(panel.DefaultPersistentKeywords))
	servers, err := f.FetchServers(context.Background())
	require.NoError(t, err)
	require.Len(t, servers, 3)

	byID := make(map[string]types.RemoteServer)
	for _, s := range servers {
		byID[s.Identifier] = s
	}

	alpha := byID["demo0001"]
	assert.Equal(t, "Roleplay Alpha", alpha.Name)
	assert.Equal(t, types.StatusLive, alpha.Status)
	assert.Equal(t, "stopped", alpha.UpstreamStatus)
	assert.Equal(t, 4096, alpha.Limits.Memory)
	assert.Equal(t, "server.jar", alpha.Container.Environment["SERVER_JARFILE"])

	modded := byID["demo0003"]
	assert.Equal(t, types.StatusInstalling, modded.Status)
	assert.Equal(t, "", modded.Description)
	assert.Equal(t, 0, modded.FeatureLimits.Backups)
	assert.NotNil(t, modded.Container.Environment)
}

func TestParse_RejectsMissingIdentifier(t *testing.T) {
	_, err := Parse([]byte("servers:\n  - name: nameless\n"), panel.StatusClassifier{})
	assert.Error(t, err)
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("servers: [\n"), panel.StatusClassifier{})
	assert.Error(t, err)
}
