package panel

import (
	"testing"

	"github.com/cuemby/panelsync/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestNormalizeServer_FullPayload(t *testing.T) {
	attrs := gjson.Parse(`{
		"id": 7,
		"identifier": "1a7ce997",
		"uuid": "1a7ce997-259b-452e-8b4e-cecc464142ca",
		"name": "Survival",
		"description": "Main world",
		"status": "running",
		"suspended": false,
		"limits": {"memory": 4096, "swap": 0, "disk": 10240, "io": 500, "cpu": 200},
		"feature_limits": {"allocations": 2, "backups": 3, "databases": 1},
		"node": 1, "nest": 1, "egg": 3,
		"container": {
			"startup_command": "java -jar server.jar",
			"image": "ghcr.io/pterodactyl/yolks:java_17",
			"installed": 1,
			"environment": {"SERVER_JARFILE": "server.jar", "BUILD_NUMBER": 42}
		}
	}`)

	srv, ok := normalizeServer(attrs, NewStatusClassifier(nil))
	require.True(t, ok)
	assert.Equal(t, "1a7ce997", srv.Identifier)
	assert.Equal(t, 7, srv.PanelID)
	assert.Equal(t, types.StatusLive, srv.Status)
	assert.Equal(t, "running", srv.UpstreamStatus)
	assert.Equal(t, types.Limits{Memory: 4096, Disk: 10240, IO: 500, CPU: 200}, srv.Limits)
	assert.Equal(t, types.FeatureLimits{Allocations: 2, Backups: 3, Databases: 1}, srv.FeatureLimits)
	assert.Equal(t, 3, srv.EggID)
	assert.True(t, srv.Container.Installed)
	assert.Equal(t, "42", srv.Container.Environment["BUILD_NUMBER"])
}

func TestNormalizeServer_Defaults(t *testing.T) {
	attrs := gjson.Parse(`{"identifier": "abc", "description": null, "limits": null}`)

	srv, ok := normalizeServer(attrs, NewStatusClassifier(nil))
	require.True(t, ok)
	assert.Equal(t, "", srv.Description)
	assert.False(t, srv.Suspended)
	assert.Equal(t, types.Limits{}, srv.Limits)
	assert.Equal(t, types.FeatureLimits{}, srv.FeatureLimits)
	assert.Equal(t, types.StatusUnknown, srv.Status)
	assert.NotNil(t, srv.Container.Environment)
	assert.Empty(t, srv.Container.Environment)
	assert.Zero(t, srv.NodeID)
}

func TestNormalizeServer_IdentifierFromUUID(t *testing.T) {
	srv, ok := normalizeServer(gjson.Parse(`{"uuid": "1a7ce997-259b-452e"}`), StatusClassifier{})
	require.True(t, ok)
	assert.Equal(t, "1a7ce997", srv.Identifier)
}

func TestNormalizeServer_NoIdentifier(t *testing.T) {
	_, ok := normalizeServer(gjson.Parse(`{"name": "orphan"}`), StatusClassifier{})
	assert.False(t, ok)
}
