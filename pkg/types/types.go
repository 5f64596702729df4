package types

import (
	"strings"
	"time"
)

// ServerStatus is the derived lifecycle status shown for a server.
// Values outside the constants below are passed through from the panel.
type ServerStatus string

const (
	StatusLive       ServerStatus = "live"
	StatusOffline    ServerStatus = "offline"
	StatusStarting   ServerStatus = "starting"
	StatusStopping   ServerStatus = "stopping"
	StatusSuspended  ServerStatus = "suspended"
	StatusInstalling ServerStatus = "installing"
	StatusUnknown    ServerStatus = "unknown"
)

// Limits are the resource limits assigned by the panel.
// Memory, swap and disk are in MB, cpu is a percentage where 100 is one core.
type Limits struct {
	Memory int `json:"memory"`
	Swap   int `json:"swap"`
	Disk   int `json:"disk"`
	IO     int `json:"io"`
	CPU    int `json:"cpu"`
}

// FeatureLimits caps the number of panel-managed sub-resources.
type FeatureLimits struct {
	Allocations int `json:"allocations"`
	Backups     int `json:"backups"`
	Databases   int `json:"databases"`
}

// Container holds the opaque runtime metadata of a server.
type Container struct {
	StartupCommand string            `json:"startup_command"`
	Image          string            `json:"image"`
	Installed      bool              `json:"installed"`
	Environment    map[string]string `json:"environment"`
}

// RemoteServer is one server as reported by the upstream panel, after
// normalization. It is never persisted directly.
type RemoteServer struct {
	Identifier     string        `json:"identifier"`
	PanelID        int           `json:"panel_id"`
	UUID           string        `json:"uuid"`
	Name           string        `json:"name"`
	Description    string        `json:"description"`
	Status         ServerStatus  `json:"status"`
	UpstreamStatus string        `json:"upstream_status"`
	Suspended      bool          `json:"suspended"`
	Limits         Limits        `json:"limits"`
	FeatureLimits  FeatureLimits `json:"feature_limits"`
	NodeID         int           `json:"node_id"`
	NestID         int           `json:"nest_id"`
	EggID          int           `json:"egg_id"`
	Container      Container     `json:"container"`
}

// MirroredServer is the locally persisted copy of a RemoteServer.
type MirroredServer struct {
	ID             string        `json:"id"`
	PanelURL       string        `json:"panel_url"`
	Identifier     string        `json:"identifier"`
	PanelID        int           `json:"panel_id"`
	UUID           string        `json:"uuid"`
	Name           string        `json:"name"`
	Description    string        `json:"description"`
	Status         ServerStatus  `json:"status"`
	UpstreamStatus string        `json:"upstream_status"`
	Suspended      bool          `json:"suspended"`
	Limits         Limits        `json:"limits"`
	FeatureLimits  FeatureLimits `json:"feature_limits"`
	NodeID         int           `json:"node_id"`
	NestID         int           `json:"nest_id"`
	EggID          int           `json:"egg_id"`
	Container      Container     `json:"container"`
	OwnerUserID    string        `json:"owner_user_id,omitempty"`
	LastSyncAt     time.Time     `json:"last_sync_at"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Apply overwrites every mirrored field with the remote values. Local
// bookkeeping (ID, CreatedAt, OwnerUserID) is left alone.
func (m *MirroredServer) Apply(panelURL string, r RemoteServer, now time.Time) {
	m.PanelURL = panelURL
	m.Identifier = r.Identifier
	m.PanelID = r.PanelID
	m.UUID = r.UUID
	m.Name = r.Name
	m.Description = r.Description
	m.Status = r.Status
	m.UpstreamStatus = r.UpstreamStatus
	m.Suspended = r.Suspended
	m.Limits = r.Limits
	m.FeatureLimits = r.FeatureLimits
	m.NodeID = r.NodeID
	m.NestID = r.NestID
	m.EggID = r.EggID
	m.Container = r.Container
	m.LastSyncAt = now
	m.UpdatedAt = now
}

// SyncResult reports what one reconciliation pass changed.
type SyncResult struct {
	PanelURL    string    `json:"panel_url"`
	Demo        bool      `json:"demo"`
	TotalSynced int       `json:"total_synced"`
	Created     int       `json:"created"`
	Updated     int       `json:"updated"`
	Deleted     int       `json:"deleted"`
	CreatedIDs  []string  `json:"created_ids"`
	UpdatedIDs  []string  `json:"updated_ids"`
	DeletedIDs  []string  `json:"deleted_ids"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// PowerAction is a signal accepted by the panel's power endpoint.
type PowerAction string

const (
	PowerStart   PowerAction = "start"
	PowerStop    PowerAction = "stop"
	PowerRestart PowerAction = "restart"
	PowerKill    PowerAction = "kill"
)

// ParsePowerAction validates a user supplied power signal.
func ParsePowerAction(s string) (PowerAction, bool) {
	switch a := PowerAction(strings.ToLower(strings.TrimSpace(s))); a {
	case PowerStart, PowerStop, PowerRestart, PowerKill:
		return a, true
	}
	return "", false
}

// ResourceUsage is one raw sample from the panel's per-server resource endpoint.
type ResourceUsage struct {
	State          string  `json:"state"`
	Suspended      bool    `json:"suspended"`
	CPUAbsolute    float64 `json:"cpu_absolute"`
	MemoryBytes    int64   `json:"memory_bytes"`
	DiskBytes      int64   `json:"disk_bytes"`
	NetworkRxBytes int64   `json:"network_rx_bytes"`
	NetworkTxBytes int64   `json:"network_tx_bytes"`
}
