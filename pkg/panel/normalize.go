package panel

import (
	"github.com/cuemby/panelsync/pkg/types"
	"github.com/tidwall/gjson"
)

// fieldDefaults is the single table of fallbacks used when a field is
// missing or null in a server payload. Values are JSON literals.
var fieldDefaults = map[string]string{
	"id":                         `0`,
	"identifier":                 `""`,
	"uuid":                       `""`,
	"name":                       `""`,
	"description":                `""`,
	"status":                     `""`,
	"suspended":                  `false`,
	"node":                       `0`,
	"nest":                       `0`,
	"egg":                        `0`,
	"limits.memory":              `0`,
	"limits.swap":                `0`,
	"limits.disk":                `0`,
	"limits.io":                  `0`,
	"limits.cpu":                 `0`,
	"feature_limits.allocations": `0`,
	"feature_limits.backups":     `0`,
	"feature_limits.databases":   `0`,
	"container.startup_command":  `""`,
	"container.image":            `""`,
	"container.installed":        `false`,
	"container.environment":      `{}`,
}

// field reads path from attrs, substituting the table default when absent
func field(attrs gjson.Result, path string) gjson.Result {
	v := attrs.Get(path)
	if v.Exists() && v.Type != gjson.Null {
		return v
	}
	return gjson.Parse(fieldDefaults[path])
}

// normalizeServer maps one loosely typed server payload to a RemoteServer.
// It reports false when the record has no usable identifier.
func normalizeServer(attrs gjson.Result, classifier StatusClassifier) (types.RemoteServer, bool) {
	uuid := field(attrs, "uuid").String()
	identifier := field(attrs, "identifier").String()
	if identifier == "" {
		identifier = shortUUID(uuid)
	}
	if identifier == "" {
		return types.RemoteServer{}, false
	}

	name := field(attrs, "name").String()
	upstream := field(attrs, "status").String()
	suspended := field(attrs, "suspended").Bool()

	env := make(map[string]string)
	field(attrs, "container.environment").ForEach(func(key, value gjson.Result) bool {
		env[key.String()] = value.String()
		return true
	})

	return types.RemoteServer{
		Identifier:     identifier,
		PanelID:        int(field(attrs, "id").Int()),
		UUID:           uuid,
		Name:           name,
		Description:    field(attrs, "description").String(),
		Status:         classifier.Classify(name, upstream, suspended),
		UpstreamStatus: upstream,
		Suspended:      suspended,
		Limits: types.Limits{
			Memory: int(field(attrs, "limits.memory").Int()),
			Swap:   int(field(attrs, "limits.swap").Int()),
			Disk:   int(field(attrs, "limits.disk").Int()),
			IO:     int(field(attrs, "limits.io").Int()),
			CPU:    int(field(attrs, "limits.cpu").Int()),
		},
		FeatureLimits: types.FeatureLimits{
			Allocations: int(field(attrs, "feature_limits.allocations").Int()),
			Backups:     int(field(attrs, "feature_limits.backups").Int()),
			Databases:   int(field(attrs, "feature_limits.databases").Int()),
		},
		NodeID: int(field(attrs, "node").Int()),
		NestID: int(field(attrs, "nest").Int()),
		EggID:  int(field(attrs, "egg").Int()),
		Container: types.Container{
			StartupCommand: field(attrs, "container.startup_command").String(),
			Image:          field(attrs, "container.image").String(),
			Installed:      field(attrs, "container.installed").Bool(),
			Environment:    env,
		},
	}, true
}

// Normalize is normalizeServer for payloads decoded outside this package
func Normalize(attrs gjson.Result, classifier StatusClassifier) (types.RemoteServer, bool) {
	return normalizeServer(attrs, classifier)
}

// shortUUID mirrors the panel's own short identifier: the first 8 characters
func shortUUID(uuid string) string {
	if len(uuid) < 8 {
		return uuid
	}
	return uuid[:8]
}

// normalizeUsage maps a client resources payload to a ResourceUsage
func normalizeUsage(attrs gjson.Result) types.ResourceUsage {
	res := attrs.Get("resources")
	return types.ResourceUsage{
		State:          attrs.Get("current_state").String(),
		Suspended:      attrs.Get("is_suspended").Bool(),
		CPUAbsolute:    res.Get("cpu_absolute").Float(),
		MemoryBytes:    res.Get("memory_bytes").Int(),
		DiskBytes:      res.Get("disk_bytes").Int(),
		NetworkRxBytes: res.Get("network_rx_bytes").Int(),
		NetworkTxBytes: res.Get("network_tx_bytes").Int(),
	}
}
