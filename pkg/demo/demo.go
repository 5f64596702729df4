// Package demo provides a fixed server directory for environments with no
// reachable panel.
package demo

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/cuemby/panelsync/pkg/panel"
	"github.com/cuemby/panelsync/pkg/types"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

//go:embed servers.yaml
var directory []byte

// Fetcher serves the embedded directory. It never touches the network.
type Fetcher struct {
	classifier panel.StatusClassifier
}

// NewFetcher creates a demo fetcher classifying statuses with classifier
func NewFetcher(classifier panel.StatusClassifier) *Fetcher {
	return &Fetcher{classifier: classifier}
}

// FetchServers returns the demo directory
func (f *Fetcher) FetchServers(ctx context.Context) ([]types.RemoteServer, error) {
	return Parse(directory, f.classifier)
}

// Parse decodes a YAML directory into RemoteServers using the same
// normalization as live panel payloads
func Parse(data []byte, classifier panel.StatusClassifier) ([]types.RemoteServer, error) {
	var doc struct {
		Servers []map[string]any `yaml:"servers"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse demo directory: %w", err)
	}

	raw, err := json.Marshal(doc.Servers)
	if err != nil {
		return nil, fmt.Errorf("encode demo directory: %w", err)
	}

	servers := make([]types.RemoteServer, 0, len(doc.Servers))
	for _, item := range gjson.ParseBytes(raw).Array() {
		srv, ok := panel.Normalize(item, classifier)
		if !ok {
			return nil, fmt.Errorf("demo directory: server without identifier")
		}
		servers = append(servers, srv)
	}
	return servers, nil
}
