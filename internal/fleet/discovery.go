package fleet

import (
	"context"
	"fmt"
)

// AssetKind tags an Asset as a hub or a node.
type AssetKind string

const (
	AssetHub  AssetKind = "hub"
	AssetNode AssetKind = "node"
)

// HubDescriptor is a discovered hub.
type HubDescriptor struct {
	ID              string `json:"id"`
	FriendlyName    string `json:"friendly_name"`
	ModelCode       string `json:"model_code"`
	Model           string `json:"model"`
	FirmwareVersion string `json:"firmware_version,omitempty"`
	AppVersion      string `json:"app_version,omitempty"`
	HardwareVersion string `json:"hardware_version,omitempty"`
}

// SoftwareVersion joins firmware and app versions as "firmware+app".
func (h HubDescriptor) SoftwareVersion() string {
	return h.FirmwareVersion + "+" + h.AppVersion
}

// NodeDescriptor is a discovered display node. ParentHubID is empty when
// the node's hub was not among the discovered hubs.
type NodeDescriptor struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ModelCode   string `json:"model_code"`
	Model       string `json:"model"`
	ParentHubID string `json:"parent_hub_id,omitempty"`
}

// Asset is either a hub or a node. Exactly one of Hub and Node is set,
// matching Kind.
type Asset struct {
	Kind AssetKind
	Hub  *HubDescriptor
	Node *NodeDescriptor
}

// HubAsset wraps a hub descriptor.
func HubAsset(h HubDescriptor) Asset { return Asset{Kind: AssetHub, Hub: &h} }

// NodeAsset wraps a node descriptor.
func NodeAsset(n NodeDescriptor) Asset { return Asset{Kind: AssetNode, Node: &n} }

// ID returns the asset id.
func (a Asset) ID() string {
	if a.Kind == AssetHub {
		return a.Hub.ID
	}
	return a.Node.ID
}

// Name returns the user-facing name of the asset.
func (a Asset) Name() string {
	if a.Kind == AssetHub {
		return a.Hub.FriendlyName
	}
	return a.Node.Name
}

// Model returns the model label.
func (a Asset) Model() string {
	if a.Kind == AssetHub {
		return a.Hub.Model
	}
	return a.Node.Model
}

// Fleet is the result of one discovery pass, in remote listing order.
type Fleet struct {
	Hubs  []HubDescriptor
	Nodes []NodeDescriptor
}

// Assets returns hubs followed by nodes.
func (f *Fleet) Assets() []Asset {
	out := make([]Asset, 0, len(f.Hubs)+len(f.Nodes))
	for _, h := range f.Hubs {
		out = append(out, HubAsset(h))
	}
	for _, n := range f.Nodes {
		out = append(out, NodeAsset(n))
	}
	return out
}

// Asset looks up an asset by id.
func (f *Fleet) Asset(id string) (Asset, bool) {
	for _, h := range f.Hubs {
		if h.ID == id {
			return HubAsset(h), true
		}
	}
	for _, n := range f.Nodes {
		if n.ID == id {
			return NodeAsset(n), true
		}
	}
	return Asset{}, false
}

// Discover lists hubs then nodes and builds descriptors. Any listing
// failure aborts the pass; no partial fleet is returned.
func Discover(ctx context.Context, s *Session, logger Logger) (*Fleet, error) {
	if logger == nil {
		logger = noopLogger{}
	}

	hubRecs, err := s.ListHubs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing hubs: %w", err)
	}
	nodeRecs, err := s.ListNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing nodes: %w", err)
	}

	f := &Fleet{
		Hubs:  make([]HubDescriptor, 0, len(hubRecs)),
		Nodes: make([]NodeDescriptor, 0, len(nodeRecs)),
	}

	hubIDs := make(map[string]struct{}, len(hubRecs))
	for _, rec := range hubRecs {
		if rec.ThingName == "" {
			logger.Warn("skipping hub without thing name", "model", rec.Info.Model)
			continue
		}
		if _, dup := hubIDs[rec.ThingName]; dup {
			logger.Warn("skipping duplicate hub", "hub_id", rec.ThingName)
			continue
		}
		hubIDs[rec.ThingName] = struct{}{}
		f.Hubs = append(f.Hubs, HubDescriptor{
			ID:              rec.ThingName,
			FriendlyName:    rec.Info.FriendlyName,
			ModelCode:       rec.Info.Model,
			Model:           HubModelLabel(rec.Info.Model),
			FirmwareVersion: rec.Info.Version.SystemVersion,
			AppVersion:      rec.Info.Version.AppVersion,
			HardwareVersion: rec.Info.Version.HardwareVersion,
		})
	}

	nodeIDs := make(map[string]struct{}, len(nodeRecs))
	for _, rec := range nodeRecs {
		if rec.NodeID == "" {
			logger.Warn("skipping node without id", "model", rec.Model)
			continue
		}
		if _, dup := nodeIDs[rec.NodeID]; dup {
			logger.Warn("skipping duplicate node", "node_id", rec.NodeID)
			continue
		}
		// Asset ids are unique across kinds; the hub keeps the id.
		if _, clash := hubIDs[rec.NodeID]; clash {
			logger.Warn("skipping node sharing a hub id", "node_id", rec.NodeID)
			continue
		}
		nodeIDs[rec.NodeID] = struct{}{}

		parent := rec.ThingName
		if _, ok := hubIDs[parent]; !ok {
			logger.Warn("node references unknown hub", "node_id", rec.NodeID, "hub_id", parent)
			parent = ""
		}
		f.Nodes = append(f.Nodes, NodeDescriptor{
			ID:          rec.NodeID,
			Name:        rec.Name,
			ModelCode:   rec.Model,
			Model:       NodeModelLabel(rec.Model),
			ParentHubID: parent,
		})
	}

	logger.Debug("discovery complete", "hubs", len(f.Hubs), "nodes", len(f.Nodes))
	return f, nil
}
