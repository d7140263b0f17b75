package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Resinat/Prism/internal/geoip"
	"github.com/Resinat/Prism/internal/node"
	"github.com/Resinat/Prism/internal/store"
)

// NodeView is a stored node as served by the admin API.
type NodeView struct {
	store.StoredNode
	Location *geoip.LocationInfo `json:"location,omitempty"`
}

// NodeQuery holds list filters as received from the API.
type NodeQuery struct {
	SourceID    string
	Types       []string
	Tags        []string
	EnabledOnly bool
	Search      string
}

// ImportResult summarizes an import, sync or refresh.
type ImportResult struct {
	SourceID string `json:"sourceId,omitempty"`
	Parsed   int    `json:"parsed"`
	Inserted int    `json:"inserted"`
	Updated  int    `json:"updated"`
	Removed  int    `json:"removed"`
}

func parseTypes(field string, raw []string) ([]node.Type, *ServiceError) {
	types := make([]node.Type, 0, len(raw))
	for _, r := range raw {
		t, ok := node.ParseType(r)
		if !ok {
			return nil, invalidArg(fmt.Sprintf("%s: unknown node type %q", field, r))
		}
		types = append(types, t)
	}
	return types, nil
}

// ListNodes returns stored nodes matching q, each annotated with its
// location when the server is an IP literal.
func (s *NodeService) ListNodes(q NodeQuery) ([]NodeView, error) {
	types, verr := parseTypes("type", q.Types)
	if verr != nil {
		return nil, verr
	}
	stored, err := s.store.ListNodes(store.NodeFilter{
		SourceID:    q.SourceID,
		Types:       types,
		Tags:        normalizeTags(q.Tags),
		EnabledOnly: q.EnabledOnly,
		Search:      strings.TrimSpace(q.Search),
	})
	if err != nil {
		return nil, internal("list nodes", err)
	}
	views := make([]NodeView, len(stored))
	for i := range stored {
		views[i] = NodeView{StoredNode: stored[i], Location: s.locate(stored[i].Server)}
	}
	return views, nil
}

// GetNode returns a single node by ID.
func (s *NodeService) GetNode(id string) (*NodeView, error) {
	sn, err := s.store.GetNode(id)
	if err != nil {
		return nil, storeError("node", "get node", err)
	}
	return &NodeView{StoredNode: sn, Location: s.locate(sn.Server)}, nil
}

var nodePatchAllowedFields = map[string]bool{
	"enabled": true,
}

// PatchNode applies a constrained partial patch to a node. Only the admin
// enabled switch is writable; everything else comes from the node's source.
func (s *NodeService) PatchNode(id string, patchJSON json.RawMessage) (*NodeView, error) {
	patch, verr := parseMergePatch(patchJSON)
	if verr != nil {
		return nil, verr
	}
	if verr := patch.validateFields(nodePatchAllowedFields); verr != nil {
		return nil, verr
	}
	enabled, ok, verr := patch.optionalBool("enabled")
	if verr != nil {
		return nil, verr
	}
	if ok {
		if err := s.store.SetNodeEnabled(id, enabled); err != nil {
			return nil, storeError("node", "update node", err)
		}
		s.invalidate()
	}
	return s.GetNode(id)
}

// DeleteNode removes a node. A node that still exists upstream comes back
// on the next refresh or sync of its source.
func (s *NodeService) DeleteNode(id string) error {
	if err := s.store.DeleteNode(id); err != nil {
		return storeError("node", "delete node", err)
	}
	s.invalidate()
	return nil
}

// ImportLinks parses a pasted link list, subscription body or Clash YAML
// document and stores the nodes. With a sourceID the nodes are attached to
// that source; nothing is pruned.
func (s *NodeService) ImportLinks(ctx context.Context, body []byte, sourceID string) (*ImportResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, internal("import canceled", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, invalidArg("body: must not be empty")
	}
	src, verr := s.optionalSource(sourceID)
	if verr != nil {
		return nil, verr
	}

	nodes := s.links.ParseContent(body)
	stampSource(nodes, src)
	inserted, updated, err := s.store.UpsertNodes(nodes)
	if err != nil {
		return nil, internal("store nodes", err)
	}
	if len(nodes) > 0 {
		s.invalidate()
	}
	if src != nil {
		s.markSource(src.ID, "")
	}
	logrus.Infof("[service] imported %d nodes (%d new, %d updated)", len(nodes), inserted, updated)
	return &ImportResult{
		SourceID: sourceID,
		Parsed:   len(nodes),
		Inserted: inserted,
		Updated:  updated,
	}, nil
}

func (s *NodeService) optionalSource(id string) (*store.Source, *ServiceError) {
	if id == "" {
		return nil, nil
	}
	src, err := s.store.GetSource(id)
	if err != nil {
		return nil, storeError("source", "get source", err)
	}
	return &src, nil
}

// markSource records a successful or failed fetch with the current node
// count of the source.
func (s *NodeService) markSource(id, errMsg string) {
	count := 0
	if errMsg == "" {
		nodes, err := s.store.ListNodes(store.NodeFilter{SourceID: id})
		if err != nil {
			logrus.Warnf("[service] count nodes of source %s: %v", id, err)
		}
		count = len(nodes)
	}
	if err := s.store.MarkSourceResult(id, s.now(), count, errMsg); err != nil {
		logrus.Warnf("[service] record result of source %s: %v", id, err)
	}
}
