package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Resinat/Prism/internal/node"
	"github.com/Resinat/Prism/internal/store"
	"github.com/Resinat/Prism/internal/subscription"
)

// ------------------------------------------------------------------
// Sources
// ------------------------------------------------------------------

// ListSources returns all sources.
func (s *NodeService) ListSources() ([]store.Source, error) {
	sources, err := s.store.ListSources()
	if err != nil {
		return nil, internal("list sources", err)
	}
	if sources == nil {
		sources = []store.Source{}
	}
	return sources, nil
}

// GetSource returns a single source by ID.
func (s *NodeService) GetSource(id string) (*store.Source, error) {
	src, err := s.store.GetSource(id)
	if err != nil {
		return nil, storeError("source", "get source", err)
	}
	return &src, nil
}

// CreateSourceRequest holds create source parameters.
type CreateSourceRequest struct {
	Name    *string  `json:"name"`
	Kind    string   `json:"kind"`
	URL     string   `json:"url"`
	Enabled *bool    `json:"enabled"`
	Tags    []string `json:"tags"`
}

// CreateSource creates a source. Kind defaults to remote when a URL is
// given and to manual otherwise; remote sources need an http(s) URL.
func (s *NodeService) CreateSource(req CreateSourceRequest) (*store.Source, error) {
	if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
		return nil, invalidArg("name is required")
	}
	kind := store.SourceKind(strings.ToLower(strings.TrimSpace(req.Kind)))
	url := strings.TrimSpace(req.URL)
	if kind == "" {
		kind = store.SourceKindManual
		if url != "" {
			kind = store.SourceKindRemote
		}
	}
	if !kind.IsValid() {
		return nil, invalidArg(fmt.Sprintf("kind: unknown source kind %q", req.Kind))
	}
	if kind == store.SourceKindRemote {
		if _, verr := parseHTTPAbsoluteURL("url", url); verr != nil {
			return nil, verr
		}
	} else if url != "" {
		return nil, invalidArg("url: only remote sources have a URL")
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	src, err := s.store.UpsertSource(store.Source{
		ID:      uuid.New().String(),
		Name:    strings.TrimSpace(*req.Name),
		Kind:    kind,
		URL:     url,
		Enabled: enabled,
		Tags:    normalizeTags(req.Tags),
	})
	if err != nil {
		return nil, storeError("source", "persist source", err)
	}
	return &src, nil
}

var sourcePatchAllowedFields = map[string]bool{
	"name":    true,
	"url":     true,
	"enabled": true,
	"tags":    true,
}

// UpdateSource applies a constrained partial patch to a source. Tag
// changes reach the nodes on the source's next import.
func (s *NodeService) UpdateSource(id string, patchJSON json.RawMessage) (*store.Source, error) {
	patch, verr := parseMergePatch(patchJSON)
	if verr != nil {
		return nil, verr
	}
	if verr := patch.validateFields(sourcePatchAllowedFields); verr != nil {
		return nil, verr
	}

	src, err := s.store.GetSource(id)
	if err != nil {
		return nil, storeError("source", "get source", err)
	}
	if name, ok, verr := patch.optionalNonEmptyString("name"); verr != nil {
		return nil, verr
	} else if ok {
		src.Name = name
	}
	if url, ok, verr := patch.optionalString("url"); verr != nil {
		return nil, verr
	} else if ok {
		if src.Kind != store.SourceKindRemote {
			return nil, invalidArg("url: only remote sources have a URL")
		}
		url = strings.TrimSpace(url)
		if _, verr := parseHTTPAbsoluteURL("url", url); verr != nil {
			return nil, verr
		}
		src.URL = url
	}
	if enabled, ok, verr := patch.optionalBool("enabled"); verr != nil {
		return nil, verr
	} else if ok {
		src.Enabled = enabled
	}
	if tags, ok, verr := patch.optionalStringSlice("tags"); verr != nil {
		return nil, verr
	} else if ok {
		src.Tags = normalizeTags(tags)
	}

	updated, err := s.store.UpsertSource(src)
	if err != nil {
		return nil, storeError("source", "persist source", err)
	}
	s.invalidate()
	return &updated, nil
}

// DeleteSource removes a source together with its nodes.
func (s *NodeService) DeleteSource(id string) error {
	if err := s.store.DeleteSource(id); err != nil {
		return storeError("source", "delete source", err)
	}
	s.invalidate()
	return nil
}

// ------------------------------------------------------------------
// Refresh
// ------------------------------------------------------------------

// errEmptySubscription is recorded when a fetched body yields no nodes.
// The stored nodes of the source are left untouched.
var errEmptySubscription = errors.New("subscription yielded no nodes")

// RefreshSource fetches a remote source, stores its nodes and removes the
// nodes that vanished upstream. The outcome is recorded on the source.
func (s *NodeService) RefreshSource(ctx context.Context, id string) (*ImportResult, error) {
	src, err := s.store.GetSource(id)
	if err != nil {
		return nil, storeError("source", "get source", err)
	}
	if src.Kind != store.SourceKindRemote {
		return nil, invalidArg(fmt.Sprintf("source %q is not a remote subscription", src.Name))
	}
	if s.downloader == nil {
		return nil, internal("refresh source", errors.New("no downloader configured"))
	}

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	return s.refreshLocked(ctx, src)
}

func (s *NodeService) refreshLocked(ctx context.Context, src store.Source) (*ImportResult, error) {
	body, err := s.downloader.Download(ctx, src.URL)
	if err != nil {
		s.markSource(src.ID, err.Error())
		return nil, internal("fetch subscription: "+err.Error(), err)
	}

	nodes := s.links.ParseContent(body)
	if len(nodes) == 0 {
		s.markSource(src.ID, errEmptySubscription.Error())
		return nil, internal(errEmptySubscription.Error(), errEmptySubscription)
	}
	stampSource(nodes, &src)

	previous, err := s.store.ListNodes(store.NodeFilter{SourceID: src.ID})
	if err != nil {
		return nil, internal("list source nodes", err)
	}
	logDiff(src.Name, previous, nodes)

	inserted, updated, err := s.store.UpsertNodes(nodes)
	if err != nil {
		s.markSource(src.ID, err.Error())
		return nil, internal("store nodes", err)
	}
	removed, err := s.store.DeleteNodesBySource(src.ID, fingerprints(nodes))
	if err != nil {
		return nil, internal("prune nodes", err)
	}
	s.markSource(src.ID, "")
	s.invalidate()

	return &ImportResult{
		SourceID: src.ID,
		Parsed:   len(nodes),
		Inserted: inserted,
		Updated:  updated,
		Removed:  removed,
	}, nil
}

// RefreshDue refreshes every enabled remote source in turn and returns how
// many succeeded. A failing source does not stop the others.
func (s *NodeService) RefreshDue(ctx context.Context) (int, error) {
	if s.downloader == nil {
		return 0, nil
	}
	sources, err := s.store.ListSources()
	if err != nil {
		return 0, internal("list sources", err)
	}

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	ok := 0
	for _, src := range sources {
		if src.Kind != store.SourceKindRemote || !src.Enabled {
			continue
		}
		if err := ctx.Err(); err != nil {
			return ok, err
		}
		if _, err := s.refreshLocked(ctx, src); err != nil {
			logrus.Warnf("[service] refresh source %q: %v", src.Name, err)
			continue
		}
		ok++
	}
	return ok, nil
}

func logDiff(sourceName string, previous []store.StoredNode, next []node.Node) {
	old := make([]node.Node, len(previous))
	for i := range previous {
		old[i] = previous[i].Node
	}
	added, kept, removed := subscription.DiffHashes(subscription.IndexNodes(old), subscription.IndexNodes(next))
	logrus.Infof("[service] source %q: %d added, %d kept, %d removed", sourceName, len(added), len(kept), len(removed))
}
