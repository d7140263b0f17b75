package service

import (
	"context"
	"strings"

	"github.com/Resinat/Prism/internal/node"
	"github.com/Resinat/Prism/internal/render"
	"github.com/Resinat/Prism/internal/store"
)

// RenderedSubscription is a profile rendered in one format.
type RenderedSubscription struct {
	Body        []byte
	ContentType string
	ETag        string // quoted, ready for the ETag header
	Filename    string
	Format      render.Format
	NodeCount   int
}

// RenderSubscription renders the nodes visible to the profile owning
// token. An empty format selects the profile's default format.
//
// Only exportable nodes are rendered: the node must be enabled by the
// admin and upstream, and its source, if any, must be enabled. Results are
// cached until the next write to nodes, sources or profiles.
func (s *NodeService) RenderSubscription(ctx context.Context, token, format string) (*RenderedSubscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, internal("render canceled", err)
	}
	profile, err := s.store.GetProfileByToken(token)
	if err != nil {
		return nil, storeError("profile", "get profile", err)
	}
	if strings.TrimSpace(format) == "" {
		format = profile.Format
	}
	f, err := render.ParseFormat(format)
	if err != nil {
		return nil, invalidArg("format: " + err.Error())
	}

	gen := s.generation.Load()
	key := renderKey{profileID: profile.ID, format: f}
	if entry, ok := s.renderCache.Load(key); ok && entry.generation == gen {
		doc := entry.doc
		return &doc, nil
	}

	nodes, err := s.exportableNodes(profile)
	if err != nil {
		return nil, err
	}
	body, err := render.Render(f, nodes)
	if err != nil {
		return nil, internal("render subscription", err)
	}
	doc := RenderedSubscription{
		Body:        body,
		ContentType: f.ContentType(),
		ETag:        `"` + node.HashBytes(body).Hex() + `"`,
		Filename:    profile.Name + "." + f.FileExtension(),
		Format:      f,
		NodeCount:   len(nodes),
	}

	if s.renderCache.Size() >= s.cacheLimit {
		s.renderCache.Clear()
	}
	s.renderCache.Store(key, renderEntry{generation: gen, doc: doc})
	return &doc, nil
}

func (s *NodeService) exportableNodes(profile store.Profile) ([]node.Node, error) {
	stored, err := s.store.ListNodes(store.NodeFilter{
		Types:       profile.Types,
		Tags:        profile.Tags,
		EnabledOnly: true,
	})
	if err != nil {
		return nil, internal("list nodes", err)
	}
	sources, err := s.store.ListSources()
	if err != nil {
		return nil, internal("list sources", err)
	}
	disabled := make(map[string]struct{})
	for _, src := range sources {
		if !src.Enabled {
			disabled[src.ID] = struct{}{}
		}
	}

	nodes := make([]node.Node, 0, len(stored))
	for _, sn := range stored {
		if _, off := disabled[sn.SourceID]; off {
			continue
		}
		nodes = append(nodes, sn.Node)
	}
	return nodes, nil
}
