package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/Resinat/Prism/internal/netutil"
	"github.com/Resinat/Prism/internal/panel"
)

// SyncPanel converts an X-UI inbound list into nodes reachable at server
// and stores them. Panel nodes are keyed by inbound and client, so a
// rotated credential updates the stored node in place.
//
// With a sourceID, nodes of that source missing from the list are
// removed and the sync outcome is recorded on the source.
func (s *NodeService) SyncPanel(ctx context.Context, server string, inbounds []byte, sourceID string) (*ImportResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, internal("sync canceled", err)
	}
	host, err := netutil.NormalizeHost(server)
	if err != nil {
		return nil, invalidArg("server: " + err.Error())
	}
	list, err := panel.DecodeInbounds(inbounds)
	if err != nil {
		return nil, invalidArg("inbounds: " + err.Error())
	}
	src, verr := s.optionalSource(sourceID)
	if verr != nil {
		return nil, verr
	}

	nodes := s.panels.ParseInbounds(list)
	for i := range nodes {
		nodes[i].Server = host
	}
	stampSource(nodes, src)

	inserted, updated, err := s.store.UpsertNodes(nodes)
	if err != nil {
		if src != nil {
			s.markSource(src.ID, err.Error())
		}
		return nil, internal("store nodes", err)
	}
	result := &ImportResult{
		SourceID: sourceID,
		Parsed:   len(nodes),
		Inserted: inserted,
		Updated:  updated,
	}
	if src != nil {
		removed, err := s.store.DeleteNodesBySource(src.ID, fingerprints(nodes))
		if err != nil {
			return nil, internal("prune nodes", err)
		}
		result.Removed = removed
		s.markSource(src.ID, "")
	}
	s.invalidate()
	logrus.Infof("[service] panel %s: %d inbounds, %d nodes (%d new, %d updated, %d removed)",
		host, len(list), len(nodes), inserted, updated, result.Removed)
	return result, nil
}
