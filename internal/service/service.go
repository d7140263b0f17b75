// Package service orchestrates the codec packages over the store: importing
// links and panel inbounds, refreshing remote sources and rendering
// profiles. API handlers call its methods; business logic lives here, not
// in handlers.
package service

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/Resinat/Prism/internal/config"
	"github.com/Resinat/Prism/internal/geoip"
	"github.com/Resinat/Prism/internal/netutil"
	"github.com/Resinat/Prism/internal/node"
	"github.com/Resinat/Prism/internal/panel"
	"github.com/Resinat/Prism/internal/render"
	"github.com/Resinat/Prism/internal/store"
	"github.com/Resinat/Prism/internal/subscription"
)

// GeoIP is the geolocation capability plus the database status used by the
// admin API. *geoip.Service satisfies it.
type GeoIP interface {
	geoip.Locator
	LastUpdated() time.Time
	NextScheduledUpdate() time.Time
	UpdateNow() error
}

// Config wires a NodeService. Store is required; everything else is
// optional.
type Config struct {
	Store      *store.Store
	GeoIP      GeoIP
	Downloader netutil.Downloader
	Env        *config.EnvConfig
	Now        func() time.Time
}

// NodeService provides all control plane operations.
type NodeService struct {
	store      *store.Store
	geo        GeoIP
	downloader netutil.Downloader
	env        *config.EnvConfig
	now        func() time.Time
	startedAt  time.Time

	links  *subscription.Parser
	panels *panel.Parser

	// generation is bumped by every write that can change a rendered
	// document; cached renders of older generations are stale.
	generation  atomic.Uint64
	renderCache *xsync.Map[renderKey, renderEntry]
	cacheLimit  int

	refreshMu       sync.Mutex
	refreshSchedule string
	cron            *cron.Cron
	lifeCtx         context.Context
	lifeCancel      context.CancelFunc
}

type renderKey struct {
	profileID string
	format    render.Format
}

type renderEntry struct {
	generation uint64
	doc        RenderedSubscription
}

// New creates a NodeService. The refresh scheduler is not running until
// Start.
func New(cfg Config) *NodeService {
	if cfg.Store == nil {
		panic("service: New requires a store")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	s := &NodeService{
		store:           cfg.Store,
		geo:             cfg.GeoIP,
		downloader:      cfg.Downloader,
		env:             cfg.Env,
		now:             now,
		startedAt:       now(),
		links:           &subscription.Parser{Now: now},
		panels:          &panel.Parser{Now: now},
		renderCache:     xsync.NewMap[renderKey, renderEntry](),
		cacheLimit:      256,
		refreshSchedule: "*/30 * * * *",
	}
	if cfg.Env != nil {
		if cfg.Env.RenderCacheEntries > 0 {
			s.cacheLimit = cfg.Env.RenderCacheEntries
		}
		if cfg.Env.RefreshSchedule != "" {
			s.refreshSchedule = cfg.Env.RefreshSchedule
		}
	}
	s.lifeCtx, s.lifeCancel = context.WithCancel(context.Background())
	return s
}

// Start schedules RefreshDue on the configured cron expression.
func (s *NodeService) Start() error {
	c := cron.New()
	if _, err := c.AddFunc(s.refreshSchedule, func() {
		if _, err := s.RefreshDue(s.lifeCtx); err != nil {
			logrus.Warnf("[service] scheduled refresh: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("service: refresh schedule %q: %w", s.refreshSchedule, err)
	}
	s.cron = c
	c.Start()
	logrus.Infof("[service] source refresh scheduled (%s)", s.refreshSchedule)
	return nil
}

// Stop cancels in-flight refreshes and waits for the scheduler to drain.
func (s *NodeService) Stop() {
	s.lifeCancel()
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// invalidate marks every cached render stale.
func (s *NodeService) invalidate() {
	s.generation.Add(1)
}

// locate returns the location of a node whose server is an IP literal.
func (s *NodeService) locate(server string) *geoip.LocationInfo {
	if s.geo == nil {
		return nil
	}
	ip, err := netip.ParseAddr(server)
	if err != nil {
		return nil
	}
	info := s.geo.Lookup(ip)
	if info.IsZero() {
		return nil
	}
	return &info
}

// stampSource attaches nodes to src and merges the source tags into each
// node's own tags.
func stampSource(nodes []node.Node, src *store.Source) {
	if src == nil {
		return
	}
	for i := range nodes {
		nodes[i].SourceID = src.ID
		if len(src.Tags) > 0 {
			nodes[i].Tags = normalizeTags(append(append([]string(nil), nodes[i].Tags...), src.Tags...))
		}
	}
}

func fingerprints(nodes []node.Node) []string {
	out := make([]string, len(nodes))
	for i := range nodes {
		out[i] = node.Fingerprint(nodes[i]).Hex()
	}
	return out
}
