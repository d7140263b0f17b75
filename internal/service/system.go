package service

import (
	"errors"
	"net/netip"
	"time"

	"github.com/Resinat/Prism/internal/buildinfo"
	"github.com/Resinat/Prism/internal/config"
	"github.com/Resinat/Prism/internal/geoip"
)

// ------------------------------------------------------------------
// System
// ------------------------------------------------------------------

// SystemInfo contains version, runtime and inventory information.
type SystemInfo struct {
	buildinfo.Info
	StartedAt    time.Time            `json:"startedAt"`
	Nodes        int                  `json:"nodes"`
	EnabledNodes int                  `json:"enabledNodes"`
	Sources      int                  `json:"sources"`
	Profiles     int                  `json:"profiles"`
	Config       *config.PublicConfig `json:"config,omitempty"`
	GeoIP        *GeoIPStatus         `json:"geoip,omitempty"`
}

// GetSystemInfo returns build metadata, node counts and the public config.
func (s *NodeService) GetSystemInfo() (*SystemInfo, error) {
	total, enabled, err := s.store.CountNodes()
	if err != nil {
		return nil, internal("count nodes", err)
	}
	sources, err := s.store.ListSources()
	if err != nil {
		return nil, internal("list sources", err)
	}
	profiles, err := s.store.ListProfiles()
	if err != nil {
		return nil, internal("list profiles", err)
	}
	info := &SystemInfo{
		Info:         buildinfo.Current(),
		StartedAt:    s.startedAt.UTC(),
		Nodes:        total,
		EnabledNodes: enabled,
		Sources:      len(sources),
		Profiles:     len(profiles),
	}
	if s.env != nil {
		pub := s.env.Public()
		info.Config = &pub
	}
	if s.geo != nil {
		status := s.GetGeoIPStatus()
		info.GeoIP = &status
	}
	return info, nil
}

// ------------------------------------------------------------------
// GeoIP
// ------------------------------------------------------------------

// GeoIPStatus is the API response for GeoIP status.
type GeoIPStatus struct {
	DBMtime             string `json:"dbMtime,omitempty"`
	NextScheduledUpdate string `json:"nextScheduledUpdate,omitempty"`
}

// GetGeoIPStatus returns the current GeoIP status.
func (s *NodeService) GetGeoIPStatus() GeoIPStatus {
	status := GeoIPStatus{}
	if s.geo == nil {
		return status
	}
	if t := s.geo.LastUpdated(); !t.IsZero() {
		status.DBMtime = t.UTC().Format(time.RFC3339Nano)
	}
	if t := s.geo.NextScheduledUpdate(); !t.IsZero() {
		status.NextScheduledUpdate = t.UTC().Format(time.RFC3339Nano)
	}
	return status
}

// LookupIP performs a GeoIP lookup.
func (s *NodeService) LookupIP(ipStr string) (geoip.LocationInfo, error) {
	ip, err := netip.ParseAddr(ipStr)
	if err != nil {
		return geoip.LocationInfo{}, invalidArg("ip: invalid IP address")
	}
	if s.geo == nil {
		return geoip.LocationInfo{}, nil
	}
	return s.geo.Lookup(ip), nil
}

// UpdateGeoIPNow triggers an immediate GeoIP database update (blocks).
func (s *NodeService) UpdateGeoIPNow() error {
	if s.geo == nil {
		return internal("geoip update failed", errors.New("geoip is not configured"))
	}
	if err := s.geo.UpdateNow(); err != nil {
		return internal("geoip update failed", err)
	}
	return nil
}
