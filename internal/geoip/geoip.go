// Package geoip resolves IP addresses to countries from a MaxMind-format
// database, with a lazily populated TTL cache in front of the reader.
package geoip

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/maypok86/otter"
	"github.com/oschwald/maxminddb-golang"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/Resinat/Prism/internal/netutil"
)

// LocationInfo is the geolocation of one address. The zero value means
// unknown.
type LocationInfo struct {
	CountryCode string `json:"countryCode,omitempty"`
	Country     string `json:"country,omitempty"`
	Continent   string `json:"continent,omitempty"`
}

// IsZero reports whether nothing is known about the address.
func (l LocationInfo) IsZero() bool { return l == LocationInfo{} }

// Locator is the lookup capability handed to code that annotates nodes.
type Locator interface {
	Lookup(ip netip.Addr) LocationInfo
}

// GeoReader abstracts the database reader so tests can substitute it.
type GeoReader interface {
	Lookup(ip netip.Addr) (LocationInfo, error)
	Close() error
}

// OpenFunc opens a database file and returns a GeoReader.
type OpenFunc func(path string) (GeoReader, error)

type noOpReader struct{}

func (noOpReader) Lookup(netip.Addr) (LocationInfo, error) { return LocationInfo{}, nil }
func (noOpReader) Close() error                            { return nil }

// NoOpOpen returns a reader that knows nothing. Used in tests.
func NoOpOpen(_ string) (GeoReader, error) { return noOpReader{}, nil }

type mmdbRecord struct {
	Country struct {
		ISOCode string            `maxminddb:"iso_code"`
		Names   map[string]string `maxminddb:"names"`
	} `maxminddb:"country"`
	RegisteredCountry struct {
		ISOCode string            `maxminddb:"iso_code"`
		Names   map[string]string `maxminddb:"names"`
	} `maxminddb:"registered_country"`
	Continent struct {
		Code string `maxminddb:"code"`
	} `maxminddb:"continent"`
}

type mmdbReader struct {
	db *maxminddb.Reader
}

// MaxMindOpen opens a GeoLite2/GeoIP2 country database. This is the
// production OpenFunc.
func MaxMindOpen(path string) (GeoReader, error) {
	db, err := maxminddb.Open(path)
	if err != nil {
		return nil, err
	}
	return &mmdbReader{db: db}, nil
}

func (r *mmdbReader) Lookup(ip netip.Addr) (LocationInfo, error) {
	var rec mmdbRecord
	if err := r.db.Lookup(net.IP(ip.AsSlice()), &rec); err != nil {
		return LocationInfo{}, err
	}
	info := LocationInfo{
		CountryCode: rec.Country.ISOCode,
		Country:     rec.Country.Names["en"],
		Continent:   rec.Continent.Code,
	}
	if info.CountryCode == "" {
		info.CountryCode = rec.RegisteredCountry.ISOCode
		info.Country = rec.RegisteredCountry.Names["en"]
	}
	return info, nil
}

func (r *mmdbReader) Close() error { return r.db.Close() }

// ServiceConfig configures the GeoIP service.
type ServiceConfig struct {
	CacheDir       string             // directory holding the database
	DBFilename     string             // default "country.mmdb"
	DBURL          string             // download source; empty disables downloads
	SHA256URL      string             // optional "<hash>  <file>" checksum for DBURL
	UpdateSchedule string             // cron expression, default "0 7 * * *"
	CacheSize      int                // lookup cache capacity, default 10000
	CacheTTL       time.Duration      // default 24h
	OpenDB         OpenFunc           // function to open the database
	Downloader     netutil.Downloader // shared downloader
}

// Service provides cached lookups with hot-reloading via RWMutex.
type Service struct {
	mu     sync.RWMutex
	reader GeoReader // nil until first load
	cache  *otter.Cache[netip.Addr, LocationInfo] // nil when the builder rejected the config

	cacheDir    string
	dbFilename  string
	dbURL       string
	sha256URL   string
	openDB      OpenFunc
	downloader  netutil.Downloader
	cron        *cron.Cron
	cronEntryID cron.EntryID
	updateMu    sync.Mutex // serializes UpdateNow calls
	lifeCtx     context.Context
	lifeCancel  context.CancelFunc
}

// NewService creates a new GeoIP service. Nothing is loaded until Start.
func NewService(cfg ServiceConfig) *Service {
	if cfg.DBFilename == "" {
		cfg.DBFilename = "country.mmdb"
	}
	if cfg.UpdateSchedule == "" {
		cfg.UpdateSchedule = "0 7 * * *"
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 10000
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	c := cron.New()
	lifeCtx, lifeCancel := context.WithCancel(context.Background())
	s := &Service{
		cacheDir:   cfg.CacheDir,
		dbFilename: cfg.DBFilename,
		dbURL:      cfg.DBURL,
		sha256URL:  cfg.SHA256URL,
		openDB:     cfg.OpenDB,
		downloader: cfg.Downloader,
		cron:       c,
		lifeCtx:    lifeCtx,
		lifeCancel: lifeCancel,
	}

	cache, err := otter.MustBuilder[netip.Addr, LocationInfo](cfg.CacheSize).
		WithTTL(cfg.CacheTTL).
		Build()
	if err != nil {
		logrus.Warnf("[geoip] lookup cache disabled: %v", err)
	} else {
		s.cache = &cache
	}

	entryID, err := c.AddFunc(cfg.UpdateSchedule, s.scheduledRefresh)
	if err != nil {
		logrus.Warnf("[geoip] invalid cron expression %q: %v", cfg.UpdateSchedule, err)
	} else {
		s.cronEntryID = entryID
	}
	return s
}

func (s *Service) dbPath() string {
	return filepath.Join(s.cacheDir, s.dbFilename)
}

func (s *Service) canDownload() bool {
	return s.dbURL != "" && s.downloader != nil
}

// scheduledRefresh downloads a new database when a source is configured
// and otherwise re-reads the file, picking up out-of-band replacements.
func (s *Service) scheduledRefresh() {
	if s.canDownload() {
		if err := s.UpdateNow(); err != nil {
			logrus.Warnf("[geoip] scheduled update failed: %v", err)
		}
		return
	}
	if _, err := os.Stat(s.dbPath()); err != nil {
		return
	}
	if err := s.reloadReader(s.dbPath()); err != nil {
		logrus.Warnf("[geoip] scheduled reload failed: %v", err)
	}
}

// Start loads the database if present, triggers a background download
// when it is missing or stale, and starts the scheduler.
func (s *Service) Start() error {
	dbPath := s.dbPath()
	info, err := os.Stat(dbPath)
	switch {
	case err == nil:
		if err := s.reloadReader(dbPath); err != nil {
			logrus.Warnf("[geoip] failed to load initial db: %v", err)
		}
		if s.canDownload() && s.isStale(info.ModTime()) {
			logrus.Info("[geoip] database is stale, triggering background update")
			go s.backgroundUpdate("startup update")
		}
	case os.IsNotExist(err):
		if s.canDownload() {
			logrus.Info("[geoip] no local database found, triggering background download")
			go s.backgroundUpdate("initial download")
		} else {
			logrus.Infof("[geoip] no database at %s, lookups return unknown", dbPath)
		}
	default:
		return fmt.Errorf("geoip: stat db %s: %w", dbPath, err)
	}
	s.cron.Start()
	return nil
}

func (s *Service) backgroundUpdate(what string) {
	if err := s.UpdateNow(); err != nil {
		logrus.Warnf("[geoip] %s failed: %v", what, err)
	}
}

// isStale returns true if the file's mtime is older than twice the gap
// between two consecutive cron firings. Falls back to 32 days if the
// schedule cannot be determined.
func (s *Service) isStale(modTime time.Time) bool {
	entry := s.cron.Entry(s.cronEntryID)
	if entry.ID == 0 || entry.Schedule == nil {
		return time.Since(modTime) > 32*24*time.Hour
	}
	now := time.Now()
	next := entry.Schedule.Next(now)
	interval := entry.Schedule.Next(next).Sub(next)
	if interval <= 0 {
		interval = 32 * 24 * time.Hour
	}
	return time.Since(modTime) > 2*interval
}

// Stop stops the scheduler, waits for an in-flight update and closes the
// reader.
func (s *Service) Stop() {
	if s.lifeCancel != nil {
		s.lifeCancel()
	}
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.updateMu.Lock()
	s.updateMu.Unlock()

	s.mu.Lock()
	r := s.reader
	s.reader = nil
	s.mu.Unlock()
	if r != nil {
		r.Close()
	}
	s.clearCache()
}

func (s *Service) clearCache() {
	if s.cache != nil {
		s.cache.Clear()
	}
}

// Lookup returns the location of ip. It never blocks on I/O: without a
// database, or on a reader error, the zero LocationInfo is returned.
func (s *Service) Lookup(ip netip.Addr) LocationInfo {
	if !ip.IsValid() {
		return LocationInfo{}
	}
	ip = ip.Unmap()
	if s.cache != nil {
		if info, ok := s.cache.Get(ip); ok {
			return info
		}
	}

	s.mu.RLock()
	if s.reader == nil {
		s.mu.RUnlock()
		return LocationInfo{}
	}
	info, err := s.reader.Lookup(ip)
	s.mu.RUnlock()
	if err != nil {
		logrus.Debugf("[geoip] lookup %s: %v", ip, err)
		return LocationInfo{}
	}
	if s.cache != nil {
		s.cache.Set(ip, info)
	}
	return info
}

// LookupHost looks up host when it is an IP literal. Hostnames are not
// resolved.
func (s *Service) LookupHost(host string) LocationInfo {
	ip, err := netip.ParseAddr(strings.Trim(host, "[]"))
	if err != nil {
		return LocationInfo{}
	}
	return s.Lookup(ip)
}

// UpdateNow downloads the database from the configured URL, verifies the
// checksum when one is configured, checks that the file opens, atomically
// replaces the local copy and hot-reloads the reader. Serialized via
// updateMu to prevent concurrent temp file races.
func (s *Service) UpdateNow() error {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	ctx := context.Background()
	if s.lifeCtx != nil {
		ctx = s.lifeCtx
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("geoip: update canceled: %w", err)
	}
	if s.downloader == nil {
		return fmt.Errorf("geoip: no downloader configured")
	}
	if s.dbURL == "" {
		return fmt.Errorf("geoip: no database URL configured")
	}

	data, err := s.downloader.Download(ctx, s.dbURL)
	if err != nil {
		return fmt.Errorf("geoip: download db: %w", err)
	}

	tmpFile, err := os.CreateTemp(s.cacheDir, s.dbFilename+".tmp.*")
	if err != nil {
		return fmt.Errorf("geoip: create temp: %w", err)
	}
	tmpPath := tmpFile.Name()
	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("geoip: write temp: %w", err)
	}
	tmpFile.Close()
	defer os.Remove(tmpPath) // no-op once renamed

	if s.sha256URL != "" {
		sumBody, err := s.downloader.Download(ctx, s.sha256URL)
		if err != nil {
			return fmt.Errorf("geoip: download sha256: %w", err)
		}
		expected := parseSHA256Sum(string(sumBody))
		if expected == "" {
			return fmt.Errorf("geoip: could not parse sha256sum from %q", string(sumBody))
		}
		if err := VerifySHA256(tmpPath, expected); err != nil {
			return err
		}
	}

	if s.openDB == nil {
		return fmt.Errorf("geoip: no OpenDB function configured")
	}
	probe, err := s.openDB(tmpPath)
	if err != nil {
		return fmt.Errorf("geoip: downloaded database is unreadable: %w", err)
	}
	probe.Close()

	dbPath := s.dbPath()
	if err := os.Rename(tmpPath, dbPath); err != nil {
		return fmt.Errorf("geoip: atomic replace: %w", err)
	}
	logrus.Infof("[geoip] database updated (%d bytes)", len(data))
	return s.reloadReader(dbPath)
}

// reloadReader replaces the current reader and drops cached lookups.
// RLock holders finish before the old reader is closed.
func (s *Service) reloadReader(path string) error {
	if s.openDB == nil {
		return fmt.Errorf("geoip: no OpenDB function configured")
	}
	newReader, err := s.openDB(path)
	if err != nil {
		return fmt.Errorf("geoip: open %s: %w", path, err)
	}
	s.mu.Lock()
	old := s.reader
	s.reader = newReader
	s.mu.Unlock()
	if old != nil {
		old.Close()
	}
	s.clearCache()
	return nil
}

// VerifySHA256 checks that the file at path has the expected SHA256 hash.
func VerifySHA256(path, expectedHex string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	got := sha256.Sum256(data)
	gotHex := hex.EncodeToString(got[:])
	if gotHex != expectedHex {
		return fmt.Errorf("geoip: sha256 mismatch: got %s, want %s", gotHex, expectedHex)
	}
	return nil
}

// LastUpdated returns the modification time of the database file.
func (s *Service) LastUpdated() time.Time {
	info, err := os.Stat(s.dbPath())
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// NextScheduledUpdate returns the next time the refresh job fires, or the
// zero time before Start.
func (s *Service) NextScheduledUpdate() time.Time {
	if s.cron == nil || s.cronEntryID == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.cronEntryID).Next
}

// parseSHA256Sum extracts the hex hash from a "<hash>  <filename>" string.
func parseSHA256Sum(s string) string {
	parts := strings.Fields(s)
	if len(parts) >= 1 && len(parts[0]) == 64 {
		if _, err := hex.DecodeString(parts[0]); err == nil {
			return strings.ToLower(parts[0])
		}
	}
	return ""
}
