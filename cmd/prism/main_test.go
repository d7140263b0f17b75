package main

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Resinat/Prism/internal/config"
	"github.com/Resinat/Prism/internal/netutil"
)

func TestConfigureLogging(t *testing.T) {
	prevLevel, prevFormatter := logrus.GetLevel(), logrus.StandardLogger().Formatter
	t.Cleanup(func() {
		logrus.SetLevel(prevLevel)
		logrus.SetFormatter(prevFormatter)
	})

	configureLogging(&config.EnvConfig{LogLevel: "debug", LogFormat: "json"})
	if logrus.GetLevel() != logrus.DebugLevel {
		t.Fatalf("level: got %v, want debug", logrus.GetLevel())
	}
	if _, ok := logrus.StandardLogger().Formatter.(*logrus.JSONFormatter); !ok {
		t.Fatalf("formatter: got %T, want *logrus.JSONFormatter", logrus.StandardLogger().Formatter)
	}

	configureLogging(&config.EnvConfig{LogLevel: "warn", LogFormat: "text"})
	if logrus.GetLevel() != logrus.WarnLevel {
		t.Fatalf("level: got %v, want warn", logrus.GetLevel())
	}
	if _, ok := logrus.StandardLogger().Formatter.(*logrus.TextFormatter); !ok {
		t.Fatalf("formatter: got %T, want *logrus.TextFormatter", logrus.StandardLogger().Formatter)
	}
}

func TestNewDownloader_FromEnv(t *testing.T) {
	envCfg := &config.EnvConfig{
		FetchTimeout:  7 * time.Second,
		FetchMaxBytes: 1024,
		FetchRetries:  2,
		UserAgent:     "prism/test",
	}
	dl, ok := newDownloader(envCfg).(*netutil.RetryDownloader)
	if !ok {
		t.Fatalf("downloader: got %T, want *netutil.RetryDownloader", dl)
	}
	if dl.Attempts != 3 {
		t.Fatalf("Attempts: got %d, want 3", dl.Attempts)
	}
	direct, ok := dl.Next.(*netutil.DirectDownloader)
	if !ok {
		t.Fatalf("Next: got %T, want *netutil.DirectDownloader", dl.Next)
	}
	if direct.MaxBodyBytes != 1024 {
		t.Fatalf("MaxBodyBytes: got %d, want 1024", direct.MaxBodyBytes)
	}
	if got := direct.TimeoutFn(); got != 7*time.Second {
		t.Fatalf("timeout: got %v", got)
	}
	if got := direct.UserAgentFn(); got != "prism/test" {
		t.Fatalf("user agent: got %q", got)
	}
}

func TestNewPrismApp_WiresServices(t *testing.T) {
	envCfg := &config.EnvConfig{
		StateDir:            t.TempDir(),
		CacheDir:            t.TempDir(),
		ListenAddress:       "127.0.0.1",
		Port:                0,
		APIMaxBodyBytes:     1 << 20,
		FetchTimeout:        time.Second,
		FetchMaxBytes:       1 << 20,
		GeoIPDBFilename:     "country.mmdb",
		GeoIPUpdateSchedule: "0 7 * * *",
		GeoIPCacheSize:      16,
		RenderCacheEntries:  8,
		RefreshSchedule:     "*/30 * * * *",
	}
	app, err := newPrismApp(envCfg)
	if err != nil {
		t.Fatalf("newPrismApp: %v", err)
	}
	if err := app.startBackgroundServices(); err != nil {
		t.Fatalf("startBackgroundServices: %v", err)
	}
	app.shutdown(t.Context())
}

func TestFormatListenURL(t *testing.T) {
	if got := formatListenURL("::1", 2280); got != "http://[::1]:2280" {
		t.Fatalf("got %q", got)
	}
	if got := formatListenURL("0.0.0.0", 80); got != "http://0.0.0.0:80" {
		t.Fatalf("got %q", got)
	}
}
