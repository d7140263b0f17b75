package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Resinat/Prism/internal/api"
	"github.com/Resinat/Prism/internal/buildinfo"
	"github.com/Resinat/Prism/internal/config"
	"github.com/Resinat/Prism/internal/geoip"
	"github.com/Resinat/Prism/internal/netutil"
	"github.com/Resinat/Prism/internal/service"
	"github.com/Resinat/Prism/internal/store"
)

type prismApp struct {
	envCfg  *config.EnvConfig
	store   *store.Store
	geoSvc  *geoip.Service
	nodeSvc *service.NodeService
	apiSrv  *api.Server

	bgCtx    context.Context
	bgCancel context.CancelFunc
}

func run() error {
	envCfg, err := config.LoadEnvConfig()
	if err != nil {
		return err
	}
	configureLogging(envCfg)
	logrus.Infof("Prism %s (%s, built %s)", buildinfo.Version, buildinfo.GitCommit, buildinfo.BuildTime)

	if envCfg.AdminToken == "" {
		logrus.Warn("PRISM_ADMIN_TOKEN is empty, admin API authentication is disabled")
	} else if config.IsWeakToken(envCfg.AdminToken) {
		logrus.Warn("PRISM_ADMIN_TOKEN is weak, consider a longer random token")
	}

	app, err := newPrismApp(envCfg)
	if err != nil {
		return err
	}

	if err := app.startBackgroundServices(); err != nil {
		app.shutdown(context.Background())
		return err
	}
	serverErrCh := app.startServers()
	runtimeErr := waitForShutdown(serverErrCh)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	app.shutdown(ctx)

	if runtimeErr != nil {
		return fmt.Errorf("runtime server error: %w", runtimeErr)
	}
	return nil
}

// configureLogging applies PRISM_LOG_LEVEL and PRISM_LOG_FORMAT to the
// standard logrus logger. Both were validated by LoadEnvConfig.
func configureLogging(envCfg *config.EnvConfig) {
	if level, err := logrus.ParseLevel(envCfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	}
	if envCfg.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// newDownloader builds the shared subscription and GeoIP downloader.
func newDownloader(envCfg *config.EnvConfig) netutil.Downloader {
	direct := netutil.NewDirectDownloader(
		func() time.Duration { return envCfg.FetchTimeout },
		func() string { return envCfg.UserAgent },
	)
	direct.MaxBodyBytes = int64(envCfg.FetchMaxBytes)
	return &netutil.RetryDownloader{
		Next:     direct,
		Attempts: envCfg.FetchRetries + 1,
		Backoff:  time.Second,
	}
}

func newPrismApp(envCfg *config.EnvConfig) (*prismApp, error) {
	st, err := store.Open(envCfg.StateDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	logrus.Infof("[store] state database opened in %s", envCfg.StateDir)

	downloader := newDownloader(envCfg)
	geoSvc := geoip.NewService(geoip.ServiceConfig{
		CacheDir:       envCfg.CacheDir,
		DBFilename:     envCfg.GeoIPDBFilename,
		DBURL:          envCfg.GeoIPDBURL,
		SHA256URL:      envCfg.GeoIPSHA256URL,
		UpdateSchedule: envCfg.GeoIPUpdateSchedule,
		CacheSize:      envCfg.GeoIPCacheSize,
		OpenDB:         geoip.MaxMindOpen,
		Downloader:     downloader,
	})

	nodeSvc := service.New(service.Config{
		Store:      st,
		GeoIP:      geoSvc,
		Downloader: downloader,
		Env:        envCfg,
	})

	apiSrv := api.NewServer(api.ServerConfig{
		ListenAddress:   envCfg.ListenAddress,
		Port:            envCfg.Port,
		AdminToken:      envCfg.AdminToken,
		APIMaxBodyBytes: int64(envCfg.APIMaxBodyBytes),
	}, nodeSvc)

	bgCtx, bgCancel := context.WithCancel(context.Background())
	return &prismApp{
		envCfg:   envCfg,
		store:    st,
		geoSvc:   geoSvc,
		nodeSvc:  nodeSvc,
		apiSrv:   apiSrv,
		bgCtx:    bgCtx,
		bgCancel: bgCancel,
	}, nil
}

func (a *prismApp) startBackgroundServices() error {
	if err := a.geoSvc.Start(); err != nil {
		return fmt.Errorf("geoip: %w", err)
	}
	logrus.Info("[geoip] service started")

	if err := a.nodeSvc.Start(); err != nil {
		return err
	}

	// Catch up on sources that went stale while the process was down.
	go func() {
		n, err := a.nodeSvc.RefreshDue(a.bgCtx)
		if err != nil {
			logrus.Warnf("[service] startup refresh: %v", err)
			return
		}
		logrus.Infof("[service] startup refresh covered %d source(s)", n)
	}()
	return nil
}

func (a *prismApp) startServers() <-chan error {
	serverErrCh := make(chan error, 1)
	go func() {
		logrus.Infof("Prism API listening on %s", formatListenURL(a.envCfg.ListenAddress, a.envCfg.Port))
		err := a.apiSrv.ListenAndServe()
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return
		}
		select {
		case serverErrCh <- fmt.Errorf("api server: %w", err):
		default:
		}
	}()
	return serverErrCh
}

func waitForShutdown(serverErrCh <-chan error) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		logrus.Infof("Received signal %s, shutting down...", sig)
		return nil
	case err := <-serverErrCh:
		logrus.Errorf("Received server runtime error (%v), shutting down...", err)
		return err
	}
}

func formatListenURL(listenAddress string, port int) string {
	return "http://" + net.JoinHostPort(listenAddress, strconv.Itoa(port))
}

// shutdown stops the listener first, then the schedulers, then the store.
func (a *prismApp) shutdown(ctx context.Context) {
	if err := a.apiSrv.Shutdown(ctx); err != nil {
		logrus.Errorf("API server shutdown error: %v", err)
	}
	logrus.Info("API server stopped")

	a.bgCancel()
	a.nodeSvc.Stop()
	logrus.Info("[service] refresh scheduler stopped")

	a.geoSvc.Stop()
	logrus.Info("[geoip] service stopped")

	if err := a.store.Close(); err != nil {
		logrus.Errorf("[store] close error: %v", err)
	}
	logrus.Info("Prism stopped")
}
