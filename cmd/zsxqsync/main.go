package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"zsxqsync/pkg/config"
	"zsxqsync/pkg/feishu"
	"zsxqsync/pkg/logger"
	"zsxqsync/pkg/secrets"
	"zsxqsync/pkg/session"
	"zsxqsync/pkg/syncer"
	"zsxqsync/pkg/zsxq"
)

var (
	configFile  = flag.String("config", "", "Path to configuration file")
	authFile    = flag.String("auth-file", "", "Path to the browser session bundle")
	downloadDir = flag.String("download-dir", "", "Directory for downloaded assets")
	tableID     = flag.String("table", "", "Destination table id")
	maxPages    = flag.Int("max-pages", 0, "Topic pages to fetch per group")
	floorTime   = flag.String("floor-time", "", "Stop once topics older than this timestamp are reached")
	logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error)")
)

func main() {
	flag.Parse()

	flags := make(map[string]interface{})
	if *authFile != "" {
		flags["auth-file"] = *authFile
	}
	if *downloadDir != "" {
		flags["download-dir"] = *downloadDir
	}
	if *tableID != "" {
		flags["table"] = *tableID
	}
	if *maxPages > 0 {
		flags["max-pages"] = *maxPages
	}
	if *floorTime != "" {
		flags["floor-time"] = *floorTime
	}
	if *logLevel != "" {
		flags["log-level"] = *logLevel
	}

	cfg, err := config.Load(*configFile, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.GetLogger()
	log.Info("starting sync")

	// App credentials left out of config and env fall back to the
	// credential store (keyring or encrypted file).
	if cfg.Feishu.AppID == "" || cfg.Feishu.AppSecret == "" {
		if creds := loadStoredCredentials(log); creds != nil {
			cfg.Feishu.AppID = creds.AppID
			cfg.Feishu.AppSecret = creds.AppSecret
		}
	}

	if cfg.Feishu.AppID == "" || cfg.Feishu.AppSecret == "" {
		log.Fatal("missing app credentials, provide FEISHU_APP_ID and FEISHU_APP_SECRET or store them with the credential manager")
	}

	bundle, err := session.Load(cfg.Zsxq.AuthFile)
	if err != nil {
		if errors.Is(err, session.ErrNotAuthenticated) {
			log.WithField("auth_file", cfg.Zsxq.AuthFile).Fatal(
				"no usable session found, export a fresh browser session bundle first")
		}
		log.WithError(err).Fatal("failed to load session bundle")
	}

	source := zsxq.NewClient(bundle, &cfg.Zsxq, cfg.Crawl.DownloadDir, &cfg.Retry, log)

	tokens := feishu.NewTokenCache(&cfg.Feishu, log)
	if _, err := tokens.Token(); err != nil {
		log.WithError(err).Fatal("token exchange failed, check app credentials")
	}
	sink := feishu.NewClient(&cfg.Feishu, tokens, &cfg.Retry, log)

	s, err := syncer.New(source, sink, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize syncer")
	}

	stats := s.Run()
	if stats.Failed > 0 {
		log.WithField("failed", stats.Failed).Warn("sync finished with failures")
		os.Exit(2)
	}
}

func loadStoredCredentials(log logger.Logger) *secrets.Credentials {
	manager, err := secrets.NewManager()
	if err != nil {
		log.WithError(err).Debug("credential store unavailable")
		return nil
	}
	creds, err := manager.Retrieve()
	if err != nil {
		log.WithError(err).Debug("no stored app credentials")
		return nil
	}
	return creds
}
