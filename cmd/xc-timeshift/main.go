// Command xc-timeshift: Xtream Codes gateway with catch-up (timeshift) playback.
//
//	serve  Serve player_api.php, /live/ and /timeshift/ from the catalog (optional background re-index)
//	index  Refresh account streams (and XMLTV guide data) into the catalog, then exit
//	check  Verify provider accounts answer, and optionally that a running gateway is healthy
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/snapetech/xc-timeshift/internal/catalog"
	"github.com/snapetech/xc-timeshift/internal/config"
	"github.com/snapetech/xc-timeshift/internal/health"
	"github.com/snapetech/xc-timeshift/internal/httpclient"
	"github.com/snapetech/xc-timeshift/internal/indexer"
	"github.com/snapetech/xc-timeshift/internal/server"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <serve|index|check> [flags]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  serve  Run the gateway (player_api, live relay, timeshift)\n")
	fmt.Fprintf(os.Stderr, "  index  Fetch account streams into the catalog and exit\n")
	fmt.Fprintf(os.Stderr, "  check  Check provider accounts (and a running gateway with -url)\n")
}

func main() {
	_ = config.LoadEnvFile(".env")
	log.SetFlags(log.LstdFlags)
	log.SetPrefix("[xc-timeshift] ")

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx, cfg, os.Args[2:])
	case "index":
		err = runIndex(ctx, cfg, os.Args[2:])
	case "check":
		err = runCheck(ctx, cfg, os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		log.Printf("%s: %v", os.Args[1], err)
		stop()
		os.Exit(1)
	}
}

func newIndexer(cfg *config.Config, settings config.SettingsSource, guide bool) *indexer.Indexer {
	ix := indexer.New(httpclient.WithTimeout(cfg.IndexTimeout), cfg.IndexConcurrency)
	ix.FetchGuide = guide
	ix.Language = settings.Settings().Language
	return ix
}

func runServe(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	catalogPath := fs.String("catalog", cfg.CatalogPath, "Catalog path (.json, or .db/.sqlite)")
	settingsPath := fs.String("settings", cfg.SettingsPath, "YAML settings file (reloaded on change)")
	addr := fs.String("addr", cfg.Addr, "Listen address")
	baseURL := fs.String("base-url", cfg.BaseURL, "Public URL for server_info (default: derive from request)")
	refresh := fs.Duration("refresh", cfg.RefreshInterval, "Re-index interval (e.g. 6h). 0 = never")
	indexFirst := fs.Bool("index", false, "Index all accounts before serving")
	guide := fs.Bool("guide", true, "Fetch xmltv.php guide data when indexing")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg.CatalogPath, cfg.SettingsPath, cfg.Addr, cfg.BaseURL, cfg.RefreshInterval = *catalogPath, *settingsPath, *addr, *baseURL, *refresh

	backend, err := catalog.Open(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer backend.Close()
	settings := config.NewSettingsFile(cfg.SettingsPath)
	st := settings.Settings()
	log.Printf("Loaded catalog %s; timeshift enabled=%t timezone=%q", cfg.CatalogPath, st.Enabled, st.Timezone)

	srv := server.New(cfg, backend, settings)
	if *indexFirst || cfg.RefreshInterval > 0 {
		srv.Indexer = newIndexer(cfg, settings, *guide)
	}
	if *indexFirst {
		if err := srv.Refresh(ctx); err != nil {
			log.Printf("Initial index failed: %v; serving existing catalog", err)
		}
	}
	return srv.Run(ctx)
}

func runIndex(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("index", flag.ContinueOnError)
	catalogPath := fs.String("catalog", cfg.CatalogPath, "Catalog path (.json, or .db/.sqlite)")
	settingsPath := fs.String("settings", cfg.SettingsPath, "YAML settings file (guide language)")
	guide := fs.Bool("guide", true, "Fetch xmltv.php guide data for XC accounts")
	if err := fs.Parse(args); err != nil {
		return err
	}
	backend, err := catalog.Open(*catalogPath)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer backend.Close()
	work, err := backend.Working()
	if err != nil {
		return err
	}
	ix := newIndexer(cfg, config.NewSettingsFile(*settingsPath), *guide)
	start := time.Now()
	results, runErr := ix.Run(ctx, work)
	if err := backend.Commit(work); err != nil {
		return fmt.Errorf("save catalog: %w", err)
	}
	var streams, programmes int
	for _, r := range results {
		streams += r.Streams
		programmes += r.Programmes
	}
	log.Printf("Saved catalog to %s: %d account(s), %d streams, %d programmes in %s",
		*catalogPath, len(results), streams, programmes, time.Since(start).Round(time.Millisecond))
	return runErr
}

func runCheck(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	catalogPath := fs.String("catalog", cfg.CatalogPath, "Catalog path (.json, or .db/.sqlite)")
	gatewayURL := fs.String("url", "", "Base URL of a running gateway to check /healthz and /metrics")
	timeout := fs.Duration("timeout", 30*time.Second, "Overall timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	backend, err := catalog.Open(*catalogPath)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer backend.Close()
	work, err := backend.Working()
	if err != nil {
		return err
	}
	var errs []error
	for _, acct := range work.Snapshot().Accounts {
		if err := health.CheckProvider(ctx, nil, acct); err != nil {
			log.Printf("check: FAIL %v", err)
			errs = append(errs, err)
			continue
		}
		log.Printf("check: OK account=%q type=%s", acct.Name, acct.Type)
	}
	if *gatewayURL != "" {
		if err := health.CheckEndpoints(ctx, *gatewayURL); err != nil {
			log.Printf("check: FAIL gateway %s: %v", *gatewayURL, err)
			errs = append(errs, fmt.Errorf("gateway: %w", err))
		} else {
			log.Printf("check: OK gateway %s", *gatewayURL)
		}
	}
	return errors.Join(errs...)
}
