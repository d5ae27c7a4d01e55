// Command socialsvc runs the social service: connections, groups,
// the request ledger, credential tokens, the external friends
// aggregator, and unique names, behind the HTTP surface in §6.1.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/anthill-platform/anthill-social/internal/config"
	"github.com/anthill-platform/anthill-social/internal/connections"
	"github.com/anthill-platform/anthill-social/internal/groups"
	"github.com/anthill-platform/anthill-social/internal/httpapi"
	"github.com/anthill-platform/anthill-social/internal/logging"
	"github.com/anthill-platform/anthill-social/internal/migrations"
	"github.com/anthill-platform/anthill-social/internal/names"
	"github.com/anthill-platform/anthill-social/internal/requests"
	"github.com/anthill-platform/anthill-social/internal/rpc"
	"github.com/anthill-platform/anthill-social/internal/social"
	"github.com/anthill-platform/anthill-social/internal/store"
	"github.com/anthill-platform/anthill-social/internal/tokens"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load configuration:", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Logging)

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.WithField("error", err).Fatal("failed to open database connection")
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := migrations.Apply(ctx, db); err != nil {
		cancel()
		log.WithField("error", err).Fatal("failed to apply migrations")
	}
	cancel()

	s := store.New(db)

	messageClient := rpc.NewHTTPMessageClient(cfg.RPC.MessageBaseURL, cfg.RPCTimeout())
	profileClient := rpc.NewHTTPProfileClient(cfg.RPC.ProfileBaseURL, cfg.RPCTimeout())
	loginClient := rpc.NewHTTPLoginClient(cfg.RPC.LoginBaseURL, cfg.RPCTimeout())

	ledger := requests.New(s, cfg.RequestExpiry())
	connEngine := connections.New(s, ledger, messageClient, profileClient)
	groupEngine := groups.New(s, ledger, messageClient)
	tokenStore := tokens.New(s)
	nameRegistry := names.New(s, profileClient, time.Duration(cfg.Cache.NamesTTLSeconds)*time.Second)

	providers := buildProviders(tokenStore, loginClient, cfg.Social)
	socialRegistry := social.NewRegistry(providers...)
	aggregator := social.NewAggregator(socialRegistry, tokenStore, connEngine, profileClient, time.Duration(cfg.Cache.FriendsTTLSeconds)*time.Second, log)

	sweepEvery := time.Duration(cfg.Request.CleanupInterval) * time.Second
	if sweepEvery <= 0 {
		sweepEvery = time.Hour
	}
	scheduler, err := requests.NewScheduler(ledger, log, "@every "+sweepEvery.String())
	if err != nil {
		log.WithField("error", err).Fatal("failed to build request sweep scheduler")
	}
	scheduler.Start()
	defer scheduler.Stop()

	server := httpapi.NewServer(connEngine, groupEngine, tokenStore, aggregator, nameRegistry, httpapi.NewHeaderAuthenticator(), log)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("addr", addr).Info("social service listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithField("error", err).Fatal("http server stopped unexpectedly")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithField("error", err).Warn("graceful shutdown failed")
	}
}

func buildProviders(t *tokens.Store, login rpc.LoginClient, cfg config.SocialProviderConfig) []social.Provider {
	var out []social.Provider
	if cfg.Google.AppID != "" {
		out = append(out, social.NewGoogleProvider(t, login, cfg.Google))
	}
	if cfg.Facebook.AppID != "" {
		out = append(out, social.NewFacebookProvider(t, login, cfg.Facebook))
	}
	if cfg.VK.AppID != "" {
		out = append(out, social.NewVKProvider(t, login, cfg.VK))
	}
	if cfg.Steam.AppID != "" {
		out = append(out, social.NewSteamProvider(t, login, cfg.Steam))
	}
	if cfg.MailRu.AppID != "" {
		out = append(out, social.NewMailRuProvider(t, login, cfg.MailRu))
	}
	return out
}
