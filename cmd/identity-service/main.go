// cmd/identity-service/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dirgate/internal/audit"
	"dirgate/internal/authflow"
	"dirgate/internal/authority"
	"dirgate/internal/extensions"
	"dirgate/internal/gateway"
	"dirgate/internal/loginstate"
	"dirgate/pkg/config"
	"dirgate/pkg/db"
	"dirgate/pkg/logger"
	"dirgate/pkg/middleware"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)

	auth, err := authority.New(cfg.TenantName, cfg.PolicyName, cfg.IdPHost)
	if err != nil {
		log.Fatalw("authority", "err", err)
	}
	ns, err := extensions.New(cfg.ExtensionsAppID)
	if err != nil {
		log.Fatalw("extensions", "err", err)
	}

	if cfg.ClientName == "" {
		log.Fatalw("scopes", "err", "B2C_CLIENT_NAME is empty")
	}
	scopes, err := authflow.NewScopeSet(auth.ImpersonationScope(cfg.ClientName))
	if err != nil {
		log.Fatalw("scopes", "err", err)
	}
	delegated, err := authflow.NewCodeExchanger(authflow.DelegatedConfig{
		Authority:    auth,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURI:  cfg.RedirectURI,
		JWKSURL:      auth.JWKSEndpoint(),
		Timeout:      cfg.UpstreamTimeout,
	})
	if err != nil {
		log.Fatalw("delegated exchanger", "err", err)
	}

	svcScopes, err := authflow.NewScopeSet(cfg.DirectoryScope)
	if err != nil {
		log.Fatalw("service scopes", "err", err)
	}
	tokenURL := cfg.DirectoryTokenURL
	if tokenURL == "" {
		tokenURL = auth.TokenEndpoint()
	}
	service, err := authflow.NewServiceExchanger(authflow.ServiceConfig{
		TokenURL:     tokenURL,
		ClientID:     cfg.DirectoryClientID,
		ClientSecret: cfg.DirectoryClientSecret,
		Scopes:       svcScopes,
		Timeout:      cfg.UpstreamTimeout,
	})
	if err != nil {
		log.Fatalw("service exchanger", "err", err)
	}

	var states loginstate.Store
	if rdb := db.MustRedis(cfg, log); rdb != nil {
		states = loginstate.NewRedis(rdb)
	} else {
		states = loginstate.NewMemory()
	}

	recorder := audit.Recorder(audit.NewNop())
	if pool := db.MustConnect(cfg, log); pool != nil {
		if err := audit.EnsureSchema(context.Background(), pool); err != nil {
			log.Fatalw("audit schema", "err", err)
		}
		recorder = audit.NewPostgres(pool, log)
	}

	svc, err := gateway.New(gateway.Deps{
		Log:              log,
		Delegated:        delegated,
		Service:          service,
		States:           states,
		Audit:            recorder,
		DirectoryBaseURL: cfg.DirectoryBaseURL,
		DelegatedScopes:  scopes,
		StateTTL:         cfg.LoginStateTTL,
	})
	if err != nil {
		log.Fatalw("gateway", "err", err)
	}

	// Bound memory of the credential cache; expiry alone keeps it correct.
	go func() {
		t := time.NewTicker(10 * time.Minute)
		defer t.Stop()
		for range t.C {
			if n := svc.SweepCredentials(); n > 0 {
				log.Debugw("credential cache sweep", "removed", n)
			}
		}
	}()

	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recover(log))
	r.Use(middleware.Tracing())

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("ok")) })
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	gateway.NewServer(log, svc, ns).Register(r)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		log.Infow("identity-service listening", "addr", cfg.HTTPAddr, "authority", auth.URL())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("ListenAndServe", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	fmt.Println("identity-service stopped")
}
