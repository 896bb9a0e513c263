package server

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"misdash/pkg/api"
	"misdash/pkg/commitment"
	"misdash/pkg/config"
	"misdash/pkg/extract"
	"misdash/pkg/pipeline"
)

// App is the fully wired service: every configured view, the commitment gateway and
// the HTTP surface over them.
type App struct {
	Config  *config.Configuration
	Views   *pipeline.Registry
	Gateway *commitment.Gateway
	Router  http.Handler
}

// New wires the app from configuration. Views are not fetched until first use.
func New(ctx context.Context, c *config.Configuration) (*App, error) {
	store, err := config.NewViewStore(c.ViewsFile)
	if err != nil {
		return nil, errors.Wrap(err, "load views")
	}
	deps := pipeline.NewDeps(c)
	views, err := pipeline.Build(ctx, store.Views(), deps)
	if err != nil {
		return nil, err
	}
	log.Infof("configured %d views from %s", len(views.Names()), c.ViewsFile)

	client := &http.Client{Timeout: c.HTTPTimeout}
	script := commitment.NewScriptClient(client, commitment.ScriptConfig{
		URL:         c.Script.URL,
		Sheet:       c.Script.Sheet,
		ReadAction:  c.Script.ReadAction,
		WriteAction: c.Script.WriteAction,
	})
	gateway := commitment.NewGateway(script, commitment.NewOverlay())

	h := api.NewHandler(views, gateway, &extract.Prober{Client: client, Hosts: c.ImageHosts})
	router := api.GetRouter(h, api.RouterOptions{CORSOrigins: c.CORSOrigins, MetricsPath: c.MetricsPath})

	return &App{Config: c, Views: views, Gateway: gateway, Router: router}, nil
}

// LoadCommitments fetches the saved values when a script endpoint is configured.
func (a *App) LoadCommitments(ctx context.Context) {
	if a.Config.Script.URL == "" {
		log.Info("SCRIPT_URL not set, commitments start empty")
		return
	}
	if err := a.Gateway.Load(ctx); err != nil {
		log.Warnf("load saved commitments: %v", err)
	}
}

// Serve listens until ctx is done, then shuts down gracefully.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.Config.ListenAddress(),
		Handler:           a.Router,
		ReadHeaderTimeout: 2 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening for HTTP on: %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
