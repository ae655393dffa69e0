// Package server runs the invoice HTTP API: it builds the portal client,
// the optional PDF archive and the API router, serves until SIGINT/SIGTERM
// and shuts everything down in order.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/invoicekeeper/internal/api"
	"github.com/dmitrijs2005/invoicekeeper/internal/archive"
	"github.com/dmitrijs2005/invoicekeeper/internal/config"
	"github.com/dmitrijs2005/invoicekeeper/internal/logging"
	"github.com/dmitrijs2005/invoicekeeper/internal/portal"
	"github.com/dmitrijs2005/invoicekeeper/internal/service"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	service service.InvoiceService
	server  *http.Server

	mu   sync.Mutex
	addr string
}

func NewApp(ctx context.Context, c *config.Config, l logging.Logger) (*App, error) {
	if l == nil {
		l = logging.NopLogger{}
	}

	client, err := portal.New(c.Credentials(), c.PortalOptions(), l)
	if err != nil {
		return nil, fmt.Errorf("portal init error: %w", err)
	}

	var arch archive.Archive = archive.Nop{}
	if c.S3Bucket != "" {
		s3a, err := archive.NewS3(ctx, archive.S3Options{
			Bucket:       c.S3Bucket,
			Region:       c.S3Region,
			BaseEndpoint: c.S3BaseEndpoint,
			AccessKey:    c.S3AccessKey,
			SecretKey:    c.S3SecretKey,
			Prefix:       c.S3Prefix,
		}, l)
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("archive init error: %w", err)
		}
		arch = s3a
	}

	svc := service.NewInvoiceService(client, arch, l)

	return &App{
		config:  c,
		logger:  l,
		service: svc,
		server: &http.Server{
			Handler:           api.New(svc, l),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       time.Minute,
		},
	}, nil
}

func (app *App) initSignalHandler(ctx context.Context, cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		defer signal.Stop(sigs)
		select {
		case s := <-sigs:
			app.logger.Info(ctx, "signal received", "signal", s.String())
			cancelFunc()
		case <-ctx.Done():
		}
	}()
}

// Addr returns the bound listen address once the server is up.
func (app *App) Addr() string {
	app.mu.Lock()
	defer app.mu.Unlock()
	return app.addr
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) error {
	ln, err := net.Listen("tcp", app.config.HTTPAddr)
	if err != nil {
		cancelFunc()
		return fmt.Errorf("listen %s: %w", app.config.HTTPAddr, err)
	}

	app.mu.Lock()
	app.addr = ln.Addr().String()
	app.mu.Unlock()

	app.logger.Info(ctx, "server started listening", "addr", app.Addr())

	if err := app.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		cancelFunc()
		return err
	}
	return nil
}

func (app *App) shutdown(ctx context.Context) error {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), app.config.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := app.server.Shutdown(sctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := app.service.Close(); err != nil {
		errs = append(errs, fmt.Errorf("portal close: %w", err))
	}
	return errors.Join(errs...)
}

// Run serves until ctx is cancelled, a termination signal arrives or the
// listener fails. The portal session is closed on every exit path.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(ctx, cancelFunc)

	var serveErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		serveErr = app.startHTTPServer(ctx, cancelFunc)
	}()

	<-ctx.Done()
	app.logger.Info(ctx, "shutting down")

	err := app.shutdown(ctx)
	wg.Wait()

	return errors.Join(serveErr, err)
}
