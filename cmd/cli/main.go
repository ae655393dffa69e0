package main

import (
	"bufio"
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/invoicekeeper/internal/archive"
	"github.com/dmitrijs2005/invoicekeeper/internal/buildinfo"
	"github.com/dmitrijs2005/invoicekeeper/internal/cli"
	"github.com/dmitrijs2005/invoicekeeper/internal/config"
	"github.com/dmitrijs2005/invoicekeeper/internal/logging"
	"github.com/dmitrijs2005/invoicekeeper/internal/portal"
	"github.com/dmitrijs2005/invoicekeeper/internal/service"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	reader := bufio.NewReader(os.Stdin)
	if err := cli.PromptCredentials(reader, os.Stdout, cfg); err != nil {
		log.Fatalf("%v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	client, err := portal.New(cfg.Credentials(), cfg.PortalOptions(), logger)
	if err != nil {
		log.Fatalf("%v", err)
	}

	var arch archive.Archive
	if cfg.S3Bucket != "" {
		arch, err = archive.NewS3(ctx, archive.S3Options{
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			Prefix:       cfg.S3Prefix,
		}, logger)
		if err != nil {
			_ = client.Close()
			log.Fatalf("%v", err)
		}
	}

	svc := service.NewInvoiceService(client, arch, logger)
	defer svc.Close()

	// Unblocks the REPL's pending read on SIGINT/SIGTERM.
	go func() {
		<-ctx.Done()
		_ = os.Stdin.Close()
	}()

	app := cli.NewApp(svc, func() string { return client.SessionState().String() }, reader, os.Stdout)
	app.Run(ctx)

}
