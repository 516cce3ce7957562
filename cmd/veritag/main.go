package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/veritag/veritag/config"
	"github.com/veritag/veritag/internal/adminapi"
	"github.com/veritag/veritag/internal/app"
	"github.com/veritag/veritag/internal/publicapi"
	"github.com/veritag/veritag/internal/webserver"
)

var (
	h        = flag.Bool("h", false, "help usage")
	showVer  = flag.Bool("v", false, "show version")
	conffile = flag.String("c", "/etc/veritag.yml", "config yaml file")
	initdb   = flag.Bool("initdb", false, "drop and recreate all tables, exit")
)

var (
	BuildVersion = "dev"
	ReleaseDate  = "unknown"
)

func printVersion() {
	fmt.Printf("veritag %s (%s)\n", BuildVersion, ReleaseDate)
}

func main() {
	flag.Parse()
	if *h {
		flag.Usage()
		os.Exit(0)
	}
	if *showVer {
		printVersion()
		os.Exit(0)
	}

	cfg := config.LoadConfig(*conffile)

	application := app.NewApplication(cfg)
	application.Init(cfg)
	defer application.Release()

	if *initdb {
		application.InitDb()
		zap.S().Info("database initialized")
		return
	}

	ws := webserver.Init(cfg, application.DB())
	adminapi.InitRouter(application.Provisioner())
	publicapi.InitRouter(application.BlobStore())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(ws.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return ws.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		zap.L().Fatal("server exited", zap.Error(err))
	}
}
