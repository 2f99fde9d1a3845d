package main

import (
	"net"

	"github.com/fastdiary/fastdiary/config"
	"github.com/fastdiary/fastdiary/models"
	"github.com/fastdiary/fastdiary/routes"
	"github.com/fastdiary/fastdiary/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer func() { _ = utils.Logger.Sync() }()

	if err := utils.EnsureStylesheet(cfg.StaticDir); err != nil {
		utils.Sugar.Fatalf("prepare static dir: %v", err)
	}

	db, err := config.OpenDatabase(cfg)
	if err != nil {
		utils.Sugar.Fatalf("open database: %v", err)
	}
	if err := config.Migrate(db, models.All()...); err != nil {
		utils.Sugar.Fatalf("create schema: %v", err)
	}

	utils.InitRedis(cfg)

	svc := routes.NewServices(cfg, db)
	if err := svc.Uploads.EnsureDirs(); err != nil {
		utils.Sugar.Fatalf("prepare upload dir: %v", err)
	}
	if cfg.SweepOrphans {
		n, err := utils.SweepOrphanUploads(db, svc.Uploads.Dir(), svc.Uploads.ThumbDir())
		if err != nil {
			utils.Sugar.Warnf("orphan sweep failed: %v", err)
		} else {
			utils.Sugar.Infof("orphan sweep removed %d files", n)
		}
	}

	r, err := routes.SetupRouter(cfg, svc)
	if err != nil {
		utils.Sugar.Fatalf("build router: %v", err)
	}

	ln, err := utils.ListenFirstFree(cfg.Host, cfg.StartPort, cfg.PortScanLimit)
	if err != nil {
		utils.Sugar.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	utils.Sugar.Infof("Starting on http://127.0.0.1:%d (graceful)", port)
	if err := utils.GraceServe(ln, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
