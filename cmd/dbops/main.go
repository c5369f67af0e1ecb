package main

import (
	"context"
	"flag"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dbops/toolkit/pkg/api"
	"github.com/dbops/toolkit/pkg/backup"
	"github.com/dbops/toolkit/pkg/config"
	"github.com/dbops/toolkit/pkg/mail"
	"github.com/dbops/toolkit/pkg/monitor"
	"github.com/dbops/toolkit/pkg/version"
)

const (
	drainTimeout    = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	var (
		debug      bool
		configPath string
	)
	flag.BoolVar(&debug, "debug", false, "enable debug level logging")
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	zl := setupLogger(debug)
	log := zl.Sugar()
	log.With("version", version.Version).Info("Starting dbops server")

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Error loading dbops config: %v", err)
	}
	if debug {
		cfg.Server.Debug = true
	}

	mailSvc := mail.NewService(zl)
	if err := mailSvc.Start(cfg.Mail); err != nil {
		log.Fatalf("Error starting mail service: %v", err)
	}

	var dbMonitor api.DatabaseMonitor
	mysqlMonitor, err := monitor.NewMySQLMonitor(cfg.MySQL, zl)
	if err != nil {
		log.Warnf("MySQL monitor disabled: %v", err)
	} else {
		dbMonitor = mysqlMonitor
		defer mysqlMonitor.Close()
	}

	backupMgr := backup.NewManager(cfg.Backup, cfg.MySQL, zl)

	server := api.NewServer(zl, cfg)
	err = server.RegisterAll([]api.APIController{
		api.NewOpsController(cfg.Mail.SiteName, mailSvc, dbMonitor, monitor.NewSystemMonitor(zl), backupMgr, cfg.MySQL.Databases, log),
	})
	if err != nil {
		log.Fatalf("Error registering controllers: %v", err)
	}

	go func() {
		if err := server.Listen(); err != nil {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	log.Infow("Shutting down", "signal", s.String())

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Warnf("HTTP shutdown: %v", err)
	}

	if !mailSvc.Drain(drainTimeout) {
		log.Warn("Mail queue did not drain before shutdown")
	}
	mailSvc.Stop()
}

func setupLogger(debug bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format(time.RFC3339))
	}
	cfg.EncoderConfig.TimeKey = "ts"
	logger, err := cfg.Build()
	if err != nil {
		stdlog.Fatalf("failed to set up logger: %v", err)
	}
	return logger
}
