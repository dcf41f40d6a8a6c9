package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"

	"github.com/nvidal/pairtask/internal/config"
	"github.com/nvidal/pairtask/internal/dispatch"
	"github.com/nvidal/pairtask/internal/eventbus"
	"github.com/nvidal/pairtask/internal/guard"
	"github.com/nvidal/pairtask/internal/httpapi"
	"github.com/nvidal/pairtask/internal/notification"
	notifrepo "github.com/nvidal/pairtask/internal/notification/repositoryimpl"
	"github.com/nvidal/pairtask/internal/participant"
	pushsubrepo "github.com/nvidal/pairtask/internal/pushsubscription/repositoryimpl"
	"github.com/nvidal/pairtask/internal/session"
	taskrepo "github.com/nvidal/pairtask/internal/task/repositoryimpl"
	"github.com/nvidal/pairtask/internal/tasktype"
	typerepo "github.com/nvidal/pairtask/internal/tasktype/repositoryimpl"
	"github.com/nvidal/pairtask/pkg/clog"
	"github.com/nvidal/pairtask/pkg/storage"
)

var (
	app = kingpin.New("pairtask-server", "Shared task tracker for two participants")

	serveCmd = app.Command("serve", "Start the API server").Default()

	seedCmd       = app.Command("seed-types", "Write the default task types into a participant's partition")
	seedPartition = seedCmd.Arg("participant", "Participant id to seed").Required().String()
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to load env", "error", err)
		os.Exit(1)
	}

	// Setup logger
	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewTextHandler(os.Stderr, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))

	// Setup storage
	var st storage.Storage
	switch env.StorageEnv.Type {
	case "s3":
		st, err = storage.NewS3Storage(context.Background(), env.StorageEnv.S3Bucket, env.StorageEnv.S3Prefix, env.StorageEnv.S3Region)
		if err != nil {
			slog.Error("failed to create S3 storage", "error", err)
			os.Exit(1)
		}
	default:
		st, err = storage.NewLocalStorage(env.StorageEnv.BaseDir)
		if err != nil {
			slog.Error("failed to create local storage", "error", err)
			os.Exit(1)
		}
	}

	switch command {
	case seedCmd.FullCommand():
		seedTypes(env, st, *seedPartition)
	case serveCmd.FullCommand():
		serve(env, st)
	}
}

func serve(env *config.Env, st storage.Storage) {
	// Setup event bus
	bus := eventbus.New()

	// Setup repositories
	taskRepo := taskrepo.NewYAMLRepository(st)
	typeRepo := typerepo.NewYAMLRepository(st)
	notifRepo := notifrepo.NewYAMLRepository(st)
	pushSubRepo := pushsubrepo.NewYAMLRepository(st)

	// Setup participants
	registry := participant.New(
		participant.NewParticipant(env.AID, env.AName, env.AEmail, env.AKeyHash),
		participant.NewParticipant(env.BID, env.BName, env.BEmail, env.BKeyHash),
	)

	// Setup notification channels
	pusher := dispatch.NewPusher(config.VAPIDEnvFromEnv(env), pushSubRepo)
	mailer := dispatch.NewMailer(config.SMTPEnvFromEnv(env))
	dispatcher := dispatch.NewDispatcher(bus, registry, config.NotifyEnvFromEnv(env), mailer, pusher, env.AppURL)

	// Setup deletion guard and notification sweeper
	delGuard := guard.New(bus, taskRepo, typeRepo, notifRepo, registry.IDs())
	sweeper := notification.NewSweeper(notifRepo, registry.IDs())

	// Setup sessions and HTTP API
	pollInterval := time.Duration(env.PollSeconds) * time.Second
	manager := session.NewManager(registry, st, taskRepo, typeRepo, notifRepo, bus, pollInterval)
	srv := httpapi.NewServer(env, manager, pushSubRepo)

	// Graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	go delGuard.Start(ctx)
	go dispatcher.Start(ctx)
	if err := sweeper.Start(ctx); err != nil {
		slog.Error("failed to start notification sweeper", "error", err)
		os.Exit(1)
	}

	go func() {
		if err := srv.ListenAndServe(ctx); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")
	sweeper.Stop()

	// Give active connections time to finish after request contexts are cancelled.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

func seedTypes(env *config.Env, st storage.Storage, partition string) {
	if partition != env.AID && partition != env.BID {
		fmt.Fprintf(os.Stderr, "unknown participant %q\n", partition)
		os.Exit(1)
	}
	typeRepo := typerepo.NewYAMLRepository(st)
	ctx := context.Background()
	seeded := 0
	for _, t := range tasktype.Defaults(partition, time.Now()) {
		if err := typeRepo.Create(ctx, t); err != nil {
			color.Yellow("skip %s %s: %v", t.Icon, t.Name, err)
			continue
		}
		color.Green("seeded %s %s", t.Icon, t.Name)
		seeded++
	}
	fmt.Printf("%d task types written for %s\n", seeded, partition)
}
