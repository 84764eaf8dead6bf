package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"lifecoach/backend/internal/booking"
	"lifecoach/backend/internal/catalog"
	"lifecoach/backend/internal/config"
	"lifecoach/backend/internal/notify"
	"lifecoach/backend/internal/obs"
	"lifecoach/backend/internal/realtime"
	"lifecoach/backend/internal/scheduler"
	"lifecoach/backend/internal/service/appointments"
	"lifecoach/backend/internal/service/auth"
	"lifecoach/backend/internal/service/chat"
	"lifecoach/backend/internal/service/contact"
	"lifecoach/backend/internal/slots"
	"lifecoach/backend/internal/store/dynamo"
	"lifecoach/backend/internal/store/postgres"
	grpcTransport "lifecoach/backend/internal/transport/grpc"
	httpTransport "lifecoach/backend/internal/transport/http"
)

const serviceName = "lifecoach-server"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With(
		slog.String("service", serviceName),
	)
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)})).With(
		slog.String("service", serviceName),
	)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpAddr := net.JoinHostPort(cfg.HTTP.Host, strconv.Itoa(cfg.HTTP.Port))
	grpcAddr := net.JoinHostPort(cfg.GRPC.Host, strconv.Itoa(cfg.GRPC.Port))
	log.Info("starting",
		slog.String("version", version),
		slog.String("http_addr", httpAddr),
		slog.String("grpc_addr", grpcAddr),
		slog.String("log_level", cfg.LogLevel),
	)

	shutdownTracer, err := obs.InitTracer(ctx, obs.TracerConfig{
		Endpoint:    cfg.OTel.Endpoint,
		Insecure:    cfg.OTel.Insecure,
		ServiceName: serviceName,
		Version:     version,
		Environment: cfg.OTel.Environment,
		SampleRatio: cfg.OTel.SampleRatio,
	})
	if err != nil {
		log.Error("tracer init failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(sctx); err != nil {
			log.Warn("tracer shutdown failed", slog.Any("err", err))
		}
	}()

	cloud, err := newAWSClients(ctx, cfg.AWS)
	if err != nil {
		log.Error("aws config failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := resolveSecrets(ctx, cloud, &cfg); err != nil {
		log.Error("secret resolution failed", slog.Any("err", err))
		os.Exit(1)
	}

	log.Info("connecting to database", databaseLogArgs(cfg.Database.URL)...)
	db, err := postgres.Open(ctx, cfg.Database.URL, postgres.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.Database.URL)...)
		log.Error("database connection failed", args...)
		os.Exit(1)
	}
	defer func() {
		if err := postgres.Close(db); err != nil {
			log.Warn("database close failed", slog.Any("err", err))
		}
	}()

	loc, err := time.LoadLocation(cfg.Booking.Timezone)
	if err != nil {
		log.Error("invalid booking timezone", slog.String("timezone", cfg.Booking.Timezone), slog.Any("err", err))
		os.Exit(1)
	}
	policy, err := appointments.ParseWritePolicy(cfg.Booking.WritePolicy)
	if err != nil {
		log.Error("invalid write policy", slog.Any("err", err))
		os.Exit(1)
	}

	// Repositories.
	appointmentRepo := postgres.NewAppointmentRepo(db)
	userRepo := postgres.NewUserRepo(db)
	contactRepo := postgres.NewContactRepo(db)
	chatRepo, err := dynamo.NewChatRepo(cloud.dynamo, cfg.DynamoDB.ChatTable)
	if err != nil {
		log.Error("chat repository failed", slog.Any("err", err))
		os.Exit(1)
	}

	pub, closePub := newPublisher(cfg, userRepo, log)
	defer closePub()

	// Services.
	authSvc, err := auth.NewService(userRepo, auth.Config{
		Secret:   cfg.Auth.JWTSecret,
		Issuer:   cfg.Auth.Issuer,
		TokenTTL: cfg.Auth.TokenTTL,
	})
	if err != nil {
		log.Error("auth service failed", slog.Any("err", err))
		os.Exit(1)
	}

	services := catalog.Default()
	apptSvc := appointments.NewService(appointmentRepo, loc)
	apptStore := appointments.NewStore(apptSvc, policy, pub, log)
	apptStore.Fetch(ctx, "")
	if err := apptStore.Err(); err != nil {
		log.Warn("appointment cache not primed", slog.Any("err", err))
	}

	bookings := booking.NewManager(services, apptStore, apptStore, booking.Config{
		Rules: slots.Rules{
			HorizonDays: cfg.Booking.HorizonDays,
			OpenHour:    cfg.Booking.OpenHour,
			CloseHour:   cfg.Booking.CloseHour,
			Step:        cfg.Booking.SlotStep,
			Location:    loc,
		},
		IdleTTL: cfg.Booking.SessionIdleTTL,
	}, log)

	hub := realtime.NewHub(log)
	chatSvc := chat.NewService(chatRepo, pub, log, chat.WithRealtime(hub))

	var mailer contact.Mailer
	if cfg.SMTP.Host != "" {
		m, err := contact.NewSMTPMailer(contact.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			To:       cfg.SMTP.To,
		})
		if err != nil {
			log.Error("smtp mailer failed", slog.Any("err", err))
			os.Exit(1)
		}
		mailer = m
	}
	contactSvc := contact.NewService(contactRepo, mailer, pub, log)

	podcasts, rotator, feedReady := newPodcasts(ctx, cfg, log)

	// Background work.
	go hub.Run(ctx)

	sched := scheduler.New(log)
	jobs := []scheduler.Job{
		{
			Name:    "appointments.refresh",
			Spec:    every(cfg.Booking.RefreshInterval),
			Timeout: cfg.HTTP.RequestTimeout,
			Run: func(ctx context.Context) error {
				apptStore.Refresh(ctx)
				return apptStore.Err()
			},
		},
		{
			Name: "booking.sweep",
			Spec: every(cfg.Booking.SweepInterval),
			Run: func(ctx context.Context) error {
				if n := bookings.Sweep(); n > 0 {
					log.Info("booking sessions expired", slog.Int("count", n))
				}
				return nil
			},
		},
	}
	for _, job := range jobs {
		if err := sched.Add(ctx, job); err != nil {
			log.Error("scheduler job failed", slog.String("job", job.Name), slog.Any("err", err))
			os.Exit(1)
		}
	}
	sched.Start()
	defer sched.Stop()

	if feedReady {
		if err := rotator.Start(ctx); err != nil {
			log.Error("podcast rotator failed", slog.Any("err", err))
			os.Exit(1)
		}
		defer rotator.Stop()
	} else {
		log.Warn("podcast feed not configured; rotation disabled")
	}

	health := grpcTransport.NewHealth(map[string]grpcTransport.Check{
		"postgres": func(ctx context.Context) error { return postgres.Ping(ctx, db) },
		"dynamodb": cloud.dynamoCheck(cfg.DynamoDB.ChatTable),
	}, 0, log)
	go health.Run(ctx)

	// Servers.
	handler := httpTransport.NewRouter(httpTransport.Deps{
		Auth:             authSvc,
		Services:         services,
		Booking:          bookings,
		Appointments:     apptSvc,
		AppointmentStore: apptStore,
		Chat:             chatSvc,
		Podcasts:         podcasts,
		PodcastRefresher: rotator,
		Contact:          contactSvc,
		Devices:          notify.NewDevices(userRepo),
		Realtime:         hub,
		Health:           health,
	}, httpTransport.Options{
		RequestTimeout: cfg.HTTP.RequestTimeout,
		CORSOrigins:    cfg.HTTP.CORSOrigins,
	}, log)

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	grpcServer := grpcTransport.NewServer(health, cfg.GRPC.RequestTimeout)

	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		log.Error("grpc listen failed", slog.Any("err", err), slog.String("grpc_addr", grpcAddr))
		os.Exit(1)
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- grpcServer.Serve(lis)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	log.Info("servers started", slog.String("http_addr", httpAddr), slog.String("grpc_addr", grpcAddr))

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Error("server stopped with error", slog.Any("err", err))
			stop()
			shutdownHTTP(log, httpServer, cfg.ShutdownTimeout)
			grpcTransport.Shutdown(log, grpcServer, cfg.ShutdownTimeout)
			os.Exit(1)
		}
	}

	shutdownHTTP(log, httpServer, cfg.ShutdownTimeout)
	grpcTransport.Shutdown(log, grpcServer, cfg.ShutdownTimeout)
}

func shutdownHTTP(log *slog.Logger, s *http.Server, timeout time.Duration) {
	log.Info("shutting down http server", slog.Duration("timeout", timeout))
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		log.Warn("http graceful shutdown timed out; forcing close", slog.Any("err", err))
		_ = s.Close()
		return
	}
	log.Info("http server stopped")
}

func every(d time.Duration) string {
	return fmt.Sprintf("@every %s", d)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
