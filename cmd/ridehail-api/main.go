// README: Entry point; loads config, wires stores, brokers and services, serves HTTP until signalled.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	firebase "firebase.google.com/go/v4"
	"github.com/sirupsen/logrus"

	"ridehail/internal/config"
	"ridehail/internal/events"
	httptransport "ridehail/internal/http"
	"ridehail/internal/http/handlers"
	"ridehail/internal/infra"
	"ridehail/internal/logging"
	"ridehail/internal/maps"
	"ridehail/internal/modules/matching"
	"ridehail/internal/modules/presence"
	"ridehail/internal/modules/pricing"
	"ridehail/internal/modules/ride"
	"ridehail/internal/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := logging.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("ridehail-api stopped")
	}
	log.Info("ridehail-api stopped")
}

func run(ctx context.Context, cfg config.Config, log *logrus.Logger) error {
	var cleanup []func()
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}()

	var fbApp *firebase.App
	if cfg.Auth.Mode == "firebase" || cfg.FCM.Enabled {
		app, err := infra.NewFirebaseApp(ctx, cfg.Auth.FirebaseProjectID, cfg.Auth.FirebaseCredentialsFile)
		if err != nil {
			return err
		}
		fbApp = app
	}

	var verifier infra.TokenVerifier
	switch cfg.Auth.Mode {
	case "firebase":
		v, err := infra.NewFirebaseVerifier(ctx, fbApp)
		if err != nil {
			return err
		}
		verifier = v
	default:
		verifier = infra.NewJWTVerifier(cfg.Auth.JWTSecret)
	}

	// Ride store.
	var rideStore ride.Store
	switch cfg.Ride.Backend {
	case "postgres":
		pool, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			return err
		}
		cleanup = append(cleanup, pool.Close)
		rideStore = ride.NewPostgresStore(pool)
	case "mongo":
		client, db, err := infra.NewMongo(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return err
		}
		cleanup = append(cleanup, func() { _ = client.Disconnect(context.Background()) })
		store := ride.NewMongoStore(db)
		if err := store.EnsureIndexes(ctx); err != nil {
			return err
		}
		rideStore = store
	default:
		rideStore = ride.NewMemoryStore()
	}

	// Presence store.
	var presenceStore presence.Store
	switch cfg.Presence.Backend {
	case "redis":
		client, err := infra.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			return err
		}
		cleanup = append(cleanup, func() { _ = client.Close() })
		presenceStore = presence.NewRedisStore(client)
	default:
		presenceStore = presence.NewMemoryStore()
	}

	var rideEvents ride.Publisher = events.Nop{}
	if cfg.NATS.URL != "" {
		conn, err := infra.NewNATS(cfg.NATS.URL)
		if err != nil {
			return err
		}
		cleanup = append(cleanup, func() { _ = conn.Drain() })
		rideEvents = events.NewNATSPublisher(conn, "ridehail")
	}

	var presenceEvents presence.Publisher = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		pub := events.NewKafkaPublisher(events.NewKafkaWriter(cfg.Kafka.Brokers))
		cleanup = append(cleanup, func() { _ = pub.Close() })
		presenceEvents = pub
	}

	presenceSvc := presence.NewService(presenceStore, presenceEvents, cfg.Kafka.PresenceTopic, log.WithField("module", "presence"))
	rideSvc := ride.NewService(rideStore, rideEvents, log.WithField("module", "ride"))

	hub := notify.NewHub(log.WithField("module", "notify"))
	notifiers := notify.Multi{hub}
	if cfg.FCM.Enabled {
		client, err := infra.NewMessaging(ctx, fbApp)
		if err != nil {
			return err
		}
		notifiers = append(notifiers, notify.NewFCM(client, presenceSvc))
	}

	matchingSvc := matching.NewService(rideSvc, presenceSvc, notifiers, cfg.Matching.RadiusKm, log.WithField("module", "matching"))
	pricingSvc := pricing.NewService(nil)

	var places handlers.PlaceSearcher
	if cfg.Maps.APIKey != "" {
		svc, err := maps.NewPlacesService(cfg.Maps.APIKey)
		if err != nil {
			return err
		}
		places = svc
	} else {
		log.Warn("maps.api_key not set; places autocomplete disabled")
	}

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Verifier: verifier,
		Presence: presenceSvc,
		Rides:    rideSvc,
		Matching: matchingSvc,
		Pricing:  pricingSvc,
		Places:   places,
		Feed:     hub,
		RadiusKm: cfg.Matching.RadiusKm,
		Log:      log,
	})

	server := httptransport.NewServer(cfg.HTTP.Addr, router, cfg.HTTP.ShutdownTimeout, log)
	return server.Run(ctx)
}
