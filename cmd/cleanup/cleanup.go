package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/getsentry/hotspot/internal/logutil"
	"github.com/getsentry/hotspot/internal/storageprovider"
	"github.com/getsentry/hotspot/internal/storageutil"
)

const analysesPrefix = "analyses/"

type config struct {
	StorageURL    string `env:"HOTSPOT_STORAGE_URL" env-required:"true"`
	RetentionDays int    `env:"SENTRY_EVENT_RETENTION_DAYS" env-default:"90"`
	Schedule      string `env:"HOTSPOT_CLEANUP_SCHEDULE" env-default:"@daily"`
	LogLevel      string `env:"HOTSPOT_LOG_LEVEL" env-default:"info"`
	SentryDSN     string `env:"SENTRY_DSN"`
}

// cleanup deletes the analysis summaries stored more than retention ago.
func cleanup(ctx context.Context, h storageutil.ObjectHandler, retention time.Duration, now time.Time) (int, error) {
	return storageutil.DeleteOlderThan(ctx, h, analysesPrefix, now.Add(-retention))
}

func main() {
	var c config
	if err := cleanenv.ReadEnv(&c); err != nil {
		log.Fatal().Err(err).Msg("can't read configuration")
	}

	logutil.ConfigureLogger(c.LogLevel)

	err := sentry.Init(sentry.ClientOptions{Dsn: c.SentryDSN})
	if err != nil {
		log.Fatal().Err(err).Msg("can't initialize sentry")
	}

	ctx := context.Background()
	objects, err := storageprovider.Open(ctx, c.StorageURL)
	if err != nil {
		log.Fatal().Err(err).Msg("can't open storage")
	}
	defer objects.Close()

	retention := time.Hour * 24 * time.Duration(c.RetentionDays)

	cr := cron.New()
	_, err = cr.AddFunc(c.Schedule, func() {
		deleted, err := cleanup(ctx, objects, retention, time.Now())
		if err != nil {
			sentry.CaptureException(err)
			log.Error().Err(err).Msg("error cleaning up stored analyses")
			return
		}
		log.Info().Int("deleted", deleted).Msg("stored analyses cleaned up")
	})
	if err != nil {
		log.Fatal().Err(err).Msg("can't set up cron function")
	}

	exitSignal := make(chan os.Signal, 1)
	signal.Notify(exitSignal, os.Interrupt)

	go func() {
		<-exitSignal

		cr.Stop()
	}()

	cr.Run()
}
