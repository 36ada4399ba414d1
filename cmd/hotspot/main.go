package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CAFxX/httpcompression"
	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"

	"github.com/getsentry/hotspot/internal/document"
	"github.com/getsentry/hotspot/internal/httputil"
	"github.com/getsentry/hotspot/internal/logutil"
	"github.com/getsentry/hotspot/internal/publish"
	"github.com/getsentry/hotspot/internal/resolver"
	"github.com/getsentry/hotspot/internal/rpc"
	"github.com/getsentry/hotspot/internal/storageprovider"
	"github.com/getsentry/hotspot/internal/storageutil"
)

type environment struct {
	config ServiceConfig

	objects   storageutil.ObjectHandler
	publisher *publish.Publisher
	store     *document.Store
	registry  *rpc.Registry
}

var release string

func newEnvironment(ctx context.Context, config ServiceConfig) (*environment, error) {
	e := environment{config: config}

	paths, err := resolver.ParsePathMap(config.PathMap)
	if err != nil {
		return nil, err
	}
	storeConfig := document.Config{
		ResolverCacheSize: config.ResolverCacheSize,
		NumWorkers:        config.NumWorkers,
		Paths:             paths,
	}
	if config.StorageURL != "" {
		e.objects, err = storageprovider.Open(ctx, config.StorageURL)
		if err != nil {
			return nil, err
		}
		storeConfig.Objects = e.objects
	}
	if len(config.KafkaBrokers) > 0 {
		e.publisher = publish.NewPublisher(publish.NewKafkaWriter(config.KafkaBrokers), config.KafkaTopic)
		storeConfig.Publisher = e.publisher
	}

	e.store, err = document.NewStore(storeConfig)
	if err != nil {
		return nil, err
	}
	e.registry = rpc.NewRegistry()
	if err := rpc.NewService(e.store).Register(e.registry); err != nil {
		return nil, err
	}
	return &e, nil
}

func (e *environment) shutdown() {
	if e.objects != nil {
		if err := e.objects.Close(); err != nil {
			sentry.CaptureException(err)
		}
	}
	if e.publisher != nil {
		if err := e.publisher.Close(); err != nil {
			sentry.CaptureException(err)
		}
	}
	sentry.Flush(5 * time.Second)
}

func (e *environment) newRouter() (*httprouter.Router, error) {
	compress, err := httpcompression.DefaultAdapter()
	if err != nil {
		return nil, err
	}

	routes := []struct {
		method  string
		path    string
		handler http.HandlerFunc
	}{
		{http.MethodGet, "/health", e.getHealth},
		{http.MethodPost, "/rpc", e.postRPC},
	}

	router := httprouter.New()

	for _, route := range routes {
		handlerFunc := httputil.DecompressPayload(route.handler)
		handler := compress(handlerFunc)

		router.Handler(route.method, route.path, handler)
	}

	return router, nil
}

func main() {
	config, err := readConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("can't read configuration")
	}
	logutil.ConfigureLogger(config.LogLevel)

	err = sentry.Init(sentry.ClientOptions{
		Dsn:                   config.SentryDSN,
		EnableTracing:         true,
		Environment:           config.Environment,
		Release:               release,
		TracesSampleRate:      1.0,
		BeforeSendTransaction: httputil.SetHTTPStatusCodeTag,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("can't initialize sentry")
	}

	env, err := newEnvironment(context.Background(), config)
	if err != nil {
		log.Fatal().Err(err).Msg("error setting up environment")
	}

	router, err := env.newRouter()
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal().Err(err).Msg("error setting up the router")
	}

	server := http.Server{
		Addr:              ":" + config.Port,
		Handler:           sentryhttp.New(sentryhttp.Options{}).Handle(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	waitForShutdown := make(chan struct{})
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c

		cctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(cctx); err != nil {
			sentry.CaptureException(err)
			log.Err(err).Msg("error shutting down server")
		}

		close(waitForShutdown)
	}()

	log.Info().Str("port", config.Port).Msg("serving")
	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		sentry.CaptureException(err)
		log.Err(err).Msg("server failed")
	}

	<-waitForShutdown

	// Shutdown the rest of the environment after the HTTP connections are closed
	env.shutdown()
}
