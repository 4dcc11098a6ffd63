//go:build wireinject
// +build wireinject

package main

import (
	"github.com/amaumene/tubenest/internal/api"
	"github.com/amaumene/tubenest/internal/config"
	"github.com/amaumene/tubenest/internal/controllers"
	"github.com/amaumene/tubenest/internal/metrics"
	"github.com/amaumene/tubenest/internal/scanner"
	"github.com/amaumene/tubenest/internal/services/youtube"
	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"
)

func initializeApp() (*App, func(), error) {
	wire.Build(
		config.Load,
		provideLogger,
		provideStore,
		provideRegistry,
		wire.Bind(new(prometheus.Registerer), new(*prometheus.Registry)),
		wire.Bind(new(prometheus.Gatherer), new(*prometheus.Registry)),
		metrics.New,
		provideTracerProvider,
		provideIgnoreList,
		provideThumbnailCache,
		wire.Bind(new(scanner.ThumbnailResolver), new(*scanner.ThumbnailCache)),
		scanner.New,
		youtube.NewClient,
		wire.Bind(new(controllers.RemoteCatalog), new(*youtube.Client)),
		provideCatalogOptions,
		controllers.NewCatalogController,
		provideRefreshOptions,
		controllers.NewRefreshController,
		controllers.NewSyncController,
		api.NewServer,
		provideScheduler,
		wire.Struct(new(App), "*"),
	)
	return nil, nil, nil
}
