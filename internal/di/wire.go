//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"CandlePull/pkg/config"
	"CandlePull/pkg/server"
)

var infraSet = wire.NewSet(
	ProvideKafkaProducer,
	ProvideLogger,
	ProvideMetrics,
	ProvideRedisClient,
	ProvideCache,
	ProvideCandleStore,
	ProvideEventPublisher,
)

var ingestSet = wire.NewSet(
	ProvideRegistry,
	ProvidePeriod,
	ProvideSourceFactory,
	ProvideFetcher,
	ProvidePlanner,
	ProvideIngestUseCase,
	ProvideCandlesUseCase,
)

// InitializeApp wires the long-running server.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		infraSet,
		ingestSet,
		ProvideUpdateJob,
		ProvideQueue,
		ProvideHandler,
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}

// InitializeIngest wires the use cases for one-shot commands.
func InitializeIngest(cfg *config.Config) (*Ingest, func(), error) {
	wire.Build(
		infraSet,
		ingestSet,
		ProvideIngest,
	)
	return nil, nil, nil
}
