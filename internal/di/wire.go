//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"SRLevels/pkg/config"
	"SRLevels/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// The returned cleanup closes the infrastructure clients.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Infrastructure
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,
		ProvideLimiter,
		ProvideClickHouseClient,
		ProvideRedisCache,
		ProvideCache,

		// Repositories
		ProvideResultStore,
		ProvideCandleStore,
		ProvideResultPublisher,

		// Services
		ProvideDetector,
		ProvideExchanges,
		ProvideHub,

		// Use cases
		ProvideResultProcessor,
		ProvidePipeline,
		ProvideCoordinator,
		ProvideScheduler,
		ProvideJobQueue,
		ProvideLevelsUseCase,
		ProvideKafkaConsumer,

		// Transport and application
		ProvideLevelsHandler,
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}
