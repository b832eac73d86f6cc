package main

import (
	"context"
	"fmt"
	"log"

	"go.uber.org/dig"

	"github.com/jaxzhang-svg/render-arena-sub000/internal/arena"
	"github.com/jaxzhang-svg/render-arena-sub000/internal/config"
	"github.com/jaxzhang-svg/render-arena-sub000/internal/domain"
	"github.com/jaxzhang-svg/render-arena-sub000/internal/httpserver"
	"github.com/jaxzhang-svg/render-arena-sub000/internal/httpserver/middleware"
	"github.com/jaxzhang-svg/render-arena-sub000/internal/observability"
	"github.com/jaxzhang-svg/render-arena-sub000/internal/provider/echo"
	openaiprovider "github.com/jaxzhang-svg/render-arena-sub000/internal/provider/openai"
	"github.com/jaxzhang-svg/render-arena-sub000/internal/provider/registry"
	redisstore "github.com/jaxzhang-svg/render-arena-sub000/internal/store/redis"
)

func main() {
	container := buildContainer()

	err := container.Invoke(func(server *httpserver.Server) {
		if err := server.Start(); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}
}

func buildContainer() *dig.Container {
	container := dig.New()

	// Configuration
	if err := container.Provide(config.Load); err != nil {
		log.Fatalf("Failed to provide config: %v", err)
	}
	if err := container.Provide(config.ParseDependenciesConfig); err != nil {
		log.Fatalf("Failed to provide config dependencies: %v", err)
	}

	// Observability
	if err := container.Provide(observability.InitLogger); err != nil {
		log.Fatalf("Failed to provide logger: %v", err)
	}
	if err := container.Provide(observability.NewEventBus); err != nil {
		log.Fatalf("Failed to provide event bus: %v", err)
	}

	// Provider Registry
	if err := container.Provide(func() domain.ProviderRegistry {
		return registry.NewRegistry()
	}); err != nil {
		log.Fatalf("Failed to provide registry: %v", err)
	}

	// Register the completion provider. Falls back to the offline echo
	// provider when no upstream API key is configured, so local development
	// works without credentials.
	if err := container.Invoke(func(reg domain.ProviderRegistry, cfg *openaiprovider.Config) error {
		ctx := context.Background()

		if cfg.APIKey == "" {
			observability.FromContext(ctx).Warn("no completion API key configured, using echo provider")
			if err := reg.Register(ctx, echo.NewProvider()); err != nil {
				return fmt.Errorf("failed to register echo provider: %w", err)
			}
			return nil
		}

		provider, err := openaiprovider.NewProvider(*cfg)
		if err != nil {
			return fmt.Errorf("failed to create completion provider: %w", err)
		}
		if err := reg.Register(ctx, provider); err != nil {
			return fmt.Errorf("failed to register completion provider: %w", err)
		}
		return nil
	}); err != nil {
		log.Fatalf("Failed to register providers: %v", err)
	}

	// Storage
	if err := container.Provide(redisstore.NewClient); err != nil {
		log.Fatalf("Failed to provide redis client: %v", err)
	}
	if err := container.Provide(redisstore.NewStore); err != nil {
		log.Fatalf("Failed to provide store: %v", err)
	}
	if err := container.Provide(func(s *redisstore.Store) domain.RunStore { return s }); err != nil {
		log.Fatalf("Failed to provide run store: %v", err)
	}
	if err := container.Provide(func(s *redisstore.Store) domain.LikeStore { return s }); err != nil {
		log.Fatalf("Failed to provide like store: %v", err)
	}
	if err := container.Provide(func(s *redisstore.Store) domain.QuotaKeeper { return s }); err != nil {
		log.Fatalf("Failed to provide quota keeper: %v", err)
	}

	// Arena
	if err := container.Provide(arena.NewOrchestrator); err != nil {
		log.Fatalf("Failed to provide orchestrator: %v", err)
	}

	// HTTP Layer
	if err := container.Provide(middleware.BuildMiddlewareChain); err != nil {
		log.Fatalf("Failed to provide middleware chain: %v", err)
	}
	if err := container.Provide(httpserver.NewHandler); err != nil {
		log.Fatalf("Failed to provide HTTP handler: %v", err)
	}
	if err := container.Provide(httpserver.NewServer); err != nil {
		log.Fatalf("Failed to provide HTTP server: %v", err)
	}

	return container
}
