package atrisk

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kfkafe/cafe-ops/internal/shared"
)

// RepositoryPort abstracts recipe/stock reads.
type RepositoryPort interface {
	Version(ctx context.Context) (int64, error)
	RecipeRows(ctx context.Context) ([]RecipeRow, error)
}

// MetricsPort records cache effectiveness.
type MetricsPort interface {
	ObserveAtRiskCache(hit bool)
}

// Service serves the at-risk projection.
type Service struct {
	repo    RepositoryPort
	cache   *Cache
	metrics MetricsPort
	logger  *slog.Logger
}

// NewService builds Service. cache and metrics may be nil.
func NewService(repo RepositoryPort, cache *Cache, metrics MetricsPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, metrics: metrics, logger: logger}
}

// AtRiskProducts returns products whose recipe contains a Low or Critical material.
func (s *Service) AtRiskProducts(ctx context.Context) ([]Product, error) {
	if s.cache == nil {
		return s.project(ctx)
	}
	// The version is read before the rows, so a projection is never stored
	// under a version newer than the data it was built from.
	version, err := s.repo.Version(ctx)
	if err != nil {
		err = shared.Persistence("atrisk: projection version", err)
		s.logger.Error("load projection version", slog.Any("error", err))
		return nil, err
	}
	key := s.cache.BuildKey(version, "products")
	products, err := singleflightProject(ctx, key, func(ctx context.Context) ([]Product, error) {
		var out []Product
		hit, err := s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
			return s.project(ctx)
		})
		if err != nil {
			return nil, err
		}
		if s.metrics != nil {
			s.metrics.ObserveAtRiskCache(hit)
		}
		return out, nil
	})
	if err != nil {
		if errors.Is(err, shared.ErrPersistence) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		s.logger.Warn("at-risk cache unavailable", slog.Any("error", err))
		return s.project(ctx)
	}
	return products, nil
}

// Warm recomputes the projection into the cache.
func (s *Service) Warm(ctx context.Context) (int, error) {
	products, err := s.AtRiskProducts(ctx)
	if err != nil {
		return 0, err
	}
	return len(products), nil
}

func (s *Service) project(ctx context.Context) ([]Product, error) {
	rows, err := s.repo.RecipeRows(ctx)
	if err != nil {
		err = shared.Persistence("atrisk: recipe rows", err)
		s.logger.Error("load recipe rows", slog.Any("error", err))
		return nil, err
	}
	return Project(rows), nil
}
