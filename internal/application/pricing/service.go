// Package pricing materializes the best-offer table and serves the
// storefront offer list.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Memoya/simfly.me-sub000/internal/domain/pricing"
	"github.com/Memoya/simfly.me-sub000/internal/domain/provider"
)

// ErrInvalidCountry is returned for malformed storefront country filters
var ErrInvalidCountry = errors.New("pricing: invalid country code")

// RecomputeResult summarizes one best-offer materialization.
type RecomputeResult struct {
	Candidates   int           `json:"candidates"`
	Offers       int           `json:"offers"`
	Removed      int64         `json:"removed"`
	UsedDefaults bool          `json:"usedDefaults"`
	ComputedAt   time.Time     `json:"computedAt"`
	Duration     time.Duration `json:"duration"`
}

// ServiceConfig contains the collaborators of Service
type ServiceConfig struct {
	Candidates     pricing.CandidateReader
	Offers         pricing.OfferRepository
	Settings       pricing.SettingsRepository
	Cache          pricing.OfferCache
	DefaultWeights pricing.ScoringWeights
	Logger         *zap.Logger
	Now            func() time.Time
}

// Service recomputes best offers and answers storefront reads.
type Service struct {
	candidates     pricing.CandidateReader
	offers         pricing.OfferRepository
	settings       pricing.SettingsRepository
	cache          pricing.OfferCache
	defaultWeights pricing.ScoringWeights
	logger         *zap.Logger
	now            func() time.Time

	recomputeMu sync.Mutex
}

// NewService creates a new pricing Service
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	weights := cfg.DefaultWeights
	if weights == (pricing.ScoringWeights{}) {
		weights = pricing.DefaultScoringWeights()
	}
	return &Service{
		candidates:     cfg.Candidates,
		offers:         cfg.Offers,
		settings:       cfg.Settings,
		cache:          cfg.Cache,
		defaultWeights: weights,
		logger:         logger.Named("pricing"),
		now:            now,
	}
}

// defaults returns the built-in settings with the configured weights
func (s *Service) defaults() pricing.Settings {
	d := pricing.DefaultSettings()
	d.Weights = s.defaultWeights
	return d
}

// LoadSettings returns the stored settings, or the defaults when the row is
// missing, unreadable or invalid. The second result reports the fallback.
func (s *Service) LoadSettings(ctx context.Context) (pricing.Settings, bool) {
	stored, err := s.settings.Get(ctx)
	switch {
	case errors.Is(err, pricing.ErrSettingsNotFound):
		s.logger.Info("no pricing settings stored, using defaults")
		return s.defaults(), true
	case err != nil:
		s.logger.Warn("failed to load pricing settings, using defaults", zap.Error(err))
		return s.defaults(), true
	}
	if err := stored.Validate(); err != nil {
		s.logger.Warn("stored pricing settings are invalid, using defaults", zap.Error(err))
		return s.defaults(), true
	}
	stored.Weights = s.defaultWeights
	return *stored, false
}

// Recompute rebuilds the best-offer table from the current fresh catalog.
// Running it twice over unchanged inputs yields the same table.
func (s *Service) Recompute(ctx context.Context) (*RecomputeResult, error) {
	if !s.recomputeMu.TryLock() {
		return nil, pricing.ErrRecomputeRunning
	}
	defer s.recomputeMu.Unlock()

	started := s.now()
	settings, usedDefaults := s.LoadSettings(ctx)

	candidates, err := s.candidates.FindPricingCandidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("load pricing candidates: %w", err)
	}

	offers := pricing.BuildBestOffers(candidates, settings, started)
	removed, err := s.offers.ReplaceAll(ctx, offers)
	if err != nil {
		return nil, fmt.Errorf("replace best offers: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.InvalidateAll(ctx); err != nil {
			s.logger.Warn("failed to invalidate offer cache", zap.Error(err))
		}
	}

	result := &RecomputeResult{
		Candidates:   len(candidates),
		Offers:       len(offers),
		Removed:      removed,
		UsedDefaults: usedDefaults,
		ComputedAt:   started,
		Duration:     s.now().Sub(started),
	}
	s.logger.Info("best offers recomputed",
		zap.Int("candidates", result.Candidates),
		zap.Int("offers", result.Offers),
		zap.Int64("removed", result.Removed),
		zap.Bool("used_defaults", usedDefaults),
	)
	return result, nil
}

// NormalizeCountry validates a storefront country filter
func NormalizeCountry(country string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(country))
	if code == provider.GlobalCountryCode {
		return code, nil
	}
	if len(code) != 2 || code[0] < 'A' || code[0] > 'Z' || code[1] < 'A' || code[1] > 'Z' {
		return "", fmt.Errorf("%w: %q", ErrInvalidCountry, country)
	}
	return code, nil
}

// ListOffersByCountry returns the public offers for one country, read
// through the offer cache. Cache failures degrade to a database read.
func (s *Service) ListOffersByCountry(ctx context.Context, country string) ([]pricing.PublicOffer, error) {
	code, err := NormalizeCountry(country)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, code)
		if err != nil {
			s.logger.Warn("offer cache read failed", zap.String("country", code), zap.Error(err))
		} else if ok {
			return cached, nil
		}
	}

	offers, err := s.offers.FindByCountry(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("load offers for %s: %w", code, err)
	}
	public := make([]pricing.PublicOffer, 0, len(offers))
	for _, o := range offers {
		public = append(public, o.Public())
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, code, public); err != nil {
			s.logger.Warn("offer cache write failed", zap.String("country", code), zap.Error(err))
		}
	}
	return public, nil
}

// ListAllOffers returns every best offer including cost and provider, for
// the admin API
func (s *Service) ListAllOffers(ctx context.Context) ([]pricing.BestOffer, error) {
	return s.offers.FindAll(ctx)
}

// GetSettings returns the effective pricing settings
func (s *Service) GetSettings(ctx context.Context) (*pricing.Settings, error) {
	settings, _ := s.LoadSettings(ctx)
	return &settings, nil
}

// UpdateSettings validates and stores new margins. Scoring weights always
// come from configuration. The best-offer table is not recomputed until the
// next Recompute.
func (s *Service) UpdateSettings(ctx context.Context, settings pricing.Settings) (*pricing.Settings, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	settings.Weights = s.defaultWeights
	settings.UpdatedAt = s.now()
	if err := s.settings.Save(ctx, &settings); err != nil {
		return nil, fmt.Errorf("save pricing settings: %w", err)
	}
	s.logger.Info("pricing settings updated",
		zap.String("margin_percent", settings.GlobalMarginPercent.String()),
		zap.Bool("auto_discount", settings.AutoDiscountEnabled),
	)
	return &settings, nil
}
