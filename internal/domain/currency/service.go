package currency

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"tradeledger/internal/core/apperror"
	"tradeledger/internal/core/id"
	"tradeledger/internal/core/types"
	"tradeledger/pkg/logger"
)

// Service is the Currency Conversion Service.
type Service struct {
	repo  Repository
	cache Cache
	clock func() time.Time
}

// NewService creates a conversion service. cache may be nil.
func NewService(repo Repository, cache Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		clock: time.Now,
	}
}

// Rate resolves the rate converting from into to, effective at date.
//
// The direct pair wins; otherwise the inverse pair is inverted; otherwise
// the result is a CONFIGURATION_ERROR. There is no implicit 1.0 between
// different currencies.
func (s *Service) Rate(ctx context.Context, from, to string, date time.Time) (Quote, error) {
	from, to = Normalize(from), Normalize(to)
	if err := checkPair(from, to); err != nil {
		return Quote{}, err
	}
	date = day(date)

	if from == to {
		return Quote{From: from, To: to, Rate: decimal.NewFromInt(1), EffectiveDate: date}, nil
	}

	if s.cache != nil {
		q, ok, err := s.cache.Get(ctx, from, to, date)
		if err != nil {
			logger.Warn(ctx, "rate cache read failed", "from", from, "to", to, "error", err)
		} else if ok {
			return q, nil
		}
	}

	q, err := s.lookup(ctx, from, to, date)
	if err != nil {
		return Quote{}, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, date, q); err != nil {
			logger.Warn(ctx, "rate cache write failed", "from", from, "to", to, "error", err)
		}
	}
	return q, nil
}

func (s *Service) lookup(ctx context.Context, from, to string, date time.Time) (Quote, error) {
	direct, err := s.repo.Latest(ctx, from, to, date)
	switch {
	case err == nil:
		return Quote{From: from, To: to, Rate: direct.Rate, EffectiveDate: direct.EffectiveDate}, nil
	case !apperror.IsNotFound(err):
		return Quote{}, err
	}

	inverse, err := s.repo.Latest(ctx, to, from, date)
	switch {
	case err == nil:
		if !inverse.Rate.IsPositive() {
			return Quote{}, apperror.NewConfiguration("exchange rate must be positive").
				WithDetail("from", to).
				WithDetail("to", from).
				WithDetail("effective_date", inverse.EffectiveDate.Format(time.DateOnly))
		}
		return Quote{
			From:          from,
			To:            to,
			Rate:          types.Invert(inverse.Rate),
			EffectiveDate: inverse.EffectiveDate,
			Inverted:      true,
		}, nil
	case !apperror.IsNotFound(err):
		return Quote{}, err
	}

	return Quote{}, apperror.NewConfiguration("no exchange rate configured").
		WithDetail("from", from).
		WithDetail("to", to).
		WithDetail("date", date.Format(time.DateOnly))
}

// Convert converts amount from one currency into another at date and
// rounds the result to cents.
func (s *Service) Convert(ctx context.Context, amount types.Money, from, to string, date time.Time) (types.Money, Quote, error) {
	q, err := s.Rate(ctx, from, to, date)
	if err != nil {
		return types.Zero(), Quote{}, err
	}
	return types.Convert(amount, q.Rate), q, nil
}

// UpsertRate stores a rate row and drops cached quotes of the pair.
func (s *Service) UpsertRate(ctx context.Context, rate ExchangeRate) (ExchangeRate, error) {
	rate.Source, rate.Target = Normalize(rate.Source), Normalize(rate.Target)
	rate.EffectiveDate = day(rate.EffectiveDate)
	if err := rate.Validate(); err != nil {
		return ExchangeRate{}, err
	}
	if id.IsNil(rate.ID) {
		rate.ID = id.New()
	}
	if rate.CreatedAt.IsZero() {
		rate.CreatedAt = s.clock().UTC()
	}

	if err := s.repo.Upsert(ctx, rate); err != nil {
		return ExchangeRate{}, err
	}

	if s.cache != nil {
		if err := s.cache.InvalidatePair(ctx, rate.Source, rate.Target); err != nil {
			logger.Warn(ctx, "rate cache invalidation failed", "source", rate.Source, "target", rate.Target, "error", err)
		}
	}

	logger.Info(ctx, "exchange rate stored",
		"source", rate.Source,
		"target", rate.Target,
		"rate", rate.Rate,
		"effective_date", rate.EffectiveDate.Format(time.DateOnly))
	return rate, nil
}

// ListRates lists rate rows.
func (s *Service) ListRates(ctx context.Context, filter ListFilter) ([]ExchangeRate, error) {
	filter.Source, filter.Target = Normalize(filter.Source), Normalize(filter.Target)
	return s.repo.List(ctx, filter)
}

func checkPair(from, to string) error {
	var v apperror.Violations
	if !ValidCode(from) {
		v.Addf("from", "invalid currency code %q", from)
	}
	if !ValidCode(to) {
		v.Addf("to", "invalid currency code %q", to)
	}
	return v.Err("invalid currency pair")
}
