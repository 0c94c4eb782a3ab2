package rate

import (
	"context"
	"time"

	"racestay-engine/pkg/db/option"
	"racestay-engine/pkg/errutil"
	"racestay-engine/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	rates repository.Repository[Rate]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,

		rates: repository.ProvideStore[Rate](p.DB),
	}
}

// PointsPerNight looks up the nightly rate for a region. There is no
// fallback: an unconfigured region is an error, never a free stay.
func (s *Service) PointsPerNight(ctx context.Context, region string) (int64, error) {
	rate, err := s.rates.FindOne(ctx, &Rate{Region: region})
	if err != nil {
		zap.L().Error("failed to query rate", zap.String("region", region), zap.Error(err))
		return 0, errutil.Internal("failed to query rate", err)
	}

	if rate == nil {
		return 0, ErrUnknownRegion{Region: region}
	}

	return rate.PointsPerNight, nil
}

// Nights counts the billable nights between two check dates. Partial
// days round up.
func Nights(checkIn, checkOut time.Time) int {
	hours := checkOut.Sub(checkIn).Hours()
	nights := int(hours / 24)
	if hours > float64(nights)*24 {
		nights++
	}
	return nights
}

// CalculateCost prices a stay: nights times the region's nightly rate.
// The result is frozen into the booking at request time and never
// recomputed against a later rate table.
func (s *Service) CalculateCost(ctx context.Context, region string, checkIn, checkOut time.Time) (int64, error) {
	if !checkIn.Before(checkOut) {
		return 0, ErrInvalidDateRange{Reason: "check-in must be before check-out"}
	}

	pointsPerNight, err := s.PointsPerNight(ctx, region)
	if err != nil {
		return 0, err
	}

	return int64(Nights(checkIn, checkOut)) * pointsPerNight, nil
}

// Upsert creates or replaces the rate for a region. Administrative only.
func (s *Service) Upsert(ctx context.Context, region string, pointsPerNight int64) (*Rate, error) {
	if region == "" {
		return nil, errutil.BadRequest("region is required", nil)
	}
	if pointsPerNight <= 0 {
		return nil, errutil.BadRequest("points_per_night must be positive", nil)
	}

	var out *Rate
	if err := s.db.Transaction(func(tx *gorm.DB) error {
		rates := s.rates.WithTrx(tx)

		existing, err := rates.FindOne(ctx, &Rate{Region: region}, option.WithLockingUpdate())
		if err != nil {
			return err
		}

		now := time.Now()
		if existing == nil {
			out = &Rate{
				ID:             s.node.Generate().String(),
				Region:         region,
				PointsPerNight: pointsPerNight,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			return rates.Create(ctx, out)
		}

		if err := rates.Update(ctx, existing.ID, map[string]any{
			"points_per_night": pointsPerNight,
			"updated_at":       now,
		}); err != nil {
			return err
		}

		existing.PointsPerNight = pointsPerNight
		existing.UpdatedAt = now
		out = existing
		return nil
	}); err != nil {
		zap.L().Error("failed to upsert rate", zap.String("region", region), zap.Error(err))
		return nil, errutil.Internal("failed to upsert rate", err)
	}

	return out, nil
}

// List returns all configured regions, alphabetically.
func (s *Service) List(ctx context.Context) ([]*Rate, error) {
	rates, err := s.rates.Find(ctx, &Rate{},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "region",
			OrderBy: "asc",
			Allow:   map[string]bool{"region": true},
		}),
	)
	if err != nil {
		zap.L().Error("failed to list rates", zap.Error(err))
		return nil, errutil.Internal("failed to list rates", err)
	}

	return rates, nil
}
