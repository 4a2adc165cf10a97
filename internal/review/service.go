// Package review implements the certification review workflows: the reviewer's certification
// list, the user and entitlement drill-down, remediation actions and campaign analytics.
package review

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/keyforge/accessreview/internal/cache"
	"github.com/keyforge/accessreview/internal/events"
	"github.com/keyforge/accessreview/internal/keyforge"
	"github.com/keyforge/accessreview/internal/logging"
)

const (
	defaultPageSize      = 10
	defaultFanoutWorkers = 8
	defaultClaimDelay    = time.Second

	// defaultDrilldownIdle is how long an untouched drill-down is kept.
	defaultDrilldownIdle = 30 * time.Minute
	defaultMaxDrilldowns = 1000
)

type Options struct {
	Cache  *cache.Store
	Bus    *events.Bus
	Audit  AuditRecorder
	Logger *slog.Logger

	CertPageSize        int
	UserPageSize        int
	EntitlementPageSize int
	FanoutWorkers       int

	// ClaimDelay is how long a claim takes to acknowledge. Zero uses one second.
	ClaimDelay time.Duration
	// DrilldownIdle is how long a drill-down survives without being used. Zero uses 30 minutes.
	DrilldownIdle time.Duration
	// MaxDrilldowns caps the drill-downs kept at once. Zero uses 1000.
	MaxDrilldowns int
	Now           func() time.Time
}

type Service struct {
	backend Backend
	cache   *cache.Store
	bus     *events.Bus
	audit   AuditRecorder
	log     *slog.Logger

	certPageSize        int
	userPageSize        int
	entitlementPageSize int
	workers             int
	claimDelay          time.Duration
	now                 func() time.Time

	mu            sync.Mutex
	shared        map[string][]CertificationRow
	drilldowns    *gocache.Cache
	maxDrilldowns int
}

func NewService(backend Backend, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	claimDelay := opts.ClaimDelay
	if claimDelay == 0 {
		claimDelay = defaultClaimDelay
	}
	store := opts.Cache
	if store == nil {
		store = cache.New(0)
	}
	idle := opts.DrilldownIdle
	if idle <= 0 {
		idle = defaultDrilldownIdle
	}
	return &Service{
		backend:             backend,
		cache:               store,
		bus:                 opts.Bus,
		audit:               opts.Audit,
		log:                 logging.Component(logger, "review"),
		certPageSize:        positiveOr(opts.CertPageSize, defaultPageSize),
		userPageSize:        positiveOr(opts.UserPageSize, defaultPageSize),
		entitlementPageSize: positiveOr(opts.EntitlementPageSize, defaultPageSize),
		workers:             positiveOr(opts.FanoutWorkers, defaultFanoutWorkers),
		claimDelay:          claimDelay,
		now:                 now,
		shared:              map[string][]CertificationRow{},
		drilldowns:          gocache.New(idle, idle/2),
		maxDrilldowns:       positiveOr(opts.MaxDrilldowns, defaultMaxDrilldowns),
	}
}

func positiveOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func (s *Service) Bus() *events.Bus {
	return s.bus
}

func certsKey(reviewerID string) string {
	return cache.Key("certs", reviewerID)
}

func certificationKey(reviewerID, certID string) string {
	return cache.Key("users", reviewerID, certID)
}

func (s *Service) certificationPage(ctx context.Context, reviewerID string, size, page int) (keyforge.Page[keyforge.RawCertification], error) {
	key := cache.Key(certsKey(reviewerID), strconv.Itoa(size), strconv.Itoa(page))
	return cache.Fetch(ctx, s.cache, key, func(ctx context.Context) (keyforge.Page[keyforge.RawCertification], error) {
		return s.backend.ListCertifications(ctx, reviewerID, size, page)
	})
}

func (s *Service) userPage(ctx context.Context, reviewerID, certID string, page int) (keyforge.Page[keyforge.RawTask], error) {
	key := cache.Key(certificationKey(reviewerID, certID), "page", strconv.Itoa(s.userPageSize), strconv.Itoa(page))
	return cache.Fetch(ctx, s.cache, key, func(ctx context.Context) (keyforge.Page[keyforge.RawTask], error) {
		return s.backend.CertificationDetails(ctx, reviewerID, certID, s.userPageSize, page)
	})
}

// invalidateCertification drops every cached read the certification's views depend on.
func (s *Service) invalidateCertification(reviewerID, certID string) {
	removed := s.cache.Invalidate(certificationKey(reviewerID, certID))
	removed += s.cache.Invalidate(certsKey(reviewerID))
	s.log.Debug("invalidated cached reads", "reviewer_id", reviewerID, "certification_id", certID, "entries", removed)
}
