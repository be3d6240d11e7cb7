package notification

import (
	"context"
	"sort"
	"time"

	"transport-backend/internal/apperr"
	"transport-backend/internal/events"
	"transport-backend/internal/metrics"
	"transport-backend/internal/models"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Aggregator merges every source a role can see into one list.
type Aggregator struct {
	sources map[models.UserRole][]Source
	// routes maps a category to the source that persists its read and delete
	// state. Roles without routes use their only source.
	routes map[models.UserRole]map[models.NotificationCategory]Source
	cache  Cache
	log    *zap.Logger
	now    func() time.Time
}

type Result struct {
	Notifications []Item   `json:"notifications"`
	Unread        int      `json:"unread"`
	FailedSources []string `json:"failed_sources"`
}

type SourceFailure struct {
	Source string `json:"source"`
	Error  string `json:"error"`
}

type ClearResult struct {
	Cleared []string        `json:"cleared"`
	Failed  []SourceFailure `json:"failed"`
}

// NewAggregator wires the notification tables to the roles that read them.
func NewAggregator(db *gorm.DB, cache Cache, log *zap.Logger) *Aggregator {
	transport := NewTableSource(db, models.TableTransportRequestNotifications, false, false)
	vehicle := NewTableSource(db, models.TableSupplierVehicleNotifications, false, true)
	admin := NewTableSource(db, models.TableAdminNotifications, false, false)
	supplier := NewTableSource(db, models.TableSupplierNotifications, true, false)
	buyer := NewTableSource(db, models.TableBuyerNotifications, true, false)

	return NewAggregatorWithSources(
		map[models.UserRole][]Source{
			models.RoleAdmin:    {transport, vehicle, admin},
			models.RoleSupplier: {supplier},
			models.RoleBuyer:    {buyer},
		},
		map[models.UserRole]map[models.NotificationCategory]Source{
			models.RoleAdmin: {
				models.CategoryOrder:           transport,
				models.CategorySupplierOrder:   vehicle,
				models.CategoryOrderManagement: admin,
			},
		},
		cache, log,
	)
}

func NewAggregatorWithSources(
	sources map[models.UserRole][]Source,
	routes map[models.UserRole]map[models.NotificationCategory]Source,
	cache Cache,
	log *zap.Logger,
) *Aggregator {
	return &Aggregator{sources: sources, routes: routes, cache: cache, log: log, now: time.Now}
}

// Subscribe invalidates cached lists whenever a refresh event arrives.
func (a *Aggregator) Subscribe(bus events.Bus) (unsubscribe func()) {
	return bus.Subscribe(events.TopicNotificationsRefresh, func(ev events.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := a.cache.Invalidate(ctx, ev.Role, ev.RecipientID); err != nil {
			a.log.Warn("notification cache invalidation failed", zap.String("role", string(ev.Role)), zap.Error(err))
		}
	})
}

// FetchAll returns the merged, deduplicated list for k, newest first. A failed
// source is left out and reported; it never fails the whole call.
func (a *Aggregator) FetchAll(ctx context.Context, k Key) (*Result, error) {
	sources, ok := a.sources[k.Role]
	if !ok {
		return nil, apperr.Forbidden("role %s has no notifications", k.Role)
	}

	items, hit, err := a.cache.Get(ctx, k)
	if err != nil {
		a.log.Warn("notification cache read failed", zap.Error(err))
	}

	failed := []string{}
	if !hit {
		lists := make([][]Item, len(sources))
		errs := make([]error, len(sources))
		var g errgroup.Group
		for i, src := range sources {
			g.Go(func() error {
				lists[i], errs[i] = src.List(ctx, k.UserID)
				return nil
			})
		}
		_ = g.Wait()

		for i, err := range errs {
			if err != nil {
				a.sourceFailed(sources[i].Name(), err)
				failed = append(failed, sources[i].Name())
				lists[i] = nil
			}
		}

		items = Merge(lists, a.now())
		if len(failed) == 0 {
			if err := a.cache.Set(ctx, k, items); err != nil {
				a.log.Warn("notification cache write failed", zap.Error(err))
			}
		}
	}

	reads, err := a.cache.LocalReads(ctx, k)
	if err != nil {
		a.log.Warn("notification overlay read failed", zap.Error(err))
	}
	unread := 0
	for i := range items {
		if reads[overlayMember(items[i].Category, items[i].ID)] {
			items[i].IsRead = true
		}
		if !items[i].IsRead {
			unread++
		}
	}

	return &Result{Notifications: items, Unread: unread, FailedSources: failed}, nil
}

type dedupKey struct {
	id    uint
	title string
}

// Merge concatenates lists in order, keeps the first of any (id, title)
// duplicates and sorts by effective timestamp, newest first. An item's
// CreatedAt wins over its display Timestamp when set. Items whose timestamp
// cannot be parsed go last in their original order.
func Merge(lists [][]Item, now time.Time) []Item {
	seen := make(map[dedupKey]struct{})
	out := []Item{}
	for _, list := range lists {
		for _, it := range list {
			k := dedupKey{it.ID, it.Title}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, it)
		}
	}

	type keyed struct {
		at time.Time
		ok bool
	}
	keys := make([]keyed, len(out))
	for i := range out {
		if !out[i].CreatedAt.IsZero() {
			keys[i].at, keys[i].ok = out[i].CreatedAt, true
			continue
		}
		keys[i].at, keys[i].ok = ParseTimestamp(out[i].Timestamp, now)
	}
	idx := make([]int, len(out))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(x, y int) bool {
		kx, ky := keys[idx[x]], keys[idx[y]]
		if kx.ok != ky.ok {
			return kx.ok
		}
		return kx.ok && kx.at.After(ky.at)
	})

	sorted := make([]Item, len(out))
	for i, j := range idx {
		sorted[i] = out[j]
	}
	return sorted
}

func (a *Aggregator) route(role models.UserRole, category models.NotificationCategory) (Source, bool) {
	if routes, ok := a.routes[role]; ok {
		src, ok := routes[category]
		return src, ok
	}
	if srcs := a.sources[role]; len(srcs) == 1 {
		return srcs[0], true
	}
	return nil, false
}

// MarkRead persists the read flag in the source owning category. Categories
// with no owning source are only marked in the cache overlay.
func (a *Aggregator) MarkRead(ctx context.Context, k Key, id uint, category models.NotificationCategory) error {
	if _, ok := a.sources[k.Role]; !ok {
		return apperr.Forbidden("role %s has no notifications", k.Role)
	}
	src, ok := a.route(k.Role, category)
	if !ok {
		if err := a.cache.MarkLocalRead(ctx, k, category, id); err != nil {
			return apperr.Internal(err, "could not mark notification read")
		}
		return nil
	}
	if err := src.MarkRead(ctx, k.UserID, id); err != nil {
		return apperr.FromStore(err, "notification")
	}
	a.invalidate(ctx, k)
	return nil
}

func (a *Aggregator) Delete(ctx context.Context, k Key, id uint, category models.NotificationCategory) error {
	if _, ok := a.sources[k.Role]; !ok {
		return apperr.Forbidden("role %s has no notifications", k.Role)
	}
	src, ok := a.route(k.Role, category)
	if !ok {
		return apperr.Validation("notifications of category %q cannot be deleted", category)
	}
	if err := src.Delete(ctx, k.UserID, id); err != nil {
		return apperr.FromStore(err, "notification")
	}
	a.invalidate(ctx, k)
	return nil
}

// ClearAll clears every source of the role in parallel. The cache is dropped
// whatever the outcome; failures are returned per source.
func (a *Aggregator) ClearAll(ctx context.Context, k Key) (*ClearResult, error) {
	sources, ok := a.sources[k.Role]
	if !ok {
		return nil, apperr.Forbidden("role %s has no notifications", k.Role)
	}

	errs := make([]error, len(sources))
	var g errgroup.Group
	for i, src := range sources {
		g.Go(func() error {
			errs[i] = src.ClearAll(ctx, k.UserID)
			return nil
		})
	}
	_ = g.Wait()
	a.invalidate(ctx, k)

	res := &ClearResult{Cleared: []string{}, Failed: []SourceFailure{}}
	for i, err := range errs {
		name := sources[i].Name()
		if err != nil {
			a.sourceFailed(name, err)
			res.Failed = append(res.Failed, SourceFailure{Source: name, Error: err.Error()})
			continue
		}
		res.Cleared = append(res.Cleared, name)
	}
	return res, nil
}

// admin sources are shared, so every admin's cached list goes stale together
func (a *Aggregator) invalidate(ctx context.Context, k Key) {
	var user *uint
	if k.Role != models.RoleAdmin {
		user = &k.UserID
	}
	if err := a.cache.Invalidate(ctx, k.Role, user); err != nil {
		a.log.Warn("notification cache invalidation failed", zap.Error(err))
	}
}

func (a *Aggregator) sourceFailed(name string, err error) {
	metrics.NotificationSourceFailures.WithLabelValues(name).Inc()
	a.log.Warn("notification source failed", zap.String("source", name), zap.Error(err))
}
