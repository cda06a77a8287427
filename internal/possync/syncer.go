// Package possync reconciles Zettle products with the local service catalog.
package possync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"repairshop/internal/catalog"
	"repairshop/internal/zettle"
)

var (
	ErrInvalidDirection = errors.New("possync: invalid direction")
	ErrSyncInProgress   = errors.New("possync: sync already running")
)

// DefaultLeaseTTL bounds a run whose holder died without releasing the lease.
const DefaultLeaseTTL = 5 * time.Minute

// DefaultUnitName is sent as the product unit when none is configured.
const DefaultUnitName = "st"

type Direction string

const (
	FromZettle    Direction = "from_zettle"
	ToZettle      Direction = "to_zettle"
	Bidirectional Direction = "bidirectional"
)

// ParseDirection accepts the wire names. Empty means Bidirectional.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case "":
		return Bidirectional, nil
	case FromZettle, ToZettle, Bidirectional:
		return d, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDirection, s)
}

// Remote is the part of the Zettle client a sync needs.
type Remote interface {
	Authenticate(ctx context.Context) (zettle.StoredToken, error)
	GetProducts(ctx context.Context) ([]zettle.RemoteProduct, error)
	CreateProduct(ctx context.Context, in zettle.ProductInput) (zettle.RemoteProduct, error)
	UpdateProduct(ctx context.Context, uuid string, in zettle.ProductInput, etag string) (zettle.RemoteProduct, error)
}

type Options struct {
	Currency string
	UnitName string
	LeaseTTL time.Duration
}

type Syncer struct {
	remote   Remote
	services catalog.Repository
	lease    Locker
	cats     *CategoryMap
	opts     Options
	log      *zap.SugaredLogger
	now      func() time.Time
}

func NewSyncer(remote Remote, services catalog.Repository, lease Locker, cats *CategoryMap, opts Options, log *zap.SugaredLogger) *Syncer {
	if cats == nil {
		cats = NewCategoryMap(nil)
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = DefaultLeaseTTL
	}
	if opts.UnitName == "" {
		opts.UnitName = DefaultUnitName
	}
	return &Syncer{remote: remote, services: services, lease: lease, cats: cats, opts: opts, log: log, now: time.Now}
}

// Lease reports the running sync, or nil when idle.
func (s *Syncer) Lease(ctx context.Context) (*Lease, error) {
	return s.lease.Status(ctx, LeaseName)
}

// QuickSync pulls remote products into the catalog.
func (s *Syncer) QuickSync(ctx context.Context) (Report, error) {
	return s.Run(ctx, FromZettle)
}

// Run performs one sync under the sync lease. Authentication and configuration
// failures abort the run; item failures are reported in the result.
func (s *Syncer) Run(ctx context.Context, dir Direction) (rep Report, err error) {
	if _, err := ParseDirection(string(dir)); err != nil || dir == "" {
		return Report{}, fmt.Errorf("%w: %q", ErrInvalidDirection, dir)
	}
	holder := uuid.NewString()
	if _, err := s.lease.Acquire(ctx, LeaseName, holder, s.opts.LeaseTTL); err != nil {
		if errors.Is(err, ErrLeaseHeld) {
			runsTotal.WithLabelValues(string(dir), "rejected").Inc()
			return Report{}, ErrSyncInProgress
		}
		return Report{}, fmt.Errorf("possync: acquire lease: %w", err)
	}
	start := time.Now()
	stopHeartbeat := s.heartbeat(ctx, holder)
	defer func() {
		stopHeartbeat()
		if rerr := s.lease.Release(context.WithoutCancel(ctx), LeaseName, holder); rerr != nil {
			s.log.Warnw("sync lease release failed", "holder", holder, "err", rerr)
		}
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		runsTotal.WithLabelValues(string(dir), outcome).Inc()
		runDuration.WithLabelValues(string(dir)).Observe(time.Since(start).Seconds())
	}()

	s.log.Infow("zettle sync started", "direction", dir, "holder", holder)
	if _, err := s.remote.Authenticate(ctx); err != nil {
		s.log.Errorw("zettle sync aborted", "direction", dir, "err", err)
		return Report{}, fmt.Errorf("possync: authenticate: %w", err)
	}

	rep = Report{Direction: dir}
	if dir == FromZettle || dir == Bidirectional {
		res, err := s.pull(ctx)
		if err != nil {
			return Report{}, err
		}
		rep.FromZettle = &res
	}
	if dir == ToZettle || dir == Bidirectional {
		res, err := s.push(ctx)
		if err != nil {
			return Report{}, err
		}
		rep.ToZettle = &res
	}
	rep.total()
	s.log.Infow("zettle sync finished", "direction", dir,
		"fetched", rep.Total.Fetched, "created", rep.Total.Created, "updated", rep.Total.Updated,
		"skipped", rep.Total.Skipped, "errors", len(rep.Total.Errors), "took", time.Since(start).String())
	return rep, nil
}

// heartbeat renews the lease every third of its TTL until the returned stop func is called.
func (s *Syncer) heartbeat(ctx context.Context, holder string) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	every := s.opts.LeaseTTL / 3
	if every < time.Millisecond {
		every = time.Millisecond
	}
	go func() {
		defer close(done)
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
			if _, err := s.lease.Renew(ctx, LeaseName, holder, s.opts.LeaseTTL); err != nil {
				if ctx.Err() != nil {
					return
				}
				s.log.Warnw("sync lease renew failed", "holder", holder, "err", err)
				if errors.Is(err, ErrLeaseLost) {
					return
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (s *Syncer) pull(ctx context.Context) (SyncResult, error) {
	res := newSyncResult()
	products, err := s.remote.GetProducts(ctx)
	if err != nil {
		if zettle.IsAuthError(err) {
			return res, fmt.Errorf("possync: fetch products: %w", err)
		}
		res.Fail(fmt.Errorf("fetch products: %w", err))
		return res, nil
	}
	res.Fetched = len(products)

	local, err := s.services.List(ctx, catalog.Filter{})
	if err != nil {
		return res, fmt.Errorf("possync: list services: %w", err)
	}
	linked := make(map[string]catalog.Service, len(local))
	for _, svc := range local {
		if svc.ZettleProductID != nil {
			linked[*svc.ZettleProductID] = svc
		}
	}

	now := s.now().UTC()
	keep := make(map[string]struct{}, len(products))
	for _, p := range products {
		if p.UUID == "" {
			r := Result[zettle.RemoteProduct]{Item: p, Err: errors.New("product has no uuid")}
			record(s.log, &res, FromZettle, r, p.Name)
			continue
		}
		keep[p.UUID] = struct{}{}
		cur, ok := linked[p.UUID]
		record(s.log, &res, FromZettle, s.pullOne(ctx, p, cur, ok, now), p.Name)
	}

	n, err := s.services.DeactivateMissing(ctx, keep, now)
	if err != nil {
		res.Fail(fmt.Errorf("deactivate removed products: %w", err))
	} else if n > 0 {
		res.Updated += n
		s.log.Infow("zettle products removed remotely", "deactivated", n)
	}
	return res, nil
}

func (s *Syncer) pullOne(ctx context.Context, p zettle.RemoteProduct, cur catalog.Service, linked bool, now time.Time) Result[zettle.RemoteProduct] {
	id := p.UUID
	want := catalog.Service{
		Name:            strings.TrimSpace(p.Name),
		Description:     p.Description,
		Price:           ToMajor(p.Price.Amount),
		Category:        s.cats.Local(categoryName(p.Category)),
		IsActive:        true,
		ZettleProductID: &id,
		DurationMinutes: catalog.DefaultDurationMinutes,
	}
	if p.ETag != "" {
		etag := p.ETag
		want.ZettleEtag = &etag
	}
	action := Created
	if linked {
		// Local edits waiting to be pushed win while the remote is unchanged.
		if !cur.Reconciled() && cur.LastSyncedAt != nil && p.ETag != "" && sameETag(cur.ZettleEtag, want.ZettleEtag) {
			return Result[zettle.RemoteProduct]{Item: p, Action: Skipped}
		}
		want.ID = cur.ID
		want.DurationMinutes = cur.DurationMinutes
		if want.ZettleEtag == nil {
			want.ZettleEtag = cur.ZettleEtag
		}
		action = Updated
		if sameContent(cur, want) {
			action = Unchanged
		}
	}
	if _, err := s.services.SaveSynced(ctx, want, now); err != nil {
		return Result[zettle.RemoteProduct]{Item: p, Err: err}
	}
	return Result[zettle.RemoteProduct]{Item: p, Action: action}
}

func (s *Syncer) push(ctx context.Context) (SyncResult, error) {
	res := newSyncResult()
	active, err := s.services.List(ctx, catalog.Filter{ActiveOnly: true})
	if err != nil {
		return res, fmt.Errorf("possync: list services: %w", err)
	}
	pending := active[:0]
	for _, svc := range active {
		if !svc.Reconciled() {
			pending = append(pending, svc)
		}
	}
	res.Fetched = len(pending)
	if len(pending) == 0 {
		return res, nil
	}

	byUUID, byRef := map[string]zettle.RemoteProduct{}, map[string]zettle.RemoteProduct{}
	listed, err := s.remote.GetProducts(ctx)
	switch {
	case err != nil && zettle.IsAuthError(err):
		return res, fmt.Errorf("possync: fetch products: %w", err)
	case err != nil:
		s.log.Warnw("zettle listing unavailable, pushing without remote match", "err", err)
	}
	for _, p := range listed {
		byUUID[p.UUID] = p
		if p.ExternalReference != "" {
			byRef[p.ExternalReference] = p
		}
	}

	now := s.now().UTC()
	for _, svc := range pending {
		record(s.log, &res, ToZettle, s.pushOne(ctx, svc, byUUID, byRef, now), svc.Name)
	}
	return res, nil
}

func (s *Syncer) pushOne(ctx context.Context, svc catalog.Service, byUUID, byRef map[string]zettle.RemoteProduct, now time.Time) Result[catalog.Service] {
	in := zettle.ProductInput{
		Name:              svc.Name,
		Description:       svc.Description,
		Price:             zettle.Money{Amount: ToMinor(svc.Price), CurrencyID: s.opts.Currency},
		Category:          &zettle.Category{Name: s.cats.Remote(svc.Category)},
		UnitName:          s.opts.UnitName,
		ExternalReference: svc.ID,
	}

	var target, etag string
	if svc.ZettleProductID != nil {
		target = *svc.ZettleProductID
		if svc.ZettleEtag != nil {
			etag = *svc.ZettleEtag
		}
		if etag == "" {
			etag = byUUID[target].ETag
		}
	} else if p, ok := byRef[svc.ID]; ok {
		target, etag = p.UUID, p.ETag
	}

	var (
		out    zettle.RemoteProduct
		err    error
		action = Created
	)
	if target != "" {
		action = Updated
		out, err = s.remote.UpdateProduct(ctx, target, in, etag)
	} else {
		out, err = s.remote.CreateProduct(ctx, in)
	}
	if err != nil {
		return Result[catalog.Service]{Item: svc, Err: err}
	}

	id := out.UUID
	if id == "" {
		id = target
	}
	svc.ZettleProductID = &id
	svc.ZettleEtag = nil
	if out.ETag != "" {
		e := out.ETag
		svc.ZettleEtag = &e
	}
	saved, err := s.services.SaveSynced(ctx, svc, now)
	if err != nil {
		return Result[catalog.Service]{Item: svc, Err: fmt.Errorf("pushed as %s but not saved: %w", id, err)}
	}
	return Result[catalog.Service]{Item: saved, Action: action}
}

// record folds r into res and counts it.
func record[T any](log *zap.SugaredLogger, res *SyncResult, dir Direction, r Result[T], label string) {
	Add(res, r, label)
	if r.Err != nil {
		itemsTotal.WithLabelValues(string(dir), "error").Inc()
		log.Warnw("zettle sync item failed", "direction", dir, "item", label, "err", r.Err)
		return
	}
	itemsTotal.WithLabelValues(string(dir), string(r.Action)).Inc()
}

func categoryName(c *zettle.Category) string {
	if c == nil {
		return ""
	}
	return c.Name
}

func sameETag(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameContent(cur, want catalog.Service) bool {
	return cur.Name == want.Name &&
		cur.Description == want.Description &&
		ToMinor(cur.Price) == ToMinor(want.Price) &&
		cur.Category == want.Category &&
		cur.IsActive == want.IsActive &&
		sameETag(cur.ZettleEtag, want.ZettleEtag)
}
