package moderation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	nerrors "github.com/iamwavecut/ngmod/internal/errors"
	"github.com/iamwavecut/ngmod/internal/expiring"
)

const (
	defaultInviteTTL         = 10 * time.Minute
	defaultInviteNegativeTTL = time.Minute
	inviteLookupsPerSecond   = 5
)

type InviteFetcher interface {
	Invite(ctx context.Context, code string, withCounts bool) (*Invite, error)
}

// InviteResolver resolves invite codes with caching. Concurrent lookups of one code
// share a single request; unknown codes are remembered for a shorter time.
type InviteResolver struct {
	fetcher  InviteFetcher
	found    *expiring.Map[string, *Invite]
	missing  *expiring.Map[string, struct{}]
	group    singleflight.Group
	limiter  *rate.Limiter
	now      func() time.Time
	blockMu  sync.Mutex
	blockEnd time.Time
}

func NewInviteResolver(fetcher InviteFetcher, ttl, negativeTTL time.Duration) *InviteResolver {
	if ttl <= 0 {
		ttl = defaultInviteTTL
	}
	if negativeTTL <= 0 {
		negativeTTL = defaultInviteNegativeTTL
	}
	return &InviteResolver{
		fetcher: fetcher,
		found:   expiring.New[string, *Invite](ttl),
		missing: expiring.New[string, struct{}](negativeTTL),
		limiter: rate.NewLimiter(rate.Limit(inviteLookupsPerSecond), inviteLookupsPerSecond),
		now:     time.Now,
	}
}

func (r *InviteResolver) getLogEntry() *log.Entry {
	return log.WithField("context", "invites")
}

// Resolve returns the invite behind code, or nil when it does not exist.
// While the platform asks to back off, lookups fail fast with ErrRateLimited.
func (r *InviteResolver) Resolve(ctx context.Context, code string) (*Invite, error) {
	if invite, ok := r.found.Get(code); ok {
		return invite, nil
	}
	if r.missing.Has(code) {
		return nil, nil
	}
	if wait := r.blockedFor(); wait > 0 {
		return nil, &nerrors.RateLimitError{RetryAfter: wait}
	}

	res, err, _ := r.group.Do(code, func() (any, error) {
		if invite, ok := r.found.Get(code); ok {
			return invite, nil
		}
		if r.missing.Has(code) {
			return (*Invite)(nil), nil
		}
		ctx := context.WithoutCancel(ctx)
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait invite limiter: %w", err)
		}
		invite, err := r.fetcher.Invite(ctx, code, false)
		switch {
		case err == nil:
			r.found.Put(code, invite)
			return invite, nil
		case errors.Is(err, nerrors.ErrNotFound):
			r.missing.Put(code, struct{}{})
			return (*Invite)(nil), nil
		default:
			if retry := nerrors.RetryAfter(err); retry > 0 {
				r.block(retry)
			}
			return nil, fmt.Errorf("fetch invite %s: %w", code, err)
		}
	})
	if err != nil {
		return nil, err
	}
	return res.(*Invite), nil
}

// Forget drops cached results for code.
func (r *InviteResolver) Forget(code string) {
	r.found.Delete(code)
	r.missing.Delete(code)
}

func (r *InviteResolver) block(retryAfter time.Duration) {
	r.blockMu.Lock()
	defer r.blockMu.Unlock()
	if end := r.now().Add(retryAfter); end.After(r.blockEnd) {
		r.blockEnd = end
	}
	r.getLogEntry().WithField("retry_after", retryAfter).Warn("invite lookups rate limited")
}

func (r *InviteResolver) blockedFor() time.Duration {
	r.blockMu.Lock()
	defer r.blockMu.Unlock()
	return r.blockEnd.Sub(r.now())
}
