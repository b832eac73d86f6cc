// Package like implements the optimistic like-toggle reconciliation
// protocol: client intent flips instantly, a single convergence loop per
// entity drives the authority to the last intended state, and rejections
// roll the optimistic update back.
package like

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/jaxzhang-svg/render-arena-sub000/internal/domain"
	"github.com/jaxzhang-svg/render-arena-sub000/internal/observability"
)

// NoticeFunc raises a transient user-facing notice.
type NoticeFunc func(message string)

// entry is the per-entity intent/confirmed pair. When reconciling is false,
// either desired == confirmed or a convergence loop is about to be
// scheduled; the flag is an exclusion latch, at most one loop per entity.
type entry struct {
	desired     bool
	confirmed   bool
	reconciling bool
	count       int64
}

// Reconciler converges optimistic like state against an external authority.
// State is session-scoped and never persisted; it is created lazily on
// first toggle and superseded freely by the next.
type Reconciler struct {
	authority domain.LikeAuthority
	notify    NoticeFunc

	mu      sync.Mutex
	entries map[string]*entry
	wg      sync.WaitGroup
}

// NewReconciler creates a reconciler. notify may be nil.
func NewReconciler(authority domain.LikeAuthority, notify NoticeFunc) *Reconciler {
	if notify == nil {
		notify = func(string) {}
	}
	return &Reconciler{
		authority: authority,
		notify:    notify,
		entries:   make(map[string]*entry),
	}
}

// Seed installs the authority-known state for an entity, as delivered with
// a listing. Overwrites any local state.
func (r *Reconciler) Seed(entityID string, liked bool, count int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entityID] = &entry{desired: liked, confirmed: liked, count: count}
}

// State returns the entity's current optimistic state and counter.
func (r *Reconciler) State(entityID string) (liked bool, count int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[entityID]; ok {
		return e.desired, e.count
	}
	return false, 0
}

// Toggle flips the desired state and the visible counter immediately,
// regardless of any in-flight reconciliation, then ensures a convergence
// loop is running. Returns the new optimistic state.
func (r *Reconciler) Toggle(ctx context.Context, entityID string) (liked bool, count int64) {
	r.mu.Lock()
	e, ok := r.entries[entityID]
	if !ok {
		e = &entry{}
		r.entries[entityID] = e
	}

	e.desired = !e.desired
	if e.desired {
		e.count++
	} else {
		e.count--
	}

	liked, count = e.desired, e.count
	launch := !e.reconciling && e.desired != e.confirmed
	if launch {
		e.reconciling = true
	}
	r.mu.Unlock()

	if launch {
		r.wg.Add(1)
		go r.converge(context.WithoutCancel(ctx), entityID, e)
	}
	return liked, count
}

// Wait blocks until all in-flight convergence loops finish.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}

// converge repeatedly asserts the absolute target state (desired at the
// time each request is issued, never a relative toggle) until the authority
// confirms it. Re-checking desired after every round trip covers the user
// toggling again mid-flight without needing a request queue.
func (r *Reconciler) converge(ctx context.Context, entityID string, e *entry) {
	defer r.wg.Done()
	logger := observability.FromContext(ctx).With(zap.String("entity_id", entityID))

	for {
		r.mu.Lock()
		target := e.desired
		if target == e.confirmed {
			e.reconciling = false
			r.mu.Unlock()
			return
		}
		r.mu.Unlock()

		result, err := r.authority.Apply(ctx, entityID, target)
		if err != nil {
			r.rollback(e, err, logger)
			return
		}

		r.mu.Lock()
		e.confirmed = result.Liked
		if e.desired == e.confirmed {
			// Settled: the authority's counter is authoritative now.
			e.count = result.Count
			e.reconciling = false
			r.mu.Unlock()
			return
		}
		r.mu.Unlock()
		// Intent moved while the request was in flight; loop again.
	}
}

// rollback reverts desired to the last confirmed state and reverses the
// optimistic counter adjustment. The loop does not retry; the next user
// toggle restarts it.
func (r *Reconciler) rollback(e *entry, err error, logger *zap.Logger) {
	r.mu.Lock()
	if e.desired != e.confirmed {
		e.desired = e.confirmed
		if e.confirmed {
			e.count++
		} else {
			e.count--
		}
	}
	e.reconciling = false
	r.mu.Unlock()

	if errors.Is(err, domain.ErrNotAuthorized) {
		logger.Info("like rejected, rolled back")
		r.notify("Log in to like this post")
		return
	}

	logger.Warn("like reconciliation failed, rolled back", zap.Error(err))
	r.notify("Could not save your like, please try again")
}
