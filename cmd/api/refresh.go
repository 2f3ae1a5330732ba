package main

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/fleetdesk/fleetrag/engine/kb"
	"github.com/fleetdesk/fleetrag/pkg/natsutil"
)

// refreshTimeout bounds one knowledge base rebuild triggered over NATS.
const refreshTimeout = 10 * time.Minute

// refresher rebuilds domains and announces the results on NATS when a
// connection is configured.
type refresher struct {
	domains map[string]domainService
	nc      *nats.Conn
	subject string // where kb.RefreshedEvents are published
	log     *slog.Logger
}

// targets resolves name to the domains it covers, in name order.
func (r *refresher) targets(name string) ([]domainService, error) {
	if name != "" {
		d, ok := r.domains[name]
		if !ok {
			return nil, fmt.Errorf("unknown domain %q", name)
		}
		return []domainService{d}, nil
	}
	names := make([]string, 0, len(r.domains))
	for n := range r.domains {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]domainService, len(names))
	for i, n := range names {
		out[i] = r.domains[n]
	}
	return out, nil
}

// refresh rebuilds one domain and publishes the event.
func (r *refresher) refresh(ctx context.Context, d domainService, id string) kb.RefreshedEvent {
	if id == "" {
		id = uuid.NewString()
	}
	st, err := d.Refresh(ctx)
	ev := kb.RefreshedEvent{
		ID:      id,
		Domain:  d.Name(),
		Loaded:  st.Loaded,
		Records: st.Records,
		Chunks:  st.Chunks,
		At:      time.Now().UTC(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	r.announce(ctx, ev)
	return ev
}

func (r *refresher) announce(ctx context.Context, ev kb.RefreshedEvent) {
	if r.nc == nil {
		return
	}
	if err := natsutil.Publish(ctx, r.nc, r.subject, ev); err != nil {
		r.log.Warn("publish refreshed event failed", "subject", r.subject, "err", err)
	}
}

// all rebuilds every domain, one after another.
func (r *refresher) all(ctx context.Context) {
	ds, _ := r.targets("")
	for _, d := range ds {
		r.refresh(ctx, d, "")
	}
}

// subscribe handles kb.RefreshRequests on subject.
func (r *refresher) subscribe(subject string) (*nats.Subscription, error) {
	return natsutil.Subscribe(r.nc, subject, r.log, func(ctx context.Context, req kb.RefreshRequest) {
		ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
		defer cancel()

		ds, err := r.targets(req.Domain)
		if err != nil {
			r.log.Warn("refresh request rejected", "id", req.ID, "err", err)
			r.announce(ctx, kb.RefreshedEvent{ID: req.ID, Domain: req.Domain, Error: err.Error(), At: time.Now().UTC()})
			return
		}
		r.log.Info("refresh requested", "id", req.ID, "domain", req.Domain, "reason", req.Reason)
		for _, d := range ds {
			r.refresh(ctx, d, req.ID)
		}
	})
}
