package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/fleetdesk/fleetrag/engine/domain"
	"github.com/fleetdesk/fleetrag/pkg/natsutil"
)

// QueryRequest asks a domain a question over NATS request/reply.
type QueryRequest struct {
	Domain string `json:"domain"`
	Query  string `json:"query"`
}

// serveQueries answers QueryRequests on subject with a ChatResponse. Bad
// requests come back as natsutil remote errors.
func serveQueries(nc *nats.Conn, subject string, domains map[string]domainService, a *api) (*nats.Subscription, error) {
	return natsutil.Reply(nc, subject, a.log, func(ctx context.Context, req QueryRequest) (ChatResponse, error) {
		d, ok := domains[strings.ToLower(req.Domain)]
		if !ok {
			return ChatResponse{}, fmt.Errorf("unknown domain: %s", req.Domain)
		}
		if err := domain.ValidateQuery(req.Query); err != nil {
			return ChatResponse{}, err
		}
		return a.answer(ctx, d, req.Query), nil
	})
}
