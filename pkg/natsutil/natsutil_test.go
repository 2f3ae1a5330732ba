package natsutil

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

func startTestNATS(t *testing.T) *nats.Conn {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Port: -1})
	if err != nil {
		t.Fatal(err)
	}
	srv.Start()
	if !srv.ReadyForConnections(3 * time.Second) {
		t.Fatal("nats not ready")
	}
	nc, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		nc.Close()
		srv.Shutdown()
	})
	return nc
}

type refresh struct {
	ID     string `json:"id"`
	Domain string `json:"domain"`
}

type refreshed struct {
	ID     string `json:"id"`
	Chunks int    `json:"chunks"`
}

func TestNatsHeaderCarrier(t *testing.T) {
	carrier := (*natsHeaderCarrier)(&nats.Msg{})
	if got := carrier.Get("missing"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
	if keys := carrier.Keys(); keys != nil {
		t.Fatalf("expected nil keys, got %v", keys)
	}

	carrier.Set("traceparent", "00-abc-def-01")
	carrier.Set("traceparent", "00-abc-def-02")
	if got := carrier.Get("traceparent"); got != "00-abc-def-02" {
		t.Fatalf("expected overwritten traceparent, got %q", got)
	}
	if keys := carrier.Keys(); len(keys) != 1 {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestPublishSubscribe(t *testing.T) {
	nc := startTestNATS(t)

	ch := make(chan refresh, 1)
	sub, err := Subscribe(nc, "fleetrag.refresh", nil, func(_ context.Context, r refresh) {
		ch <- r
	})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	if err := Publish(context.Background(), nc, "fleetrag.refresh", refresh{ID: "r1", Domain: "orders"}); err != nil {
		t.Fatal(err)
	}
	select {
	case r := <-ch:
		if r.ID != "r1" || r.Domain != "orders" {
			t.Fatalf("unexpected: %+v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout")
	}
}

func TestSubscribeDropsMalformed(t *testing.T) {
	nc := startTestNATS(t)

	called := make(chan struct{}, 1)
	sub, err := Subscribe(nc, "fleetrag.malformed", nil, func(context.Context, refresh) {
		called <- struct{}{}
	})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	nc.Publish("fleetrag.malformed", []byte("{bad"))
	nc.Flush()

	select {
	case <-called:
		t.Fatal("handler should not be called for malformed data")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPublishMarshalError(t *testing.T) {
	nc := startTestNATS(t)
	if err := Publish(context.Background(), nc, "fleetrag.err", make(chan int)); err == nil {
		t.Fatal("expected marshal error")
	}
}

func TestReplyRequest(t *testing.T) {
	nc := startTestNATS(t)

	sub, err := Reply(nc, "fleetrag.refresh.req", nil, func(_ context.Context, r refresh) (refreshed, error) {
		if r.Domain == "unknown" {
			return refreshed{}, errors.New("unknown domain")
		}
		return refreshed{ID: r.ID, Chunks: 12}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	ctx := context.Background()
	got, err := Request[refresh, refreshed](ctx, nc, "fleetrag.refresh.req", refresh{ID: "r2", Domain: "vehicles"})
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "r2" || got.Chunks != 12 {
		t.Fatalf("unexpected reply: %+v", got)
	}

	_, err = Request[refresh, refreshed](ctx, nc, "fleetrag.refresh.req", refresh{Domain: "unknown"})
	var re *RemoteError
	if !errors.As(err, &re) || re.Message != "unknown domain" {
		t.Fatalf("expected RemoteError, got %v", err)
	}
}

func TestReplyMalformedRequest(t *testing.T) {
	nc := startTestNATS(t)
	sub, err := Reply(nc, "fleetrag.strict", nil, func(context.Context, refresh) (refreshed, error) {
		return refreshed{}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	resp, err := nc.Request("fleetrag.strict", []byte("{bad"), 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	var body ErrorReply
	if err := json.Unmarshal(resp.Data, &body); err != nil || body.Error == "" {
		t.Fatalf("expected error reply, got %q (%v)", resp.Data, err)
	}
}

func TestRequestHonoursContextDeadline(t *testing.T) {
	nc := startTestNATS(t)

	// A subscriber that never answers keeps the request waiting.
	sub, err := nc.Subscribe("fleetrag.slow", func(*nats.Msg) {})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = Request[refresh, refreshed](ctx, nc, "fleetrag.slow", refresh{})
	if err == nil {
		t.Fatal("expected timeout")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("request ignored the context deadline: %v", time.Since(start))
	}
}

func TestRequestUnmarshalError(t *testing.T) {
	nc := startTestNATS(t)
	sub, err := nc.Subscribe("fleetrag.badjson", func(msg *nats.Msg) {
		msg.Respond([]byte("{invalid"))
	})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	if _, err := Request[refresh, refreshed](context.Background(), nc, "fleetrag.badjson", refresh{}); err == nil {
		t.Fatal("expected unmarshal error")
	}
}
