// Package natsutil provides typed NATS publish/subscribe/request helpers
// with OpenTelemetry trace propagation.
package natsutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

// natsHeaderCarrier adapts nats.Msg headers for OTel TextMapCarrier.
type natsHeaderCarrier nats.Msg

func (c *natsHeaderCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *natsHeaderCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *natsHeaderCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

func newMsg(ctx context.Context, subject string, v any) (*nats.Msg, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("natsutil: encode %s: %w", subject, err)
	}
	msg := &nats.Msg{Subject: subject, Data: data}
	otel.GetTextMapPropagator().Inject(ctx, (*natsHeaderCarrier)(msg))
	return msg, nil
}

func extract(msg *nats.Msg) context.Context {
	return otel.GetTextMapPropagator().Extract(context.Background(), (*natsHeaderCarrier)(msg))
}

// Publish serializes v as JSON and publishes to the given subject.
// Trace context from ctx is injected into NATS message headers.
func Publish[T any](ctx context.Context, nc *nats.Conn, subject string, v T) error {
	msg, err := newMsg(ctx, subject, v)
	if err != nil {
		return err
	}
	return nc.PublishMsg(msg)
}

// Subscribe registers a handler that deserializes JSON messages of type T.
// Trace context is extracted from NATS message headers and passed to the
// handler. Malformed messages are logged to log (nil: slog.Default) and dropped.
func Subscribe[T any](nc *nats.Conn, subject string, log *slog.Logger, handler func(context.Context, T)) (*nats.Subscription, error) {
	if log == nil {
		log = slog.Default()
	}
	return nc.Subscribe(subject, func(msg *nats.Msg) {
		var v T
		if err := json.Unmarshal(msg.Data, &v); err != nil {
			log.Warn("natsutil: dropping malformed message", "subject", msg.Subject, "err", err)
			return
		}
		handler(extract(msg), v)
	})
}

// ErrorReply is the body sent back when a Reply handler fails.
type ErrorReply struct {
	Error string `json:"error"`
}

// RemoteError is returned by Request when the responder reported a failure.
type RemoteError struct {
	Subject string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("natsutil: %s: remote error: %s", e.Subject, e.Message)
}

// Reply registers a request handler. A handler error is sent back as an
// ErrorReply with the "Nats-Service-Error" header set.
func Reply[Req, Resp any](nc *nats.Conn, subject string, log *slog.Logger, handler func(context.Context, Req) (Resp, error)) (*nats.Subscription, error) {
	if log == nil {
		log = slog.Default()
	}
	return nc.Subscribe(subject, func(msg *nats.Msg) {
		if msg.Reply == "" {
			log.Warn("natsutil: request without reply subject", "subject", msg.Subject)
			return
		}
		var req Req
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			respondErr(msg, log, fmt.Errorf("decode request: %w", err))
			return
		}
		ctx := extract(msg)
		resp, err := handler(ctx, req)
		if err != nil {
			respondErr(msg, log, err)
			return
		}
		out, err := newMsg(ctx, msg.Reply, resp)
		if err != nil {
			respondErr(msg, log, err)
			return
		}
		if err := msg.RespondMsg(out); err != nil {
			log.Error("natsutil: respond", "subject", msg.Subject, "err", err)
		}
	})
}

const serviceErrorHeader = "Nats-Service-Error"

func respondErr(msg *nats.Msg, log *slog.Logger, err error) {
	data, _ := json.Marshal(ErrorReply{Error: err.Error()})
	out := &nats.Msg{Subject: msg.Reply, Data: data, Header: nats.Header{}}
	out.Header.Set(serviceErrorHeader, err.Error())
	if rerr := msg.RespondMsg(out); rerr != nil {
		log.Error("natsutil: respond", "subject", msg.Subject, "err", rerr)
	}
}

// Request sends a JSON-encoded request and decodes the response. The
// timeout is the ctx deadline, or nats.DefaultTimeout without one.
func Request[Req, Resp any](ctx context.Context, nc *nats.Conn, subject string, req Req) (Resp, error) {
	var zero Resp
	msg, err := newMsg(ctx, subject, req)
	if err != nil {
		return zero, err
	}
	timeout := nats.DefaultTimeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
		if timeout <= 0 {
			return zero, context.DeadlineExceeded
		}
	}
	resp, err := nc.RequestMsg(msg, timeout)
	if err != nil {
		if errors.Is(err, nats.ErrTimeout) && ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, fmt.Errorf("natsutil: request %s: %w", subject, err)
	}
	if resp.Header != nil {
		if e := resp.Header.Get(serviceErrorHeader); e != "" {
			return zero, &RemoteError{Subject: subject, Message: e}
		}
	}
	var result Resp
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return zero, fmt.Errorf("natsutil: decode reply %s: %w", subject, err)
	}
	return result, nil
}
