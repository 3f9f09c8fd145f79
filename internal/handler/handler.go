// Package handler is the remote end of the relay: it authenticates a request,
// applies the rate limit and runs the record operation it names.
package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/remitlab/sheetrelay/internal/auditlog"
	"github.com/remitlab/sheetrelay/internal/auth"
	"github.com/remitlab/sheetrelay/internal/id"
	"github.com/remitlab/sheetrelay/internal/logging"
	"github.com/remitlab/sheetrelay/internal/model"
	"github.com/remitlab/sheetrelay/internal/ratelimit"
	"github.com/remitlab/sheetrelay/internal/records"
	"github.com/remitlab/sheetrelay/internal/tables"
)

// Response statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Success messages.
const (
	MsgSaved   = "record saved"
	MsgDeleted = "record deleted"
)

// Audit actions.
const (
	ActionSave   = "save"
	ActionDelete = "delete"
	ActionRead   = "read"
)

// Response is the envelope returned for every write and for failed reads.
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func success(msg string) Response { return Response{Status: StatusSuccess, Message: msg} }

func failure(err error) Response { return Response{Status: StatusError, Message: err.Error()} }

// OK reports whether r is a success.
func (r Response) OK() bool { return r.Status == StatusSuccess }

// Handler wires the gate, limiter and record store together.
// It is safe for concurrent use.
type Handler struct {
	gate    *auth.Gate
	limiter *ratelimit.Limiter
	records *records.Service
	audit   *auditlog.Log
	now     func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithAudit records every request in l.
func WithAudit(l *auditlog.Log) Option {
	return func(h *Handler) { h.audit = l }
}

// WithClock replaces time.Now for audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// New creates a Handler.
func New(gate *auth.Gate, limiter *ratelimit.Limiter, recs *records.Service, opts ...Option) *Handler {
	h := &Handler{gate: gate, limiter: limiter, records: recs, now: time.Now}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Post handles a write. The body is decoded first, then the token is
// checked, then the rate limit, and only then is the workbook touched.
func (h *Handler) Post(ctx context.Context, body []byte) Response {
	ctx, reqID := withRequestID(ctx)
	log := logging.FromContext(ctx)
	ev := auditlog.Entry{RequestID: reqID, Action: ActionSave}

	req, err := model.DecodeRequest(body)
	if err != nil {
		return h.finish(ctx, ev, failure(err))
	}
	if del, ok := req.Payload.(*model.DeleteRequest); ok {
		ev.Action = ActionDelete
		ev.RecordID = del.ID.Text()
	}

	if err := h.gate.Check(ctx, req.AuthToken); err != nil {
		return h.finish(ctx, ev, failure(err))
	}
	if err := h.limiter.Allow(ctx); err != nil {
		var le *ratelimit.LimitError
		if !errors.As(err, &le) {
			log.Error("rate limiter failed", "error", err)
		}
		return h.finish(ctx, ev, failure(err))
	}

	var (
		schema tables.Schema
		msg    string
	)
	switch p := req.Payload.(type) {
	case *model.DeleteRequest:
		schema, err = h.records.Delete(ctx, p)
		msg = MsgDeleted
	case model.Record:
		ev.RecordID = p.RecordID().Text()
		schema, err = h.records.Append(ctx, p)
		msg = MsgSaved
	}
	ev.Table = schema.Name
	if err != nil {
		if !isDomainError(err) {
			log.Error("record operation failed", "action", ev.Action, "error", err)
		}
		return h.finish(ctx, ev, failure(err))
	}
	return h.finish(ctx, ev, success(msg))
}

// Get returns every stored record, Funnel rows first. Reads are neither
// authenticated nor rate limited.
func (h *Handler) Get(ctx context.Context) ([]model.Record, error) {
	ctx, reqID := withRequestID(ctx)
	ev := auditlog.Entry{RequestID: reqID, Action: ActionRead}

	recs, err := h.records.Collect(ctx)
	if err != nil {
		logging.FromContext(ctx).Error("read failed", "error", err)
		h.finish(ctx, ev, failure(err))
		return nil, err
	}
	h.finish(ctx, ev, success(fmt.Sprintf("read %d records", len(recs))))
	return recs, nil
}

func (h *Handler) finish(ctx context.Context, ev auditlog.Entry, resp Response) Response {
	logging.FromContext(ctx).Info("request handled",
		"action", ev.Action, "table", ev.Table, "status", resp.Status, "message", resp.Message)

	if h.audit != nil {
		ev.Timestamp = h.now()
		ev.Status = resp.Status
		ev.Message = resp.Message
		if err := h.audit.Append(ev); err != nil {
			logging.FromContext(ctx).Warn("failed to write audit log", "error", err)
		}
	}
	return resp
}

func withRequestID(ctx context.Context) (context.Context, string) {
	reqID := id.NewRequestID()
	return logging.NewContext(ctx, logging.FromContext(ctx).With("request_id", reqID)), reqID
}

func isDomainError(err error) bool {
	var (
		nf  *records.NotFoundError
		tnf *records.TableNotFoundError
	)
	return errors.As(err, &nf) || errors.As(err, &tnf)
}
