// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pipeline runs one chat turn from backend stream to rendered
// views.
//
// # Description
//
// A turn flows through the packages in a fixed order:
//
//	stream.Session -> payload.Detector -> textstruct.Classify (live)
//	    -> on done: links.Extract -> render.Dispatcher
//
// Streamed prose is passed on as it arrives, a recognized payload replaces
// it (Reset), and the final Result carries the structure, links and views.
//
// # Error Policy
//
// Only a stream failure is visible to the user, as Failed plus a single
// apology message. Malformed payloads degrade to prose, unknown components
// to placeholders, and renderer failures to fallback views.
package pipeline

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianChat/pkg/links"
	"github.com/AleutianAI/AleutianChat/pkg/observability"
	"github.com/AleutianAI/AleutianChat/pkg/payload"
	"github.com/AleutianAI/AleutianChat/pkg/render"
	"github.com/AleutianAI/AleutianChat/pkg/stream"
	"github.com/AleutianAI/AleutianChat/pkg/textstruct"
)

// Apology is shown once when a turn's stream fails.
const Apology = "Sorry, something went wrong while getting a reply. Please try again."

const tracerName = "github.com/AleutianAI/AleutianChat/pkg/pipeline"

// TurnRequest identifies a turn.
type TurnRequest struct {
	// TurnID is generated when empty.
	TurnID string
	Tenant string
}

// Result is the outcome of a turn.
type Result struct {
	TurnID string `json:"turn_id"`
	Tenant string `json:"tenant,omitempty"`

	// Prose is the final message text: the payload's text when a payload
	// was recognized, else the streamed text.
	Prose string `json:"prose"`

	Structure   textstruct.Content   `json:"structure,omitempty"`
	Payload     *payload.Payload     `json:"payload,omitempty"`
	Descriptors []payload.Descriptor `json:"descriptors,omitempty"`
	Links       []links.Item         `json:"links"`
	Views       []render.View        `json:"views"`

	Failed  bool   `json:"failed,omitempty"`
	Apology string `json:"apology,omitempty"`

	// Err is the stream failure behind Failed.
	Err error `json:"-"`
}

// Deps are the pipeline's collaborators.
type Deps struct {
	// Dispatcher renders the final elements. Required.
	Dispatcher *render.Dispatcher

	// Metrics may be nil.
	Metrics *observability.Metrics

	// Logger may be nil.
	Logger *slog.Logger

	// Tracer defaults to the global provider's tracer.
	Tracer trace.Tracer
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClassifier sets the structure classifier.
func WithClassifier(c textstruct.Classifier) Option {
	return func(p *Pipeline) { p.classifier = c }
}

// WithDetectorOptions sets the options of every turn's payload detector.
func WithDetectorOptions(opts ...payload.DetectorOption) Option {
	return func(p *Pipeline) { p.detectorOpts = append(p.detectorOpts, opts...) }
}

// Pipeline processes turns. It holds no per-turn state and is safe for
// concurrent use.
type Pipeline struct {
	dispatcher   *render.Dispatcher
	metrics      *observability.Metrics
	logger       *slog.Logger
	tracer       trace.Tracer
	classifier   textstruct.Classifier
	detectorOpts []payload.DetectorOption
}

// New creates a Pipeline.
func New(deps Deps, opts ...Option) *Pipeline {
	p := &Pipeline{
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		tracer:     deps.Tracer,
	}
	if p.dispatcher == nil {
		p.dispatcher = render.NewDispatcher(nil)
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	if p.tracer == nil {
		p.tracer = otel.Tracer(tracerName)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) newDetector() *payload.Detector {
	opts := append([]payload.DetectorOption{payload.WithLogger(p.logger)}, p.detectorOpts...)
	return payload.NewDetector(opts...)
}

// Process runs a complete, non-streamed message through the pipeline.
func (p *Pipeline) Process(ctx context.Context, req TurnRequest, message string) Result {
	req = withTurnID(req)
	start := time.Now()
	ctx, span := p.startSpan(ctx, "chat.process", req)
	defer span.End()

	det := p.newDetector()
	det.Feed(message)
	det.Finish()

	res := p.finish(ctx, req, det, nil)
	p.recordTurn(req, observability.StatusSuccess, start)
	return res
}

// Stream consumes a session and yields updates until the turn ends.
//
// # Description
//
// The last update is always UpdateDone or UpdateFailed, unless the
// consumer stops early. Stopping early (breaking out of the range loop)
// cancels the session.
//
// # Inputs
//
//   - ctx: bounds the turn; cancelling it cancels the session.
//   - req: turn identity.
//   - s: the backend session. Stream owns it from here on.
//
// # Outputs
//
//   - iter.Seq[Update]: single-use sequence of updates.
func (p *Pipeline) Stream(ctx context.Context, req TurnRequest, s *stream.Session) iter.Seq[Update] {
	return func(yield func(Update) bool) {
		req = withTurnID(req)
		start := time.Now()
		ctx, span := p.startSpan(ctx, "chat.turn", req)
		defer span.End()

		stop := context.AfterFunc(ctx, s.Cancel)
		defer stop()

		t := &turn{
			p:      p,
			det:    p.newDetector(),
			yield:  yield,
			start:  start,
			lastSh: textstruct.ShapeSimple,
		}

		for ev := range s.Events() {
			switch ev.Kind {
			case stream.EventChunk:
				if !t.chunk(ev.Frame) {
					s.Cancel()
					span.SetAttributes(attribute.Bool("chat.consumer_stopped", true))
					p.recordTurn(req, observability.StatusCancelled, start)
					return
				}

			case stream.EventDone:
				if !t.emitDetector(t.det.Finish()) {
					p.recordTurn(req, observability.StatusCancelled, start)
					return
				}
				res := p.finish(ctx, req, t.det, t.components)
				span.SetAttributes(attribute.Int("chat.frames", t.frames))
				p.recordTurn(req, observability.StatusSuccess, start)
				yield(Update{Kind: UpdateDone, Result: &res})
				return

			case stream.EventError:
				if errors.Is(ev.Err, stream.ErrCancelled) || ctx.Err() != nil {
					p.recordTurn(req, observability.StatusCancelled, start)
					return
				}
				res := p.Fail(req, t.det.Prose(), ev.Err)
				span.RecordError(ev.Err)
				span.SetStatus(codes.Error, "stream failed")
				p.recordTurn(req, observability.StatusError, start)
				yield(Update{Kind: UpdateFailed, Result: &res})
				return
			}
		}
		// Events ended without a terminal event: the session was cancelled.
		p.recordTurn(req, observability.StatusCancelled, start)
	}
}

// =============================================================================
// Turn state
// =============================================================================

// turn is the mutable state of one streamed turn.
type turn struct {
	p          *Pipeline
	det        *payload.Detector
	yield      func(Update) bool
	start      time.Time
	frames     int
	components []payload.Descriptor
	lastSh     textstruct.Shape
}

func (t *turn) chunk(f stream.Frame) bool {
	if t.frames == 0 && t.p.metrics != nil {
		t.p.metrics.RecordFirstChunk(time.Since(t.start))
	}
	t.frames++

	if len(f.Structured) > 0 {
		descs := payload.ParseComponents(f.Structured)
		if len(descs) > 0 {
			t.components = append(t.components, descs...)
			if !t.yield(Update{Kind: UpdatePayload, Payload: &payload.Payload{Descriptors: descs}}) {
				return false
			}
		}
	}
	if f.Text == "" {
		return true
	}
	return t.emitDetector(t.det.Feed(f.Text))
}

// emitDetector yields the prose, payload and structure updates for one
// detector result.
func (t *turn) emitDetector(r payload.Result) bool {
	if r.ProseDelta == "" && !r.Reset && r.Payload == nil {
		return true
	}
	if !t.yield(Update{Kind: UpdateProse, Delta: r.ProseDelta, Reset: r.Reset}) {
		return false
	}
	if r.Payload != nil {
		if !t.yield(Update{Kind: UpdatePayload, Payload: r.Payload}) {
			return false
		}
	}

	structure := t.p.classifier.Classify(t.det.Prose())
	shape := structure.Shape()
	if shape == textstruct.ShapeSimple && t.lastSh == textstruct.ShapeSimple {
		return true
	}
	t.lastSh = shape
	return t.yield(Update{Kind: UpdateStructure, Structure: structure})
}

// =============================================================================
// Finishing
// =============================================================================

// finish builds the Result for a completed message.
func (p *Pipeline) finish(ctx context.Context, req TurnRequest, det *payload.Detector, components []payload.Descriptor) Result {
	prose := det.Prose()
	res := Result{
		TurnID:  req.TurnID,
		Tenant:  req.Tenant,
		Prose:   prose,
		Payload: det.Payload(),
	}
	if res.Payload != nil {
		res.Descriptors = append(res.Descriptors, res.Payload.Descriptors...)
	} else if det.LastError() != nil {
		p.logger.Debug("message looked like a payload but did not parse",
			"turn_id", req.TurnID, "error", det.LastError())
		if p.metrics != nil {
			p.metrics.RecordMalformedPayload()
		}
	}
	res.Descriptors = append(res.Descriptors, components...)

	res.Structure = p.classifier.Classify(prose)
	res.Links = links.Extract(prose)
	res.Views = p.dispatcher.RenderAll(ctx, Elements(req.Tenant, res.Structure, res.Links, res.Descriptors))

	if p.metrics != nil {
		p.metrics.RecordShape(res.Structure.Shape().String())
		for _, d := range res.Descriptors {
			p.metrics.RecordPayload(d.ContentType())
		}
		counts := map[links.Kind]int{}
		for _, l := range res.Links {
			counts[l.Kind]++
		}
		for k, n := range counts {
			p.metrics.RecordLinks(k.String(), n)
		}
	}
	return res
}

// Fail builds the Result for a turn whose backend failed. The partial
// prose is kept but nothing is rendered besides the apology.
func (p *Pipeline) Fail(req TurnRequest, prose string, err error) Result {
	req = withTurnID(req)
	p.logger.Warn("chat turn failed", "turn_id", req.TurnID, "tenant", req.Tenant,
		"transport", stream.IsTransportError(err), "error", err)
	return Result{
		TurnID:  req.TurnID,
		Tenant:  req.Tenant,
		Prose:   prose,
		Links:   []links.Item{},
		Views:   []render.View{},
		Failed:  true,
		Apology: Apology,
		Err:     err,
	}
}

// Elements lists the renderable parts of a finished message in display
// order: the text structure, the links, then each component.
func Elements(tenant string, structure textstruct.Content, items []links.Item, descs []payload.Descriptor) []render.Element {
	var els []render.Element
	if structure != nil && !isEmptySimple(structure) {
		els = append(els, render.Element{
			Tenant:      tenant,
			ContentType: structure.Shape().String(),
			Data:        structure,
		})
	}
	if len(items) > 0 {
		els = append(els, render.Element{Tenant: tenant, ContentType: render.ContentTypeLinks, Data: items})
	}
	for _, d := range descs {
		els = append(els, render.Element{
			Tenant:      tenant,
			ContentType: d.ContentType(),
			Name:        d.ComponentType,
			Data:        d.Data,
		})
	}
	return els
}

func isEmptySimple(c textstruct.Content) bool {
	s, ok := c.(textstruct.Simple)
	return ok && s.Text == ""
}

func (p *Pipeline) startSpan(ctx context.Context, name string, req TurnRequest) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("chat.turn_id", req.TurnID),
		attribute.String("chat.tenant", req.Tenant),
	))
}

func (p *Pipeline) recordTurn(req TurnRequest, status observability.Status, start time.Time) {
	if p.metrics != nil {
		p.metrics.RecordTurn(req.Tenant, status, time.Since(start))
	}
}

func withTurnID(req TurnRequest) TurnRequest {
	if req.TurnID == "" {
		req.TurnID = uuid.NewString()
	}
	return req
}
