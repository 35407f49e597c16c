// Package alertemit fans a ComplianceAlert out to webhook and bus transports
// (spec.md §4.12). Emission is fire-and-forget: transport failures are
// logged and never returned to the caller, so the ingestion engine and
// monitor can call it from any concurrent task without error handling.
package alertemit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Payload is the wire shape of every emitted event. Every payload carries a
// UTC RFC 3339 timestamp, a fixed source tag, and a unique ID a downstream
// consumer can use to dedupe redelivered webhook/bus events, mirroring the
// teacher's audit_store.go EntryID pattern. Fields is marshaled flat
// alongside id/timestamp/source/type rather than nested under a "data" key
// (spec.md §6's alert payload contract, e.g. `rss_update: {source_id,
// title, link, priority, type:"rss_update", timestamp, source}`).
type Payload struct {
	ID        string
	Timestamp time.Time
	Source    string
	Type      string
	Fields    map[string]any
}

// MarshalJSON flattens Fields into the same JSON object as id/timestamp/
// source/type.
func (p Payload) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Fields)+4)
	for k, v := range p.Fields {
		out[k] = v
	}
	out["id"] = p.ID
	out["timestamp"] = p.Timestamp
	out["source"] = p.Source
	out["type"] = p.Type
	return json.Marshal(out)
}

// UnmarshalJSON reverses MarshalJSON: id/timestamp/source/type are lifted
// into their named fields, everything else lands in Fields.
func (p *Payload) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["id"].(string); ok {
		p.ID = v
		delete(raw, "id")
	}
	if v, ok := raw["timestamp"].(string); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			p.Timestamp = t
		}
		delete(raw, "timestamp")
	}
	if v, ok := raw["source"].(string); ok {
		p.Source = v
		delete(raw, "source")
	}
	if v, ok := raw["type"].(string); ok {
		p.Type = v
		delete(raw, "type")
	}
	p.Fields = raw
	return nil
}

const source = "annex4parser"

// Handler receives every emitted payload, mirroring the teacher's
// append-then-notify handler-fanout pattern.
type Handler func(ctx context.Context, p Payload)

// Emitter dispatches alerts to a webhook endpoint and to any registered bus
// handlers (e.g. a log sink or an internal pub/sub). It is safe for
// concurrent use.
type Emitter struct {
	http       *http.Client
	webhookURL string
	log        *slog.Logger
	handlers   []Handler
}

// New builds an Emitter. webhookURL may be empty, in which case webhook
// dispatch is skipped and only bus handlers run.
func New(httpClient *http.Client, webhookURL string, log *slog.Logger) *Emitter {
	if log == nil {
		log = slog.Default()
	}
	return &Emitter{http: httpClient, webhookURL: webhookURL, log: log}
}

// AddHandler registers a bus handler invoked on every emitted payload.
func (e *Emitter) AddHandler(h Handler) {
	e.handlers = append(e.handlers, h)
}

// EmitRuleChanged reports a Rule whose diff severity crossed the alerting
// threshold (spec.md §4.11 step 10). The emitted type is "rule_changed" per
// the §6 alert payload contract, even though the ComplianceAlert alert_type
// enum elsewhere names the same event "rule_updated".
func (e *Emitter) EmitRuleChanged(ctx context.Context, ruleID int64, severity, regulationName, sectionCode, changeType string) {
	e.emit(ctx, "rule_changed", map[string]any{
		"rule_id":         ruleID,
		"severity":        severity,
		"regulation_name": regulationName,
		"section_code":    sectionCode,
		"change_type":     changeType,
	})
}

// EmitRssUpdate reports a new RSS feed item discovered by the Source
// monitor. priority defaults to "medium" when empty.
func (e *Emitter) EmitRssUpdate(ctx context.Context, sourceID, title, link, priority string) {
	if priority == "" {
		priority = "medium"
	}
	e.emit(ctx, "rss_update", map[string]any{
		"source_id": sourceID,
		"title":     title,
		"link":      link,
		"priority":  priority,
	})
}

// EmitRegulationUpdate reports a newly ingested Regulation version.
func (e *Emitter) EmitRegulationUpdate(ctx context.Context, regulationID int64, regulationName, version, sourceURL string, rulesCount int) {
	e.emit(ctx, "regulation_update", map[string]any{
		"regulation_id":   regulationID,
		"regulation_name": regulationName,
		"version":         version,
		"source_url":      sourceURL,
		"rules_count":     rulesCount,
	})
}

// EmitDocumentOutdated reports a Document whose compliance_status flipped to
// "outdated" because an upstream Rule changed (spec.md §4.11 step 9).
func (e *Emitter) EmitDocumentOutdated(ctx context.Context, documentID, ruleID int64, sectionCode string) {
	e.emit(ctx, "document_outdated", map[string]any{
		"document_id":  documentID,
		"rule_id":      ruleID,
		"section_code": sectionCode,
	})
}

func (e *Emitter) emit(ctx context.Context, eventType string, data map[string]any) {
	p := Payload{ID: uuid.New().String(), Timestamp: time.Now().UTC(), Source: source, Type: eventType, Fields: data}

	e.dispatchWebhook(ctx, p)
	e.dispatchBus(ctx, p)
}

func (e *Emitter) dispatchWebhook(ctx context.Context, p Payload) {
	if e.webhookURL == "" || e.http == nil {
		return
	}

	body, err := json.Marshal(p)
	if err != nil {
		e.log.Error("alertemit: marshal payload", "type", p.Type, "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.webhookURL, bytes.NewReader(body))
	if err != nil {
		e.log.Error("alertemit: build webhook request", "type", p.Type, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.http.Do(req)
	if err != nil {
		e.log.Error("alertemit: webhook dispatch failed", "type", p.Type, "error", err)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		e.log.Error("alertemit: webhook returned error status", "type", p.Type, "status", resp.StatusCode)
	}
}

func (e *Emitter) dispatchBus(ctx context.Context, p Payload) {
	for _, h := range e.handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.log.Error("alertemit: bus handler panicked", "type", p.Type, "recover", r)
				}
			}()
			h(ctx, p)
		}()
	}
}
