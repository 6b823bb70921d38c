package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"goa.design/agenttrace/sanitize"
	"goa.design/agenttrace/telemetry"
	"goa.design/agenttrace/trace"
)

type (
	// HandoffOption configures a recorded handoff.
	HandoffOption func(*handoffOptions)

	handoffOptions struct {
		note   string
		schema []byte
	}
)

// WithValidationNote attaches a free-form validation annotation to the
// handoff.
func WithValidationNote(note string) HandoffOption {
	return func(o *handoffOptions) { o.note = note }
}

// WithPayloadSchema validates the handoff payload against the given JSON
// Schema document and records the outcome as the handoff's validation
// annotation. Validation is diagnostic: a failing payload annotates the
// handoff, it does not reject it.
func WithPayloadSchema(schemaJSON []byte) HandoffOption {
	return func(o *handoffOptions) { o.schema = schemaJSON }
}

// RecordHandoff records a transfer of control or data between two named
// agents on the given run and returns the generated handoff identifier.
// The payload is sanitized like invocation inputs. Recording fails with
// trace.ErrRunNotFound for an unknown run and trace.ErrRunFinalized for a
// finalized one; a created handoff itself always has Success set.
func (r *Registry) RecordHandoff(ctx context.Context, runID, from, to string, payload any, opts ...HandoffOption) (string, error) {
	state, err := r.lookup(runID)
	if err != nil {
		return "", err
	}

	var options handoffOptions
	for _, opt := range opts {
		opt(&options)
	}
	validation := options.note
	if len(options.schema) > 0 {
		outcome := validatePayload(payload, options.schema)
		if validation != "" {
			validation = strings.Join([]string{validation, outcome}, "; ")
		} else {
			validation = outcome
		}
	}

	state.mu.Lock()
	if state.run.Finalized() {
		state.mu.Unlock()
		return "", fmt.Errorf("handoff %s->%s on run %q: %w", from, to, runID, trace.ErrRunFinalized)
	}
	h := &trace.Handoff{
		HandoffID:  uuid.NewString(),
		Sequence:   r.seq.Next(),
		RunID:      runID,
		From:       from,
		To:         to,
		Timestamp:  r.now(),
		Payload:    sanitize.Capture(payload),
		Validation: validation,
		Success:    true,
	}
	state.run.Handoffs = append(state.run.Handoffs, h)
	snapshot := *h
	state.mu.Unlock()

	telemetry.Emit(ctx, r.logger, "handoff_recorded", func() error {
		return r.sink.HandoffRecorded(ctx, &snapshot)
	})
	return h.HandoffID, nil
}

// validatePayload checks the payload against a JSON Schema and renders the
// outcome as an annotation string. Schema or payload problems are reported
// in the annotation rather than returned; handoff recording is best-effort
// diagnostics and must not fail on a bad schema.
func validatePayload(payload any, schemaJSON []byte) string {
	var schemaDoc any
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return fmt.Sprintf("schema error: %v", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", schemaDoc); err != nil {
		return fmt.Sprintf("schema error: %v", err)
	}
	schema, err := c.Compile("schema.json")
	if err != nil {
		return fmt.Sprintf("schema error: %v", err)
	}

	// Normalize the payload through JSON so structs validate the same way
	// their serialized form will be stored.
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("payload not serializable: %v", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Sprintf("payload not serializable: %v", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Sprintf("schema violation: %v", err)
	}
	return "schema: ok"
}
