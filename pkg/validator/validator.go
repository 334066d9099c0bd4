package validator

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/iamgideonidoko/beacon/pkg/event"
)

//go:embed schema/*.json
var schemaFiles embed.FS

const (
	schemaBase  = "https://beacon.local/schema/"
	eventSchema = schemaBase + "event.schema.json"
	batchSchema = schemaBase + "batch.schema.json"
)

var (
	ErrEmptyBody     = errors.New("request body is empty")
	ErrBatchTooLarge = errors.New("batch exceeds maximum size")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type Validator struct {
	errors []ValidationError
}

func New() *Validator {
	return &Validator{
		errors: make([]ValidationError, 0),
	}
}

func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}

func (v *Validator) IsValid() bool {
	return len(v.errors) == 0
}

func (v *Validator) ErrorMap() map[string]string {
	result := make(map[string]string)
	for _, err := range v.errors {
		result[err.Field] = err.Message
	}
	return result
}

// Schemas holds the compiled wire schemas.
type Schemas struct {
	event *jsonschema.Schema
	batch *jsonschema.Schema
}

func CompileSchemas() (*Schemas, error) {
	compiler := jsonschema.NewCompiler()
	for _, name := range []string{"event.schema.json", "batch.schema.json"} {
		data, err := schemaFiles.ReadFile("schema/" + name)
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", name, err)
		}
		if err := compiler.AddResource(schemaBase+name, bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", name, err)
		}
	}

	eventCompiled, err := compiler.Compile(eventSchema)
	if err != nil {
		return nil, fmt.Errorf("compile event schema: %w", err)
	}
	batchCompiled, err := compiler.Compile(batchSchema)
	if err != nil {
		return nil, fmt.Errorf("compile batch schema: %w", err)
	}
	return &Schemas{event: eventCompiled, batch: batchCompiled}, nil
}

// ParseEnvelope validates a request body against the wire schemas and
// decodes it. A body without a "batch" field is treated as a single
// event.
func (s *Schemas) ParseEnvelope(body []byte, maxBatch int) (event.Batch, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return event.Batch{}, ErrEmptyBody
	}

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	var instance any
	if err := decoder.Decode(&instance); err != nil {
		return event.Batch{}, fmt.Errorf("invalid JSON: %w", err)
	}

	object, ok := instance.(map[string]any)
	if !ok {
		return event.Batch{}, errors.New("body must be a JSON object")
	}

	var batch event.Batch
	if _, isBatch := object["batch"]; isBatch {
		if err := s.batch.Validate(instance); err != nil {
			return event.Batch{}, schemaError(err)
		}
		if err := json.Unmarshal(body, &batch); err != nil {
			return event.Batch{}, fmt.Errorf("decode batch: %w", err)
		}
	} else {
		if err := s.event.Validate(instance); err != nil {
			return event.Batch{}, schemaError(err)
		}
		var single event.Event
		if err := json.Unmarshal(body, &single); err != nil {
			return event.Batch{}, fmt.Errorf("decode event: %w", err)
		}
		batch = event.Batch{Batch: []event.Event{single}, BatchSize: 1}
	}

	if maxBatch > 0 && len(batch.Batch) > maxBatch {
		return event.Batch{}, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(batch.Batch), maxBatch)
	}
	return batch, nil
}

// schemaError flattens a schema failure into one line per leaf cause.
func schemaError(err error) error {
	var validationErr *jsonschema.ValidationError
	if !errors.As(err, &validationErr) {
		return err
	}
	v := New()
	for _, leaf := range leaves(validationErr) {
		field := strings.TrimPrefix(leaf.InstanceLocation, "/")
		if field == "" {
			field = "body"
		}
		v.AddError(field, leaf.Message)
	}
	return fmt.Errorf("validation failed: %v", v.ErrorMap())
}

func leaves(err *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(err.Causes) == 0 {
		return []*jsonschema.ValidationError{err}
	}
	var out []*jsonschema.ValidationError
	for _, cause := range err.Causes {
		out = append(out, leaves(cause)...)
	}
	return out
}

// ValidateEvent applies the checks a schema cannot express. now is the
// collector's receive time.
func ValidateEvent(ev event.Event, now time.Time, maxSkew time.Duration) error {
	v := New()

	if SanitizeString(ev.Type) != ev.Type {
		v.AddError("type", "contains control characters")
	}

	occurred := time.UnixMilli(ev.Timestamp)
	if maxSkew > 0 && occurred.After(now.Add(maxSkew)) {
		v.AddError("timestamp", "too far in the future")
	}

	if ev.QueuedAt != 0 && ev.QueuedAt < ev.Timestamp {
		v.AddError("queued_at", "before timestamp")
	}

	if !v.IsValid() {
		return fmt.Errorf("validation failed: %v", v.ErrorMap())
	}
	return nil
}

func SanitizeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	var result strings.Builder
	for _, r := range s {
		if r >= 32 || r == '\n' || r == '\t' {
			result.WriteRune(r)
		}
	}
	return result.String()
}
