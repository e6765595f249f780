package attestation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// FieldKind tells the pattern renderer how a JSON value is spelled.
type FieldKind string

const (
	KindString FieldKind = "string"
	KindNumber FieldKind = "number"
)

// Field selects one value from the target response.
type Field struct {
	// Name is the capture name exposed in the proof.
	Name string
	// Path is the JSON key in the target response. Defaults to Name.
	Path string
	Kind FieldKind
	// Redact hides the captured value from the proof's public transcript.
	Redact bool
}

func (f Field) key() string {
	if f.Path != "" {
		return f.Path
	}
	return f.Name
}

func (f Field) capture() string {
	key := regexp.QuoteMeta(f.key())
	switch f.Kind {
	case KindNumber:
		return fmt.Sprintf(`"%s":\s*(?<%s>\d+)`, key, f.Name)
	default:
		return fmt.Sprintf(`"%s":\s*"(?<%s>[^"]+)"`, key, f.Name)
	}
}

// Selector is a declarative description of which fields of a target response
// go into a proof. Fields must be listed in the order the target emits them.
type Selector struct {
	Fields []Field
}

var captureName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// PaymentIntentSelector captures exactly id, amount, currency and status from
// a Stripe payment intent.
func PaymentIntentSelector() Selector {
	return Selector{Fields: []Field{
		{Name: "id", Kind: KindString},
		{Name: "amount", Kind: KindNumber},
		{Name: "currency", Kind: KindString},
		{Name: "status", Kind: KindString},
	}}
}

// Pattern renders the selector as the single named-group regex the engine
// matches against the target response.
func (s Selector) Pattern() string {
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		parts[i] = f.capture()
	}
	return strings.Join(parts, `[\s\S]*?`)
}

// Redactions renders one regex per field marked Redact.
func (s Selector) Redactions() []string {
	var out []string
	for _, f := range s.Fields {
		if f.Redact {
			out = append(out, f.capture())
		}
	}
	return out
}

// Validate rejects selectors that would over- or under-disclose.
func (s Selector) Validate() error {
	if len(s.Fields) == 0 {
		return errors.New("selector has no fields")
	}
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if !captureName.MatchString(f.Name) {
			return fmt.Errorf("invalid field name %q", f.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate field name %q", f.Name)
		}
		seen[f.Name] = true
		if f.Kind != KindString && f.Kind != KindNumber {
			return fmt.Errorf("field %q: unknown kind %q", f.Name, f.Kind)
		}
		if strings.ContainsAny(f.key(), `"\`) {
			return fmt.Errorf("field %q: invalid path %q", f.Name, f.key())
		}
	}
	if _, err := regexp.Compile(s.Pattern()); err != nil {
		return fmt.Errorf("compile selector pattern: %w", err)
	}
	return nil
}
