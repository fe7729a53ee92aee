// pkg/mask/rule.go
package mask

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind identifies a masking transform. The set is closed: configuration
// naming anything else is rejected at load time instead of silently passing
// values through.
type Kind int

const (
	// KindNone leaves the column value unchanged.
	KindNone Kind = iota
	// KindHash replaces the value with a salted deterministic hash.
	KindHash
	// KindRedact replaces the value with a placeholder or a mask-character run.
	KindRedact
	// KindPreserveFormat substitutes digits while keeping every non-digit
	// character in place.
	KindPreserveFormat
	// KindTokenize replaces the value with a stable token from the vault.
	KindTokenize
)

// String returns the canonical configuration name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindHash:
		return "hash"
	case KindRedact:
		return "redact"
	case KindPreserveFormat:
		return "preserve-format"
	case KindTokenize:
		return "tokenize"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// ParseKind maps a configured rule name to its Kind. The legacy spellings
// from the Python era remain accepted.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return KindNone, nil
	case "hash", "deterministic_hash":
		return KindHash, nil
	case "redact", "redaction":
		return KindRedact, nil
	case "preserve-format", "preserve_format", "preserve_phone_format":
		return KindPreserveFormat, nil
	case "tokenize":
		return KindTokenize, nil
	default:
		return KindNone, fmt.Errorf("unknown masking rule kind %q", s)
	}
}

// Rule is one column's masking rule: a kind plus its parameters.
type Rule struct {
	Kind Kind

	// Char is the fill character for length-preserving redaction.
	Char string

	// KeepLength makes redaction emit one mask character per input
	// character instead of the fixed placeholder.
	KeepLength bool
}

// RuleSet maps column names to rules for one table. Columns absent from the
// set are never touched.
type RuleSet map[string]Rule

// UnmarshalJSON accepts either a bare kind name ("hash") or a parameterized
// object ({"kind": "redact", "keep_length": true, "char": "#"}).
func (r *Rule) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		kind, err := ParseKind(name)
		if err != nil {
			return err
		}
		*r = Rule{Kind: kind}
		return nil
	}

	var raw struct {
		Kind       string `json:"kind"`
		Char       string `json:"char"`
		KeepLength bool   `json:"keep_length"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("masking rule must be a kind name or an object: %w", err)
	}

	kind, err := ParseKind(raw.Kind)
	if err != nil {
		return err
	}

	*r = Rule{Kind: kind, Char: raw.Char, KeepLength: raw.KeepLength}
	return nil
}
