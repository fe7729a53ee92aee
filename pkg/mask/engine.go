// pkg/mask/engine.go
package mask

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/David-Botos/data-egress/pkg/model"
)

const (
	redactedPlaceholder = "REDACTED"
	defaultRedactChar   = "*"
)

// Engine applies per-value masking transforms. Every transform maps
// nil → nil. All transforms except Tokenize are pure functions of the value
// and the salt.
//
// Operational hazard: the salt must stay fixed for the lifetime of the
// masked data set. Rotating it changes every hash and every
// format-preserving substitution ever produced, breaking joins against
// previously masked rows.
type Engine struct {
	salt  string
	vault *Vault
}

// NewEngine creates a masking engine. vault may be nil when no tokenize
// rules are configured.
func NewEngine(salt string, vault *Vault) *Engine {
	return &Engine{salt: salt, vault: vault}
}

// HashString returns the deterministic hash of s: the input is trimmed and
// lowercased, concatenated with the salt, hashed with SHA-256, and rendered
// as lowercase hex. Equal-after-normalization inputs always hash equal.
func (e *Engine) HashString(s string) string {
	normalized := strings.ToLower(strings.TrimSpace(s))
	sum := sha256.Sum256([]byte(normalized + e.salt))
	return hex.EncodeToString(sum[:])
}

// hashValue applies HashString to an arbitrary scalar.
func (e *Engine) hashValue(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	return e.HashString(stringify(v))
}

// redactValue hides the value. With KeepLength it emits one mask character
// per input character; otherwise the fixed placeholder.
func redactValue(v interface{}, rule Rule) interface{} {
	if v == nil {
		return nil
	}

	if !rule.KeepLength {
		return redactedPlaceholder
	}

	ch := rule.Char
	if ch == "" {
		ch = defaultRedactChar
	}
	return strings.Repeat(ch, utf8.RuneCountInString(stringify(v)))
}

// PreserveFormat substitutes every digit with a hash-derived digit while
// keeping all non-digit characters (parentheses, spaces, separators) in
// their original positions. The replacement is deterministic for a given
// input and salt.
func (e *Engine) PreserveFormat(v interface{}) interface{} {
	if v == nil {
		return nil
	}

	s := stringify(v)

	var digits strings.Builder
	for _, r := range s {
		if isASCIIDigit(r) {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return s
	}

	// SHA-256 yields 64 hex digits; inputs with more digits than that wrap
	// around the hash rather than indexing past its end.
	hashed := e.HashString(digits.String())

	var out strings.Builder
	out.Grow(len(s))
	idx := 0
	for _, r := range s {
		if isASCIIDigit(r) {
			out.WriteRune(mappedDigit(hashed, idx))
			idx++
		} else {
			out.WriteRune(r)
		}
	}

	return out.String()
}

// Tokenize swaps the value for its stable vault token, creating one on
// first sight of the identifier.
func (e *Engine) Tokenize(ctx context.Context, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	if e.vault == nil {
		return nil, fmt.Errorf("tokenize rule configured but no token vault available")
	}

	token, err := e.vault.GetOrCreate(ctx, stringify(v))
	if err != nil {
		return nil, err
	}
	return token, nil
}

// MaskRow applies the rule set to a copy of row. Columns without a rule are
// left unchanged; the result always has exactly the input's columns.
func (e *Engine) MaskRow(ctx context.Context, row model.Row, rules RuleSet) (model.Row, error) {
	masked := make(model.Row, len(row))
	for col, v := range row {
		masked[col] = v
	}

	for col, rule := range rules {
		v, ok := masked[col]
		if !ok {
			continue
		}

		switch rule.Kind {
		case KindNone:
			// explicit pass-through
		case KindHash:
			masked[col] = e.hashValue(v)
		case KindRedact:
			masked[col] = redactValue(v, rule)
		case KindPreserveFormat:
			masked[col] = e.PreserveFormat(v)
		case KindTokenize:
			token, err := e.Tokenize(ctx, v)
			if err != nil {
				return nil, fmt.Errorf("tokenize column %s: %w", col, err)
			}
			masked[col] = token
		}
	}

	return masked, nil
}

// mappedDigit maps position idx of the hex string to a decimal digit rune.
func mappedDigit(hashed string, idx int) rune {
	c := hashed[idx%len(hashed)]
	return rune('0' + hexValue(c)%10)
}

func hexValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	default:
		return 0
	}
}

func isASCIIDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// stringify renders a scalar the way it participates in hashing, token
// lookup, and redaction length counting.
func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		return t.Format("2006-01-02 15:04:05.999999")
	default:
		return fmt.Sprintf("%v", t)
	}
}
