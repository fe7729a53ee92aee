// pkg/mask/rule_test.go
package mask

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		input string
		want  Kind
	}{
		{"hash", KindHash},
		{"deterministic_hash", KindHash},
		{"redact", KindRedact},
		{"redaction", KindRedact},
		{"preserve-format", KindPreserveFormat},
		{"preserve_format", KindPreserveFormat},
		{"preserve_phone_format", KindPreserveFormat},
		{"tokenize", KindTokenize},
		{"none", KindNone},
		{"", KindNone},
		{"  HASH  ", KindHash},
	}

	for _, tt := range tests {
		kind, err := ParseKind(tt.input)
		require.NoError(t, err, "input %q", tt.input)
		assert.Equal(t, tt.want, kind, "input %q", tt.input)
	}
}

func TestParseKindRejectsUnknown(t *testing.T) {
	_, err := ParseKind("rot13")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rot13")
}

func TestRuleUnmarshalBareString(t *testing.T) {
	var rs RuleSet
	err := json.Unmarshal([]byte(`{"email": "hash", "ssn": "redact"}`), &rs)
	require.NoError(t, err)

	assert.Equal(t, Rule{Kind: KindHash}, rs["email"])
	assert.Equal(t, Rule{Kind: KindRedact}, rs["ssn"])
}

func TestRuleUnmarshalObject(t *testing.T) {
	var r Rule
	err := json.Unmarshal([]byte(`{"kind": "redact", "keep_length": true, "char": "#"}`), &r)
	require.NoError(t, err)

	assert.Equal(t, Rule{Kind: KindRedact, Char: "#", KeepLength: true}, r)
}

func TestRuleUnmarshalRejectsUnknownKind(t *testing.T) {
	var r Rule
	err := json.Unmarshal([]byte(`"scramble"`), &r)
	require.Error(t, err)

	err = json.Unmarshal([]byte(`{"kind": "scramble"}`), &r)
	require.Error(t, err)
}
