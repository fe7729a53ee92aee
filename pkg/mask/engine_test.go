// pkg/mask/engine_test.go
package mask

import (
	"context"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/David-Botos/data-egress/pkg/model"
)

func TestHashStringNormalizes(t *testing.T) {
	e := NewEngine("pepper", nil)

	assert.Equal(t, e.HashString("a@b.com"), e.HashString("  A@B.com "))
	assert.NotEqual(t, e.HashString("a@b.com"), e.HashString("c@d.com"))
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), e.HashString("a@b.com"))
}

func TestHashStringDependsOnSalt(t *testing.T) {
	a := NewEngine("salt-a", nil)
	b := NewEngine("salt-b", nil)

	assert.NotEqual(t, a.HashString("a@b.com"), b.HashString("a@b.com"))
}

func TestRedactValue(t *testing.T) {
	assert.Equal(t, "REDACTED", redactValue("super secret", Rule{Kind: KindRedact}))
	assert.Equal(t, "******", redactValue("secret", Rule{Kind: KindRedact, KeepLength: true}))
	assert.Equal(t, "######", redactValue("secret", Rule{Kind: KindRedact, KeepLength: true, Char: "#"}))
	// Length counts runes, not bytes.
	assert.Equal(t, "*****", redactValue("héllo", Rule{Kind: KindRedact, KeepLength: true}))
	assert.Nil(t, redactValue(nil, Rule{Kind: KindRedact}))
}

func TestPreserveFormatKeepsShape(t *testing.T) {
	e := NewEngine("pepper", nil)

	out, ok := e.PreserveFormat("(555) 123-4567").(string)
	require.True(t, ok)
	assert.Regexp(t, regexp.MustCompile(`^\(\d{3}\) \d{3}-\d{4}$`), out)

	// Deterministic for the same input and salt.
	assert.Equal(t, out, e.PreserveFormat("(555) 123-4567"))
	assert.NotEqual(t, out, e.PreserveFormat("(555) 123-4568"))
}

func TestPreserveFormatEdgeCases(t *testing.T) {
	e := NewEngine("pepper", nil)

	assert.Nil(t, e.PreserveFormat(nil))
	assert.Equal(t, "no digits here", e.PreserveFormat("no digits here"))

	// More digits than one hash provides; the mapping wraps around instead
	// of panicking.
	long := make([]byte, 200)
	for i := range long {
		long[i] = '7'
	}
	out, ok := e.PreserveFormat(string(long)).(string)
	require.True(t, ok)
	assert.Len(t, out, 200)
	assert.Regexp(t, regexp.MustCompile(`^\d+$`), out)
}

func TestMaskRowAppliesRules(t *testing.T) {
	e := NewEngine("pepper", nil)
	rules := RuleSet{
		"email": {Kind: KindHash},
		"phone": {Kind: KindPreserveFormat},
		"notes": {Kind: KindRedact},
	}
	row := model.Row{
		"id":    int64(7),
		"email": "A@B.com",
		"phone": "(555) 123-4567",
		"notes": "call back tuesday",
	}

	masked, err := e.MaskRow(context.Background(), row, rules)
	require.NoError(t, err)

	assert.Equal(t, e.HashString("a@b.com"), masked["email"])
	assert.Equal(t, "REDACTED", masked["notes"])
	assert.Equal(t, int64(7), masked["id"])
	assert.Len(t, masked, len(row))

	// The input row is never mutated.
	assert.Equal(t, "A@B.com", row["email"])
}

func TestMaskRowNullsStayNull(t *testing.T) {
	e := NewEngine("pepper", nil)
	rules := RuleSet{"email": {Kind: KindHash}, "phone": {Kind: KindPreserveFormat}}
	row := model.Row{"email": nil, "phone": nil}

	masked, err := e.MaskRow(context.Background(), row, rules)
	require.NoError(t, err)

	assert.Nil(t, masked["email"])
	assert.Nil(t, masked["phone"])
}

func TestMaskRowIgnoresRulesForAbsentColumns(t *testing.T) {
	e := NewEngine("pepper", nil)
	rules := RuleSet{"missing": {Kind: KindHash}}
	row := model.Row{"id": 1}

	masked, err := e.MaskRow(context.Background(), row, rules)
	require.NoError(t, err)

	assert.Equal(t, model.Row{"id": 1}, masked)
}

func TestMaskRowTokenize(t *testing.T) {
	vault := NewVault(newFakeVaultStore())
	e := NewEngine("pepper", vault)
	rules := RuleSet{"customer_id": {Kind: KindTokenize}}

	first, err := e.MaskRow(context.Background(), model.Row{"customer_id": "cust-42"}, rules)
	require.NoError(t, err)
	second, err := e.MaskRow(context.Background(), model.Row{"customer_id": "cust-42"}, rules)
	require.NoError(t, err)

	token, ok := first["customer_id"].(string)
	require.True(t, ok)
	_, err = uuid.Parse(token)
	require.NoError(t, err)
	assert.NotEqual(t, "cust-42", token)
	assert.Equal(t, token, second["customer_id"])
}

func TestMaskRowTokenizeWithoutVaultFails(t *testing.T) {
	e := NewEngine("pepper", nil)
	rules := RuleSet{"customer_id": {Kind: KindTokenize}}

	_, err := e.MaskRow(context.Background(), model.Row{"customer_id": "cust-42"}, rules)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "customer_id")
}
