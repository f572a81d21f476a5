package rule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefinitionHash_Stable(t *testing.T) {
	r := validRule()
	h1, err := DefinitionHash(&r)
	require.NoError(t, err)
	h2, err := DefinitionHash(&r)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64, "sha256 hex digest")
}

func TestDefinitionHash_IgnoresBookkeeping(t *testing.T) {
	a := validRule()
	b := validRule()
	b.Name = "renamed"
	b.Enabled = false
	b.ExecutionCount = 99
	b.DebounceMinutes = 5

	ha, err := DefinitionHash(&a)
	require.NoError(t, err)
	hb, err := DefinitionHash(&b)
	require.NoError(t, err)

	assert.Equal(t, ha, hb, "only trigger and action feed the digest")
}

func TestDefinitionHash_ChangesWithDefinition(t *testing.T) {
	base := validRule()
	hBase, err := DefinitionHash(&base)
	require.NoError(t, err)

	edited := validRule()
	edited.Trigger.Conditions = map[string]any{"threshold": 20.0}
	hEdited, err := DefinitionHash(&edited)
	require.NoError(t, err)

	assert.NotEqual(t, hBase, hEdited)
}

func TestDefinitionHash_KeyOrderIrrelevant(t *testing.T) {
	a := validRule()
	a.Action.Params = map[string]any{"message": "m", "severity": "info"}
	b := validRule()
	b.Action.Params = map[string]any{"severity": "info", "message": "m"}

	ha, err := DefinitionHash(&a)
	require.NoError(t, err)
	hb, err := DefinitionHash(&b)
	require.NoError(t, err)

	assert.Equal(t, ha, hb)
}

func TestDefinitionHash_WholeFloatEqualsInt(t *testing.T) {
	// YAML may decode "10" as int and "10.0" as float64; the digest must not
	// depend on which one arrived.
	a := validRule()
	a.Trigger.Conditions = map[string]any{"threshold": 10}
	b := validRule()
	b.Trigger.Conditions = map[string]any{"threshold": 10.0}

	ha, err := DefinitionHash(&a)
	require.NoError(t, err)
	hb, err := DefinitionHash(&b)
	require.NoError(t, err)

	assert.Equal(t, ha, hb)
}

func TestDefinitionHash_UnicodeNormalization(t *testing.T) {
	// "é" precomposed vs. "e" + combining acute must hash identically.
	a := validRule()
	a.Action.Params = map[string]any{"message": "café", "severity": "info"}
	b := validRule()
	b.Action.Params = map[string]any{"message": "café", "severity": "info"}

	ha, err := DefinitionHash(&a)
	require.NoError(t, err)
	hb, err := DefinitionHash(&b)
	require.NoError(t, err)

	assert.Equal(t, ha, hb)
}
