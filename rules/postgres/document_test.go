package postgres

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxgate/fluxgate/rules"
)

func TestDocumentRoundTrip(t *testing.T) {
	t.Parallel()

	rule := rules.Rule{
		ID:            "r1",
		Name:          "api burst",
		Enabled:       true,
		Scope:         rules.ScopePerIP,
		KeyStrategyID: "per-ip",
		OnLimitExceed: rules.PolicyWaitForRefill,
		Bands: []rules.Band{
			{Window: time.Second, Capacity: 10, Label: "burst"},
			{Window: time.Minute, Capacity: 100},
		},
		RuleSetID:  "api",
		Priority:   3,
		Attributes: map[string]any{"team": "edge"},
	}

	got := fromDocument(toDocument(rule))
	assert.Equal(t, rule, got)
}

func TestDocumentJSONShape(t *testing.T) {
	t.Parallel()

	rule := rules.Rule{
		ID:            "r1",
		Name:          "basic",
		Enabled:       true,
		Scope:         rules.ScopeGlobal,
		OnLimitExceed: rules.PolicyReject,
		Bands:         []rules.Band{{Window: 60 * time.Second, Capacity: 5}},
		RuleSetID:     "api",
	}

	raw, err := json.Marshal(toDocument(rule))
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(raw, &wire))

	assert.Equal(t, "global", wire["scope"])
	assert.Equal(t, "reject", wire["onLimitExceedPolicy"])
	assert.NotContains(t, wire, "keyStrategyId", "empty strategy must be omitted")

	bands, ok := wire["bands"].([]any)
	require.True(t, ok)
	require.Len(t, bands, 1)
	band := bands[0].(map[string]any)
	assert.Equal(t, float64(60), band["windowSeconds"])
	assert.Equal(t, float64(5), band["capacity"])
}

func TestDecodeRuleRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := decodeRule([]byte(`{"bands": "nope"}`))
	assert.Error(t, err)
}
