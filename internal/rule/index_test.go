package rule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"careops-alert-engine/internal/logger"
)

func indexedRule(name string, trigger TriggerType, active bool) *Rule {
	return &Rule{
		ID:          name,
		Name:        name,
		TriggerType: trigger,
		IsActive:    active,
	}
}

func TestTriggerIndexRebuildAndFind(t *testing.T) {
	idx := NewTriggerIndex(logger.NewNop(), nil)

	idx.Rebuild([]*Rule{
		indexedRule("sla-1", TriggerSLABreach, true),
		indexedRule("sla-2", TriggerSLABreach, true),
		indexedRule("sla-inactive", TriggerSLABreach, false),
		indexedRule("surge-1", TriggerSurgePrediction, true),
	})

	slaRules := idx.Find(TriggerSLABreach)
	require.Len(t, slaRules, 2)
	for _, r := range slaRules {
		assert.True(t, r.IsActive)
	}

	assert.Len(t, idx.Find(TriggerSurgePrediction), 1)
	assert.Empty(t, idx.Find(TriggerDataAnomaly))

	stats := idx.GetStats()
	assert.Equal(t, uint64(3), stats.RuleCount)
	assert.Equal(t, uint64(3), stats.Lookups)
	assert.Equal(t, uint64(2), stats.Matches)
}

func TestTriggerIndexRebuildReplaces(t *testing.T) {
	idx := NewTriggerIndex(logger.NewNop(), nil)

	idx.Rebuild([]*Rule{indexedRule("sla-1", TriggerSLABreach, true)})
	require.Len(t, idx.Find(TriggerSLABreach), 1)

	// Deactivation drops the rule from the index on the next rebuild.
	idx.Rebuild([]*Rule{indexedRule("sla-1", TriggerSLABreach, false)})
	assert.Empty(t, idx.Find(TriggerSLABreach))
	assert.Zero(t, idx.GetStats().RuleCount)
}
