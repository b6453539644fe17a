package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeLineCost(t *testing.T) {
	line := &CostLine{
		ConsumptionAdjusted: dec("2"),
		UnitPriceAdjusted:   dec("10"),
	}
	assert.True(t, line.ComputeLineCost().Equal(dec("20")))

	line = &CostLine{
		ConsumptionAdjusted: dec("1.2715"),
		UnitPriceAdjusted:   dec("3.33"),
	}
	// 1.2715 × 3.33 = 4.234095 → 4.2341
	assert.True(t, line.ComputeLineCost().Equal(dec("4.2341")))
}

func TestCostingStatusTerminal(t *testing.T) {
	assert.False(t, CostingDraft.IsTerminal())
	assert.False(t, CostingSubmitted.IsTerminal())
	assert.True(t, CostingAccepted.IsTerminal())
	assert.True(t, CostingRejected.IsTerminal())
}
