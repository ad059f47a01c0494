package merge

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func priorInventory() []InventoryRecord {
	return []InventoryRecord{{Date: "2025-01-03", Total: decimal.NewFromInt(100), Change: decimal.NewFromInt(5)}}
}

func TestAppendInventorySameAnchor(t *testing.T) {
	prior := priorInventory()
	fresh := &InventoryRecord{Date: "2025-01-03", Total: decimal.NewFromInt(120), Change: decimal.NewFromInt(20)}

	got, appended := AppendInventory(prior, fresh)
	assert.False(t, appended)
	assert.Equal(t, priorInventory(), got)
}

func TestAppendInventoryNewAnchor(t *testing.T) {
	prior := priorInventory()
	fresh := &InventoryRecord{Date: "2025-01-10", Total: decimal.NewFromInt(90), Change: decimal.NewFromInt(-10)}

	got, appended := AppendInventory(prior, fresh)
	require.True(t, appended)
	require.Len(t, got, 2)
	assert.Equal(t, priorInventory()[0], got[0])
	assert.Equal(t, *fresh, got[1])
	assert.Len(t, prior, 1, "prior slice untouched")
}

func TestAppendInventoryFetchFailed(t *testing.T) {
	got, appended := AppendInventory(priorInventory(), nil)
	assert.False(t, appended)
	assert.Equal(t, priorInventory(), got)

	got, appended = AppendInventory(nil, &InventoryRecord{Date: "2025-01-10"})
	assert.True(t, appended)
	assert.Len(t, got, 1)
}

func TestReplaceOrKeep(t *testing.T) {
	prior := []VolatilityRecord{{Date: "2025-01-03", Close: decimal.RequireFromString("20.1")}}

	got := ReplaceOrKeep(nil, prior)
	assert.Equal(t, prior, got)

	got = ReplaceOrKeep([]VolatilityRecord{}, prior)
	assert.Equal(t, prior, got)

	fresh := []VolatilityRecord{{Date: "2025-01-07", Close: decimal.RequireFromString("18.5")}}
	got = ReplaceOrKeep(fresh, prior)
	assert.Equal(t, fresh, got)

	got[0].Date = "changed"
	assert.Equal(t, "2025-01-07", fresh[0].Date, "result does not alias the input")

	assert.Empty(t, ReplaceOrKeep[VolatilityRecord](nil, nil))
}

func TestInventoryAnchor(t *testing.T) {
	// Wednesday, Friday and Saturday.
	assert.Equal(t, "2025-01-03", InventoryAnchor(time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2025-01-03", InventoryAnchor(time.Date(2025, 1, 3, 23, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2025-01-10", InventoryAnchor(time.Date(2025, 1, 4, 0, 0, 0, 0, time.UTC)))
}
