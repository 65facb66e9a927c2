package model

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   Category
		wantOK bool
	}{
		{name: "exact", input: "Armas", want: CategoryWeapons, wantOK: true},
		{name: "lower case from config keys", input: "minerales y materiales", want: CategoryMaterials, wantOK: true},
		{name: "padded", input: "  Medicinas ", want: CategoryMedicine, wantOK: true},
		{name: "custom", input: "Naves", want: Category("Naves"), wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseCategory(tt.input)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, "gold (scu)", NormalizeKey("  Gold (SCU) "))
	assert.Equal(t, "", NormalizeKey("   "))
}

func TestHistoryAction_IsValid(t *testing.T) {
	for _, a := range []HistoryAction{ActionDeposited, ActionWithdrawn, ActionReputationAwarded, ActionTransferred, ActionReceived} {
		assert.True(t, a.IsValid(), a)
	}
	assert.False(t, HistoryAction("Añadido").IsValid())
}

func TestSelection_ConsumeOnce(t *testing.T) {
	sel := NewSelection("100", " Medpen ", 3)
	assert.Equal(t, "medpen", sel.ItemKey)
	assert.False(t, sel.Consumed())

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if sel.Consume() == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.True(t, sel.Consumed())
	require.ErrorIs(t, sel.Consume(), ErrSelectionConsumed)
}
