package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/clanbank/internal/storage"
)

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{input: "5", want: 5},
		{input: "  120 ", want: 120},
		{input: "007", want: 7},
		{input: "0", wantErr: true},
		{input: "-3", wantErr: true},
		{input: "+3", wantErr: true},
		{input: "2.5", wantErr: true},
		{input: "1,000", wantErr: true},
		{input: "ten", wantErr: true},
		{input: "", wantErr: true},
		{input: "99999999999999999999999", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseQuantity(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidQuantity)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelectionRegistry(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	reg := NewSelectionRegistry(time.Minute, func() time.Time { return now })

	sel, err := reg.Create("alice", "Gold", 3)
	require.NoError(t, err)
	assert.Equal(t, "gold", sel.ItemKey)
	assert.Equal(t, 1, reg.Len())

	_, err = reg.Take(sel.ID, "bob")
	require.ErrorIs(t, err, ErrSelectionNotFound)

	got, err := reg.Take(sel.ID, "alice")
	require.NoError(t, err)
	assert.Same(t, sel, got)

	_, err = reg.Take(sel.ID, "alice")
	require.ErrorIs(t, err, ErrSelectionNotFound)

	_, err = reg.Take(uuid.New(), "alice")
	require.ErrorIs(t, err, ErrSelectionNotFound)
}

func TestSelectionRegistry_Expiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	reg := NewSelectionRegistry(time.Minute, func() time.Time { return now })

	sel, err := reg.Create("alice", "Gold", 3)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = reg.Take(sel.ID, "alice")
	require.ErrorIs(t, err, ErrSelectionNotFound)
	assert.Zero(t, reg.Len())
}

func TestSelectionRegistry_RejectsInvalid(t *testing.T) {
	reg := NewSelectionRegistry(0, nil)

	_, err := reg.Create("", "Gold", 1)
	require.ErrorIs(t, err, ErrInvalidRequest)
	_, err = reg.Create("alice", " ", 1)
	require.ErrorIs(t, err, ErrInvalidRequest)
	_, err = reg.Create("alice", "Gold", 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	e := newTestEngine(t, storage.NewMemoryStorage())
	e.cfg.Metrics = metrics
	ctx := context.Background()

	_, err := e.Deposit(ctx, "alice", "P4-AR Rifle", 20)
	require.NoError(t, err)
	_, err = e.Deposit(ctx, "alice", "P4-AR Rifle", 40)
	require.NoError(t, err)
	_, err = e.Deposit(ctx, "alice", "P4-AR Rifle", 1)
	require.ErrorIs(t, err, ErrStorageFull)
	_, err = e.Withdraw(ctx, "alice", "Gold", 1)
	require.ErrorIs(t, err, ErrItemNotFound)

	assert.InDelta(t, 2, testutil.ToFloat64(metrics.operations.WithLabelValues("deposit", "ok")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.operations.WithLabelValues("deposit", "storage_full")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.operations.WithLabelValues("withdraw", "not_found")), 1e-9)
	assert.InDelta(t, 50, testutil.ToFloat64(metrics.units.WithLabelValues("deposit")), 1e-9)
	assert.InDelta(t, 2.5, testutil.ToFloat64(metrics.reputation), 1e-9)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "clanbank_ledger_operation_duration_seconds")
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.observe("deposit", time.Now(), nil)
		m.addUnits("deposit", 3)
		m.addReputation(1)
	})

	empty := NewMetrics(nil)
	assert.NotPanics(t, func() {
		empty.observe("deposit", time.Now(), errors.New("boom"))
	})
}

func TestResultLabel(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{ErrInvalidQuantity, "invalid"},
		{ErrInvalidRequest, "invalid"},
		{ErrStorageFull, "storage_full"},
		{ErrItemNotFound, "not_found"},
		{ErrInsufficientQuantity, "insufficient"},
		{ErrStoreUnavailable, "unavailable"},
		{errors.New("other"), "error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, resultLabel(tt.err))
	}
}
