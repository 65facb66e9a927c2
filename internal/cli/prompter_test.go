package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/clanbank/internal/model"
)

var testMatches = []model.CatalogMatch{
	{Key: "gold", DisplayName: "Gold", Category: "MINERALES"},
	{Key: "gold (ore)", DisplayName: "Gold (Ore)", Category: "MINERALES", Available: 40},
	{Key: "golden medpen", DisplayName: "Golden Medpen"},
}

func TestPrompter_PickMatch(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		matches []model.CatalogMatch
		want    string
		wantErr error
	}{
		{name: "picks by number", input: "2\n", matches: testMatches, want: "gold (ore)"},
		{name: "retries invalid choices", input: "zero\n9\n3\n", matches: testMatches, want: "golden medpen"},
		{name: "single match needs no input", input: "", matches: testMatches[:1], want: "gold"},
		{name: "no matches", input: "", matches: nil, wantErr: ErrNoMatches},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			p := NewCLIPrompter(strings.NewReader(tt.input), &out)

			got, err := p.PickMatch(context.Background(), tt.matches)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Key)
		})
	}
}

func TestPrompter_PickMatchListsAvailability(t *testing.T) {
	var out bytes.Buffer
	p := NewCLIPrompter(strings.NewReader("1\n"), &out)

	_, err := p.PickMatch(context.Background(), testMatches)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Gold (Ore)")
	assert.Contains(t, out.String(), "(40 available)")
	assert.Contains(t, out.String(), "[MINERALES]")
}

func TestPrompter_PickMatchInputEnds(t *testing.T) {
	p := NewCLIPrompter(strings.NewReader("nope\n"), &bytes.Buffer{})

	_, err := p.PickMatch(context.Background(), testMatches)
	require.Error(t, err)
}

func TestPrompter_Confirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{input: "y\n", want: true},
		{input: "YES\n", want: true},
		{input: "sí\n", want: true},
		{input: "n\n", want: false},
		{input: "\n", want: false},
	}

	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			p := NewCLIPrompter(strings.NewReader(tt.input), &bytes.Buffer{})
			got, err := p.Confirm(context.Background(), "Restore backup?")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrompter_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewCLIPrompter(strings.NewReader("y\n"), &bytes.Buffer{})
	_, err := p.Confirm(ctx, "Continue?")
	require.ErrorIs(t, err, context.Canceled)
}

func TestInterruptHandler_Message(t *testing.T) {
	var out bytes.Buffer
	h := NewInterruptHandler(&out)
	ctx := h.HandleInterrupts(context.Background(), "The ledger is closed cleanly.")

	h.interrupt()

	<-ctx.Done()
	assert.True(t, h.WasInterrupted())
	assert.Contains(t, out.String(), "Interrupted, shutting down")
	assert.Contains(t, out.String(), "The ledger is closed cleanly.")

	h.interrupt()
	assert.Equal(t, 1, strings.Count(out.String(), "Interrupted"))
}
