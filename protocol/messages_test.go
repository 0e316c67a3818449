// SPDX-FileCopyrightText: © 2026 kikosim contributors
// SPDX-License-Identifier: MIT

package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundIDRoundTrip(t *testing.T) {
	id := RoundID(42, "Seller")
	require.Equal(t, "round_42_Seller", id)

	r, err := ParseRound(id)
	require.NoError(t, err)
	require.Equal(t, 42, r)
}

func TestParseRoundRejectsMalformed(t *testing.T) {
	tests := []struct {
		name    string
		roundID string
	}{
		{"missing_prefix", "42_Seller"},
		{"non_numeric_round", "round_abc_Seller"},
		{"no_agent", "round_42"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRound(tt.roundID)
			require.Error(t, err)
		})
	}
}

func TestRoundIDWithUnderscoreInAgentName(t *testing.T) {
	// agent names themselves may contain underscores (e.g. RA_Packing_Seller_1);
	// ParseRound must only ever split off the round number, leaving the rest
	// of the correlator intact.
	id := RoundID(7, "RA_Packing_Seller_1")
	r, err := ParseRound(id)
	require.NoError(t, err)
	require.Equal(t, 7, r)
}
