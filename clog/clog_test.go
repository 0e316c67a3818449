// SPDX-FileCopyrightText: © 2026 kikosim contributors
// SPDX-License-Identifier: MIT

package clog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFieldsFormatsKeyValuePairs(t *testing.T) {
	got := Fields("round", 3, "agent", "Seller")
	require.Equal(t, "round=3 agent=Seller", got)
}

func TestFieldsEmpty(t *testing.T) {
	require.Equal(t, "", Fields())
}

func TestFieldsPanicsOnOddArgs(t *testing.T) {
	require.Panics(t, func() {
		Fields("round", 3, "agent")
	})
}
