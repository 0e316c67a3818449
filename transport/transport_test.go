// SPDX-FileCopyrightText: © 2026 kikosim contributors
// SPDX-License-Identifier: MIT

package transport

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoopbackSendAndReceive(t *testing.T) {
	l := NewLoopback(4)
	ch := l.Register("Seller")

	env := Envelope{Type: "TimeUpdate", From: "TimeService", Payload: 1}
	require.NoError(t, l.Send("Seller", env))

	got := <-ch
	require.Equal(t, env, got)
}

func TestLoopbackSendToUnknownEndpointErrors(t *testing.T) {
	l := NewLoopback(4)
	err := l.Send("nobody", Envelope{Type: "TimeUpdate"})
	require.Error(t, err)
}

func TestLoopbackUnregisterClosesChannel(t *testing.T) {
	l := NewLoopback(4)
	ch := l.Register("Seller")
	l.Unregister("Seller")

	_, ok := <-ch
	require.False(t, ok)

	err := l.Send("Seller", Envelope{Type: "TimeUpdate"})
	require.Error(t, err)
}

func TestLoopbackRegisterTwiceReplacesInbox(t *testing.T) {
	l := NewLoopback(4)
	first := l.Register("Seller")
	second := l.Register("Seller")
	require.NotEqual(t, first, second)

	require.NoError(t, l.Send("Seller", Envelope{Type: "TimeUpdate"}))
	select {
	case <-first:
		t.Fatal("old inbox should no longer receive sends")
	default:
	}
	env := <-second
	require.Equal(t, "TimeUpdate", env.Type)
}

func TestLoopbackSendNeverBlocksOnFullInbox(t *testing.T) {
	l := NewLoopback(1)
	ch := l.Register("Seller")

	require.NoError(t, l.Send("Seller", Envelope{Type: "first"}))
	require.NoError(t, l.Send("Seller", Envelope{Type: "second"}))

	got := <-ch
	require.Equal(t, "second", got.Type, "oldest entry should be dropped to make room")
}
