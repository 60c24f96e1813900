// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/iht/config"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, config.Default().Valid())
	require.NoError(t, config.Local().Valid())
	require.NoError(t, config.Test().Valid())
}

func TestValidRejectsBadNodeCount(t *testing.T) {
	c := config.Default()
	c.NodeCount = 0
	require.ErrorIs(t, c.Valid(), config.ErrZeroPeers)
}

func TestValidRejectsNodeIDOutOfRange(t *testing.T) {
	c := config.Default()
	c.NodeCount = 2
	c.NodeID = 2
	require.ErrorIs(t, c.Valid(), config.ErrNodeIDOutOfRange)
}

func TestValidRejectsBadOpMix(t *testing.T) {
	c := config.Default()
	c.ContainsPct = 50
	c.InsertPct = 50
	c.RemovePct = 50
	require.ErrorIs(t, c.Valid(), config.ErrInvalidOpMix)
}

func TestValidRejectsEmptyKeyRange(t *testing.T) {
	c := config.Default()
	c.KeyHi = c.KeyLo
	require.ErrorIs(t, c.Valid(), config.ErrEmptyKeyRange)
}

func TestIsHost(t *testing.T) {
	c := config.Default()
	require.True(t, c.IsHost())
	c.NodeID = 1
	c.NodeCount = 2
	require.False(t, c.IsHost())
}

func TestNodeIDForIsStable(t *testing.T) {
	require.Equal(t, config.NodeIDFor(3), config.NodeIDFor(3))
	require.NotEqual(t, config.NodeIDFor(1), config.NodeIDFor(2))
}
