// SPDX-FileCopyrightText: © 2026 kikosim contributors
// SPDX-License-Identifier: MIT

package directory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const fixtureYAML = `
agents:
  - name: Seller
    endpoint: Seller
    roles: [principal]
  - name: RA_Packing_Seller_1
    endpoint: RA_Packing_Seller_1
    roles: [resource-agent]
  - name: RA_Packing_Seller_2
    endpoint: RA_Packing_Seller_2
    roles: [resource-agent]
  - name: TimeService
    endpoint: TimeService
    roles: [timeservice]

pools:
  - principal: Seller
    task_type: packing
    ras: [RA_Packing_Seller_1, RA_Packing_Seller_2]
    strategy: round_robin

routes:
  - handler: PackOrder
    principal: Seller
    task_type: packing
    duration: 2d±0.5d

strategy_overrides:
  - principal: Seller
    agent_type: packing
    strategy: random
`

func writeFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "seller.yaml"), []byte(fixtureYAML), 0o644))
	return dir
}

func TestLoadReadsMatchingFragment(t *testing.T) {
	dir := writeFixture(t)
	cfg, err := Load(dir, "*.yaml")
	require.NoError(t, err)

	require.Len(t, cfg.Agents, 4)
	require.True(t, cfg.IsResourceAgent("RA_Packing_Seller_1"))
	require.False(t, cfg.IsResourceAgent("Seller"))

	route, ok := cfg.Routes["PackOrder"]
	require.True(t, ok)
	require.InDelta(t, 2, route.Duration.Mean, 1e-9)
	require.InDelta(t, 0.5, route.Duration.Stddev, 1e-9)
}

func TestLoadNoMatchesErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir, "*.yaml")
	require.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	dir := writeFixture(t)
	cfg, err := LoadFile(filepath.Join(dir, "seller.yaml"))
	require.NoError(t, err)
	require.Contains(t, cfg.Agents, "Seller")
}

func TestPoolForAppliesStrategyOverride(t *testing.T) {
	dir := writeFixture(t)
	cfg, err := Load(dir, "*.yaml")
	require.NoError(t, err)

	pool, ok := cfg.PoolFor("Seller", "packing")
	require.True(t, ok)
	require.Equal(t, Random, pool.Strategy, "override should replace the fragment's round_robin default")
	require.Equal(t, []string{"RA_Packing_Seller_1", "RA_Packing_Seller_2"}, pool.RAs)
}

func TestPoolForUnknownReturnsFalse(t *testing.T) {
	dir := writeFixture(t)
	cfg, err := Load(dir, "*.yaml")
	require.NoError(t, err)

	_, ok := cfg.PoolFor("Seller", "shipping")
	require.False(t, ok)
}

func TestParticipantsExcludesTimeService(t *testing.T) {
	dir := writeFixture(t)
	cfg, err := Load(dir, "*.yaml")
	require.NoError(t, err)

	participants := cfg.Participants()
	require.NotContains(t, participants, "TimeService")
	require.Contains(t, participants, "Seller")
	require.Contains(t, participants, "RA_Packing_Seller_1")
}

func TestSplitRAName(t *testing.T) {
	principal, agentType, instanceID, ok := SplitRAName("RA_Packing_Seller_1")
	require.True(t, ok)
	require.Equal(t, "seller", principal)
	require.Equal(t, "packing", agentType)
	require.Equal(t, "1", instanceID)

	_, _, _, ok = SplitRAName("Seller")
	require.False(t, ok)
}

func TestDefaultConfigSynthesizesOneRAPoolPerPrincipal(t *testing.T) {
	cfg, err := DefaultConfig(
		map[string][]string{"Seller": {"PackOrder"}},
		map[string]string{"PackOrder": "Seller"},
	)
	require.NoError(t, err)

	pool, ok := cfg.PoolFor("Seller", "default")
	require.True(t, ok)
	require.Equal(t, []string{"SellerRA"}, pool.RAs)

	route, ok := cfg.Routes["PackOrder"]
	require.True(t, ok)
	require.InDelta(t, 1, route.Duration.Mean, 1e-9)
	require.Zero(t, route.Duration.Stddev)
}
