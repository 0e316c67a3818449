// SPDX-FileCopyrightText: © 2026 kikosim contributors
// SPDX-License-Identifier: MIT

// Package directory holds the Agent Directory, resource pool, and task
// routing table configuration consumed by the TimeService, Resource Agents,
// and the Deferred-Reaction Dispatch layer (spec.md §3 "Agent Directory",
// §4.4, §6).
package directory

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/kikosim/vtcore/duration"
	"gopkg.in/yaml.v3"
)

// Role is the set of protocol roles a directory entry may play. The
// TimeService does not distinguish principal from RA except for the
// two-phase broadcast split (spec.md §4.1, §4.4); Role is what drives that
// split.
type Role int

const (
	RoleUnknown Role = iota
	RolePrincipal
	RoleResourceAgent
	RoleTimeService
)

func (r Role) String() string {
	switch r {
	case RolePrincipal:
		return "principal"
	case RoleResourceAgent:
		return "resource-agent"
	case RoleTimeService:
		return "timeservice"
	default:
		return "unknown"
	}
}

// Strategy is a pool's RA selection strategy.
type Strategy string

const (
	RoundRobin Strategy = "round_robin"
	Random     Strategy = "random"
)

// Endpoint is how a directory entry is reached through the Transport
// boundary (spec.md §6): in this module's scope, simply its registered
// transport name.
type Endpoint = string

// Agent is one entry of the Agent Directory: a name, its endpoint, and the
// role it plays. An entry holds a single Role; when a config fragment lists
// several roles for one agent, the last recognized one is kept.
type Agent struct {
	Name     string
	Endpoint Endpoint
	Role     Role
}

// Pool is an ordered list of RA names available to a principal for a given
// task type, plus the strategy used to pick among them (spec.md §3
// "Resource pool").
type Pool struct {
	Principal string
	TaskType  string
	RAs       []string
	Strategy  Strategy
}

// Route is one entry of the task routing table: the task type and duration
// spec a given handler defers to, and the principal it runs on (spec.md §3
// "Task routing table", §4.3).
type Route struct {
	Handler   string
	Principal string
	TaskType  string
	Duration  duration.Spec
}

// Config is the fully resolved configuration for one simulation run: the
// Agent Directory, resource pools, and task routing table.
type Config struct {
	Agents map[string]Agent
	// Pools is keyed by (principal, task_type).
	Pools map[PoolKey]Pool
	// Routes is keyed by handler name.
	Routes map[string]Route
	// StrategyOverrides optionally overrides a pool's Strategy for a
	// specific (principal, agent_type) pair, carried over from the
	// original source's agent_strategies lookup (see SPEC_FULL.md §4).
	StrategyOverrides map[StrategyKey]Strategy
}

// PoolKey identifies a resource pool.
type PoolKey struct {
	Principal string
	TaskType  string
}

// StrategyKey identifies a (principal, agent_type) strategy override.
type StrategyKey struct {
	Principal string
	AgentType string
}

// Participants returns the names of every agent playing a role that the
// TimeService tracks (principals and resource agents), ordered for
// deterministic iteration in tests. The TimeService itself is never its own
// participant.
func (c *Config) Participants() []string {
	names := make([]string, 0, len(c.Agents))
	for name, a := range c.Agents {
		if a.Role == RolePrincipal || a.Role == RoleResourceAgent {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// IsResourceAgent reports whether name is registered with the
// RoleResourceAgent role.
func (c *Config) IsResourceAgent(name string) bool {
	a, ok := c.Agents[name]
	return ok && a.Role == RoleResourceAgent
}

// PoolFor looks up the resource pool for (principal, taskType), applying any
// StrategyOverrides keyed by (principal, agentType) of the pool's first RA.
func (c *Config) PoolFor(principal, taskType string) (Pool, bool) {
	p, ok := c.Pools[PoolKey{Principal: principal, TaskType: taskType}]
	if !ok {
		return Pool{}, false
	}
	if len(p.RAs) > 0 {
		_, agentType, _, _ := SplitRAName(p.RAs[0])
		if override, ok := c.StrategyOverrides[StrategyKey{Principal: principal, AgentType: agentType}]; ok {
			p.Strategy = override
		}
	}
	return p, true
}

// SplitRAName derives a principal, agent type, and instance id from a
// Resource Agent name of the form RA_<AgentType>_<Principal>_<N>, mirroring
// the original source's resource_agent.py logger-naming logic (see
// SPEC_FULL.md §4). ok is false if name lacks the "RA_" prefix. Parts that
// are missing (or the whole name, when ok is false) yield "unknown" for
// principal and agentType and an empty instanceID.
func SplitRAName(name string) (principal, agentType, instanceID string, ok bool) {
	if !strings.HasPrefix(name, "RA_") {
		return "unknown", "unknown", "", false
	}
	parts := strings.Split(name, "_")
	agentType, principal, instanceID = "unknown", "unknown", ""
	if len(parts) >= 2 {
		agentType = strings.ToLower(parts[1])
	}
	if len(parts) >= 3 {
		principal = strings.ToLower(parts[2])
	}
	if len(parts) >= 4 {
		instanceID = parts[3]
	}
	return principal, agentType, instanceID, true
}

// yamlDoc is the on-disk shape of one configuration fragment file.
type yamlDoc struct {
	Agents []struct {
		Name     string   `yaml:"name"`
		Endpoint string   `yaml:"endpoint"`
		Roles    []string `yaml:"roles"`
	} `yaml:"agents"`
	Pools []struct {
		Principal string   `yaml:"principal"`
		TaskType  string   `yaml:"task_type"`
		RAs       []string `yaml:"ras"`
		Strategy  string   `yaml:"strategy"`
	} `yaml:"pools"`
	Routes []struct {
		Handler   string `yaml:"handler"`
		Principal string `yaml:"principal"`
		TaskType  string `yaml:"task_type"`
		Duration  string `yaml:"duration"`
	} `yaml:"routes"`
	StrategyOverrides []struct {
		Principal string `yaml:"principal"`
		AgentType string `yaml:"agent_type"`
		Strategy  string `yaml:"strategy"`
	} `yaml:"strategy_overrides"`
}

// Load reads and merges every YAML file under dir matching pattern (a
// doublestar glob, e.g. "agents/**/*.yaml") into a single Config.
func Load(dir, pattern string) (*Config, error) {
	matches, err := doublestar.Glob(os.DirFS(dir), pattern)
	if err != nil {
		return nil, fmt.Errorf("directory: glob %q: %w", pattern, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("directory: no config fragments matched %q under %q", pattern, dir)
	}
	sort.Strings(matches)

	cfg := newConfig()
	for _, rel := range matches {
		path := filepath.Join(dir, rel)
		if err := loadFragment(cfg, path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// LoadFile reads a single YAML configuration file into a Config.
func LoadFile(path string) (*Config, error) {
	cfg := newConfig()
	if err := loadFragment(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newConfig() *Config {
	return &Config{
		Agents:            make(map[string]Agent),
		Pools:             make(map[PoolKey]Pool),
		Routes:            make(map[string]Route),
		StrategyOverrides: make(map[StrategyKey]Strategy),
	}
}

func loadFragment(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("directory: read %q: %w", path, err)
	}
	var doc yamlDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("directory: parse %q: %w", path, err)
	}

	for _, a := range doc.Agents {
		role := RoleUnknown
		for _, r := range a.Roles {
			switch r {
			case "principal":
				role = RolePrincipal
			case "resource-agent":
				role = RoleResourceAgent
			case "timeservice":
				role = RoleTimeService
			}
		}
		cfg.Agents[a.Name] = Agent{Name: a.Name, Endpoint: a.Endpoint, Role: role}
	}

	for _, p := range doc.Pools {
		strat := Strategy(p.Strategy)
		if strat == "" {
			strat = RoundRobin
		}
		cfg.Pools[PoolKey{Principal: p.Principal, TaskType: p.TaskType}] = Pool{
			Principal: p.Principal,
			TaskType:  p.TaskType,
			RAs:       p.RAs,
			Strategy:  strat,
		}
	}

	for _, r := range doc.Routes {
		spec, err := duration.Parse(r.Duration)
		if err != nil {
			return fmt.Errorf("directory: route %q: %w", r.Handler, err)
		}
		cfg.Routes[r.Handler] = Route{
			Handler:   r.Handler,
			Principal: r.Principal,
			TaskType:  r.TaskType,
			Duration:  spec,
		}
	}

	for _, o := range doc.StrategyOverrides {
		cfg.StrategyOverrides[StrategyKey{Principal: o.Principal, AgentType: o.AgentType}] = Strategy(o.Strategy)
	}

	return nil
}

// DefaultConfig synthesizes a Config when no explicit pool/routing
// configuration is supplied for a principal: one generic single-RA pool per
// principal, with every handler of that principal routed to it at a 1-day
// fixed duration. This mirrors config_handler.py's
// create_default_config_dict (see SPEC_FULL.md §4).
func DefaultConfig(agentCapabilities map[string][]string, funcToPrincipal map[string]string) (*Config, error) {
	cfg := newConfig()

	cfg.Agents["TimeService"] = Agent{Name: "TimeService", Endpoint: "TimeService", Role: RoleTimeService}

	oneDay, err := duration.New(1, 0)
	if err != nil {
		return nil, err
	}

	for principal := range agentCapabilities {
		raName := principal + "RA"
		cfg.Agents[principal] = Agent{Name: principal, Endpoint: principal, Role: RolePrincipal}
		cfg.Agents[raName] = Agent{Name: raName, Endpoint: raName, Role: RoleResourceAgent}
		cfg.Pools[PoolKey{Principal: principal, TaskType: "default"}] = Pool{
			Principal: principal,
			TaskType:  "default",
			RAs:       []string{raName},
			Strategy:  RoundRobin,
		}
	}

	for handler, principal := range funcToPrincipal {
		cfg.Routes[handler] = Route{
			Handler:   handler,
			Principal: principal,
			TaskType:  "default",
			Duration:  oneDay,
		}
	}

	return cfg, nil
}
