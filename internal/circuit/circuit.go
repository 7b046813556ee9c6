// Package circuit defines the ordered table of proxy transport tiers the
// controller fails over between.
package circuit

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
)

// Identifier names a configured tier kind.
type Identifier string

const (
	PrimaryObfuscated   Identifier = "primary_obfuscated"
	SecondaryObfuscated Identifier = "secondary_obfuscated"
	PublicRelay         Identifier = "public_relay"
	AnonymityNetwork    Identifier = "anonymity_network"
)

// knownIdentifiers lists every identifier accepted in configuration.
var knownIdentifiers = map[Identifier]bool{
	PrimaryObfuscated:   true,
	SecondaryObfuscated: true,
	PublicRelay:         true,
	AnonymityNetwork:    true,
}

// EndpointKind selects how probes are routed through a tier.
type EndpointKind string

const (
	// KindSOCKS5 routes probes through the tier's local SOCKS5 listener.
	KindSOCKS5 EndpointKind = "socks5"
	// KindDirect sends probes with no proxy (the no-proxy tier).
	KindDirect EndpointKind = "direct"
)

// Endpoint is the local listener a tier's client process exposes.
type Endpoint struct {
	Host string       `yaml:"host"`
	Port int          `yaml:"port"`
	Kind EndpointKind `yaml:"kind"`
}

// Addr returns the host:port form of the endpoint.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Circuit is one configured proxy transport tier. Rank 1 is the most
// preferred tier and is always the recovery target.
type Circuit struct {
	Rank              int        `yaml:"rank"`
	ID                Identifier `yaml:"identifier"`
	Endpoint          Endpoint   `yaml:"local_endpoint"`
	ActivationCommand string     `yaml:"activation_command"`
}

// Name returns a short human-readable tier name for logs and CLI output.
func (c *Circuit) Name() string {
	return fmt.Sprintf("%s(rank=%d)", c.ID, c.Rank)
}

// Table is the static ordered list of tiers. It is immutable after Build.
type Table struct {
	circuits []*Circuit // sorted by ascending rank
	byRank   map[int]*Circuit
}

// Build validates the configured circuits and produces an ordered table.
func Build(circuits []Circuit) (*Table, error) {
	if len(circuits) == 0 {
		return nil, fmt.Errorf("circuit table is empty")
	}

	t := &Table{
		circuits: make([]*Circuit, 0, len(circuits)),
		byRank:   make(map[int]*Circuit, len(circuits)),
	}
	for i := range circuits {
		c := circuits[i]
		if err := validateCircuit(&c); err != nil {
			return nil, fmt.Errorf("circuit %d (%s): %w", i, c.ID, err)
		}
		if _, dup := t.byRank[c.Rank]; dup {
			return nil, fmt.Errorf("duplicate tier rank %d", c.Rank)
		}
		t.byRank[c.Rank] = &c
		t.circuits = append(t.circuits, &c)
	}
	sort.Slice(t.circuits, func(i, j int) bool {
		return t.circuits[i].Rank < t.circuits[j].Rank
	})
	if t.circuits[0].Rank != 1 {
		return nil, fmt.Errorf("no tier with rank 1 configured (lowest rank is %d)", t.circuits[0].Rank)
	}
	return t, nil
}

func validateCircuit(c *Circuit) error {
	if c.Rank < 1 {
		return fmt.Errorf("tier rank must be >= 1, got %d", c.Rank)
	}
	if !knownIdentifiers[c.ID] {
		return fmt.Errorf("unknown identifier %q", c.ID)
	}
	switch c.Endpoint.Kind {
	case KindSOCKS5:
		if strings.TrimSpace(c.Endpoint.Host) == "" {
			return fmt.Errorf("socks5 endpoint requires a host")
		}
		if c.Endpoint.Port < 1 || c.Endpoint.Port > 65535 {
			return fmt.Errorf("socks5 endpoint port out of range: %d", c.Endpoint.Port)
		}
	case KindDirect:
		// Direct tiers need no local listener; activation command optional.
	default:
		return fmt.Errorf("unknown endpoint kind %q", c.Endpoint.Kind)
	}
	return nil
}

// Preferred returns the rank-1 tier.
func (t *Table) Preferred() *Circuit {
	return t.circuits[0]
}

// Lowest returns the least-preferred tier.
func (t *Table) Lowest() *Circuit {
	return t.circuits[len(t.circuits)-1]
}

// ByRank looks up a tier by rank.
func (t *Table) ByRank(rank int) (*Circuit, bool) {
	c, ok := t.byRank[rank]
	return c, ok
}

// After returns the next lower-preference tier following the given rank,
// or nil when rank already belongs to the lowest tier.
func (t *Table) After(rank int) *Circuit {
	for _, c := range t.circuits {
		if c.Rank > rank {
			return c
		}
	}
	return nil
}

// All returns the tiers in preference order.
func (t *Table) All() []*Circuit {
	out := make([]*Circuit, len(t.circuits))
	copy(out, t.circuits)
	return out
}

// Len returns the number of configured tiers.
func (t *Table) Len() int {
	return len(t.circuits)
}
