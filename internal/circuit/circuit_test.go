package circuit

import "testing"

func testCircuits() []Circuit {
	return []Circuit{
		{Rank: 1, ID: PrimaryObfuscated, Endpoint: Endpoint{Host: "127.0.0.1", Port: 1080, Kind: KindSOCKS5}, ActivationCommand: "xray run -c /etc/xray/client.json"},
		{Rank: 2, ID: SecondaryObfuscated, Endpoint: Endpoint{Host: "127.0.0.1", Port: 1081, Kind: KindSOCKS5}, ActivationCommand: "obfs4proxy"},
		{Rank: 3, ID: PublicRelay, Endpoint: Endpoint{Host: "127.0.0.1", Port: 1082, Kind: KindSOCKS5}},
		{Rank: 4, ID: AnonymityNetwork, Endpoint: Endpoint{Host: "127.0.0.1", Port: 9050, Kind: KindSOCKS5}, ActivationCommand: "tor"},
	}
}

func TestBuildOrdering(t *testing.T) {
	// Shuffle ranks in config order; table must come out rank-sorted.
	in := testCircuits()
	in[0], in[3] = in[3], in[0]

	tbl, err := Build(in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if tbl.Len() != 4 {
		t.Fatalf("expected 4 tiers, got %d", tbl.Len())
	}
	if got := tbl.Preferred().Rank; got != 1 {
		t.Fatalf("Preferred rank = %d, want 1", got)
	}
	if got := tbl.Lowest().Rank; got != 4 {
		t.Fatalf("Lowest rank = %d, want 4", got)
	}
	prev := 0
	for _, c := range tbl.All() {
		if c.Rank <= prev {
			t.Fatalf("table not sorted by rank: %d after %d", c.Rank, prev)
		}
		prev = c.Rank
	}
}

func TestAfterNoWraparound(t *testing.T) {
	tbl, err := Build(testCircuits())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if next := tbl.After(1); next == nil || next.Rank != 2 {
		t.Fatalf("After(1) = %v, want rank 2", next)
	}
	if next := tbl.After(4); next != nil {
		t.Fatalf("After(lowest) = %v, want nil", next)
	}
}

func TestAfterSkipsGaps(t *testing.T) {
	tbl, err := Build([]Circuit{
		{Rank: 1, ID: PrimaryObfuscated, Endpoint: Endpoint{Host: "127.0.0.1", Port: 1080, Kind: KindSOCKS5}},
		{Rank: 5, ID: AnonymityNetwork, Endpoint: Endpoint{Host: "127.0.0.1", Port: 9050, Kind: KindSOCKS5}},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if next := tbl.After(1); next == nil || next.Rank != 5 {
		t.Fatalf("After(1) with gap = %v, want rank 5", next)
	}
}

func TestBuildRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		in   []Circuit
	}{
		{"empty", nil},
		{"duplicate rank", []Circuit{
			{Rank: 1, ID: PrimaryObfuscated, Endpoint: Endpoint{Host: "127.0.0.1", Port: 1080, Kind: KindSOCKS5}},
			{Rank: 1, ID: PublicRelay, Endpoint: Endpoint{Host: "127.0.0.1", Port: 1081, Kind: KindSOCKS5}},
		}},
		{"missing rank 1", []Circuit{
			{Rank: 2, ID: PrimaryObfuscated, Endpoint: Endpoint{Host: "127.0.0.1", Port: 1080, Kind: KindSOCKS5}},
		}},
		{"unknown identifier", []Circuit{
			{Rank: 1, ID: "quantum_relay", Endpoint: Endpoint{Host: "127.0.0.1", Port: 1080, Kind: KindSOCKS5}},
		}},
		{"bad endpoint kind", []Circuit{
			{Rank: 1, ID: PrimaryObfuscated, Endpoint: Endpoint{Host: "127.0.0.1", Port: 1080, Kind: "http"}},
		}},
		{"socks5 without host", []Circuit{
			{Rank: 1, ID: PrimaryObfuscated, Endpoint: Endpoint{Port: 1080, Kind: KindSOCKS5}},
		}},
		{"socks5 port out of range", []Circuit{
			{Rank: 1, ID: PrimaryObfuscated, Endpoint: Endpoint{Host: "127.0.0.1", Port: 0, Kind: KindSOCKS5}},
		}},
	}
	for _, tc := range cases {
		if _, err := Build(tc.in); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestDirectTierNeedsNoEndpoint(t *testing.T) {
	tbl, err := Build([]Circuit{
		{Rank: 1, ID: PrimaryObfuscated, Endpoint: Endpoint{Host: "127.0.0.1", Port: 1080, Kind: KindSOCKS5}},
		{Rank: 2, ID: PublicRelay, Endpoint: Endpoint{Kind: KindDirect}},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	c, ok := tbl.ByRank(2)
	if !ok || c.Endpoint.Kind != KindDirect {
		t.Fatalf("expected direct tier at rank 2")
	}
}
