package stealth

import (
	"math/rand"
	"net"
	"time"
)

// FragmentConfig configures first-flight fragmentation. Splitting the TLS
// Client Hello across several small segments defeats DPI boxes that only
// reassemble the first packet.
type FragmentConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Size      int           `yaml:"size"`      // bytes per fragment
	DelayMin  time.Duration `yaml:"delay_min"` // min delay between fragments
	DelayMax  time.Duration `yaml:"delay_max"` // max delay between fragments
	Randomize bool          `yaml:"randomize"` // randomize fragment sizes
}

// ApplyDefaults sets fragmentation defaults.
func (c *FragmentConfig) ApplyDefaults() {
	if c.Size <= 0 {
		c.Size = 32
	}
	if c.Size > 256 {
		c.Size = 256
	}
	if c.DelayMin < 0 {
		c.DelayMin = 0
	}
	if c.DelayMax < c.DelayMin {
		c.DelayMax = c.DelayMin
	}
	if c.DelayMin == 0 && c.DelayMax == 0 {
		c.DelayMax = 10 * time.Millisecond
	}
}

// FragmentedConn fragments the first write on a connection and passes
// everything after it through untouched.
type FragmentedConn struct {
	net.Conn
	cfg             FragmentConfig
	firstFlightDone bool
}

// NewFragmentedConn wraps a connection with first-flight fragmentation.
func NewFragmentedConn(conn net.Conn, cfg FragmentConfig) *FragmentedConn {
	cfg.ApplyDefaults()
	return &FragmentedConn{Conn: conn, cfg: cfg}
}

// Write splits the first flight into delayed fragments.
func (c *FragmentedConn) Write(p []byte) (int, error) {
	if c.firstFlightDone || !c.cfg.Enabled {
		return c.Conn.Write(p)
	}
	c.firstFlightDone = true

	written := 0
	for written < len(p) {
		size := c.cfg.Size
		if c.cfg.Randomize {
			// 1..Size, so a fragment is never empty.
			size = 1 + rand.Intn(c.cfg.Size)
		}
		if size > len(p)-written {
			size = len(p) - written
		}

		n, err := c.Conn.Write(p[written : written+size])
		written += n
		if err != nil {
			return written, err
		}

		if written < len(p) {
			time.Sleep(c.delay())
		}
	}
	return written, nil
}

func (c *FragmentedConn) delay() time.Duration {
	if c.cfg.DelayMax <= c.cfg.DelayMin {
		return c.cfg.DelayMin
	}
	return c.cfg.DelayMin + time.Duration(rand.Int63n(int64(c.cfg.DelayMax-c.cfg.DelayMin)))
}
