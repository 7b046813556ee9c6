package stealth

import (
	"io"
	"math/rand"
	"net"
	"time"
)

// TrafficProfile selects a timing signature to mimic.
type TrafficProfile string

const (
	ProfileWebBrowsing  TrafficProfile = "web_browsing"
	ProfileVideoStream  TrafficProfile = "video_stream"
	ProfileFileTransfer TrafficProfile = "file_transfer"
)

// JitterConfig configures inter-write timing jitter.
type JitterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Profile  TrafficProfile `yaml:"profile"`
	DelayMin time.Duration  `yaml:"delay_min"`
	DelayMax time.Duration  `yaml:"delay_max"`
}

// profileDelays maps each traffic profile to its default delay window.
// Web browsing is bursty, streaming is steady, bulk transfer is tight.
var profileDelays = map[TrafficProfile][2]time.Duration{
	ProfileWebBrowsing:  {5 * time.Millisecond, 80 * time.Millisecond},
	ProfileVideoStream:  {15 * time.Millisecond, 25 * time.Millisecond},
	ProfileFileTransfer: {0, 5 * time.Millisecond},
}

// ApplyDefaults sets jitter defaults from the selected profile.
func (c *JitterConfig) ApplyDefaults() {
	if c.Profile == "" {
		c.Profile = ProfileWebBrowsing
	}
	if c.DelayMin == 0 && c.DelayMax == 0 {
		if window, ok := profileDelays[c.Profile]; ok {
			c.DelayMin, c.DelayMax = window[0], window[1]
		}
	}
	if c.DelayMax < c.DelayMin {
		c.DelayMax = c.DelayMin
	}
}

// JitterWriter delays each write by a bounded random interval so packet
// timing does not expose a tunnel's machine-generated cadence.
type JitterWriter struct {
	w     io.Writer
	cfg   JitterConfig
	sleep func(time.Duration) // replaceable in tests
}

// NewJitterWriter wraps a writer with timing jitter.
func NewJitterWriter(w io.Writer, cfg JitterConfig) *JitterWriter {
	cfg.ApplyDefaults()
	return &JitterWriter{w: w, cfg: cfg, sleep: time.Sleep}
}

// Write delays, then forwards the payload unchanged.
func (j *JitterWriter) Write(p []byte) (int, error) {
	if j.cfg.Enabled {
		j.sleep(j.delay())
	}
	return j.w.Write(p)
}

// jitterConn routes a net.Conn's writes through a JitterWriter.
type jitterConn struct {
	net.Conn
	w *JitterWriter
}

func newJitterConn(conn net.Conn, cfg JitterConfig) *jitterConn {
	return &jitterConn{Conn: conn, w: NewJitterWriter(conn, cfg)}
}

func (c *jitterConn) Write(p []byte) (int, error) { return c.w.Write(p) }

func (j *JitterWriter) delay() time.Duration {
	if j.cfg.DelayMax <= j.cfg.DelayMin {
		return j.cfg.DelayMin
	}
	return j.cfg.DelayMin + time.Duration(rand.Int63n(int64(j.cfg.DelayMax-j.cfg.DelayMin)))
}
