package probe

import (
	"context"
	"net"

	utls "github.com/refraction-networking/utls"
)

// StealthConfig configures uTLS fingerprinting for HTTPS probes.
type StealthConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Fingerprint string `yaml:"fingerprint"` // chrome | firefox | safari | edge | ios | android | random
}

// ApplyDefaults sets stealth defaults.
func (c *StealthConfig) ApplyDefaults() {
	if c.Fingerprint == "" {
		c.Fingerprint = "chrome"
	}
}

// helloID maps a fingerprint name to a uTLS ClientHello identity.
func helloID(name string) utls.ClientHelloID {
	switch name {
	case "chrome":
		return utls.HelloChrome_Auto
	case "firefox":
		return utls.HelloFirefox_Auto
	case "safari":
		return utls.HelloSafari_Auto
	case "edge":
		return utls.HelloEdge_Auto
	case "ios":
		return utls.HelloIOS_Auto
	case "android":
		return utls.HelloAndroid_11_OkHttp
	case "random":
		return utls.HelloRandomized
	default:
		return utls.HelloChrome_Auto
	}
}

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// stealthDialTLS wraps a base dialer with a uTLS handshake mimicking a
// real browser's ClientHello.
func stealthDialTLS(base dialFunc, cfg StealthConfig) dialFunc {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := base(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}

		uconn := utls.UClient(conn, &utls.Config{
			ServerName: host,
			NextProtos: []string{"http/1.1"},
		}, helloID(cfg.Fingerprint))
		if err := uconn.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return nil, err
		}
		return uconn, nil
	}
}
