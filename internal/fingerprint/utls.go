// Package fingerprint builds HTTP transports whose TLS ClientHello mimics a
// real browser. The registration portal sits behind a WAF that resets
// connections presenting the default Go TLS fingerprint.
package fingerprint

import (
	"context"
	"fmt"
	"net"
	"net/http"

	utls "github.com/refraction-networking/utls"
)

// Profile selects a TLS fingerprint.
type Profile string

const (
	ProfileChrome  Profile = "chrome"
	ProfileFirefox Profile = "firefox"
	ProfileGo      Profile = "go" // standard library TLS, used in tests
)

// Transport returns an http.RoundTripper that performs TLS handshakes with
// the given profile. ProfileGo returns a plain cloned http.Transport.
func Transport(p Profile) (http.RoundTripper, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	var hello utls.ClientHelloID
	switch p {
	case ProfileGo:
		return transport, nil
	case ProfileChrome:
		hello = utls.HelloChrome_Auto
	case ProfileFirefox:
		hello = utls.HelloFirefox_Auto
	default:
		return nil, fmt.Errorf("fingerprint: unknown profile %q", p)
	}

	// Dial plain TCP ourselves, then run the uTLS handshake on top of it.
	transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		tcpConn, err := transport.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}

		uConn := utls.UClient(tcpConn, &utls.Config{ServerName: host}, hello)
		if err := uConn.HandshakeContext(ctx); err != nil {
			_ = tcpConn.Close()
			return nil, fmt.Errorf("fingerprint: utls handshake: %w", err)
		}
		return uConn, nil
	}

	return transport, nil
}
