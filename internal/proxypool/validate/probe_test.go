package validate

import (
	"bufio"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"proxyfleet/internal/proxypool/model"
)

// fakeConnectProxy is a minimal HTTP CONNECT tunnel: accept one CONNECT
// request per connection, reply 200, then pipe bytes to whatever address
// was requested. Enough to exercise checkHTTPConnect's real TLS/HTTP
// round trip through a proxy.
func fakeConnectProxy(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveConnect(conn)
		}
	}()
	return ln
}

func serveConnect(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		return
	}
	parts := strings.Fields(line)
	if len(parts) < 2 || parts[0] != "CONNECT" {
		return
	}
	target := parts[1]
	for {
		h, err := reader.ReadString('\n')
		if err != nil || h == "\r\n" || h == "\n" {
			break
		}
	}

	upstream, err := net.DialTimeout("tcp", target, 5*time.Second)
	if err != nil {
		conn.Write([]byte("HTTP/1.1 502 Bad Gateway\r\n\r\n"))
		return
	}
	defer upstream.Close()
	conn.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n"))

	done := make(chan struct{}, 2)
	go func() { io.Copy(upstream, reader); done <- struct{}{} }()
	go func() { io.Copy(conn, upstream); done <- struct{}{} }()
	<-done
}

func TestDialValidator_CheckHTTPConnect_Success(t *testing.T) {
	target := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	proxyLn := fakeConnectProxy(t)
	defer proxyLn.Close()

	host, portStr, err := net.SplitHostPort(proxyLn.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	v := &DialValidator{Target: strings.TrimPrefix(target.URL, "https://"), Timeout: 2 * time.Second}
	item := &model.ProxyItem{Endpoint: model.Endpoint{Host: host, Port: port, Protocol: model.ProtocolHTTP}}

	require.True(t, v.Validate(item))
}

func TestDialValidator_CheckHTTPConnect_Failure_WhenProxyUnreachable(t *testing.T) {
	v := &DialValidator{Target: "example.com:443", Timeout: 200 * time.Millisecond}
	item := &model.ProxyItem{Endpoint: model.Endpoint{Host: "127.0.0.1", Port: 1, Protocol: model.ProtocolHTTP}}

	require.False(t, v.Validate(item))
}

// fakeSocks5NoAuth is a minimal SOCKS5 server implementing only the
// no-auth handshake and a CONNECT reply of "succeeded", enough for
// golang.org/x/net/proxy's client-side handshake to complete.
func fakeSocks5NoAuth(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveSocks5(conn)
		}
	}()
	return ln
}

func serveSocks5(conn net.Conn) {
	defer conn.Close()

	greeting := make([]byte, 2)
	if _, err := io.ReadFull(conn, greeting); err != nil {
		return
	}
	methods := make([]byte, int(greeting[1]))
	if _, err := io.ReadFull(conn, methods); err != nil {
		return
	}
	if _, err := conn.Write([]byte{0x05, 0x00}); err != nil {
		return
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(conn, header); err != nil {
		return
	}
	var addrLen int
	switch header[3] {
	case 0x01:
		addrLen = net.IPv4len
	case 0x04:
		addrLen = net.IPv6len
	case 0x03:
		lenBuf := make([]byte, 1)
		if _, err := io.ReadFull(conn, lenBuf); err != nil {
			return
		}
		addrLen = int(lenBuf[0])
	default:
		return
	}
	if _, err := io.ReadFull(conn, make([]byte, addrLen+2)); err != nil {
		return
	}

	conn.Write([]byte{0x05, 0x00, 0x00, 0x01, 0, 0, 0, 0, 0, 0})
	time.Sleep(50 * time.Millisecond)
}

func TestDialValidator_CheckSocks5_Success(t *testing.T) {
	ln := fakeSocks5NoAuth(t)
	defer ln.Close()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	v := &DialValidator{Target: "example.com:443", Timeout: 2 * time.Second}
	item := &model.ProxyItem{Endpoint: model.Endpoint{Host: host, Port: port, Protocol: model.ProtocolSocks5}}

	require.True(t, v.Validate(item))
}

func TestDialValidator_CheckSocks5_Failure_WhenUnreachable(t *testing.T) {
	v := &DialValidator{Target: "example.com:443", Timeout: 200 * time.Millisecond}
	item := &model.ProxyItem{Endpoint: model.Endpoint{Host: "127.0.0.1", Port: 1, Protocol: model.ProtocolSocks5}}

	require.False(t, v.Validate(item))
}

func TestNewDialValidator_Defaults(t *testing.T) {
	v := NewDialValidator("", 0)
	require.Equal(t, "www.google.com:443", v.Target)
	require.Equal(t, 5*time.Second, v.Timeout)
}
