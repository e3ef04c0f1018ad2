package transport

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"math/big"
	"net"
	"time"

	"github.com/quic-go/quic-go"
)

// Listener accepts stream connections for the server.
type Listener interface {
	// Accept waits for the next connection or for ctx to end.
	Accept(ctx context.Context) (Conn, error)
	Close() error
	Addr() net.Addr
}

type tcpListener struct {
	ln *net.TCPListener
}

// ListenTCP listens for length-prefixed stream connections on addr.
func ListenTCP(addr string) (Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &tcpListener{ln: ln.(*net.TCPListener)}, nil
}

func (l *tcpListener) Accept(ctx context.Context) (Conn, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = l.ln.SetDeadline(time.Now())
	})
	defer stop()

	c, err := l.ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			_ = l.ln.SetDeadline(time.Time{})
			return nil, ctx.Err()
		}
		return nil, err
	}
	return NewStreamConn(c), nil
}

func (l *tcpListener) Close() error   { return l.ln.Close() }
func (l *tcpListener) Addr() net.Addr { return l.ln.Addr() }

// StreamAcceptTimeout bounds how long an accepted QUIC connection may wait
// before its client opens the stream.
var StreamAcceptTimeout = 10 * time.Second

type quicListener struct {
	ln    *quic.Listener
	conns chan Conn
	done  chan struct{}
	err   error // set before done is closed
}

// ListenQUIC listens for QUIC connections on the UDP address addr. Each
// connection carries one bidirectional stream opened by the client.
func ListenQUIC(addr string, tlsConf *tls.Config) (Listener, error) {
	if tlsConf == nil {
		return nil, errors.New("quic listener requires a TLS config")
	}
	tlsConf = tlsConf.Clone()
	tlsConf.NextProtos = []string{ALPN}
	ln, err := quic.ListenAddr(addr, tlsConf, &quic.Config{KeepAlivePeriod: 15 * time.Second})
	if err != nil {
		return nil, err
	}
	l := &quicListener{
		ln:    ln,
		conns: make(chan Conn),
		done:  make(chan struct{}),
	}
	go l.acceptLoop()
	return l, nil
}

// acceptLoop hands each connection to its own goroutine so a peer that
// never opens a stream cannot hold up the others.
func (l *quicListener) acceptLoop() {
	for {
		qc, err := l.ln.Accept(context.Background())
		if err != nil {
			l.err = err
			close(l.done)
			return
		}
		go l.acceptStream(qc)
	}
}

func (l *quicListener) acceptStream(qc *quic.Conn) {
	ctx, cancel := context.WithTimeout(qc.Context(), StreamAcceptTimeout)
	defer cancel()

	stream, err := qc.AcceptStream(ctx)
	if err != nil {
		_ = qc.CloseWithError(0, "no stream")
		return
	}
	conn := newQUICConn(qc, stream)
	select {
	case l.conns <- conn:
	case <-l.done:
		_ = conn.Close()
	}
}

func (l *quicListener) Accept(ctx context.Context) (Conn, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.done:
		return nil, l.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *quicListener) Close() error   { return l.ln.Close() }
func (l *quicListener) Addr() net.Addr { return l.ln.Addr() }

// SelfSignedTLS returns a server TLS config with a fresh self-signed
// certificate for hosts. Clients must connect with verification disabled.
func SelfSignedTLS(hosts ...string) (*tls.Config, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return nil, err
	}
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"noirtty"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, h := range hosts {
		if h == "" {
			continue
		}
		if ip := net.ParseIP(h); ip != nil {
			tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
		} else {
			tmpl.DNSNames = append(tmpl.DNSNames, h)
		}
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key}},
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// LoadTLS reads a certificate and key pair from PEM files.
func LoadTLS(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, err
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS13}, nil
}
