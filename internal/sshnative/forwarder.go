// Package sshnative forwards tunnels in-process via golang.org/x/crypto/ssh.
//
// Unlike the exec driver, a native tunnel lives and dies with the owning
// process: the dashboard and library consumers get deterministic teardown
// without orphaned ssh children, at the cost of tunnels not surviving the
// process. The manager's runtime reload deliberately skips native entries.
package sshnative

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/kthomann/dbtunnel/internal/model"
	"github.com/kthomann/dbtunnel/internal/tunnel"
	"github.com/kthomann/dbtunnel/internal/util"
)

// DialTimeout bounds the TCP+SSH handshake to the bastion.
const DialTimeout = 10 * time.Second

// Launcher opens in-process SSH forwarders.
type Launcher struct {
	// HostKeyCallback overrides host key verification. Defaults to
	// accepting any key, matching the exec driver's accept-new posture for
	// first contact with ephemeral bastions.
	HostKeyCallback ssh.HostKeyCallback
}

// NewLauncher creates a native-driver launcher.
func NewLauncher() *Launcher { return &Launcher{} }

// Driver identifies this launcher's mechanism.
func (l *Launcher) Driver() model.Driver { return model.DriverNative }

// Launch authenticates to the bastion with the spec's private key, binds the
// loopback listener, and starts relaying connections to the database
// endpoint. Auth and dial failures surface as ConnectError, an occupied
// local port as BindError.
func (l *Launcher) Launch(ctx context.Context, spec model.TunnelSpec) (tunnel.Proc, error) {
	signer, err := loadSigner(spec.KeyPath)
	if err != nil {
		return nil, &tunnel.ConnectError{Target: spec.BastionTarget(), Err: err}
	}

	hostKey := l.HostKeyCallback
	if hostKey == nil {
		hostKey = ssh.InsecureIgnoreHostKey()
	}
	cfg := &ssh.ClientConfig{
		User:            spec.BastionUser,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKey,
		Timeout:         DialTimeout,
	}

	client, err := ssh.Dial("tcp", bastionAddr(spec.BastionHost), cfg)
	if err != nil {
		return nil, &tunnel.ConnectError{Target: spec.BastionTarget(), Err: err}
	}

	ln, err := net.Listen("tcp", util.LoopbackAddr(spec.LocalPort))
	if err != nil {
		_ = client.Close()
		return nil, &tunnel.BindError{Port: spec.LocalPort, Err: err}
	}

	f := &Forwarder{
		client:     client,
		listener:   ln,
		remoteAddr: spec.RemoteAddr(),
		done:       make(chan struct{}),
	}
	go f.acceptLoop()
	return f, nil
}

// Forwarder relays loopback connections through an SSH client connection to
// the remote database endpoint.
type Forwarder struct {
	client     *ssh.Client
	listener   net.Listener
	remoteAddr string

	done     chan struct{}
	stopOnce sync.Once
}

func (f *Forwarder) acceptLoop() {
	for {
		conn, err := f.listener.Accept()
		if err != nil {
			// Listener closed by Stop, or the SSH transport collapsed.
			f.shutdown()
			return
		}
		go f.relay(conn)
	}
}

func (f *Forwarder) relay(local net.Conn) {
	remote, err := f.client.Dial("tcp", f.remoteAddr)
	if err != nil {
		// Mirror ssh -L behavior: accept locally, close when the far
		// side is unreachable. Test() reads this as an immediate EOF.
		_ = local.Close()
		return
	}
	go func() {
		defer remote.Close()
		_, _ = io.Copy(remote, local)
	}()
	go func() {
		defer local.Close()
		_, _ = io.Copy(local, remote)
	}()
}

func (f *Forwarder) shutdown() {
	f.stopOnce.Do(func() {
		_ = f.listener.Close()
		_ = f.client.Close()
		close(f.done)
	})
}

// PID returns 0: there is no child process.
func (f *Forwarder) PID() int { return 0 }

// Alive reports whether the forwarder is still accepting connections.
func (f *Forwarder) Alive() bool {
	select {
	case <-f.done:
		return false
	default:
		return true
	}
}

// Done is closed once the listener and SSH connection are released.
func (f *Forwarder) Done() <-chan struct{} { return f.done }

// Err returns nil: native forwarders fail at Launch or stay up until Stop.
func (f *Forwarder) Err() error { return nil }

// Stop releases the listener and SSH connection. Idempotent.
func (f *Forwarder) Stop() error {
	f.shutdown()
	return nil
}

func loadSigner(keyPath string) (ssh.Signer, error) {
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return signer, nil
}

func bastionAddr(host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, "22")
}

var _ tunnel.Launcher = (*Launcher)(nil)
var _ tunnel.Proc = (*Forwarder)(nil)
