package remote

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/aidar/tenant-purge/internal/config"
)

func joinCommand(cmd string, args []string) string {
	if len(args) == 0 {
		return shellEscape(cmd)
	}

	var builder strings.Builder
	builder.WriteString(shellEscape(cmd))
	for _, arg := range args {
		builder.WriteByte(' ')
		builder.WriteString(shellEscape(arg))
	}

	return builder.String()
}

func shellEscape(value string) string {
	if value == "" {
		return "''"
	}

	return "'" + strings.ReplaceAll(value, "'", `'"'"'`) + "'"
}

// SSHRunner runs one command per connection on the target host
type SSHRunner struct {
	Port                        string
	User                        string
	KeyPath                     string
	Passphrase                  []byte
	KnownHostsPath              string
	InsecureSkipHostKeyChecking bool
	Timeout                     time.Duration
}

// NewSSHRunner creates an SSHRunner from the SSH settings
func NewSSHRunner(cfg config.SSHConfig) SSHRunner {
	var passphrase []byte
	if cfg.KeyPassphrase != "" {
		passphrase = []byte(cfg.KeyPassphrase)
	}
	return SSHRunner{
		Port:                        cfg.Port,
		User:                        cfg.User,
		KeyPath:                     cfg.KeyPath,
		Passphrase:                  passphrase,
		KnownHostsPath:              cfg.KnownHostsPath,
		InsecureSkipHostKeyChecking: cfg.InsecureSkipHostKey,
		Timeout:                     cfg.Timeout,
	}
}

// Run executes cmd on host and returns its combined output. Cancelling ctx
// tears the connection down; whatever the host already did stays done.
func (r SSHRunner) Run(ctx context.Context, host, cmd string, args []string) (string, error) {
	client, err := r.dial(ctx, host)
	if err != nil {
		return "", err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", err
	}
	defer session.Close()

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := session.CombinedOutput(joinCommand(cmd, args))
		done <- result{out: out, err: err}
	}()

	select {
	case <-ctx.Done():
		client.Close()
		return "", ctx.Err()
	case res := <-done:
		return string(res.out), res.err
	}
}

func (r SSHRunner) dial(ctx context.Context, host string) (*ssh.Client, error) {
	address, err := r.address(host)
	if err != nil {
		return nil, err
	}

	clientCfg, err := r.clientConfig()
	if err != nil {
		return nil, err
	}

	dialer := net.Dialer{Timeout: r.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, address, clientCfg)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return ssh.NewClient(clientConn, chans, reqs), nil
}

func (r SSHRunner) address(host string) (string, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return "", fmt.Errorf("ssh host is required")
	}

	if _, _, err := net.SplitHostPort(host); err == nil {
		return host, nil
	}

	if r.Port != "" {
		return net.JoinHostPort(host, r.Port), nil
	}

	return net.JoinHostPort(host, "22"), nil
}

func (r SSHRunner) clientConfig() (*ssh.ClientConfig, error) {
	if r.User == "" {
		return nil, fmt.Errorf("ssh user is required")
	}

	signer, err := r.signer()
	if err != nil {
		return nil, err
	}

	var hostKeyCallback ssh.HostKeyCallback
	if r.InsecureSkipHostKeyChecking {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	} else {
		callback, err := r.knownHostsCallback()
		if err != nil {
			return nil, err
		}
		hostKeyCallback = callback
	}

	return &ssh.ClientConfig{
		User:            r.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         r.Timeout,
	}, nil
}

func (r SSHRunner) signer() (ssh.Signer, error) {
	if r.KeyPath == "" {
		return nil, fmt.Errorf("ssh key path is required")
	}

	privateKey, err := os.ReadFile(r.KeyPath)
	if err != nil {
		return nil, err
	}

	if len(r.Passphrase) > 0 {
		return ssh.ParsePrivateKeyWithPassphrase(privateKey, r.Passphrase)
	}

	return ssh.ParsePrivateKey(privateKey)
}

func (r SSHRunner) knownHostsCallback() (ssh.HostKeyCallback, error) {
	path := strings.TrimSpace(r.KnownHostsPath)
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("known hosts path not set and home dir unavailable")
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}

	return knownhosts.New(path)
}
