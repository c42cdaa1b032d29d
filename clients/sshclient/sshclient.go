package sshclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Config describes how to reach the remote host.
type Config struct {
	Host string
	Port int
	User string
	// PrivateKeyPEM is the key used for public key authentication.
	PrivateKeyPEM []byte
	// KnownHostsFile verifies the host key. Empty accepts any key.
	KnownHostsFile string
	DialTimeout    time.Duration
}

// SSHClient manages a persistent SSH connection for running multiple commands.
type SSHClient struct {
	client *ssh.Client
}

// ClientConfig builds the x/crypto/ssh client configuration for cfg.
func ClientConfig(cfg Config) (*ssh.ClientConfig, error) {
	signer, err := ssh.ParsePrivateKey(cfg.PrivateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	hostKey := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHostsFile != "" {
		hostKey, err = knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts: %w", err)
		}
	}

	timeout := cfg.DialTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKey,
		Timeout:         timeout,
	}, nil
}

// New connects to the host described by cfg.
func New(cfg Config) (*SSHClient, error) {
	config, err := ClientConfig(cfg)
	if err != nil {
		return nil, err
	}
	port := cfg.Port
	if port == 0 {
		port = 22
	}
	client, err := ssh.Dial("tcp", net.JoinHostPort(cfg.Host, strconv.Itoa(port)), config)
	if err != nil {
		return nil, fmt.Errorf("failed to dial SSH: %w", err)
	}
	return &SSHClient{client: client}, nil
}

// NewFromKeyFile reads the private key from path and connects.
func NewFromKeyFile(cfg Config, path string) (*SSHClient, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	cfg.PrivateKeyPEM = key
	return New(cfg)
}

// Run executes a command on the remote host using a new session on the existing
// connection. The session is closed if ctx is done before the command exits.
func (c *SSHClient) Run(ctx context.Context, command string) (string, string, error) {
	var stdoutBuf, stderrBuf bytes.Buffer
	err := c.RunWithWriter(ctx, command, &stdoutBuf, &stderrBuf)
	return stdoutBuf.String(), stderrBuf.String(), err
}

// RunWithWriter executes a command on the remote host and streams stdout/stderr to the provided writers.
// If stdoutWriter or stderrWriter is nil, that stream will be discarded.
func (c *SSHClient) RunWithWriter(ctx context.Context, command string, stdoutWriter, stderrWriter io.Writer) error {
	session, err := c.client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create SSH session: %w", err)
	}
	defer session.Close()

	if stdoutWriter != nil {
		session.Stdout = stdoutWriter
	}
	if stderrWriter != nil {
		session.Stderr = stderrWriter
	}

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to run command: %w", err)
		}
		return nil
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		return ctx.Err()
	}
}

// ExitStatus returns the remote exit status carried by err, if any.
func ExitStatus(err error) (int, bool) {
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitStatus(), true
	}
	return 0, false
}

// Close closes the underlying SSH connection.
func (c *SSHClient) Close() error {
	return c.client.Close()
}
