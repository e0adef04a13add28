package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sufield/mvrp/internal/buildinfo"
	mvrperrors "github.com/sufield/mvrp/internal/core/errors"
	"github.com/sufield/mvrp/internal/testing/pki"
	"github.com/sufield/mvrp/pkg/mvrp"
)

// lockedBuffer lets a test read output a running command is still writing.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func run(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err = Execute(context.Background(), args, &out, &errOut)
	return out.String(), errOut.String(), err
}

func TestRootCmd(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		args       []string
		wantCode   int
		wantOutput string
	}{
		{name: "no arguments shows help", args: []string{}, wantCode: ExitSuccess, wantOutput: "Serve and send MVRP requests over mutual TLS"},
		{name: "help flag", args: []string{"--help"}, wantCode: ExitSuccess, wantOutput: "Available Commands"},
		{name: "short help flag", args: []string{"-h"}, wantCode: ExitSuccess, wantOutput: "request"},
		{name: "invalid command", args: []string{"invalid-command"}, wantCode: ExitUsage},
		{name: "unknown flag", args: []string{"version", "--nope"}, wantCode: ExitUsage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			stdout, stderr, err := run(t, tt.args...)
			assert.Equal(t, tt.wantCode, ExitCode(err), "stderr: %s", stderr)
			if tt.wantOutput != "" {
				assert.Contains(t, stdout, tt.wantOutput)
			}
			if err != nil {
				assert.True(t, strings.HasPrefix(stderr, "Error: "), stderr)
			}
		})
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	t.Parallel()

	cmd := NewRootCommand()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "request", "version", "man"} {
		assert.Contains(t, names, want)
	}
}

func TestVersionCmd(t *testing.T) {
	t.Parallel()

	want := buildinfo.Get()

	t.Run("text", func(t *testing.T) {
		t.Parallel()
		stdout, _, err := run(t, "version")
		require.NoError(t, err)
		assert.Contains(t, stdout, "Version: "+want.Version)
		assert.Contains(t, stdout, "Platform: "+want.Platform)
	})

	t.Run("json", func(t *testing.T) {
		t.Parallel()
		stdout, _, err := run(t, "version", "--format", "json")
		require.NoError(t, err)
		var got buildinfo.Info
		require.NoError(t, json.Unmarshal([]byte(stdout), &got))
		assert.Equal(t, want, got)
	})

	t.Run("yaml", func(t *testing.T) {
		t.Parallel()
		stdout, _, err := run(t, "version", "-f", "yaml")
		require.NoError(t, err)
		var got buildinfo.Info
		require.NoError(t, yaml.Unmarshal([]byte(stdout), &got))
		assert.Equal(t, want, got)
	})

	t.Run("unsupported", func(t *testing.T) {
		t.Parallel()
		_, stderr, err := run(t, "version", "--format", "xml")
		assert.Equal(t, ExitUsage, ExitCode(err))
		assert.Contains(t, stderr, "unsupported format")
	})
}

func TestManCmd(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, stderr, err := run(t, "man", dir)
	require.NoError(t, err)
	assert.Contains(t, stderr, dir)

	matches, err := filepath.Glob(filepath.Join(dir, "mvrp*.1"))
	require.NoError(t, err)
	assert.NotEmpty(t, matches)
}

func TestRequestCmd_Usage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
	}{
		{name: "no arguments", args: []string{"request"}},
		{name: "method only", args: []string{"request", "READ"}},
		{name: "too many", args: []string{"request", "READ", "/a", "b", "c"}},
		{name: "bad format", args: []string{"request", "READ", "/a", "--format", "xml"}},
		{name: "body mode is a server flag", args: []string{"request", "READ", "/a", "--body-mode", "content-length"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, _, err := run(t, tt.args...)
			assert.Equal(t, ExitUsage, ExitCode(err))
		})
	}
}

func TestRequestCmd_MissingIdentityIsConfigError(t *testing.T) {
	t.Parallel()

	_, stderr, err := run(t, "request", "READ", "/a", "--address", "127.0.0.1:1", "--key", filepath.Join(t.TempDir(), "absent.pem"))
	assert.Equal(t, ExitConfig, ExitCode(err))
	assert.ErrorIs(t, err, mvrperrors.ErrConfig)
	assert.Contains(t, stderr, "key_file")
}

func TestServeCmd_ConfigErrors(t *testing.T) {
	t.Parallel()

	ca := pki.NewAuthority(t, "mvrp")
	server := ca.Issue(t, "server", pki.LeafOptions{})
	other := ca.Issue(t, "other", pki.LeafOptions{})

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "no address", args: []string{"serve", "--key", server.KeyFile, "--cert", server.CertFile}, want: "address"},
		{name: "no identity", args: []string{"serve", "--address", "127.0.0.1:0"}, want: "key_file"},
		{name: "bad client auth", args: []string{"serve", "--address", "127.0.0.1:0", "--key", server.KeyFile, "--cert", server.CertFile, "--client-auth", "maybe"}, want: "client_auth"},
		{name: "mismatched key", args: []string{"serve", "--address", "127.0.0.1:0", "--key", other.KeyFile, "--cert", server.CertFile}},
		{name: "bad log level", args: []string{"serve", "--address", "127.0.0.1:0", "--key", server.KeyFile, "--cert", server.CertFile, "--log-level", "loud"}, want: "level"},
		{name: "missing config file", args: []string{"serve", "--config", filepath.Join(t.TempDir(), "absent.yaml")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, stderr, err := run(t, tt.args...)
			assert.Equal(t, ExitConfig, ExitCode(err), "stderr: %s", stderr)
			if tt.want != "" {
				assert.Contains(t, stderr, tt.want)
			}
		})
	}
}

func TestServeCmd_StopsOnCancel(t *testing.T) {
	t.Parallel()

	ca := pki.NewAuthority(t, "mvrp")
	server := ca.Issue(t, "server", pki.LeafOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stdout, stderr lockedBuffer
	done := make(chan error, 1)
	go func() {
		done <- Execute(ctx, []string{
			"serve",
			"--address", "127.0.0.1:0",
			"--key", server.KeyFile,
			"--cert", server.CertFile,
			"--log-format", "json",
		}, &stdout, &stderr)
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(stderr.String(), "MVRP server listening")
	}, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err, stderr.String())
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop after cancellation")
	}
	assert.Contains(t, stderr.String(), "Graceful shutdown completed successfully")
	assert.Contains(t, stderr.String(), "Final connection counts")
}

func TestServeCmd_MetricsAddressInUse(t *testing.T) {
	t.Parallel()

	ca := pki.NewAuthority(t, "mvrp")
	server := ca.Issue(t, "server", pki.LeafOptions{})

	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	_, stderr, err := run(t,
		"serve",
		"--address", "127.0.0.1:0",
		"--key", server.KeyFile,
		"--cert", server.CertFile,
		"--metrics-address", taken.Addr().String(),
	)
	assert.Equal(t, ExitRuntime, ExitCode(err))
	assert.Contains(t, stderr, "metrics address")
	assert.NotContains(t, stderr, "MVRP server listening")
}

func TestRequestCmd_AgainstServer(t *testing.T) {
	t.Parallel()

	ca := pki.NewAuthority(t, "mvrp")
	server := ca.Issue(t, "server", pki.LeafOptions{})
	client := ca.Issue(t, "client", pki.LeafOptions{})

	srv, err := mvrp.NewServer(&mvrp.ServerConfig{Address: "127.0.0.1:0", KeyFile: server.KeyFile, CertFile: server.CertFile})
	require.NoError(t, err)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		sctx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		assert.NoError(t, srv.Shutdown(sctx))
		assert.NoError(t, <-served)
	})

	base := []string{
		"--address", ln.Addr().String(),
		"--key", client.KeyFile,
		"--cert", client.CertFile,
		"--ca", ca.CAFile,
		"--read-timeout", "5s",
	}

	t.Run("raw", func(t *testing.T) {
		stdout, stderr, err := run(t, append([]string{"request", "READ", "/widgets/7"}, base...)...)
		require.NoError(t, err, stderr)
		assert.Equal(t, "MVRP/1.0 200 OK\r\nContent-Type: text/plain\r\n\r\nResource read\n", stdout)
	})

	t.Run("json", func(t *testing.T) {
		stdout, stderr, err := run(t, append([]string{"request", "CREATE", "/notes", "hello", "--format", "json"}, base...)...)
		require.NoError(t, err, stderr)
		var got responseView
		require.NoError(t, json.Unmarshal([]byte(stdout), &got))
		assert.Equal(t, responseView{
			Version:     "MVRP/1.0",
			Code:        201,
			Reason:      "Created",
			ContentType: "text/plain",
			Body:        "Resource created\n",
		}, got)
	})

	t.Run("yaml", func(t *testing.T) {
		stdout, stderr, err := run(t, append([]string{"request", "DELETE", "/notes/1", "--format", "yaml"}, base...)...)
		require.NoError(t, err, stderr)
		var got responseView
		require.NoError(t, yaml.Unmarshal([]byte(stdout), &got))
		assert.Equal(t, 405, got.Code)
		assert.Equal(t, "Method Not Allowed", got.Reason)
	})

	t.Run("wrong server name", func(t *testing.T) {
		_, _, err := run(t, append([]string{"request", "READ", "/a", "--server-name", "elsewhere.test"}, base...)...)
		assert.Equal(t, ExitRuntime, ExitCode(err))
		assert.True(t, errors.Is(err, mvrperrors.ErrHandshake), "got %v", err)
	})
}
