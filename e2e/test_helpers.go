package e2e

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

const (
	testPassword = "e2e-password-123"
	ewoqKey      = "PrivateKey-ewoqjP7PxY4yr3iLTpLisriqt94hdyDFNgchSxGGztUrTXtNN"
	ewoqEVM      = "0x8db97C7cEcE249c2b98bDC0226Cc4C2A57BF52FC"
)

var cliBinaryPath string

// buildCLIBinaryForE2E builds a fresh CLI binary for this test run.
func buildCLIBinaryForE2E() (string, func(), error) {
	tempDir, err := os.MkdirTemp("", "keystore-cli-e2e-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	binPath := filepath.Join(tempDir, "keystore")
	cmd := exec.Command("go", "build", "-o", binPath, ".")
	cmd.Dir = ".."
	if out, err := cmd.CombinedOutput(); err != nil {
		_ = os.RemoveAll(tempDir)
		return "", nil, fmt.Errorf("failed to build CLI binary: %w\n%s", err, out)
	}

	cleanup := func() {
		_ = os.RemoveAll(tempDir)
	}
	return binPath, cleanup, nil
}

// cliEnv is an isolated keystore directory plus the environment every command runs with.
type cliEnv struct {
	dir string
	env []string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()

	dir := t.TempDir()
	return &cliEnv{
		dir: dir,
		env: []string{
			"HOME=" + dir,
			"KEYSTORE_DIR=" + filepath.Join(dir, "keystore"),
			"KEYSTORE_KDF_ALGORITHM=pbkdf2-sha256",
			"KEYSTORE_KDF_ITERATIONS=1000",
			"KEYSTORE_PASSWORD=" + testPassword,
		},
	}
}

func (e *cliEnv) command(extraEnv []string, args ...string) *exec.Cmd {
	binPath := cliBinaryPath
	if binPath == "" {
		// Fallback for direct execution without TestMain setup.
		binPath = "../keystore"
	}
	cmd := exec.Command(binPath, args...)
	cmd.Env = append(append(os.Environ(), e.env...), extraEnv...)
	return cmd
}

// run executes the CLI with the given arguments and returns stdout and stderr.
func (e *cliEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return e.runWithEnv(t, nil, args...)
}

func (e *cliEnv) runWithEnv(t *testing.T, extraEnv []string, args ...string) (string, string, error) {
	t.Helper()

	cmd := e.command(extraEnv, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// freeAddress returns a loopback address with a port that was free a moment ago.
func freeAddress(t *testing.T) string {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve port: %v", err)
	}
	addr := lis.Addr().String()
	_ = lis.Close()
	return addr
}
