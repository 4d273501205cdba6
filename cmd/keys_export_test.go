package cmd

import (
	"strings"
	"testing"
)

func TestKeysExportUsesEnvPassword(t *testing.T) {
	setupCLI(t)
	importEwoq(t, "env-password-export")

	keyName = "env-password-export"
	keyFormat = "cb58"
	out, err := runCommand(t, func() error { return keysExportCmd.RunE(keysExportCmd, nil) })
	if err != nil {
		t.Fatalf("keys export run error = %v", err)
	}
	if strings.TrimSpace(out) != ewoqKeyStr {
		t.Fatalf("keys export output = %q, want %q", out, ewoqKeyStr)
	}
}

func TestKeysExportHex(t *testing.T) {
	setupCLI(t)
	importEwoq(t, "hexkey")

	keyName = "hexkey"
	keyFormat = "hex"
	out, err := runCommand(t, func() error { return keysExportCmd.RunE(keysExportCmd, nil) })
	if err != nil {
		t.Fatalf("keys export run error = %v", err)
	}
	const want = "0x56289e99c94b6912bfc12adc093c9b51124f0dc54ac7a766b2bc5ccf558d8027"
	if strings.TrimSpace(out) != want {
		t.Fatalf("keys export output = %q, want %q", out, want)
	}
}

func TestKeysExportWrongPassword(t *testing.T) {
	setupCLI(t)
	importEwoq(t, "locked")

	t.Setenv(passwordEnv, "not-the-password")
	keyName = "locked"
	out, err := runCommand(t, func() error { return keysExportCmd.RunE(keysExportCmd, nil) })
	if err == nil || err.Error() != "wrong password" {
		t.Fatalf("keys export error = %v, want wrong password", err)
	}
	if strings.Contains(out, "PrivateKey-") {
		t.Fatalf("keys export printed key material on failure: %q", out)
	}
}

func TestKeysExportRejectsUnknownFormat(t *testing.T) {
	setupCLI(t)

	keyName = "whatever"
	keyFormat = "pem"
	if _, err := runCommand(t, func() error { return keysExportCmd.RunE(keysExportCmd, nil) }); err == nil {
		t.Fatal("keys export expected error for unknown format")
	}
}
