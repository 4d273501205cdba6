package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ava-labs/keystore-cli/pkg/keystore"
	"github.com/ava-labs/keystore-cli/pkg/wallet"
)

func readDocument(t *testing.T, dir string) keystore.State {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(dir, "keys.json"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	var state keystore.State
	if err := json.Unmarshal(data, &state); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	return state
}

func TestKeysImport(t *testing.T) {
	dir := setupCLI(t)

	keyName = "ewoq"
	keyPrivateKey = ewoqKeyStr
	out, err := runCommand(t, func() error { return keysImportCmd.RunE(keysImportCmd, nil) })
	if err != nil {
		t.Fatalf("keys import error = %v", err)
	}
	if !strings.Contains(out, ewoqPChain) {
		t.Errorf("keys import output = %q, want P-Chain address %s", out, ewoqPChain)
	}

	state := readDocument(t, dir)
	if len(state) != 1 {
		t.Fatalf("document has %d entries, want 1", len(state))
	}
	for id, entry := range state {
		if entry.Public.Name != "ewoq" || !entry.Public.Password || !entry.Public.Testnet {
			t.Errorf("public data = %+v", entry.Public)
		}
		if entry.Public.PublicKey != ewoqPChain {
			t.Errorf("PublicKey = %q, want %q", entry.Public.PublicKey, ewoqPChain)
		}
		if entry.Metadata.Algorithm != keystore.AlgorithmPBKDF2SHA256 || entry.Metadata.Iterations != 1000 {
			t.Errorf("metadata = %+v, want configured pbkdf2", entry.Metadata)
		}
		raw, _ := os.ReadFile(filepath.Join(dir, "keys.json"))
		if strings.Contains(string(raw), ewoqKeyStr) || strings.Contains(string(raw), testPassword) {
			t.Error("document contains plaintext secrets")
		}
		if !strings.Contains(out, id) {
			t.Errorf("keys import output does not show key ID %s", id)
		}
	}

	// Names are unique.
	if _, err := runCommand(t, func() error { return keysImportCmd.RunE(keysImportCmd, nil) }); err == nil {
		t.Fatal("second import with same name expected error")
	}
}

func TestKeysImportShortPassword(t *testing.T) {
	setupCLI(t)
	t.Setenv(passwordEnv, "short")

	keyName = "ewoq"
	keyPrivateKey = ewoqKeyStr
	_, err := runCommand(t, func() error { return keysImportCmd.RunE(keysImportCmd, nil) })
	if err == nil || !strings.Contains(err.Error(), "at least 8 characters") {
		t.Fatalf("keys import error = %v, want minimum length error", err)
	}
}

func TestKeysImportUnencrypted(t *testing.T) {
	dir := setupCLI(t)
	t.Setenv(passwordEnv, "")

	keyName = "plain"
	keyPrivateKey = ewoqKeyStr
	keyEncrypt = false
	if _, err := runCommand(t, func() error { return keysImportCmd.RunE(keysImportCmd, nil) }); err != nil {
		t.Fatalf("keys import error = %v", err)
	}
	for _, entry := range readDocument(t, dir) {
		if entry.Public.Password {
			t.Error("unencrypted import recorded a password")
		}
	}

	keyFormat = "cb58"
	out, err := runCommand(t, func() error { return keysExportCmd.RunE(keysExportCmd, nil) })
	if err != nil {
		t.Fatalf("keys export error = %v", err)
	}
	if strings.TrimSpace(out) != ewoqKeyStr {
		t.Fatalf("keys export output = %q", out)
	}
}

func TestKeysGenerate(t *testing.T) {
	dir := setupCLI(t)

	keyName = "fresh"
	out, err := runCommand(t, func() error { return keysGenerateCmd.RunE(keysGenerateCmd, nil) })
	if err != nil {
		t.Fatalf("keys generate error = %v", err)
	}
	if !strings.Contains(out, "Back up your key") {
		t.Errorf("keys generate output = %q, want backup warning", out)
	}

	state := readDocument(t, dir)
	if len(state) != 1 {
		t.Fatalf("document has %d entries, want 1", len(state))
	}

	exported, err := runCommand(t, func() error { return keysExportCmd.RunE(keysExportCmd, nil) })
	if err != nil {
		t.Fatalf("keys export error = %v", err)
	}
	keyBytes, err := wallet.ParsePrivateKey(strings.TrimSpace(exported))
	if err != nil {
		t.Fatalf("exported key does not parse: %v", err)
	}
	addrs, err := wallet.DeriveAddresses(keyBytes)
	if err != nil {
		t.Fatalf("DeriveAddresses() error = %v", err)
	}
	for _, entry := range state {
		if entry.Public.EVMAddress != addrs.EVM.Hex() {
			t.Errorf("EVMAddress = %s, want %s", entry.Public.EVMAddress, addrs.EVM.Hex())
		}
	}
}

func TestKeysListAndShow(t *testing.T) {
	setupCLI(t)

	out, err := runCommand(t, func() error { return keysListCmd.RunE(keysListCmd, nil) })
	if err != nil {
		t.Fatalf("keys list error = %v", err)
	}
	if !strings.Contains(out, "No keys found") {
		t.Errorf("keys list on empty keystore = %q", out)
	}

	importEwoq(t, "bravo")
	keyName = "alpha"
	if _, err := runCommand(t, func() error { return keysGenerateCmd.RunE(keysGenerateCmd, nil) }); err != nil {
		t.Fatalf("keys generate error = %v", err)
	}

	showAddrs = true
	out, err = runCommand(t, func() error { return keysListCmd.RunE(keysListCmd, nil) })
	if err != nil {
		t.Fatalf("keys list error = %v", err)
	}
	if !strings.Contains(out, "Total: 2 key(s)") {
		t.Errorf("keys list output = %q, want total", out)
	}
	if strings.Index(out, "alpha") > strings.Index(out, "bravo") {
		t.Errorf("keys list not sorted by name: %q", out)
	}
	if !strings.Contains(out, ewoqPChain) {
		t.Errorf("keys list --show-addresses missing address: %q", out)
	}

	keyName = "bravo"
	out, err = runCommand(t, func() error { return keysShowCmd.RunE(keysShowCmd, nil) })
	if err != nil {
		t.Fatalf("keys show error = %v", err)
	}
	if !strings.Contains(out, ewoqPChain) || !strings.Contains(out, "testnet") {
		t.Errorf("keys show output = %q", out)
	}
}

func TestKeysRehashHint(t *testing.T) {
	setupCLI(t)
	importEwoq(t, "legacy")

	keyName = "legacy"
	out, err := runCommand(t, func() error { return keysShowCmd.RunE(keysShowCmd, nil) })
	if err != nil {
		t.Fatalf("keys show error = %v", err)
	}
	if strings.Contains(out, "Rehash") {
		t.Errorf("keys show suggested a rehash under unchanged settings: %q", out)
	}

	t.Setenv("KEYSTORE_KDF_ITERATIONS", "2000")
	out, err = runCommand(t, func() error { return keysShowCmd.RunE(keysShowCmd, nil) })
	if err != nil {
		t.Fatalf("keys show error = %v", err)
	}
	if !strings.Contains(out, "Rehash:        recommended") {
		t.Errorf("keys show output = %q, want rehash hint", out)
	}

	out, err = runCommand(t, func() error { return keysListCmd.RunE(keysListCmd, nil) })
	if err != nil {
		t.Fatalf("keys list error = %v", err)
	}
	if !strings.Contains(out, "1 key(s) use weaker encryption settings") {
		t.Errorf("keys list output = %q, want weak key count", out)
	}

	// Re-encrypting under the current settings clears the hint.
	t.Setenv(newPasswordEnv, testPassword)
	if _, err := runCommand(t, func() error { return keysPasswdCmd.RunE(keysPasswdCmd, nil) }); err != nil {
		t.Fatalf("keys passwd error = %v", err)
	}
	out, err = runCommand(t, func() error { return keysShowCmd.RunE(keysShowCmd, nil) })
	if err != nil {
		t.Fatalf("keys show error = %v", err)
	}
	if strings.Contains(out, "Rehash") {
		t.Errorf("keys show after passwd = %q, want no rehash hint", out)
	}
}

func TestKeysLabel(t *testing.T) {
	dir := setupCLI(t)
	importEwoq(t, "old-name")
	before := readDocument(t, dir)

	keyName = "old-name"
	keyNewName = "new-name"
	if _, err := runCommand(t, func() error { return keysLabelCmd.RunE(keysLabelCmd, nil) }); err != nil {
		t.Fatalf("keys label error = %v", err)
	}

	after := readDocument(t, dir)
	for id, entry := range after {
		if entry.Public.Name != "new-name" {
			t.Errorf("Name = %q, want new-name", entry.Public.Name)
		}
		if string(entry.Private) != string(before[id].Private) {
			t.Error("label changed the ciphertext")
		}
	}

	keyName = "new-name"
	keyFormat = "cb58"
	out, err := runCommand(t, func() error { return keysExportCmd.RunE(keysExportCmd, nil) })
	if err != nil {
		t.Fatalf("keys export after label error = %v", err)
	}
	if strings.TrimSpace(out) != ewoqKeyStr {
		t.Fatalf("keys export output = %q", out)
	}

	keyName = "old-name"
	if _, err := runCommand(t, func() error { return keysShowCmd.RunE(keysShowCmd, nil) }); err == nil {
		t.Fatal("keys show old name expected not found")
	}
}

func TestKeysPasswd(t *testing.T) {
	dir := setupCLI(t)
	importEwoq(t, "rotate")

	const newPassword = "another-password"
	t.Setenv(newPasswordEnv, newPassword)
	keyName = "rotate"
	if _, err := runCommand(t, func() error { return keysPasswdCmd.RunE(keysPasswdCmd, nil) }); err != nil {
		t.Fatalf("keys passwd error = %v", err)
	}

	// The old password no longer works.
	if _, err := runCommand(t, func() error { return keysExportCmd.RunE(keysExportCmd, nil) }); err == nil || err.Error() != "wrong password" {
		t.Fatalf("export with old password error = %v, want wrong password", err)
	}

	t.Setenv(passwordEnv, newPassword)
	keyFormat = "cb58"
	out, err := runCommand(t, func() error { return keysExportCmd.RunE(keysExportCmd, nil) })
	if err != nil {
		t.Fatalf("export with new password error = %v", err)
	}
	if strings.TrimSpace(out) != ewoqKeyStr {
		t.Fatalf("keys export output = %q", out)
	}

	keyRemovePass = true
	if _, err := runCommand(t, func() error { return keysPasswdCmd.RunE(keysPasswdCmd, nil) }); err != nil {
		t.Fatalf("keys passwd --remove error = %v", err)
	}
	for _, entry := range readDocument(t, dir) {
		if entry.Public.Password {
			t.Error("password flag still set after --remove")
		}
	}

	t.Setenv(passwordEnv, "")
	if _, err := runCommand(t, func() error { return keysExportCmd.RunE(keysExportCmd, nil) }); err != nil {
		t.Fatalf("export without password error = %v", err)
	}
}

func TestKeysDelete(t *testing.T) {
	dir := setupCLI(t)
	importEwoq(t, "doomed")

	keyName = "doomed"
	keyForce = true
	out, err := runCommand(t, func() error { return keysDeleteCmd.RunE(keysDeleteCmd, nil) })
	if err != nil {
		t.Fatalf("keys delete error = %v", err)
	}
	if !strings.Contains(out, "deleted successfully") {
		t.Errorf("keys delete output = %q", out)
	}
	if n := len(readDocument(t, dir)); n != 0 {
		t.Fatalf("document has %d entries after delete, want 0", n)
	}

	_, err = runCommand(t, func() error { return keysDeleteCmd.RunE(keysDeleteCmd, nil) })
	if err == nil || err.Error() != `key "doomed" not found` {
		t.Fatalf("second delete error = %v, want not found", err)
	}
}

func TestSignCommand(t *testing.T) {
	setupCLI(t)
	importEwoq(t, "signer")

	keyName = "signer"
	signMessage = "hello"
	out, err := runCommand(t, func() error { return signCmd.RunE(signCmd, nil) })
	if err != nil {
		t.Fatalf("sign error = %v", err)
	}

	sig, err := decodeHex(out)
	if err != nil || len(sig) != 65 {
		t.Fatalf("sign output %q: %d bytes, %v", out, len(sig), err)
	}
	signer, err := wallet.RecoverSigner(wallet.PersonalMessageHash([]byte("hello")), sig)
	if err != nil {
		t.Fatalf("RecoverSigner() error = %v", err)
	}
	keyBytes, _ := wallet.ParsePrivateKey(ewoqKeyStr)
	addrs, _ := wallet.DeriveAddresses(keyBytes)
	if signer != addrs.PChain {
		t.Fatalf("signature recovers %s, want %s", signer, addrs.PChain)
	}

	t.Setenv(passwordEnv, "wrong-password")
	if _, err := runCommand(t, func() error { return signCmd.RunE(signCmd, nil) }); err == nil || err.Error() != "wrong password" {
		t.Fatalf("sign with wrong password error = %v", err)
	}
}
