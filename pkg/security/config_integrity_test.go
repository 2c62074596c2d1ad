package security

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/cuemby/uiwarden/pkg/events"
	"github.com/cuemby/uiwarden/pkg/log"
	"github.com/cuemby/uiwarden/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects published events
type recorder struct {
	events []*events.Event
}

func (r *recorder) Publish(e *events.Event) {
	r.events = append(r.events, e)
}

func (r *recorder) eventTypes() []events.EventType {
	var out []events.EventType
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestSignAndVerifyConfig(t *testing.T) {
	kv, pair := testVault(t)
	path := writeConfig(t, `{"version":"1.0"}`)
	rec := &recorder{}

	ci := NewConfigIntegrity(ConfigIntegrityOptions{
		ConfigPath: path,
		Keys:       kv,
		Logger:     log.Nop(),
		Events:     rec,
	})

	sig, err := ci.SignConfig(testPrivatePassword, false)
	require.NoError(t, err)
	assert.Equal(t, SignatureAlgorithm, sig.Algorithm)
	assert.Equal(t, pair.Thumbprint, sig.Thumbprint)
	assert.Equal(t, hashBytes([]byte(`{"version":"1.0"}`)), sig.ConfigHash)
	assert.FileExists(t, path+".sig")

	verified, err := ci.VerifyConfig(testPublicPassword)
	require.NoError(t, err)
	assert.False(t, verified.Bypassed)
	assert.Equal(t, `{"version":"1.0"}`, string(verified.Raw))
	assert.JSONEq(t, `"1.0"`, string(verified.Document["version"]))
	assert.Equal(t, []events.EventType{events.EventConfigSigned, events.EventConfigVerified}, rec.eventTypes())

	// Verification is repeatable
	_, err = ci.VerifyConfig(testPublicPassword)
	require.NoError(t, err)

	// One changed character
	require.NoError(t, os.WriteFile(path, []byte(`{"version":"1.1"}`), 0644))
	_, err = ci.VerifyConfig(testPublicPassword)
	assert.ErrorIs(t, err, ErrConfigHashMismatch)
	assert.Equal(t, "CONFIG_HASH_MISMATCH", ErrorCode(err))
	assert.Equal(t, events.EventConfigRejected, rec.events[len(rec.events)-1].Type)
}

func TestVerifyConfigHashCheckedBeforeKeys(t *testing.T) {
	kv, _ := testVault(t)
	path := writeConfig(t, `{"a":1}`)

	signer := NewConfigIntegrity(ConfigIntegrityOptions{ConfigPath: path, Keys: kv, Logger: log.Nop()})
	_, err := signer.SignConfig(testPrivatePassword, false)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{"a":2}`), 0644))

	// A vault with no keys at all still yields the hash mismatch
	noKeys := NewKeyVault(KeyVaultOptions{Dir: t.TempDir(), Logger: log.Nop()})
	verifier := NewConfigIntegrity(ConfigIntegrityOptions{ConfigPath: path, Keys: noKeys, Logger: log.Nop()})
	_, err = verifier.VerifyConfig("wrong password")
	assert.ErrorIs(t, err, ErrConfigHashMismatch)
}

func TestVerifyConfigFailures(t *testing.T) {
	kv, _ := testVault(t)

	signed := func(t *testing.T, content string) (*ConfigIntegrity, string) {
		path := writeConfig(t, content)
		ci := NewConfigIntegrity(ConfigIntegrityOptions{ConfigPath: path, Keys: kv, Logger: log.Nop()})
		_, err := ci.SignConfig(testPrivatePassword, false)
		require.NoError(t, err)
		return ci, path
	}

	editSignature := func(t *testing.T, path string, edit func(*types.ConfigSignature)) {
		data, err := os.ReadFile(path + ".sig")
		require.NoError(t, err)
		var sig types.ConfigSignature
		require.NoError(t, json.Unmarshal(data, &sig))
		edit(&sig)
		data, err = json.Marshal(sig)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path+".sig", data, 0644))
	}

	t.Run("config not found", func(t *testing.T) {
		ci := NewConfigIntegrity(ConfigIntegrityOptions{
			ConfigPath: filepath.Join(t.TempDir(), "missing.json"),
			Keys:       kv,
			Logger:     log.Nop(),
		})
		_, err := ci.VerifyConfig(testPublicPassword)
		assert.ErrorIs(t, err, ErrConfigNotFound)
	})

	t.Run("signature not found", func(t *testing.T) {
		path := writeConfig(t, `{}`)
		ci := NewConfigIntegrity(ConfigIntegrityOptions{ConfigPath: path, Keys: kv, Logger: log.Nop()})
		_, err := ci.VerifyConfig(testPublicPassword)
		assert.ErrorIs(t, err, ErrSignatureNotFound)
	})

	t.Run("signature corrupted", func(t *testing.T) {
		ci, path := signed(t, `{"x":true}`)
		require.NoError(t, os.WriteFile(path+".sig", []byte("{garbage"), 0644))
		_, err := ci.VerifyConfig(testPublicPassword)
		assert.ErrorIs(t, err, ErrSignatureCorrupted)
	})

	t.Run("signature bytes altered", func(t *testing.T) {
		ci, path := signed(t, `{"x":true}`)
		editSignature(t, path, func(sig *types.ConfigSignature) {
			raw, err := base64.StdEncoding.DecodeString(sig.Signature)
			require.NoError(t, err)
			raw[10] ^= 0xff
			sig.Signature = base64.StdEncoding.EncodeToString(raw)
		})
		_, err := ci.VerifyConfig(testPublicPassword)
		assert.ErrorIs(t, err, ErrSignatureInvalid)
	})

	t.Run("thumbprint mismatch", func(t *testing.T) {
		ci, path := signed(t, `{"x":true}`)
		editSignature(t, path, func(sig *types.ConfigSignature) {
			sig.Thumbprint = "0000000000000000000000000000000000000000000000000000000000000000"
		})
		_, err := ci.VerifyConfig(testPublicPassword)
		assert.ErrorIs(t, err, ErrSignatureKeyMismatch)
	})

	t.Run("unsupported algorithm", func(t *testing.T) {
		ci, path := signed(t, `{"x":true}`)
		editSignature(t, path, func(sig *types.ConfigSignature) {
			sig.Algorithm = "HMAC-MD5"
		})
		_, err := ci.VerifyConfig(testPublicPassword)
		assert.ErrorIs(t, err, ErrSignatureInvalid)
	})

	t.Run("body not a json object", func(t *testing.T) {
		ci, _ := signed(t, `[1,2,3]`)
		_, err := ci.VerifyConfig(testPublicPassword)
		assert.ErrorIs(t, err, ErrConfigMalformed)
	})

	t.Run("wrong public password", func(t *testing.T) {
		ci, _ := signed(t, `{"x":true}`)
		_, err := ci.VerifyConfig("wrong")
		assert.ErrorIs(t, err, ErrDecryptionFailed)
	})
}

func TestSignConfigWithBinaryHashes(t *testing.T) {
	kv, _ := testVault(t)

	binDir := t.TempDir()
	helperPath := filepath.Join(binDir, "helper.exe")
	require.NoError(t, os.WriteFile(helperPath, []byte("helper binary v1"), 0755))

	checker := NewBinaryIntegrityChecker(BinaryIntegrityOptions{BaseDir: binDir, Logger: log.Nop()})
	path := writeConfig(t, `{"version":"1.0","devMode":false}`)
	ci := NewConfigIntegrity(ConfigIntegrityOptions{
		ConfigPath:  path,
		Keys:        kv,
		Binaries:    checker,
		BinaryPaths: map[string]string{"helper": "helper.exe"},
		Logger:      log.Nop(),
	})

	sig, err := ci.SignConfig(testPrivatePassword, true)
	require.NoError(t, err)

	// The signature covers the rewritten file
	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, hashBytes(onDisk), sig.ConfigHash)
	assert.Contains(t, string(onDisk), BinaryHashesField)

	verified, err := ci.VerifyConfig(testPublicPassword)
	require.NoError(t, err)
	require.Contains(t, verified.BinaryHashes, "helper")
	assert.Equal(t, "helper.exe", verified.BinaryHashes["helper"].Path)
	assert.Equal(t, int64(len("helper binary v1")), verified.BinaryHashes["helper"].Size)

	results := ci.VerifyBinaries(verified)
	require.Len(t, results, 1)
	assert.True(t, results["helper"].Valid)

	require.NoError(t, os.WriteFile(helperPath, []byte("helper binary v2"), 0755))
	results = ci.VerifyBinaries(verified)
	assert.False(t, results["helper"].Valid)
	assert.Equal(t, types.IntegrityHashMismatch, results["helper"].Kind)

	require.NoError(t, os.Remove(helperPath))
	results = ci.VerifyBinaries(verified)
	assert.False(t, results["helper"].Valid)
	assert.Equal(t, types.IntegrityNotFound, results["helper"].Kind)
}

func TestSignConfigMissingBinary(t *testing.T) {
	kv, _ := testVault(t)
	path := writeConfig(t, `{}`)

	ci := NewConfigIntegrity(ConfigIntegrityOptions{
		ConfigPath:  path,
		Keys:        kv,
		Binaries:    NewBinaryIntegrityChecker(BinaryIntegrityOptions{BaseDir: t.TempDir(), Logger: log.Nop()}),
		BinaryPaths: map[string]string{"helper": "missing.exe"},
		Logger:      log.Nop(),
	})

	_, err := ci.SignConfig(testPrivatePassword, true)
	assert.ErrorIs(t, err, ErrBinaryNotFound)
	assert.NoFileExists(t, path+".sig")
}

func TestSignConfigWrongPrivatePassword(t *testing.T) {
	kv, _ := testVault(t)
	path := writeConfig(t, `{}`)

	ci := NewConfigIntegrity(ConfigIntegrityOptions{ConfigPath: path, Keys: kv, Logger: log.Nop()})
	_, err := ci.SignConfig("wrong", false)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
	assert.NoFileExists(t, path+".sig")
}

func TestFailedResignKeepsSignedConfig(t *testing.T) {
	kv, _ := testVault(t)

	binDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(binDir, "helper.exe"), []byte("helper binary v1"), 0755))
	path := writeConfig(t, `{"version":"1.0"}`)

	newCI := func(keys *KeyVault) *ConfigIntegrity {
		return NewConfigIntegrity(ConfigIntegrityOptions{
			ConfigPath:  path,
			Keys:        keys,
			Binaries:    NewBinaryIntegrityChecker(BinaryIntegrityOptions{BaseDir: binDir, Logger: log.Nop()}),
			BinaryPaths: map[string]string{"helper": "helper.exe"},
			Logger:      log.Nop(),
		})
	}
	ci := newCI(kv)
	_, err := ci.SignConfig(testPrivatePassword, false)
	require.NoError(t, err)

	configBefore, err := os.ReadFile(path)
	require.NoError(t, err)
	sigBefore, err := os.ReadFile(path + ".sig")
	require.NoError(t, err)

	assertUntouched := func(t *testing.T) {
		t.Helper()
		configAfter, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, configBefore, configAfter)
		sigAfter, err := os.ReadFile(path + ".sig")
		require.NoError(t, err)
		assert.Equal(t, sigBefore, sigAfter)

		_, err = ci.VerifyConfig(testPublicPassword)
		assert.NoError(t, err)
	}

	t.Run("wrong private password", func(t *testing.T) {
		_, err := ci.SignConfig("wrong", true)
		assert.ErrorIs(t, err, ErrDecryptionFailed)
		assertUntouched(t)
	})

	t.Run("certificate missing", func(t *testing.T) {
		// Same key files, no certificate next to them
		dir := t.TempDir()
		for _, name := range []string{PublicKeyFile, PrivateKeyFile} {
			data, err := os.ReadFile(filepath.Join(kv.Dir(), name))
			require.NoError(t, err)
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0600))
		}
		noCert := NewKeyVault(KeyVaultOptions{Dir: dir, Logger: log.Nop()})

		_, err := newCI(noCert).SignConfig(testPrivatePassword, true)
		assert.Error(t, err)
		assertUntouched(t)
	})

	t.Run("signature cannot be written", func(t *testing.T) {
		// A directory in place of the signature file makes the rename fail
		sigDir := filepath.Join(t.TempDir(), "config.sig")
		require.NoError(t, os.Mkdir(sigDir, 0755))

		blocked := NewConfigIntegrity(ConfigIntegrityOptions{
			ConfigPath:    path,
			SignaturePath: sigDir,
			Keys:          kv,
			Binaries:      NewBinaryIntegrityChecker(BinaryIntegrityOptions{BaseDir: binDir, Logger: log.Nop()}),
			BinaryPaths:   map[string]string{"helper": "helper.exe"},
			Logger:        log.Nop(),
		})
		_, err := blocked.SignConfig(testPrivatePassword, true)
		assert.Error(t, err)
		assertUntouched(t)
	})
}

func TestVerifyConfigWithKeys(t *testing.T) {
	kv, pair := testVault(t)
	path := writeConfig(t, `{"version":"1.0"}`)

	signer := NewConfigIntegrity(ConfigIntegrityOptions{ConfigPath: path, Keys: kv, Logger: log.Nop()})
	_, err := signer.SignConfig(testPrivatePassword, false)
	require.NoError(t, err)

	loaded, err := kv.LoadKeys(testPublicPassword, "")
	require.NoError(t, err)
	defer loaded.Destroy()

	// The verifier's own vault is empty, so only the passed keys can satisfy it
	empty := NewKeyVault(KeyVaultOptions{Dir: t.TempDir(), Logger: log.Nop()})
	ci := NewConfigIntegrity(ConfigIntegrityOptions{ConfigPath: path, Keys: empty, Logger: log.Nop()})

	verified, err := ci.VerifyConfigWithKeys(loaded)
	require.NoError(t, err)
	assert.Equal(t, pair.Thumbprint, verified.Signature.Thumbprint)
	assert.NotNil(t, loaded.PublicKey)

	_, err = ci.VerifyConfigWithKeys(nil)
	assert.ErrorIs(t, err, ErrNotInitialized)

	// Hash mismatch still wins over key problems
	require.NoError(t, os.WriteFile(path, []byte(`{"version":"2.0"}`), 0644))
	_, err = ci.VerifyConfigWithKeys(nil)
	assert.ErrorIs(t, err, ErrConfigHashMismatch)
}

func TestVerifyConfigBypass(t *testing.T) {
	path := writeConfig(t, `{"version":"dev"}`)
	rec := &recorder{}

	ci := NewConfigIntegrity(ConfigIntegrityOptions{
		ConfigPath: path,
		Keys:       NewKeyVault(KeyVaultOptions{Dir: t.TempDir(), Logger: log.Nop()}),
		Bypass:     true,
		Logger:     log.Nop(),
		Events:     rec,
	})

	verified, err := ci.VerifyConfig("")
	require.NoError(t, err)
	assert.True(t, verified.Bypassed)
	assert.Nil(t, verified.Signature)
	assert.JSONEq(t, `"dev"`, string(verified.Document["version"]))
	assert.Contains(t, rec.eventTypes(), events.EventBypassActive)
}

func TestVerifyConfigBypassStillRequiresConfig(t *testing.T) {
	ci := NewConfigIntegrity(ConfigIntegrityOptions{
		ConfigPath: filepath.Join(t.TempDir(), "config.json"),
		Bypass:     true,
		Logger:     log.Nop(),
	})

	_, err := ci.VerifyConfig("")
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestSignaturePathOverride(t *testing.T) {
	ci := NewConfigIntegrity(ConfigIntegrityOptions{ConfigPath: "/etc/uiwarden/config.json"})
	assert.Equal(t, "/etc/uiwarden/config.json.sig", ci.SignaturePath())

	ci = NewConfigIntegrity(ConfigIntegrityOptions{ConfigPath: "a.json", SignaturePath: "b.sig"})
	assert.Equal(t, "b.sig", ci.SignaturePath())
}
