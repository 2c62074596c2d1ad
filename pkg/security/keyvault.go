package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha512"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cuemby/uiwarden/pkg/events"
	"github.com/cuemby/uiwarden/pkg/metrics"
	"github.com/cuemby/uiwarden/pkg/types"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// Key file names inside the key directory
	PublicKeyFile   = "public.key.enc"
	PrivateKeyFile  = "private.key.enc"
	CertificateFile = "certificate.pem"

	// PBKDF2 iteration counts are fixed per key half. Existing key files depend on them.
	PublicKeyIterations  = 600000
	PrivateKeyIterations = 1000000

	// KeyEncryptionAlgorithm is recorded in key file metadata
	KeyEncryptionAlgorithm = "AES-256-GCM/PBKDF2-HMAC-SHA512"

	saltSize       = 32
	ivSize         = 16
	authTagSize    = 16
	derivedKeySize = 32

	// Defaults used by Initialize
	DefaultCertSubject   = "uiwarden config signing"
	DefaultValidityYears = 5
)

// KeyVaultOptions configures a KeyVault
type KeyVaultOptions struct {
	Dir           string
	Subject       string // certificate subject, defaults to DefaultCertSubject
	ValidityYears int    // defaults to DefaultValidityYears
	Logger        zerolog.Logger
	Events        events.Publisher
}

// KeyVault generates, encrypts, persists and loads the signing key pair
type KeyVault struct {
	dir           string
	subject       string
	validityYears int
	logger        zerolog.Logger
	events        events.Publisher
}

// NewKeyVault creates a key vault rooted at opts.Dir
func NewKeyVault(opts KeyVaultOptions) *KeyVault {
	subject := opts.Subject
	if subject == "" {
		subject = DefaultCertSubject
	}
	validity := opts.ValidityYears
	if validity <= 0 {
		validity = DefaultValidityYears
	}

	return &KeyVault{
		dir:           opts.Dir,
		subject:       subject,
		validityYears: validity,
		logger:        opts.Logger,
		events:        opts.Events,
	}
}

// Dir returns the key directory
func (kv *KeyVault) Dir() string {
	return kv.dir
}

func (kv *KeyVault) publicPath() string  { return filepath.Join(kv.dir, PublicKeyFile) }
func (kv *KeyVault) privatePath() string { return filepath.Join(kv.dir, PrivateKeyFile) }
func (kv *KeyVault) certPath() string    { return filepath.Join(kv.dir, CertificateFile) }

// IsInitialized reports whether the public key file exists
func (kv *KeyVault) IsInitialized() bool {
	return fileExists(kv.publicPath())
}

// GenerateKeyPair creates a fresh RSA 4096 key pair wrapped in a self-signed
// certificate. Every call produces a new key.
func GenerateKeyPair(subject string, validityYears int) (*types.KeyPair, error) {
	key, certDER, err := createSelfSignedCertificate(subject, validityYears)
	if err != nil {
		return nil, err
	}

	pubPEM, err := EncodePublicKeyPEM(&key.PublicKey)
	if err != nil {
		return nil, err
	}
	privPEM, err := EncodePrivateKeyPEM(key)
	if err != nil {
		return nil, err
	}

	return &types.KeyPair{
		PublicKey:   string(pubPEM),
		PrivateKey:  string(privPEM),
		Certificate: string(EncodeCertificatePEM(certDER)),
		Thumbprint:  Thumbprint(certDER),
	}, nil
}

// deriveKey stretches password into an AES-256 key with PBKDF2-HMAC-SHA512
func deriveKey(password string, salt []byte, iterations int) []byte {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.KeyDerivationDuration, strconv.Itoa(iterations))

	return pbkdf2.Key([]byte(password), salt, iterations, derivedKeySize, sha512.New)
}

func newKeyCipher(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// EncryptKey encrypts keyData under a password-derived key.
// Salt and IV are fresh on every call, so identical inputs never produce
// identical files.
func EncryptKey(keyData []byte, password string, iterations int) (*types.EncryptedKeyFile, error) {
	if len(keyData) == 0 {
		return nil, fmt.Errorf("cannot encrypt empty key data")
	}
	if password == "" {
		return nil, ErrEmptyPassword
	}
	if iterations <= 0 {
		return nil, fmt.Errorf("iterations must be positive, got %d", iterations)
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}

	key := deriveKey(password, salt, iterations)
	defer wipe(key)

	gcm, err := newKeyCipher(key)
	if err != nil {
		return nil, err
	}

	sealed := gcm.Seal(nil, iv, keyData, nil)
	split := len(sealed) - authTagSize

	return &types.EncryptedKeyFile{
		Salt:       salt,
		IV:         iv,
		AuthTag:    sealed[split:],
		Encrypted:  sealed[:split],
		Iterations: iterations,
		Metadata: types.KeyMetadata{
			CreatedAt: time.Now().UTC(),
			Algorithm: KeyEncryptionAlgorithm,
			KeySize:   signingKeySize,
		},
	}, nil
}

// DecryptKey decrypts an EncryptedKeyFile using the salt and iteration count
// carried in the file. A wrong password or any modified byte fails with
// ErrDecryptionFailed; it never returns unauthenticated plaintext.
func DecryptKey(file *types.EncryptedKeyFile, password string) ([]byte, error) {
	if file == nil {
		return nil, fmt.Errorf("%w: nil key file", ErrKeyFileCorrupted)
	}
	if password == "" {
		return nil, ErrEmptyPassword
	}
	switch {
	case len(file.Salt) != saltSize:
		return nil, fmt.Errorf("%w: salt is %d bytes, want %d", ErrKeyFileCorrupted, len(file.Salt), saltSize)
	case len(file.IV) != ivSize:
		return nil, fmt.Errorf("%w: iv is %d bytes, want %d", ErrKeyFileCorrupted, len(file.IV), ivSize)
	case len(file.AuthTag) != authTagSize:
		return nil, fmt.Errorf("%w: auth tag is %d bytes, want %d", ErrKeyFileCorrupted, len(file.AuthTag), authTagSize)
	case len(file.Encrypted) == 0:
		return nil, fmt.Errorf("%w: empty ciphertext", ErrKeyFileCorrupted)
	case file.Iterations <= 0:
		return nil, fmt.Errorf("%w: invalid iteration count %d", ErrKeyFileCorrupted, file.Iterations)
	}

	key := deriveKey(password, file.Salt, file.Iterations)
	defer wipe(key)

	gcm, err := newKeyCipher(key)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(file.Encrypted)+len(file.AuthTag))
	sealed = append(sealed, file.Encrypted...)
	sealed = append(sealed, file.AuthTag...)

	plaintext, err := gcm.Open(nil, file.IV, sealed, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// Initialize generates a key pair and writes both encrypted halves and the
// certificate. It refuses to overwrite existing key files.
func (kv *KeyVault) Initialize(publicPassword, privatePassword string) (*types.KeyPair, error) {
	if publicPassword == "" || privatePassword == "" {
		return nil, ErrEmptyPassword
	}
	if fileExists(kv.publicPath()) || fileExists(kv.privatePath()) {
		return nil, fmt.Errorf("%w in %s", ErrKeysAlreadyExist, kv.dir)
	}

	pair, err := GenerateKeyPair(kv.subject, kv.validityYears)
	if err != nil {
		return nil, err
	}

	pubFile, err := EncryptKey([]byte(pair.PublicKey), publicPassword, PublicKeyIterations)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt public key: %w", err)
	}
	privFile, err := EncryptKey([]byte(pair.PrivateKey), privatePassword, PrivateKeyIterations)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt private key: %w", err)
	}

	if err := kv.writeKeyFile(kv.privatePath(), privFile); err != nil {
		return nil, err
	}
	if err := kv.writeKeyFile(kv.publicPath(), pubFile); err != nil {
		os.Remove(kv.privatePath())
		return nil, err
	}
	if err := writeFileAtomic(kv.certPath(), []byte(pair.Certificate), 0644); err != nil {
		os.Remove(kv.privatePath())
		os.Remove(kv.publicPath())
		return nil, fmt.Errorf("failed to write certificate: %w", err)
	}

	kv.logger.Info().
		Str("dir", kv.dir).
		Str("thumbprint", pair.Thumbprint).
		Msg("Signing keys initialized")
	events.Emit(kv.events, events.EventKeysInitialized, "signing keys initialized", map[string]string{
		"thumbprint": pair.Thumbprint,
	})

	return pair, nil
}

func (kv *KeyVault) writeKeyFile(path string, file *types.EncryptedKeyFile) error {
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal key file: %w", err)
	}
	if err := writeFileAtomic(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

func readKeyFile(path string) (*types.EncryptedKeyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file types.EncryptedKeyFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyFileCorrupted, err)
	}
	return &file, nil
}

// decryptHalf loads and decrypts one key half, enforcing its iteration count
func (kv *KeyVault) decryptHalf(half types.KeyHalf, password string) ([]byte, error) {
	path, iterations, missing := kv.publicPath(), PublicKeyIterations, ErrNotInitialized
	if half == types.KeyHalfPrivate {
		path, iterations, missing = kv.privatePath(), PrivateKeyIterations, ErrPrivateKeyNotFound
	}

	file, err := readKeyFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", missing, path)
		}
		return nil, fmt.Errorf("failed to read %s key: %w", half, err)
	}
	if file.Iterations != iterations {
		return nil, fmt.Errorf("%w: %s key has %d, want %d", ErrIterationMismatch, half, file.Iterations, iterations)
	}

	data, err := DecryptKey(file, password)
	if err != nil {
		kv.logger.Error().Err(err).Str("half", string(half)).Msg("Key decryption failed")
		return nil, fmt.Errorf("failed to decrypt %s key: %w", half, err)
	}
	return data, nil
}

// LoadPublicKey decrypts the public half
func (kv *KeyVault) LoadPublicKey(password string) (*rsa.PublicKey, []byte, error) {
	pemData, err := kv.decryptHalf(types.KeyHalfPublic, password)
	if err != nil {
		return nil, nil, err
	}

	pub, err := ParsePublicKeyPEM(pemData)
	if err != nil {
		return nil, nil, err
	}
	return pub, pemData, nil
}

// LoadPrivateKey decrypts and parses the private half. The intermediate PEM
// bytes are wiped before returning.
func (kv *KeyVault) LoadPrivateKey(password string) (*rsa.PrivateKey, error) {
	pemData, err := kv.decryptHalf(types.KeyHalfPrivate, password)
	if err != nil {
		return nil, err
	}
	defer wipe(pemData)

	return ParsePrivateKeyPEM(pemData)
}

// LoadCertificate reads the stored certificate. A missing file yields an error
// wrapping fs.ErrNotExist.
func (kv *KeyVault) LoadCertificate() (*x509.Certificate, error) {
	data, err := os.ReadFile(kv.certPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate: %w", err)
	}
	return ParseCertificatePEM(data)
}

// Thumbprint returns the thumbprint of the stored certificate
func (kv *KeyVault) Thumbprint() (string, error) {
	cert, err := kv.LoadCertificate()
	if err != nil {
		return "", err
	}
	return Thumbprint(cert.Raw), nil
}

// LoadedKeys holds decrypted key material. The private half stays sealed in a
// memguard enclave until PrivateKey is called.
type LoadedKeys struct {
	PublicKey    *rsa.PublicKey
	PublicKeyPEM []byte
	Certificate  *x509.Certificate // nil when no certificate is stored
	Thumbprint   string
	private      *sealedBytes
}

// HasPrivateKey reports whether the private half was loaded
func (k *LoadedKeys) HasPrivateKey() bool {
	return k.private.present()
}

// PrivateKey unseals and parses the private key
func (k *LoadedKeys) PrivateKey() (*rsa.PrivateKey, error) {
	if !k.HasPrivateKey() {
		return nil, fmt.Errorf("private key was not loaded")
	}

	var key *rsa.PrivateKey
	err := k.private.open(func(pemData []byte) error {
		var perr error
		key, perr = ParsePrivateKeyPEM(pemData)
		return perr
	})
	return key, err
}

// Destroy drops the sealed private key
func (k *LoadedKeys) Destroy() {
	k.private.destroy()
	k.private = nil
}

// LoadKeys decrypts the public half and, when privatePassword is non-empty,
// the private half. The stored certificate must match the public key.
func (kv *KeyVault) LoadKeys(publicPassword, privatePassword string) (*LoadedKeys, error) {
	pub, pubPEM, err := kv.LoadPublicKey(publicPassword)
	if err != nil {
		return nil, err
	}

	loaded := &LoadedKeys{
		PublicKey:    pub,
		PublicKeyPEM: pubPEM,
	}

	cert, err := kv.LoadCertificate()
	switch {
	case err == nil:
		certPub, ok := cert.PublicKey.(*rsa.PublicKey)
		if !ok || !certPub.Equal(pub) {
			return nil, ErrCertificateMismatch
		}
		loaded.Certificate = cert
		loaded.Thumbprint = Thumbprint(cert.Raw)
	case errors.Is(err, fs.ErrNotExist):
		kv.logger.Warn().Str("dir", kv.dir).Msg("No certificate stored next to keys, thumbprint unavailable")
	default:
		return nil, err
	}

	if privatePassword != "" {
		privPEM, err := kv.decryptHalf(types.KeyHalfPrivate, privatePassword)
		if err != nil {
			return nil, err
		}
		loaded.private = seal(privPEM)
	}

	kv.logger.Debug().
		Bool("private", loaded.HasPrivateKey()).
		Str("thumbprint", loaded.Thumbprint).
		Msg("Keys loaded")

	return loaded, nil
}
