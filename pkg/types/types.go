package types

import (
	"time"
)

// KeyPair is the signing identity of an installation.
// It is created once by key initialization and never updated in place.
type KeyPair struct {
	PublicKey   string // PEM, "PUBLIC KEY"
	PrivateKey  string // PEM, "PRIVATE KEY" (PKCS#8)
	Certificate string // PEM, self-signed X.509
	Thumbprint  string // uppercase hex SHA-256 of the certificate DER
}

// KeyHalf identifies which half of a key pair an encrypted file holds
type KeyHalf string

const (
	KeyHalfPublic  KeyHalf = "public"
	KeyHalfPrivate KeyHalf = "private"
)

// EncryptedKeyFile is the on-disk form of one encrypted key half.
// Byte fields are base64 encoded by encoding/json.
type EncryptedKeyFile struct {
	Salt       []byte      `json:"salt"`
	IV         []byte      `json:"iv"`
	AuthTag    []byte      `json:"authTag"`
	Encrypted  []byte      `json:"encrypted"`
	Iterations int         `json:"iterations"`
	Metadata   KeyMetadata `json:"metadata"`
}

// KeyMetadata describes how an EncryptedKeyFile was produced
type KeyMetadata struct {
	CreatedAt time.Time `json:"createdAt"`
	Algorithm string    `json:"algorithm"`
	KeySize   int       `json:"keySize"`
}

// ConfigSignature is stored next to the configuration file it covers
type ConfigSignature struct {
	Signature  string    `json:"signature"` // base64
	Algorithm  string    `json:"algorithm"`
	Timestamp  time.Time `json:"timestamp"`
	ConfigHash string    `json:"configHash"` // hex SHA-256 of the signed bytes
	Thumbprint string    `json:"thumbprint,omitempty"`
}

// BinaryHash records the expected state of one binary.
// Path is relative to the binaries base directory.
type BinaryHash struct {
	Path         string    `json:"path"`
	SHA256       string    `json:"sha256"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// IntegrityFailure classifies why a binary failed verification
type IntegrityFailure string

const (
	IntegrityNotFound     IntegrityFailure = "not_found"
	IntegrityHashMismatch IntegrityFailure = "hash_mismatch"
	IntegrityReadError    IntegrityFailure = "read_error"
	IntegrityNotListed    IntegrityFailure = "not_listed"
)

// IntegrityResult is the outcome of verifying one binary
type IntegrityResult struct {
	Name     string           `json:"name"`
	Path     string           `json:"path"`
	Valid    bool             `json:"valid"`
	Expected string           `json:"expected"`
	Actual   string           `json:"actual,omitempty"`
	Kind     IntegrityFailure `json:"kind,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// IntegrityReport aggregates the verification of a whole manifest
type IntegrityReport struct {
	AllValid bool              `json:"allValid"`
	Results  []IntegrityResult `json:"results"`
	Bypassed bool              `json:"bypassed"`
}

// ProcessRule selects processes for allow and deny lists.
// A rule matches when any of its non-empty selectors match.
type ProcessRule struct {
	Name           string `json:"name,omitempty" yaml:"name,omitempty"`
	Path           string `json:"path,omitempty" yaml:"path,omitempty"`
	Pattern        string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	RequiredSigner string `json:"requiredSigner,omitempty" yaml:"requiredSigner,omitempty"`
}

// SecurityEvent is an audit record of a security-relevant outcome.
// It never carries key material, secrets or nonces.
type SecurityEvent struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}
