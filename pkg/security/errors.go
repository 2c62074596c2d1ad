package security

import (
	"errors"
)

// Key management errors
var (
	// ErrNotInitialized indicates the key files have not been created yet.
	ErrNotInitialized = errors.New("keys not initialized: run 'uiwarden keys init'")

	// ErrKeysAlreadyExist prevents initialization from overwriting existing keys.
	ErrKeysAlreadyExist = errors.New("key files already exist")

	// ErrPrivateKeyNotFound indicates the private key was requested but its file is absent.
	ErrPrivateKeyNotFound = errors.New("private key file not found")

	// ErrDecryptionFailed indicates a wrong password or tampered key file.
	ErrDecryptionFailed = errors.New("key decryption failed: authentication tag mismatch")

	// ErrKeyFileCorrupted indicates a key file that cannot be parsed or has invalid field sizes.
	ErrKeyFileCorrupted = errors.New("key file is corrupted")

	// ErrIterationMismatch indicates a key file whose iteration count differs from the mandated one.
	ErrIterationMismatch = errors.New("key file iteration count does not match the required count")

	// ErrInvalidKey indicates decrypted key material that is not a usable RSA key.
	ErrInvalidKey = errors.New("invalid key material")

	// ErrCertificateMismatch indicates the stored certificate does not belong to the public key.
	ErrCertificateMismatch = errors.New("certificate does not match the public key")

	// ErrEmptyPassword rejects empty passwords.
	ErrEmptyPassword = errors.New("password cannot be empty")
)

// Configuration integrity errors
var (
	ErrConfigNotFound       = errors.New("configuration file not found")
	ErrSignatureNotFound    = errors.New("configuration signature not found")
	ErrSignatureCorrupted   = errors.New("configuration signature file is corrupted")
	ErrConfigHashMismatch   = errors.New("configuration hash mismatch: file was modified after signing")
	ErrSignatureKeyMismatch = errors.New("configuration was signed by a different key")
	ErrSignatureInvalid     = errors.New("configuration signature verification failed")
	ErrConfigMalformed      = errors.New("configuration is not a valid JSON object")
)

// Binary integrity errors
var (
	ErrBinaryNotFound     = errors.New("binary not found")
	ErrBinaryHashMismatch = errors.New("binary hash mismatch")
	ErrBinaryNotListed    = errors.New("binary not listed in manifest")
)

// Session token errors
var (
	ErrTokenMalformed  = errors.New("invalid format")
	ErrTokenTimestamp  = errors.New("invalid token timestamp")
	ErrTokenExpired    = errors.New("token expired")
	ErrTokenFromFuture = errors.New("token timestamp is in the future")
	ErrTokenReplayed   = errors.New("token nonce already used (replay)")
	ErrTokenSignature  = errors.New("token HMAC mismatch")
	ErrInvalidSecret   = errors.New("session secret must be 32 bytes")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrNotInitialized, "KEYS_NOT_INITIALIZED"},
	{ErrKeysAlreadyExist, "KEYS_ALREADY_EXIST"},
	{ErrPrivateKeyNotFound, "PRIVATE_KEY_NOT_FOUND"},
	{ErrDecryptionFailed, "KEY_DECRYPTION_FAILED"},
	{ErrKeyFileCorrupted, "KEY_FILE_CORRUPTED"},
	{ErrIterationMismatch, "KEY_ITERATION_MISMATCH"},
	{ErrInvalidKey, "INVALID_KEY"},
	{ErrCertificateMismatch, "CERTIFICATE_MISMATCH"},
	{ErrEmptyPassword, "EMPTY_PASSWORD"},
	{ErrConfigNotFound, "CONFIG_NOT_FOUND"},
	{ErrSignatureNotFound, "SIGNATURE_NOT_FOUND"},
	{ErrSignatureCorrupted, "SIGNATURE_CORRUPTED"},
	{ErrConfigHashMismatch, "CONFIG_HASH_MISMATCH"},
	{ErrSignatureKeyMismatch, "SIGNATURE_KEY_MISMATCH"},
	{ErrSignatureInvalid, "SIGNATURE_INVALID"},
	{ErrConfigMalformed, "CONFIG_MALFORMED"},
	{ErrBinaryNotFound, "BINARY_NOT_FOUND"},
	{ErrBinaryHashMismatch, "BINARY_HASH_MISMATCH"},
	{ErrBinaryNotListed, "BINARY_NOT_LISTED"},
	{ErrTokenMalformed, "TOKEN_MALFORMED"},
	{ErrTokenTimestamp, "TOKEN_BAD_TIMESTAMP"},
	{ErrTokenExpired, "TOKEN_EXPIRED"},
	{ErrTokenFromFuture, "TOKEN_FROM_FUTURE"},
	{ErrTokenReplayed, "TOKEN_REPLAYED"},
	{ErrTokenSignature, "TOKEN_BAD_SIGNATURE"},
	{ErrInvalidSecret, "INVALID_SESSION_SECRET"},
}

// ErrorCode returns the machine-readable code for err.
// Unknown errors map to "INTERNAL_ERROR" and nil maps to "".
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return "INTERNAL_ERROR"
}
