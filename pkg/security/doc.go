/*
Package security implements the cryptographic layer of uiwarden: signing keys,
configuration signing, binary integrity checks and per-call session tokens.

# Architecture

	┌──────────────────────────────────────────────────────────────┐
	│                    Orchestrator startup                       │
	└─────┬──────────────────────┬───────────────────────┬─────────┘
	      │                      │                       │
	      ▼                      ▼                       ▼
	┌───────────┐       ┌─────────────────┐     ┌──────────────────┐
	│ KeyVault  │──────▶│ ConfigIntegrity │────▶│ BinaryIntegrity  │
	│ LoadKeys  │  pub  │  VerifyConfig   │ map │    VerifyAll     │
	└───────────┘       └─────────────────┘     └──────────────────┘

	            per privileged call
	┌──────────────────────────┐   token + secret   ┌──────────────┐
	│ SessionTokenAuthenticator│ ─────────────────▶ │    helper    │
	│     GenerateToken        │    (environment)   │ VerifyToken  │
	└──────────────────────────┘                    └──────────────┘

# Key Vault

The vault generates an RSA 4096 key and a self-signed X.509 certificate for it.
Each key half is encrypted separately:

	key  = PBKDF2-HMAC-SHA512(password, salt[32], iterations) // 32 bytes
	file = AES-256-GCM(key, iv[16], PEM) → {salt, iv, authTag, encrypted}

The public half uses 600,000 iterations and the private half 1,000,000. The
count is stored in each file and must match when the vault loads it. Derived
keys are wiped after use and a loaded private key is held in a memguard
enclave until it is needed.

Files written by Initialize:

	<dir>/public.key.enc    0600
	<dir>/private.key.enc   0600
	<dir>/certificate.pem   0644

The thumbprint of a key pair is the uppercase hex SHA-256 of the certificate
DER bytes. Nothing else is called a thumbprint.

# Configuration Integrity

SignConfig optionally embeds a fresh binaryHashes manifest into the JSON
document and signs the exact bytes with RSA PKCS#1 v1.5 over SHA-256. The
config is rewritten and read back only after the signature exists, and is
restored if the signature cannot be written to <config>.sig.

VerifyConfig fails in this order:

 1. ErrConfigNotFound, ErrSignatureNotFound, ErrSignatureCorrupted
 2. ErrConfigHashMismatch (no key is loaded for a modified file)
 3. ErrSignatureKeyMismatch (thumbprint differs from the stored certificate)
 4. ErrSignatureInvalid
 5. ErrConfigMalformed

# Session Tokens

	token = <unix seconds>:<nonce hex>:<hex HMAC-SHA256(secret, "ts:nonce")>

Tokens live for 5s (60s in development mode) and may be at most 5s in the
future. Each nonce is accepted once; the replay set keeps up to 10,000 nonces
and drops the oldest half when it overflows. The check and the insert happen
under a single mutex.

# Bypass Switches

Each checker takes an explicit Bypass field. When set, the check is skipped,
a WARN line with a bypass field is logged, a bypass.active event is published
and the result is marked as bypassed. Bypasses are off unless configured.

# Error Codes

Every sentinel error maps to a stable code through ErrorCode:

	_, err := ci.VerifyConfig(pw)
	fmt.Println(security.ErrorCode(err)) // CONFIG_HASH_MISMATCH
*/
package security
