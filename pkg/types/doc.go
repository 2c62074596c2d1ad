/*
Package types defines the data structures shared across uiwarden.

The types here describe the persisted artifacts and results of the security
subsystem: key pairs and their encrypted on-disk form, configuration signatures,
binary hash manifests, integrity results, process rules and audit events.

# Persisted Artifacts

	public.key.enc / private.key.enc   EncryptedKeyFile (JSON, byte fields base64)
	certificate.pem                    self-signed certificate of the key pair
	config.json                        policy document + "binaryHashes" map
	config.json.sig                    ConfigSignature

# Integrity Results

IntegrityResult.Kind separates a missing binary (IntegrityNotFound, usually a
build or packaging problem) from a changed binary (IntegrityHashMismatch, possible
tampering). Both Expected and Actual hashes are carried so operators can diagnose
failures without re-running the check.

# Design Notes

Types carry no behavior beyond what encoding/json and yaml.v3 give them. Key
material only lives in KeyPair, which is returned once from key initialization and
is never written to disk unencrypted.
*/
package types
