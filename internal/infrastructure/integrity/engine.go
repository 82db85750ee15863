// Package integrity implements the integrity engine: canonical content
// hashing, HMAC signing, authenticated encryption of sensitive fields, and
// the sealing/validation of fiscal documents.
package integrity

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"

	"github.com/fiscal/backend/internal/domain/fiscal"
)

const (
	// DefaultKDFSalt is the salt the legacy deployments derived their
	// encryption key with. Shared across installations, which makes the same
	// master secret derive the same key everywhere; override it per
	// installation unless parity with existing ciphertexts is required.
	DefaultKDFSalt = "seniat_fiscal_salt_2024"

	// DefaultSystemVersion is stamped into security metadata.
	DefaultSystemVersion = "1.0.0"

	kdfIterations = 100_000
	keyLength     = 32
)

// signingSecretLength caps the signing key at the first 32 bytes of the
// master secret, matching how previously sealed documents were signed.
const signingSecretLength = 32

// Config holds engine construction parameters.
type Config struct {
	// MasterSecret is mandatory. The engine refuses to construct without it:
	// a silently generated ephemeral key would invalidate every previously
	// sealed document on restart.
	MasterSecret  string
	KDFSalt       string
	SystemVersion string
	// Host overrides collected host identifiers, mainly for tests.
	Host *fiscal.HostInfo
}

// Engine computes content hashes, signatures, and encryption for fiscal
// documents. Stateless per call aside from the one-time derived keys; safe
// for unlimited concurrent use.
type Engine struct {
	encryptionKey []byte
	signingSecret string
	systemVersion string
	host          fiscal.HostInfo
}

// NewEngine derives the encryption key from the master secret via
// PBKDF2-SHA256 and returns a ready engine. An empty master secret is a
// construction error.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.MasterSecret == "" {
		return nil, errors.New("integrity: master secret is required")
	}
	salt := cfg.KDFSalt
	if salt == "" {
		salt = DefaultKDFSalt
	}
	version := cfg.SystemVersion
	if version == "" {
		version = DefaultSystemVersion
	}
	signing := cfg.MasterSecret
	if len(signing) > signingSecretLength {
		signing = signing[:signingSecretLength]
	}
	host := CollectHostInfo()
	if cfg.Host != nil {
		host = *cfg.Host
	}
	return &Engine{
		encryptionKey: pbkdf2.Key([]byte(cfg.MasterSecret), []byte(salt), kdfIterations, keyLength, sha256.New),
		signingSecret: signing,
		systemVersion: version,
		host:          host,
	}, nil
}

// Host returns the host identifiers the engine stamps into metadata.
func (e *Engine) Host() fiscal.HostInfo {
	return e.host
}

// canonicalize renders a record in canonical form: a JSON round-trip that
// normalizes every nested value to plain maps and slices, then a marshal,
// which emits map keys sorted at every level.
func canonicalize(record map[string]any) ([]byte, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	var norm any
	if err := json.Unmarshal(raw, &norm); err != nil {
		return nil, err
	}
	return json.Marshal(norm)
}

// hashAnchor returns the timestamp the content hash is mixed with. Records
// that carry their own creation timestamp (a sealed document's metadata
// block, or an audit entry) anchor to it, so recomputing the hash from the
// stored content reproduces the original value. Bare records anchor to the
// current time, which makes two hashes of identical content taken at
// different moments differ.
func hashAnchor(record map[string]any) string {
	if block, ok := record[fiscal.MetadataKey].(map[string]any); ok {
		if ts, ok := block["fecha_creacion"].(string); ok && ts != "" {
			if _, err := time.Parse(fiscal.TimestampLayout, ts); err == nil {
				return ts
			}
		}
	}
	if ts, ok := record["timestamp"].(string); ok && ts != "" {
		if _, err := time.Parse(fiscal.TimestampLayout, ts); err == nil {
			return ts
		}
	}
	return time.Now().Format(fiscal.TimestampLayout)
}

// ContentHash serializes the record canonically, mixes in its creation
// timestamp, and returns the SHA-256 digest in hex.
func (e *Engine) ContentHash(record map[string]any) (string, error) {
	canonical, err := canonicalize(record)
	if err != nil {
		return "", fiscal.NewCryptoError("hash", err)
	}
	sum := sha256.Sum256([]byte(string(canonical) + "|" + hashAnchor(record)))
	return hex.EncodeToString(sum[:]), nil
}

// Sign computes the content hash of the record and returns an HMAC-SHA256
// over it, hex encoded.
func (e *Engine) Sign(record map[string]any, secret string) (string, error) {
	contentHash, err := e.ContentHash(record)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(contentHash))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// VerifySignature recomputes the record's MAC and compares in constant time.
func (e *Engine) VerifySignature(record map[string]any, signature, secret string) bool {
	computed, err := e.Sign(record, secret)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(signature)) == 1
}

// Encrypt encrypts sensitive text with AES-256-GCM under the derived key.
// The nonce is random, so encrypting the same plaintext twice yields
// different tokens; both decrypt to the original.
func (e *Engine) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(e.encryptionKey)
	if err != nil {
		return "", fiscal.NewCryptoError("encrypt", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fiscal.NewCryptoError("encrypt", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fiscal.NewCryptoError("encrypt", err)
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Tampered or truncated tokens fail
// authentication and return a CryptoError.
func (e *Engine) Decrypt(token string) (string, error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return "", fiscal.NewCryptoError("decrypt", err)
	}
	block, err := aes.NewCipher(e.encryptionKey)
	if err != nil {
		return "", fiscal.NewCryptoError("decrypt", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fiscal.NewCryptoError("decrypt", err)
	}
	if len(raw) < gcm.NonceSize() {
		return "", fiscal.NewCryptoError("decrypt", errors.New("token too short"))
	}
	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fiscal.NewCryptoError("decrypt", err)
	}
	return string(plaintext), nil
}

// SealDocument attaches a populated security metadata block to the payload:
// a fresh document id, millisecond creation timestamp, host identifiers,
// content hash, and signature. The hash and signature cover the payload plus
// the metadata block without the hash/signature fields themselves.
func (e *Engine) SealDocument(payload map[string]any, docType fiscal.DocumentType) (*fiscal.Document, error) {
	if !docType.IsValid() {
		return nil, fiscal.NewDomainError("INVALID_DOCUMENT_TYPE", fmt.Sprintf("Unknown document type %q", docType))
	}
	if _, sealed := payload[fiscal.MetadataKey]; sealed {
		return nil, fiscal.ErrAlreadySealed
	}

	meta := fiscal.SecurityMetadata{
		DocumentType:  docType,
		CreatedAt:     time.Now().Format(fiscal.TimestampLayout),
		MACAddress:    e.host.MACAddress,
		Hostname:      e.host.Hostname,
		SystemVersion: e.systemVersion,
		Immutable:     true,
		DocumentID:    uuid.NewString(),
	}

	combined, err := e.combine(payload, meta)
	if err != nil {
		return nil, err
	}
	contentHash, err := e.ContentHash(combined)
	if err != nil {
		return nil, err
	}
	signature, err := e.Sign(combined, e.signingSecret)
	if err != nil {
		return nil, err
	}

	meta.ContentHash = contentHash
	meta.Signature = signature
	return &fiscal.Document{
		Payload:  fiscal.ClonePayload(payload),
		Metadata: meta,
	}, nil
}

// ValidateSealedDocument strips the hash and signature, recomputes both from
// the stored content, and compares. Any mismatch, or missing or inconsistent
// metadata, means the document is considered tampered.
func (e *Engine) ValidateSealedDocument(doc *fiscal.Document) bool {
	if doc == nil {
		return false
	}
	meta := doc.Metadata
	if !meta.Immutable || meta.ContentHash == "" || meta.Signature == "" {
		return false
	}
	if _, err := meta.CreatedAtTime(); err != nil {
		return false
	}

	stripped := meta
	stripped.ContentHash = ""
	stripped.Signature = ""
	combined, err := e.combine(doc.Payload, stripped)
	if err != nil {
		return false
	}
	recomputed, err := e.ContentHash(combined)
	if err != nil {
		return false
	}
	hashOK := subtle.ConstantTimeCompare([]byte(recomputed), []byte(meta.ContentHash)) == 1
	sigOK := e.VerifySignature(combined, meta.Signature, e.signingSecret)
	return hashOK && sigOK
}

// combine embeds a metadata block into a copy of the payload.
func (e *Engine) combine(payload map[string]any, meta fiscal.SecurityMetadata) (map[string]any, error) {
	block, err := meta.AsMap()
	if err != nil {
		return nil, fiscal.NewCryptoError("seal", err)
	}
	combined := fiscal.ClonePayload(payload)
	combined[fiscal.MetadataKey] = block
	return combined, nil
}
