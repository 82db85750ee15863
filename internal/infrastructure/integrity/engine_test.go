package integrity

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiscal/backend/internal/domain/fiscal"
)

const testSecret = "prueba-clave-maestra-0123456789abcdef"

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(Config{
		MasterSecret: testSecret,
		Host: &fiscal.HostInfo{
			Hostname:   "test-host",
			LocalIP:    "10.0.0.5",
			MACAddress: "aa:bb:cc:dd:ee:ff",
		},
	})
	require.NoError(t, err)
	return engine
}

func invoicePayload() map[string]any {
	return map[string]any{
		"numero":       "FAC-00000001",
		"fecha":        "2024-03-18",
		"hora":         "14:30:00",
		"cliente_id":   "V-12345678",
		"total_usd":    120.50,
		"total_bs":     4340.25,
		"tasa_bcv":     36.02,
		"subtotal_usd": 103.88,
		"iva_total":    16.62,
		"items": []any{
			map[string]any{"producto": "Tornillos", "cantidad": 10, "precio_usd": 10.388},
		},
	}
}

func TestNewEngine(t *testing.T) {
	t.Run("requires master secret", func(t *testing.T) {
		_, err := NewEngine(Config{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "master secret")
	})

	t.Run("applies defaults", func(t *testing.T) {
		engine, err := NewEngine(Config{MasterSecret: testSecret})
		require.NoError(t, err)
		assert.NotNil(t, engine)
	})
}

func TestContentHash(t *testing.T) {
	engine := newTestEngine(t)

	t.Run("different call times produce different digests", func(t *testing.T) {
		record := map[string]any{"campo": "valor"}
		first, err := engine.ContentHash(record)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
		second, err := engine.ContentHash(record)
		require.NoError(t, err)
		assert.NotEqual(t, first, second)
	})

	t.Run("anchored records hash deterministically", func(t *testing.T) {
		record := map[string]any{
			"timestamp": "2024-03-18 14:30:00.123",
			"campo":     "valor",
		}
		first, err := engine.ContentHash(record)
		require.NoError(t, err)
		second, err := engine.ContentHash(record)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Len(t, first, 64)
	})

	t.Run("key order does not matter", func(t *testing.T) {
		a := map[string]any{
			"timestamp": "2024-03-18 14:30:00.123",
			"anidado":   map[string]any{"x": 1, "y": 2, "z": 3},
		}
		b := map[string]any{
			"anidado":   map[string]any{"z": 3, "y": 2, "x": 1},
			"timestamp": "2024-03-18 14:30:00.123",
		}
		ha, err := engine.ContentHash(a)
		require.NoError(t, err)
		hb, err := engine.ContentHash(b)
		require.NoError(t, err)
		assert.Equal(t, ha, hb)
	})

	t.Run("content changes change the digest", func(t *testing.T) {
		base := map[string]any{"timestamp": "2024-03-18 14:30:00.123", "total": 100.0}
		changed := map[string]any{"timestamp": "2024-03-18 14:30:00.123", "total": 100.01}
		hBase, err := engine.ContentHash(base)
		require.NoError(t, err)
		hChanged, err := engine.ContentHash(changed)
		require.NoError(t, err)
		assert.NotEqual(t, hBase, hChanged)
	})
}

func TestSignAndVerify(t *testing.T) {
	engine := newTestEngine(t)
	record := map[string]any{
		"timestamp": "2024-03-18 14:30:00.123",
		"numero":    "FAC-00000042",
	}

	t.Run("round trip", func(t *testing.T) {
		mac, err := engine.Sign(record, "clave-secreta")
		require.NoError(t, err)
		assert.Len(t, mac, 64)
		assert.True(t, engine.VerifySignature(record, mac, "clave-secreta"))
	})

	t.Run("wrong secret fails", func(t *testing.T) {
		mac, err := engine.Sign(record, "clave-secreta")
		require.NoError(t, err)
		assert.False(t, engine.VerifySignature(record, mac, "otra-clave"))
	})

	t.Run("tampered record fails", func(t *testing.T) {
		mac, err := engine.Sign(record, "clave-secreta")
		require.NoError(t, err)
		tampered := map[string]any{
			"timestamp": "2024-03-18 14:30:00.123",
			"numero":    "FAC-00000043",
		}
		assert.False(t, engine.VerifySignature(tampered, mac, "clave-secreta"))
	})
}

func TestEncryptDecrypt(t *testing.T) {
	engine := newTestEngine(t)

	t.Run("round trip", func(t *testing.T) {
		plaintext := "RIF V-12345678 / dirección: Av. Principal"
		token, err := engine.Encrypt(plaintext)
		require.NoError(t, err)
		decrypted, err := engine.Decrypt(token)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	})

	t.Run("encryption is non-deterministic", func(t *testing.T) {
		first, err := engine.Encrypt("mismo texto")
		require.NoError(t, err)
		second, err := engine.Encrypt("mismo texto")
		require.NoError(t, err)
		assert.NotEqual(t, first, second)

		d1, err := engine.Decrypt(first)
		require.NoError(t, err)
		d2, err := engine.Decrypt(second)
		require.NoError(t, err)
		assert.Equal(t, "mismo texto", d1)
		assert.Equal(t, "mismo texto", d2)
	})

	t.Run("tampered token fails authentication", func(t *testing.T) {
		token, err := engine.Encrypt("dato sensible")
		require.NoError(t, err)
		tampered := []byte(token)
		tampered[len(tampered)-5] ^= 0x01
		_, err = engine.Decrypt(string(tampered))
		require.Error(t, err)
		var cryptoErr *fiscal.CryptoError
		assert.ErrorAs(t, err, &cryptoErr)
	})

	t.Run("garbage token fails", func(t *testing.T) {
		_, err := engine.Decrypt("no es un token")
		assert.Error(t, err)
	})

	t.Run("different salts derive different keys", func(t *testing.T) {
		other, err := NewEngine(Config{MasterSecret: testSecret, KDFSalt: "sal-por-instalacion"})
		require.NoError(t, err)
		token, err := engine.Encrypt("texto")
		require.NoError(t, err)
		_, err = other.Decrypt(token)
		assert.Error(t, err)
	})
}

func TestSealDocument(t *testing.T) {
	engine := newTestEngine(t)

	t.Run("populates security metadata", func(t *testing.T) {
		doc, err := engine.SealDocument(invoicePayload(), fiscal.DocumentTypeInvoice)
		require.NoError(t, err)

		meta := doc.Metadata
		assert.Equal(t, fiscal.DocumentTypeInvoice, meta.DocumentType)
		assert.True(t, meta.Immutable)
		assert.Equal(t, "test-host", meta.Hostname)
		assert.Equal(t, "aa:bb:cc:dd:ee:ff", meta.MACAddress)
		assert.Equal(t, DefaultSystemVersion, meta.SystemVersion)
		assert.Len(t, meta.ContentHash, 64)
		assert.Len(t, meta.Signature, 64)

		_, err = uuid.Parse(meta.DocumentID)
		assert.NoError(t, err)
		_, err = meta.CreatedAtTime()
		assert.NoError(t, err)
	})

	t.Run("sealed document validates", func(t *testing.T) {
		doc, err := engine.SealDocument(invoicePayload(), fiscal.DocumentTypeInvoice)
		require.NoError(t, err)
		assert.True(t, engine.ValidateSealedDocument(doc))
	})

	t.Run("rejects unknown document type", func(t *testing.T) {
		_, err := engine.SealDocument(invoicePayload(), fiscal.DocumentType("RECIBO"))
		require.Error(t, err)
	})

	t.Run("rejects already sealed payloads", func(t *testing.T) {
		payload := invoicePayload()
		payload[fiscal.MetadataKey] = map[string]any{"inmutable": true}
		_, err := engine.SealDocument(payload, fiscal.DocumentTypeInvoice)
		assert.ErrorIs(t, err, fiscal.ErrAlreadySealed)
	})
}

func TestValidateSealedDocument(t *testing.T) {
	engine := newTestEngine(t)

	seal := func(t *testing.T) *fiscal.Document {
		t.Helper()
		doc, err := engine.SealDocument(invoicePayload(), fiscal.DocumentTypeInvoice)
		require.NoError(t, err)
		return doc
	}

	t.Run("payload mutation is detected", func(t *testing.T) {
		doc := seal(t)
		doc.Payload["total_usd"] = 999999.99
		assert.False(t, engine.ValidateSealedDocument(doc))
	})

	t.Run("nested item mutation is detected", func(t *testing.T) {
		doc := seal(t)
		items := doc.Payload["items"].([]any)
		items[0].(map[string]any)["cantidad"] = 1000
		assert.False(t, engine.ValidateSealedDocument(doc))
	})

	t.Run("metadata mutation is detected", func(t *testing.T) {
		doc := seal(t)
		doc.Metadata.Hostname = "otro-host"
		assert.False(t, engine.ValidateSealedDocument(doc))
	})

	t.Run("signature stripping is detected", func(t *testing.T) {
		doc := seal(t)
		doc.Metadata.Signature = ""
		assert.False(t, engine.ValidateSealedDocument(doc))
	})

	t.Run("immutable flag must be set", func(t *testing.T) {
		doc := seal(t)
		doc.Metadata.Immutable = false
		assert.False(t, engine.ValidateSealedDocument(doc))
	})

	t.Run("foreign key cannot validate", func(t *testing.T) {
		doc := seal(t)
		other, err := NewEngine(Config{MasterSecret: "otra-clave-maestra-completamente-distinta"})
		require.NoError(t, err)
		assert.False(t, other.ValidateSealedDocument(doc))
	})

	t.Run("nil and empty documents fail", func(t *testing.T) {
		assert.False(t, engine.ValidateSealedDocument(nil))
		assert.False(t, engine.ValidateSealedDocument(&fiscal.Document{Payload: map[string]any{}}))
	})

	t.Run("export round trip still validates", func(t *testing.T) {
		doc := seal(t)
		export, err := doc.ExportMap()
		require.NoError(t, err)
		restored, err := fiscal.DocumentFromExport(export)
		require.NoError(t, err)
		assert.True(t, engine.ValidateSealedDocument(restored))
	})
}

func TestCollectHostInfo(t *testing.T) {
	info := CollectHostInfo()
	assert.NotEmpty(t, info.Hostname)
	assert.NotEmpty(t, info.LocalIP)
	assert.NotEmpty(t, info.MACAddress)
}
