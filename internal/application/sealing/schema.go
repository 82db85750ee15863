package sealing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fiscal/backend/internal/domain/fiscal"
)

// FieldKind selects how a required field is checked.
type FieldKind string

const (
	// FieldText requires a non-empty scalar value.
	FieldText FieldKind = "text"
	// FieldNumeric requires a parseable numeric value; zero is legal,
	// absent is not.
	FieldNumeric FieldKind = "numeric"
	// FieldClock requires an HH:MM:SS time string.
	FieldClock FieldKind = "clock"
	// FieldList requires a non-empty list.
	FieldList FieldKind = "list"
)

// FieldRule declares one required field of a document type.
type FieldRule struct {
	Name     string
	Kind     FieldKind
	Required bool
}

// partyField is the payload key of the nested party sub-record.
const partyField = "cliente_datos"

// itemsField is the payload key of the line-item list.
const itemsField = "items"

var invoiceRules = []FieldRule{
	{Name: "numero", Kind: FieldText, Required: true},
	{Name: "fecha", Kind: FieldText, Required: true},
	{Name: "hora", Kind: FieldClock, Required: true},
	{Name: "cliente_id", Kind: FieldText, Required: true},
	{Name: "total_usd", Kind: FieldNumeric, Required: true},
	{Name: "total_bs", Kind: FieldNumeric, Required: true},
	{Name: "tasa_bcv", Kind: FieldNumeric, Required: true},
	{Name: "subtotal_usd", Kind: FieldNumeric, Required: true},
	{Name: "iva_total", Kind: FieldNumeric, Required: true},
	{Name: itemsField, Kind: FieldList, Required: true},
}

// Credit and debit notes carry the invoice fields plus a mandatory
// cross-reference to the document they correct; corrections are new
// documents, never in-place edits.
var noteRules = append([]FieldRule{
	{Name: "documento_afectado", Kind: FieldText, Required: true},
}, invoiceRules...)

// partyRules apply to the nested party sub-record when present.
var partyRules = []FieldRule{
	{Name: "rif", Kind: FieldText, Required: true},
	{Name: "nombre", Kind: FieldText, Required: true},
	{Name: "direccion", Kind: FieldText, Required: true},
}

// documentSchemas is the declarative required-field table per document
// type, interpreted generically by Validate.
var documentSchemas = map[fiscal.DocumentType][]FieldRule{
	fiscal.DocumentTypeInvoice:    invoiceRules,
	fiscal.DocumentTypeCreditNote: noteRules,
	fiscal.DocumentTypeDebitNote:  noteRules,
}

// checkRule validates one field value against its rule and returns the
// problem, if any.
func checkRule(payload map[string]any, rule FieldRule, prefix string) *fiscal.FieldError {
	name := prefix + rule.Name
	value, present := payload[rule.Name]
	if !present || value == nil {
		if !rule.Required {
			return nil
		}
		return &fiscal.FieldError{Field: name, Reason: "Campo obligatorio faltante"}
	}

	switch rule.Kind {
	case FieldText:
		if !textPresent(value) {
			return &fiscal.FieldError{Field: name, Reason: "Campo obligatorio faltante"}
		}
	case FieldNumeric:
		if _, err := toDecimal(value); err != nil {
			return &fiscal.FieldError{Field: name, Reason: "Valor numérico inválido"}
		}
	case FieldClock:
		s, ok := value.(string)
		if !ok || s == "" {
			return &fiscal.FieldError{Field: name, Reason: "Campo obligatorio faltante"}
		}
		if _, err := time.Parse("15:04:05", s); err != nil {
			return &fiscal.FieldError{Field: name, Reason: "Formato de hora inválido (debe ser HH:MM:SS)"}
		}
	case FieldList:
		if !listPresent(value) {
			return &fiscal.FieldError{Field: name, Reason: "El documento debe tener al menos un item"}
		}
	}
	return nil
}

// textPresent applies the legacy presence rule for scalar fields: empty
// strings and zero identifiers count as missing.
func textPresent(value any) bool {
	switch v := value.(type) {
	case string:
		return v != ""
	case float64:
		return v != 0
	case int:
		return v != 0
	case int64:
		return v != 0
	case decimal.Decimal:
		return !v.IsZero()
	default:
		return true
	}
}

// listPresent reports whether the value is a non-empty list.
func listPresent(value any) bool {
	switch v := value.(type) {
	case []any:
		return len(v) > 0
	case []map[string]any:
		return len(v) > 0
	default:
		return false
	}
}

// toDecimal parses any JSON-shaped numeric value. Zero is a legal amount.
func toDecimal(value any) (decimal.Decimal, error) {
	switch v := value.(type) {
	case float64:
		return decimal.NewFromFloat(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case string:
		return decimal.NewFromString(v)
	case decimal.Decimal:
		return v, nil
	case fmt.Stringer:
		return decimal.NewFromString(v.String())
	default:
		return decimal.Decimal{}, fmt.Errorf("not a numeric value: %T", value)
	}
}
