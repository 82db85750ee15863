package fiscal

// Audit action codes recorded for fiscally relevant operations.
const (
	AuditActionNumberAssigned    = "ASIGNACION_NUMERO"
	AuditActionNumberUsed        = "NUMERO_UTILIZADO"
	AuditActionRangeReserved     = "RESERVA_NUMEROS"
	AuditActionDocumentSealed    = "DOCUMENTO_SELLADO"
	AuditActionSeriesDeactivated = "SERIE_DESACTIVADA"
	AuditActionSeriesReactivated = "SERIE_REACTIVADA"
	AuditActionSeriesHalted      = "SERIE_BLOQUEADA"
)

// SystemUser is recorded as the acting user when none is supplied.
const SystemUser = "SISTEMA"

// AuditEvent is the caller-supplied part of an audit log entry.
type AuditEvent struct {
	User           string
	Action         string
	DocumentType   string
	DocumentNumber string
	ExternalIP     string
	Detail         string
}

// AuditLogEntry is one fully materialized line of the audit log. The entry
// hash covers every other field of the same entry; entries are independent,
// there is no chaining between consecutive lines.
type AuditLogEntry struct {
	Timestamp      string `json:"timestamp"`
	User           string `json:"usuario"`
	Action         string `json:"accion"`
	DocumentType   string `json:"documento_tipo"`
	DocumentNumber string `json:"documento_numero"`
	ExternalIP     string `json:"ip_externa"`
	LocalIP        string `json:"ip_local"`
	MACAddress     string `json:"mac_address"`
	Hostname       string `json:"hostname"`
	Detail         string `json:"detalles"`
	EntryHash      string `json:"hash_inmutable"`
}

// HashRecord returns the entry as the generic map its hash is computed over:
// every field except the hash itself.
func (e AuditLogEntry) HashRecord() map[string]any {
	return map[string]any{
		"timestamp":        e.Timestamp,
		"usuario":          e.User,
		"accion":           e.Action,
		"documento_tipo":   e.DocumentType,
		"documento_numero": e.DocumentNumber,
		"ip_externa":       e.ExternalIP,
		"ip_local":         e.LocalIP,
		"mac_address":      e.MACAddress,
		"hostname":         e.Hostname,
		"detalles":         e.Detail,
	}
}

// HostInfo identifies the machine an action originated from. Informational
// only, not a security boundary.
type HostInfo struct {
	Hostname   string
	LocalIP    string
	MACAddress string
}
