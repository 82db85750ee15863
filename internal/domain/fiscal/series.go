package fiscal

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Series is one numbering series: a named, strictly increasing sequence of
// document numbers. JSON tags match the on-disk control file of the legacy
// system so existing control files keep loading.
type Series struct {
	Prefix      string `json:"prefijo"`
	Next        int64  `json:"siguiente_numero"`
	Width       int    `json:"longitud_numero"`
	Format      string `json:"formato"`
	Active      bool   `json:"activa"`
	StartedAt   string `json:"fecha_inicio"`
	LastIssued  int64  `json:"ultimo_numero_emitido"`
	TotalIssued int64  `json:"total_documentos"`
	// Halted is set when the duplicate-number double-check fails. Issuance
	// stops for the series until an operator clears the flag.
	Halted bool `json:"bloqueada,omitempty"`
}

// NewSeries creates an active series starting at 1.
func NewSeries(prefix string, width int) *Series {
	return &Series{
		Prefix:    prefix,
		Next:      1,
		Width:     width,
		Format:    fmt.Sprintf("%s%%0%dd", prefix, width),
		Active:    true,
		StartedAt: time.Now().Format(time.RFC3339),
	}
}

// FormatNumber renders a sequence value as a formatted document number,
// e.g. sequence 1 of the FAC- series with width 8 becomes "FAC-00000001".
func (s *Series) FormatNumber(seq int64) string {
	return fmt.Sprintf("%s%0*d", s.Prefix, s.Width, seq)
}

// ParseSequence extracts the sequence value embedded in a formatted number.
// It returns false when the prefix does not match or the remainder is not a
// plain decimal number.
func (s *Series) ParseSequence(formatted string) (int64, bool) {
	if !strings.HasPrefix(formatted, s.Prefix) {
		return 0, false
	}
	digits := formatted[len(s.Prefix):]
	if digits == "" {
		return 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	seq, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}

// Clone returns a copy of the series.
func (s *Series) Clone() *Series {
	out := *s
	return &out
}

// NumberingConfig holds the global numbering flags persisted alongside the
// series. Field names match the legacy control file.
type NumberingConfig struct {
	ValidateConsecutive bool `json:"validar_consecutivos"`
	AllowGaps           bool `json:"permitir_saltos"`
	AnnualReset         bool `json:"reinicio_anual"`
	MinWidth            int  `json:"longitud_minima"`
	PrefixRequired      bool `json:"prefijo_obligatorio"`
}

// NumberingTotals holds the running totals of the control state.
type NumberingTotals struct {
	CreatedAt   string `json:"fecha_creacion"`
	ModifiedAt  string `json:"ultima_modificacion"`
	TotalIssued int64  `json:"total_documentos_emitidos"`
}

// ControlState is the root numbering record: every series plus global
// configuration and totals. It is persisted as a single unit; every mutation
// rewrites the whole state under the controller's lock.
type ControlState struct {
	Series map[string]*Series `json:"series"`
	Config NumberingConfig    `json:"configuracion"`
	Totals NumberingTotals    `json:"auditoria"`
}

// DefaultControlState seeds the three standard series of the legacy system.
func DefaultControlState() *ControlState {
	now := time.Now().Format(time.RFC3339)
	return &ControlState{
		Series: map[string]*Series{
			DocumentTypeInvoice.String():    NewSeries("FAC-", 8),
			DocumentTypeCreditNote.String(): NewSeries("NC-", 8),
			DocumentTypeDebitNote.String():  NewSeries("ND-", 8),
		},
		Config: NumberingConfig{
			ValidateConsecutive: true,
			AllowGaps:           false,
			AnnualReset:         false,
			MinWidth:            8,
			PrefixRequired:      true,
		},
		Totals: NumberingTotals{
			CreatedAt:  now,
			ModifiedAt: now,
		},
	}
}

// Clone deep-copies the control state. Used for lock-free snapshots.
func (c *ControlState) Clone() *ControlState {
	out := &ControlState{
		Series: make(map[string]*Series, len(c.Series)),
		Config: c.Config,
		Totals: c.Totals,
	}
	for k, s := range c.Series {
		out.Series[k] = s.Clone()
	}
	return out
}
