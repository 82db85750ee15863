// Package audit implements the append-only fiscal audit log: one
// self-verifying line per security-relevant action, with a secondary
// emergency log so a write failure never blocks the primary operation.
package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fiscal/backend/internal/domain/fiscal"
)

// fieldSeparator joins the labeled fields of one log line.
const fieldSeparator = " | "

// Hasher computes the per-entry integrity hash. Satisfied by the integrity
// engine's ContentHash.
type Hasher interface {
	ContentHash(record map[string]any) (string, error)
}

// Config holds audit writer settings.
type Config struct {
	// LogPath is the primary append-only audit log file.
	LogPath string
	// EmergencyPath receives write-failure diagnostics in the same line
	// style when the primary log cannot be written.
	EmergencyPath string
	// Host identifies the local machine in every entry.
	Host fiscal.HostInfo
}

// Writer appends audit entries to the durable log. Append never surfaces an
// error to the caller: issuing an invoice must not fail because the audit
// log is unwritable.
type Writer struct {
	cfg    Config
	hasher Hasher
	log    *zap.Logger

	mu sync.Mutex
}

// NewWriter creates an audit log writer.
func NewWriter(cfg Config, hasher Hasher, log *zap.Logger) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{cfg: cfg, hasher: hasher, log: log.Named("audit")}
}

// Append records one audit entry for the given event. The entry timestamp,
// local host identifiers, and integrity hash are filled in here. Existing
// lines are never edited or removed.
func (w *Writer) Append(event fiscal.AuditEvent) {
	user := event.User
	if user == "" {
		user = fiscal.SystemUser
	}
	entry := fiscal.AuditLogEntry{
		Timestamp:      time.Now().Format(fiscal.TimestampLayout),
		User:           user,
		Action:         event.Action,
		DocumentType:   event.DocumentType,
		DocumentNumber: event.DocumentNumber,
		ExternalIP:     event.ExternalIP,
		LocalIP:        w.cfg.Host.LocalIP,
		MACAddress:     w.cfg.Host.MACAddress,
		Hostname:       w.cfg.Host.Hostname,
		Detail:         event.Detail,
	}

	hash, err := w.hasher.ContentHash(entry.HashRecord())
	if err != nil {
		w.emergency(fmt.Sprintf("error hashing audit entry (accion %s): %v", entry.Action, err))
		return
	}
	entry.EntryHash = hash

	if err := w.appendLine(w.cfg.LogPath, FormatLine(entry)); err != nil {
		w.emergency(fmt.Sprintf("error writing audit log: %v", err))
	}
}

// appendLine performs a single open-append-close write. The writer mutex
// serializes concurrent appends within the process.
func (w *Writer) appendLine(path, line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("append log line: %w", err)
	}
	return nil
}

// emergency writes a failure diagnostic to the secondary log. If even that
// fails, the operational logger is the last resort.
func (w *Writer) emergency(detail string) {
	line := fmt.Sprintf("[ERROR_LOG] %s - %s", time.Now().Format(time.RFC3339), escapeField(detail))
	if err := w.appendLine(w.cfg.EmergencyPath, line); err != nil {
		w.log.Error("emergency audit log unwritable",
			zap.String("detail", detail),
			zap.Error(err))
	}
}

// FormatLine renders an entry in the fixed labeled-field order of the log.
func FormatLine(e fiscal.AuditLogEntry) string {
	fields := []string{
		"USUARIO:" + escapeField(e.User),
		"ACCION:" + escapeField(e.Action),
		"DOC_TIPO:" + escapeField(e.DocumentType),
		"DOC_NUM:" + escapeField(e.DocumentNumber),
		"IP_EXT:" + escapeField(e.ExternalIP),
		"IP_LOC:" + escapeField(e.LocalIP),
		"MAC:" + escapeField(e.MACAddress),
		"HOST:" + escapeField(e.Hostname),
		"DETALLES:" + escapeField(e.Detail),
		"HASH:" + escapeField(e.EntryHash),
	}
	return fmt.Sprintf("[%s] %s", e.Timestamp, strings.Join(fields, fieldSeparator))
}

// escapeField makes a value safe to embed in a line: the field separator's
// pipe and newlines are escaped so parsing never misaligns.
func escapeField(v string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		"|", `\|`,
		"\n", `\n`,
		"\r", `\r`,
	)
	return r.Replace(v)
}

// unescapeField reverses escapeField.
func unescapeField(v string) string {
	var b strings.Builder
	b.Grow(len(v))
	for i := 0; i < len(v); i++ {
		if v[i] != '\\' || i+1 == len(v) {
			b.WriteByte(v[i])
			continue
		}
		i++
		switch v[i] {
		case '\\':
			b.WriteByte('\\')
		case '|':
			b.WriteByte('|')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		default:
			b.WriteByte('\\')
			b.WriteByte(v[i])
		}
	}
	return b.String()
}
