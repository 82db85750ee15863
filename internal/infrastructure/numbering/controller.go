// Package numbering implements the numbering controller: per-series
// sequence counters persisted to a single control file, with atomic
// assignment under concurrent callers and gap-free issuance.
package numbering

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fiscal/backend/internal/domain/fiscal"
)

const (
	minReservation = 1
	maxReservation = 1000
)

// Auditor records fiscally relevant numbering actions. Satisfied by the
// audit writer.
type Auditor interface {
	Append(event fiscal.AuditEvent)
}

// Config holds controller settings.
type Config struct {
	// ControlFilePath is the JSON control state file. Created with the
	// default series on first use.
	ControlFilePath string
}

// Controller owns the numbering control state. NextNumber and ReserveRange
// execute their full load-assign-persist cycle under one mutex, so two
// concurrent callers can never receive the same sequence value. State reads
// go through a lock-free snapshot of the last durably written state.
type Controller struct {
	path    string
	docs    fiscal.DocumentLookup
	auditor Auditor
	log     *zap.Logger

	mu       sync.Mutex
	snapshot atomic.Pointer[fiscal.ControlState]
}

// NewController opens (or seeds) the control file and returns a ready
// controller. docs may be nil when no document store is available; the
// uniqueness double-check is then skipped.
func NewController(cfg Config, docs fiscal.DocumentLookup, auditor Auditor, log *zap.Logger) (*Controller, error) {
	if cfg.ControlFilePath == "" {
		return nil, fmt.Errorf("numbering: control file path is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	c := &Controller{
		path:    cfg.ControlFilePath,
		docs:    docs,
		auditor: auditor,
		log:     log.Named("numbering"),
	}
	if err := c.ensureControlFile(); err != nil {
		return nil, err
	}
	state, err := c.load()
	if err != nil {
		return nil, err
	}
	c.snapshot.Store(state.Clone())
	return c, nil
}

// ensureControlFile seeds the control file with the default series when it
// does not exist yet.
func (c *Controller) ensureControlFile() error {
	if _, err := os.Stat(c.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat control file: %w", err)
	}
	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create control directory: %w", err)
		}
	}
	c.log.Info("seeding numbering control file", zap.String("path", c.path))
	return c.persist(fiscal.DefaultControlState())
}

func (c *Controller) load() (*fiscal.ControlState, error) {
	raw, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("load numbering control state: %w", err)
	}
	var state fiscal.ControlState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode numbering control state: %w", err)
	}
	if state.Series == nil {
		state.Series = map[string]*fiscal.Series{}
	}
	return &state, nil
}

// persist rewrites the whole control state. The write goes to a temp file
// first and is renamed into place so a crash mid-write cannot leave a
// truncated state behind.
func (c *Controller) persist(state *fiscal.ControlState) error {
	state.Totals.ModifiedAt = time.Now().Format(time.RFC3339)
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode numbering control state: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write numbering control state: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("replace numbering control state: %w", err)
	}
	return nil
}

// commit persists the state and refreshes the lock-free snapshot. Must be
// called with the mutex held.
func (c *Controller) commit(state *fiscal.ControlState) error {
	if err := c.persist(state); err != nil {
		return err
	}
	c.snapshot.Store(state.Clone())
	return nil
}

// audit appends an entry when an auditor is wired.
func (c *Controller) audit(user, action, seriesKey, number, detail string) {
	if c.auditor == nil {
		return
	}
	c.auditor.Append(fiscal.AuditEvent{
		User:           user,
		Action:         action,
		DocumentType:   seriesKey,
		DocumentNumber: number,
		Detail:         detail,
	})
}

// activeSeries resolves a series that is allowed to issue numbers.
func activeSeries(state *fiscal.ControlState, seriesKey string) (*fiscal.Series, error) {
	series, ok := state.Series[seriesKey]
	if !ok {
		return nil, fiscal.ErrUnknownSeries
	}
	if series.Halted {
		return nil, fiscal.ErrSeriesHalted
	}
	if !series.Active {
		return nil, fiscal.ErrInactiveSeries
	}
	return series, nil
}

// NextNumber assigns the next consecutive number of the series: it reads
// the counter, double-checks the formatted number against the document
// store, advances the counter, and persists the whole state, all under the
// controller lock. Returns the formatted number and its sequence value.
func (c *Controller) NextNumber(ctx context.Context, seriesKey, user string) (string, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, err := c.load()
	if err != nil {
		return "", 0, err
	}
	series, err := activeSeries(state, seriesKey)
	if err != nil {
		return "", 0, err
	}

	seq := series.Next
	formatted := series.FormatNumber(seq)

	if c.docs != nil {
		exists, err := c.docs.Exists(ctx, fiscal.DocumentType(seriesKey), formatted)
		if err != nil {
			return "", 0, fmt.Errorf("uniqueness check for %s: %w", formatted, err)
		}
		if exists {
			// Counter corruption: the number the counter points at was
			// already issued. Halt the series rather than silently skip.
			series.Halted = true
			if err := c.commit(state); err != nil {
				c.log.Error("failed to persist series halt", zap.String("series", seriesKey), zap.Error(err))
			}
			c.audit(user, fiscal.AuditActionSeriesHalted, seriesKey, formatted,
				fmt.Sprintf("Número %s ya existe; serie bloqueada", formatted))
			c.log.Error("duplicate number detected, series halted",
				zap.String("series", seriesKey),
				zap.String("number", formatted))
			return "", 0, fiscal.ErrDuplicateNumber
		}
	}

	series.Next++
	series.LastIssued = seq
	series.TotalIssued++
	state.Totals.TotalIssued++

	if err := c.commit(state); err != nil {
		return "", 0, err
	}

	c.audit(user, fiscal.AuditActionNumberAssigned, seriesKey, formatted,
		fmt.Sprintf("Número asignado: %s (secuencial: %d)", formatted, seq))
	return formatted, seq, nil
}

// ReserveRange atomically reserves count consecutive numbers in one lock
// acquisition, advancing the counter past the whole block. Used for batch
// and offline issuance.
func (c *Controller) ReserveRange(ctx context.Context, seriesKey string, count int, user string) ([]string, error) {
	if count < minReservation || count > maxReservation {
		return nil, fiscal.ErrInvalidRange
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	state, err := c.load()
	if err != nil {
		return nil, err
	}
	series, err := activeSeries(state, seriesKey)
	if err != nil {
		return nil, err
	}

	first := series.Next
	last := first + int64(count) - 1
	numbers := make([]string, 0, count)
	for seq := first; seq <= last; seq++ {
		numbers = append(numbers, series.FormatNumber(seq))
	}

	series.Next = last + 1
	series.TotalIssued += int64(count)
	state.Totals.TotalIssued += int64(count)

	if err := c.commit(state); err != nil {
		return nil, err
	}

	c.audit(user, fiscal.AuditActionRangeReserved, seriesKey,
		fmt.Sprintf("%s-%s", numbers[0], numbers[len(numbers)-1]),
		fmt.Sprintf("Reservados %d números desde %d hasta %d", count, first, last))
	return numbers, nil
}

// ValidateConsecutive reports whether the formatted number is exactly the
// next expected number of the series: not an already-issued one and not a
// skip ahead.
func (c *Controller) ValidateConsecutive(formatted, seriesKey string) bool {
	state := c.snapshot.Load()
	if state == nil {
		return false
	}
	series, ok := state.Series[seriesKey]
	if !ok {
		return false
	}
	seq, ok := series.ParseSequence(formatted)
	if !ok {
		return false
	}
	return seq == series.Next
}

// MarkUsed records the definitive use of a previously assigned number in
// the audit trail. Audit-only; the counter was already advanced when the
// number was assigned.
func (c *Controller) MarkUsed(number, seriesKey, user string) {
	c.audit(user, fiscal.AuditActionNumberUsed, seriesKey, number,
		fmt.Sprintf("Número confirmado como utilizado: %s", number))
}

// State returns a copy of the last durably written control state. Lock-free;
// may trail an in-flight assignment by one write.
func (c *Controller) State() *fiscal.ControlState {
	state := c.snapshot.Load()
	if state == nil {
		return &fiscal.ControlState{Series: map[string]*fiscal.Series{}}
	}
	return state.Clone()
}

// SeriesState returns a copy of one series from the last durably written
// state.
func (c *Controller) SeriesState(seriesKey string) (*fiscal.Series, error) {
	state := c.snapshot.Load()
	if state == nil {
		return nil, fiscal.ErrUnknownSeries
	}
	series, ok := state.Series[seriesKey]
	if !ok {
		return nil, fiscal.ErrUnknownSeries
	}
	return series.Clone(), nil
}

// SetActive flips a series' active flag. This is the explicit
// administrative action; deactivation is never automatic.
func (c *Controller) SetActive(seriesKey string, active bool, user string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, err := c.load()
	if err != nil {
		return err
	}
	series, ok := state.Series[seriesKey]
	if !ok {
		return fiscal.ErrUnknownSeries
	}
	if series.Active == active {
		return nil
	}
	series.Active = active

	if err := c.commit(state); err != nil {
		return err
	}

	action := fiscal.AuditActionSeriesDeactivated
	detail := "Serie desactivada manualmente"
	if active {
		action = fiscal.AuditActionSeriesReactivated
		detail = "Serie reactivada manualmente"
	}
	c.audit(user, action, seriesKey, "", detail)
	return nil
}
