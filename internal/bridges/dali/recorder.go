package dali

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// Recorder passively records frames and short addresses seen on the
// DALI bus. It is called by the Bridge whenever a frame is received,
// building a database of known addresses over time.
//
// This enables commissioning tools to see which short addresses are
// live without running a full discovery sweep.
//
// Thread Safety: All methods are safe for concurrent use.
type Recorder struct {
	db *sql.DB

	logger   Logger
	loggerMu sync.RWMutex

	// Prepared statements for inserts (created once, reused)
	frameInsertStmt *sql.Stmt
	addrUpsertStmt  *sql.Stmt
	stmtMu          sync.Mutex

	// Shutdown coordination
	closed bool
	mu     sync.RWMutex
}

// NewRecorder creates a new recorder for bus frames and short addresses.
// The database must have the dali_frames and dali_short_addresses tables
// created.
func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{
		db: db,
	}
}

// SetLogger sets the logger for the recorder.
func (r *Recorder) SetLogger(logger Logger) {
	r.loggerMu.Lock()
	r.logger = logger
	r.loggerMu.Unlock()
}

// Start prepares the recorder for use.
// Must be called before RecordFrame.
func (r *Recorder) Start() error {
	r.stmtMu.Lock()
	defer r.stmtMu.Unlock()

	if r.frameInsertStmt != nil {
		return nil // Already started
	}

	frameStmt, err := r.db.Prepare(`
		INSERT INTO dali_frames (observed_at, length, data, status, message)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing frame insert statement: %w", err)
	}

	addrStmt, err := r.db.Prepare(`
		INSERT INTO dali_short_addresses (short_address, last_seen, frame_count)
		VALUES (?, ?, 1)
		ON CONFLICT(short_address) DO UPDATE SET
			last_seen = excluded.last_seen,
			frame_count = frame_count + 1
	`)
	if err != nil {
		frameStmt.Close()
		return fmt.Errorf("preparing address upsert statement: %w", err)
	}

	r.frameInsertStmt = frameStmt
	r.addrUpsertStmt = addrStmt
	r.log("frame recorder started")
	return nil
}

// Stop closes the recorder and releases resources.
func (r *Recorder) Stop() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.stmtMu.Lock()
	defer r.stmtMu.Unlock()

	if r.frameInsertStmt != nil {
		r.frameInsertStmt.Close()
		r.frameInsertStmt = nil
	}
	if r.addrUpsertStmt != nil {
		r.addrUpsertStmt.Close()
		r.addrUpsertStmt = nil
	}

	r.log("frame recorder stopped")
}

// RecordFrame records one observed frame. Data frames are stored in
// full; status events are stored without address attribution. Called by
// the Bridge for every received frame.
func (r *Recorder) RecordFrame(f Frame) {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return
	}
	r.mu.RUnlock()

	r.stmtMu.Lock()
	frameStmt := r.frameInsertStmt
	addrStmt := r.addrUpsertStmt
	r.stmtMu.Unlock()

	if frameStmt == nil || addrStmt == nil {
		return // Not started
	}

	ts := f.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	if _, err := frameStmt.Exec(ts.Unix(), f.Length, f.Data, f.Status.String(), f.Message); err != nil {
		r.logError("recording frame", err)
	}

	// Record the short address for forward frames using short addressing.
	// Loopback echoes count too: our own traffic proves the address is
	// in use.
	if !f.Status.IsData() {
		return
	}
	if addr, ok := f.ShortAddress(); ok {
		if _, err := addrStmt.Exec(addr, ts.Unix()); err != nil {
			r.logError("recording short address", err)
		}
	}
}

// ActiveAddresses returns short addresses seen since the given time,
// most recently seen first.
func (r *Recorder) ActiveAddresses(ctx context.Context, since time.Time) ([]uint8, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT short_address FROM dali_short_addresses
		WHERE last_seen >= ?
		ORDER BY last_seen DESC
	`, since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var addresses []uint8
	for rows.Next() {
		var addr uint8
		if err := rows.Scan(&addr); err != nil {
			return nil, err
		}
		addresses = append(addresses, addr)
	}

	return addresses, rows.Err()
}

// FrameCount returns the number of recorded frames.
func (r *Recorder) FrameCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dali_frames`).Scan(&count)
	return count, err
}

// AddressCount returns the number of distinct short addresses seen.
func (r *Recorder) AddressCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dali_short_addresses`).Scan(&count)
	return count, err
}

// log logs an info message if logger is set.
func (r *Recorder) log(msg string, keysAndValues ...any) {
	r.loggerMu.RLock()
	logger := r.logger
	r.loggerMu.RUnlock()
	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error if logger is set.
func (r *Recorder) logError(msg string, err error) {
	r.loggerMu.RLock()
	logger := r.logger
	r.loggerMu.RUnlock()
	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
