// Copyright (c) 2024, The OTNS Authors.
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
// 1. Redistributions of source code must retain the above copyright
//    notice, this list of conditions and the following disclaimer.
// 2. Redistributions in binary form must reproduce the above copyright
//    notice, this list of conditions and the following disclaimer in the
//    documentation and/or other materials provided with the distribution.
// 3. Neither the name of the copyright holder nor the
//    names of its contributors may be used to endorse or promote products
//    derived from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
// ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
// LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
// CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
// SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
// CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
// ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
// POSSIBILITY OF SUCH DAMAGE.

// Package history keeps every coordinator dump in an SQLite database.
package history

import (
	"context"
	"database/sql"
	"embed"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/openthread/ot-sink/logger"
	"github.com/openthread/ot-sink/sink"
	. "github.com/openthread/ot-sink/types"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store is a dump history database. It implements sink.SnapshotSink.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database at path and migrates it to the latest schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path}
	if _, err = db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "enable foreign keys")
	}
	if err = s.migrateUp(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return nil, errors.Wrap(err, "migration source")
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "migration driver")
	}
	return migrate.NewWithInstance("iofs", src, "sqlite", driver)
}

// migrateUp does not close the migrate instance; that would close the database.
func (s *Store) migrateUp() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	if err = m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "migrate up")
	}
	return nil
}

// Version returns the schema version of the database.
func (s *Store) Version() (uint, error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if dirty {
		return version, errors.Errorf("schema version %d is dirty", version)
	}
	return version, nil
}

func (s *Store) Name() string {
	return "history:" + s.path
}

func (s *Store) OnSnapshot(ctx context.Context, snap *sink.Snapshot) error {
	_, err := s.SaveSnapshot(ctx, snap)
	return err
}

// SaveSnapshot stores a snapshot and returns the id assigned to the dump.
func (s *Store) SaveSnapshot(ctx context.Context, snap *sink.Snapshot) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	dumpId := uuid.NewString()
	res, err := tx.ExecContext(ctx,
		"INSERT INTO dumps (dump_id, run_id, taken_at_ms, coordinator) VALUES (?, ?, ?, ?)",
		dumpId, snap.RunId, snap.Time.UnixMilli(), snap.Coordinator)
	if err != nil {
		return "", errors.Wrap(err, "insert dump")
	}
	dump, err := res.LastInsertId()
	if err != nil {
		return "", err
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO node_rows
		(dump, node_id, tx_count, rx_count, prr, rssi, temperature, node_addr, parent_addr, latency_ticks, last_rtt_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = stmt.Close()
	}()

	for i := range snap.Rows {
		r := &snap.Rows[i]
		var latency sql.NullInt64
		if r.HasLatency {
			latency = sql.NullInt64{Int64: int64(r.LastLatencyTicks), Valid: true}
		}
		parent := ""
		if !r.ViaRoot() {
			parent = r.ParentAddress.String()
		}
		if _, err = stmt.ExecContext(ctx, dump, int(r.NodeId), int(r.TxCount), int64(r.RxCount), r.Prr,
			int(r.LastRssi), int(r.LastTemperature), r.NodeAddress.String(), parent, latency,
			int(r.LastRttMs)); err != nil {
			return "", errors.Wrapf(err, "insert row of node %d", r.NodeId)
		}
	}

	if err = tx.Commit(); err != nil {
		return "", err
	}
	logger.Tracef("history: saved dump %s with %d rows", dumpId, len(snap.Rows))
	return dumpId, nil
}

// Point is one node's state at one dump.
type Point struct {
	Time         time.Time
	TxCount      uint16
	RxCount      uint32
	Prr          int
	Rssi         Rssi
	Temperature  int16
	Parent       string
	LatencyTicks Ticks
	HasLatency   bool
	LastRttMs    uint16
}

// NodeHistory returns up to limit of the most recent points of a node, oldest first.
func (s *Store) NodeHistory(ctx context.Context, id NodeId, limit int) ([]Point, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT d.taken_at_ms, r.tx_count, r.rx_count, r.prr, r.rssi, r.temperature,
			r.parent_addr, r.latency_ticks, r.last_rtt_ms
		FROM node_rows r JOIN dumps d ON d.id = r.dump
		WHERE r.node_id = ? ORDER BY d.id DESC LIMIT ?`, int(id), limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var points []Point
	for rows.Next() {
		var (
			p                          Point
			ms                         int64
			tx, rssi, temp, prr, rttMs int
			rx                         int64
			latency                    sql.NullInt64
		)
		if err = rows.Scan(&ms, &tx, &rx, &prr, &rssi, &temp, &p.Parent, &latency, &rttMs); err != nil {
			return nil, err
		}
		p.Time = time.UnixMilli(ms)
		p.TxCount = uint16(tx)
		p.RxCount = uint32(rx)
		p.Prr = prr
		p.Rssi = Rssi(rssi)
		p.Temperature = int16(temp)
		p.LastRttMs = uint16(rttMs)
		if latency.Valid {
			p.LatencyTicks = Ticks(latency.Int64)
			p.HasLatency = true
		}
		points = append(points, p)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
	return points, nil
}

// DumpCount returns the number of dumps stored for a run, or for all runs if runId is empty.
func (s *Store) DumpCount(ctx context.Context, runId string) (int, error) {
	var n int
	var err error
	if runId == "" {
		err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM dumps").Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM dumps WHERE run_id = ?", runId).Scan(&n)
	}
	return n, err
}

func (s *Store) Close() error {
	return s.db.Close()
}
