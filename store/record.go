// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/Nicort/edward/dist"
	"github.com/Nicort/edward/exec"
	"github.com/Nicort/edward/graph"
	"github.com/Nicort/edward/partition"
	"github.com/Nicort/edward/pkg/validation"
)

// RecordVersion is the current trace record format version (semver).
const RecordVersion = "1.0.0"

// Sentinel errors for archive operations.
var (
	// ErrRecordNotFound indicates no record exists under the key.
	ErrRecordNotFound = errors.New("trace record not found")

	// ErrChecksumMismatch indicates a stored record failed integrity
	// verification.
	ErrChecksumMismatch = errors.New("trace record checksum mismatch")

	// ErrVersionMismatch indicates a stored record uses an
	// incompatible format version.
	ErrVersionMismatch = errors.New("trace record version mismatch")
)

// TraceRecord is the archived form of one realized trace.
type TraceRecord struct {
	// TraceID is the trace's unique identifier.
	TraceID string `json:"trace_id"`

	// Model is the model name the trace was realized against.
	Model string `json:"model"`

	// CreatedAtMilli is the archive time in Unix milliseconds UTC.
	CreatedAtMilli int64 `json:"created_at"`

	// Seed is the trace's random seed, kept for replay.
	Seed uint64 `json:"seed"`

	// Roots are the node ids whose realization was requested.
	Roots []graph.NodeID `json:"roots,omitempty"`

	// Values maps realized node ids to their values.
	Values map[graph.NodeID]dist.Value `json:"values"`

	// Edges are the dependency edges the trace traversed.
	Edges []graph.Edge `json:"edges"`

	// Pinned lists node ids whose values were pinned at creation.
	Pinned []graph.NodeID `json:"pinned,omitempty"`

	// Version is the record format version.
	Version string `json:"version"`

	// Checksum is the SHA-256 over the record with this field empty.
	Checksum string `json:"checksum"`
}

// NewTraceRecord snapshots a realized trace for archiving.
func NewTraceRecord(g *graph.Graph, tr *exec.Trace, roots ...graph.NodeID) *TraceRecord {
	sortedRoots := append([]graph.NodeID(nil), roots...)
	sort.Slice(sortedRoots, func(i, j int) bool { return sortedRoots[i] < sortedRoots[j] })

	return &TraceRecord{
		TraceID:        tr.ID(),
		Model:          g.Name(),
		CreatedAtMilli: time.Now().UnixMilli(),
		Seed:           tr.Seed(),
		Roots:          sortedRoots,
		Values:         tr.Values(),
		Edges:          tr.Edges(),
		Pinned:         tr.PinnedIDs(),
		Version:        RecordVersion,
	}
}

// computeChecksum calculates SHA-256 of the record for integrity
// verification. The checksum field itself is excluded.
func (r *TraceRecord) computeChecksum() (string, error) {
	shadow := *r
	shadow.Checksum = ""

	data, err := json.Marshal(&shadow)
	if err != nil {
		return "", fmt.Errorf("marshal for checksum: %w", err)
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// Verify recalculates the checksum and compares it to the stored
// value. Returns true if the record is intact.
func (r *TraceRecord) Verify() bool {
	if r == nil || r.Checksum == "" {
		return false
	}
	sum, err := r.computeChecksum()
	if err != nil {
		return false
	}
	return sum == r.Checksum
}

func recordKey(model, traceID string) []byte {
	return []byte("trace/" + model + "/" + traceID)
}

func recordPrefix(model string) []byte {
	return []byte("trace/" + model + "/")
}

// Put archives a record under the model's key space.
//
// Description:
//
//	Validates the model name, stamps version, timestamp, and checksum,
//	and writes the JSON-encoded record.
//
// Inputs:
//
//	ctx - Context for cancellation. Must not be nil.
//	model - Key-space model name. Must match the record's model.
//	rec - The record. Must not be nil and must carry a trace id.
//
// Outputs:
//
//	error - Non-nil on validation failure or write failure.
func (s *TraceStore) Put(ctx context.Context, model string, rec *TraceRecord) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	if err := validation.ValidateModelName(model); err != nil {
		return err
	}
	if rec == nil {
		return errors.New("record must not be nil")
	}
	if rec.TraceID == "" {
		return errors.New("record has no trace id")
	}
	if rec.Model == "" {
		rec.Model = model
	} else if rec.Model != model {
		return fmt.Errorf("record model %q does not match key model %q", rec.Model, model)
	}
	if rec.Version == "" {
		rec.Version = RecordVersion
	}
	if rec.CreatedAtMilli == 0 {
		rec.CreatedAtMilli = time.Now().UnixMilli()
	}

	sum, err := rec.computeChecksum()
	if err != nil {
		return err
	}
	rec.Checksum = sum

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(model, rec.TraceID), data)
	})
	if err != nil {
		return fmt.Errorf("write record %s: %w", rec.TraceID, err)
	}
	return nil
}

// Get loads and verifies one archived record.
//
// Outputs:
//
//	*TraceRecord - The verified record.
//	error - ErrRecordNotFound, ErrVersionMismatch, or
//	ErrChecksumMismatch as applicable.
func (s *TraceStore) Get(ctx context.Context, model, traceID string) (*TraceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}
	if err := validation.ValidateModelName(model); err != nil {
		return nil, err
	}
	if traceID == "" {
		return nil, errors.New("trace id must not be empty")
	}

	var rec *TraceRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(model, traceID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("trace %s/%s: %w", model, traceID, ErrRecordNotFound)
			}
			return err
		}
		return item.Value(func(val []byte) error {
			rec, err = decodeRecord(val)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// decodeRecord unmarshals and verifies a stored record.
func decodeRecord(data []byte) (*TraceRecord, error) {
	var rec TraceRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	if rec.Version != RecordVersion {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrVersionMismatch, rec.Version, RecordVersion)
	}
	if !rec.Verify() {
		return nil, fmt.Errorf("trace %s: %w", rec.TraceID, ErrChecksumMismatch)
	}
	return &rec, nil
}

// List returns the model's archived records, newest first. A positive
// limit truncates the result; zero or negative returns everything.
func (s *TraceStore) List(ctx context.Context, model string, limit int) ([]*TraceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}
	if err := validation.ValidateModelName(model); err != nil {
		return nil, err
	}

	var records []*TraceRecord
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := recordPrefix(model)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				rec, err := decodeRecord(val)
				if err != nil {
					return err
				}
				records = append(records, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAtMilli != records[j].CreatedAtMilli {
			return records[i].CreatedAtMilli > records[j].CreatedAtMilli
		}
		return records[i].TraceID < records[j].TraceID
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Delete removes one archived record. Deleting a missing record is
// not an error.
func (s *TraceStore) Delete(ctx context.Context, model, traceID string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	if err := validation.ValidateModelName(model); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(recordKey(model, traceID))
	})
}

// ObserveInto replays every archived trace of the model into the
// partitioner and returns how many were observed.
func (s *TraceStore) ObserveInto(ctx context.Context, model string, p *partition.Partitioner) (int, error) {
	if p == nil {
		return 0, errors.New("partitioner must not be nil")
	}
	records, err := s.List(ctx, model, 0)
	if err != nil {
		return 0, err
	}
	for _, rec := range records {
		p.ObserveEdges(rec.Edges)
	}
	return len(records), nil
}
