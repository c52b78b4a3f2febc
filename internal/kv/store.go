// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

// Package kv provides the BadgerDB-backed volatile state shared by the
// pipeline workers: in-flight fetch locks, conditional-request validators,
// circuit breaker snapshots, velocity counters, broadcast sequence numbers
// and alert cooldowns. Everything here is reconstructible; DuckDB holds the
// durable record.
package kv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/vigiadados/radar/internal/logging"
)

// Key prefixes. One namespace per concern so iteration stays cheap.
const (
	lockKeyPrefix      = "lock:fetch:"
	validatorKeyPrefix = "validator:"
	breakerKeyPrefix   = "breaker:"
	velocityKeyPrefix  = "velocity:"
	seqKeyPrefix       = "seq:event:"
	dispatchKeyPrefix  = "dispatch:source:"
	cooldownKeyPrefix  = "cooldown:alert:"
	snoozeKeyPrefix    = "snooze:event:"
	streamSeqKeyPrefix = "stream:seen:"
)

// ErrLockHeld is returned when an in-flight fetch lock already exists.
var ErrLockHeld = errors.New("kv: fetch lock held")

// Store wraps a badger.DB with the access patterns the pipeline needs.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the badger database at path. An empty path opens
// an in-memory store, used by tests.
func Open(path string) (*Store, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(path)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunGC runs badger value-log garbage collection until there is nothing
// left to collect. Called from the supervisor on a timer.
func (s *Store) RunGC() {
	for {
		if err := s.db.RunValueLogGC(0.5); err != nil {
			if !errors.Is(err, badger.ErrNoRewrite) {
				logging.Warn().Err(err).Msg("badger value log GC")
			}
			return
		}
	}
}

// AcquireFetchLock takes the in-flight lock for a source. The lock expires
// after ttl so a crashed worker cannot wedge its source forever.
func (s *Store) AcquireFetchLock(sourceID string, ttl time.Duration) error {
	key := []byte(lockKeyPrefix + sourceID)
	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return ErrLockHeld
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("get fetch lock: %w", err)
		}
		entry := badger.NewEntry(key, []byte{1}).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
}

// ReleaseFetchLock drops the in-flight lock for a source. Releasing an
// absent lock is a no-op.
func (s *Store) ReleaseFetchLock(sourceID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(lockKeyPrefix + sourceID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// CountFetchLocks returns the number of currently held in-flight locks,
// the scheduler's approximation of total queue depth.
func (s *Store) CountFetchLocks() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(lockKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Validators are the HTTP conditional-request tokens remembered per URL.
type Validators struct {
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
}

// SetValidators stores the conditional-request tokens for a URL.
func (s *Store) SetValidators(url string, v Validators) error {
	if v.ETag == "" && v.LastModified == "" {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal validators: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(validatorKeyPrefix+url), data)
	})
}

// GetValidators returns the stored conditional-request tokens for a URL,
// or the zero value when none are known.
func (s *Store) GetValidators(url string) (Validators, error) {
	var v Validators
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(validatorKeyPrefix + url))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get validators: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &v)
		})
	})
	return v, err
}

// BreakerSnapshot persists a circuit breaker's position across restarts so
// a flapping source does not get a fresh budget on every deploy.
type BreakerSnapshot struct {
	State     string    `json:"state"`
	Failures  int       `json:"failures"`
	OpenedAt  time.Time `json:"opened_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SetBreakerSnapshot stores the breaker position for a source.
func (s *Store) SetBreakerSnapshot(sourceID string, snap BreakerSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal breaker snapshot: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(breakerKeyPrefix+sourceID), data)
	})
}

// GetBreakerSnapshot returns the stored breaker position for a source.
// found is false when the source has never tripped.
func (s *Store) GetBreakerSnapshot(sourceID string) (snap BreakerSnapshot, found bool, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(breakerKeyPrefix + sourceID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get breaker snapshot: %w", err)
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snap)
		})
	})
	return snap, found, err
}

// BumpVelocity increments the per-event document counter for the hour bucket
// containing now. Buckets expire after retention so velocity windows stay
// bounded without a sweeper.
func (s *Store) BumpVelocity(eventID string, now time.Time, retention time.Duration) error {
	key := velocityKey(eventID, now)
	return s.db.Update(func(txn *badger.Txn) error {
		var count uint64
		item, err := txn.Get(key)
		if err == nil {
			if verr := item.Value(func(val []byte) error {
				count = decodeUint64(val)
				return nil
			}); verr != nil {
				return verr
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("get velocity bucket: %w", err)
		}
		entry := badger.NewEntry(key, encodeUint64(count+1)).WithTTL(retention)
		return txn.SetEntry(entry)
	})
}

// Velocity returns the number of documents linked to eventID in the window
// ending at now.
func (s *Store) Velocity(eventID string, now time.Time, window time.Duration) (int, error) {
	total := 0
	err := s.db.View(func(txn *badger.Txn) error {
		for t := now.Add(-window).Truncate(time.Hour); !t.After(now); t = t.Add(time.Hour) {
			item, err := txn.Get(velocityKey(eventID, t))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("get velocity bucket: %w", err)
			}
			if verr := item.Value(func(val []byte) error {
				total += int(decodeUint64(val))
				return nil
			}); verr != nil {
				return verr
			}
		}
		return nil
	})
	return total, err
}

// NextSeq returns the next monotonic broadcast sequence number for an event.
// Sequence numbers start at 1 and survive restarts.
func (s *Store) NextSeq(eventID string) (uint64, error) {
	var next uint64
	err := s.db.Update(func(txn *badger.Txn) error {
		key := []byte(seqKeyPrefix + eventID)
		item, err := txn.Get(key)
		if err == nil {
			if verr := item.Value(func(val []byte) error {
				next = decodeUint64(val)
				return nil
			}); verr != nil {
				return verr
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("get sequence: %w", err)
		}
		next++
		return txn.Set(key, encodeUint64(next))
	})
	return next, err
}

// SetLastDispatch records when the scheduler last dispatched a source, so a
// restart resumes the cadence instead of re-polling everything at once.
func (s *Store) SetLastDispatch(sourceID string, at time.Time) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := []byte(dispatchKeyPrefix + sourceID)
		return txn.Set(key, encodeUint64(uint64(at.UTC().UnixNano())))
	})
}

// LastDispatch returns the persisted dispatch time for a source. The second
// return is false when the source was never dispatched.
func (s *Store) LastDispatch(sourceID string) (time.Time, bool, error) {
	var at time.Time
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(dispatchKeyPrefix + sourceID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get last dispatch: %w", err)
		}
		return item.Value(func(val []byte) error {
			at = time.Unix(0, int64(decodeUint64(val))).UTC()
			found = true
			return nil
		})
	})
	return at, found, err
}

// SetAlertCooldown records that an alert fired for an event; further alerts
// are suppressed until the TTL lapses.
func (s *Store) SetAlertCooldown(eventID string, ttl time.Duration) error {
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(cooldownKeyPrefix+eventID), []byte{1}).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
}

// InAlertCooldown reports whether the event is still inside its cooldown.
func (s *Store) InAlertCooldown(eventID string) (bool, error) {
	in := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(cooldownKeyPrefix + eventID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get cooldown: %w", err)
		}
		in = true
		return nil
	})
	return in, err
}

// Snooze suppresses alerts for an event until the TTL lapses. Set by the
// SNOOZE editorial action.
func (s *Store) Snooze(eventID string, ttl time.Duration) error {
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(snoozeKeyPrefix+eventID), []byte{1}).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
}

// Snoozed reports whether the event is currently snoozed.
func (s *Store) Snoozed(eventID string) (bool, error) {
	snoozed := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(snoozeKeyPrefix + eventID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get snooze: %w", err)
		}
		snoozed = true
		return nil
	})
	return snoozed, err
}

// MarkStreamSeq records that a broadcast sequence number was delivered to
// the local hub. Returns true when the pair was already marked, which is how
// the broker bridge skips messages this replica originated. Marks expire
// after ten minutes; replays older than that are harmless re-deliveries.
func (s *Store) MarkStreamSeq(eventID string, seq uint64) (bool, error) {
	seen := false
	key := []byte(streamSeqKeyPrefix + eventID + ":" + string(encodeUint64(seq)))
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			seen = true
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("get stream mark: %w", err)
		}
		entry := badger.NewEntry(key, []byte{1}).WithTTL(10 * time.Minute)
		return txn.SetEntry(entry)
	})
	return seen, err
}

func velocityKey(eventID string, t time.Time) []byte {
	bucket := t.UTC().Truncate(time.Hour).Format("2006010215")
	return []byte(velocityKeyPrefix + eventID + ":" + bucket)
}

func encodeUint64(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return buf[:]
}

func decodeUint64(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
