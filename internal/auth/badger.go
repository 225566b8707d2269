/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const userKeyPrefix = "user:"

// userRecord is the value stored under user:<name>.
type userRecord struct {
	Hash      string    `json:"hash"`
	CreatedAt time.Time `json:"created_at"`
}

// BadgerStore keeps credentials in BadgerDB.
type BadgerStore struct {
	db   *badger.DB
	cost int
}

// OpenBadgerStore opens (or creates) a database at path. An empty path keeps
// everything in memory.
func OpenBadgerStore(path string, bcryptCost int) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open credentials database: %w", err)
	}
	return &BadgerStore{db: db, cost: bcryptCost}, nil
}

// Authenticate implements CredentialStore.
func (s *BadgerStore) Authenticate(username, password string) error {
	if username == "" || password == "" {
		return ErrInvalidCredentials
	}
	var rec userRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(userKeyPrefix + username))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("failed to read user: %w", err)
	}
	return checkPassword(rec.Hash, password)
}

// Register implements CredentialStore.
func (s *BadgerStore) Register(username, password string) error {
	if err := Validate(username, password); err != nil {
		return err
	}
	hash, err := HashPassword(password, s.cost)
	if err != nil {
		return err
	}
	data, err := json.Marshal(userRecord{Hash: hash, CreatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		key := []byte(userKeyPrefix + username)
		if _, err := txn.Get(key); err == nil {
			return ErrUserExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, data)
	})
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
