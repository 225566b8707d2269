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
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
)

// FileStore keeps credentials in a flat file, one "username:hash" line per
// user. The file is re-read on every call so external edits are picked up
// without a restart.
type FileStore struct {
	mu   sync.Mutex
	path string
	cost int
}

// NewFileStore returns a store backed by path. The file is created on the
// first registration.
func NewFileStore(path string, bcryptCost int) *FileStore {
	return &FileStore{path: path, cost: bcryptCost}
}

// Authenticate implements CredentialStore.
func (s *FileStore) Authenticate(username, password string) error {
	if username == "" || password == "" {
		return ErrInvalidCredentials
	}
	s.mu.Lock()
	hash, found, err := s.lookup(username)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if !found {
		return ErrInvalidCredentials
	}
	return checkPassword(hash, password)
}

// Register implements CredentialStore.
func (s *FileStore) Register(username, password string) error {
	if err := Validate(username, password); err != nil {
		return err
	}
	hash, err := HashPassword(password, s.cost)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, found, err := s.lookup(username)
	if err != nil {
		return err
	}
	if found {
		return ErrUserExists
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open credentials file: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%s:%s\n", username, hash); err != nil {
		f.Close()
		return fmt.Errorf("failed to write credentials file: %w", err)
	}
	return f.Close()
}

// Close implements Store.
func (s *FileStore) Close() error { return nil }

// lookup scans the file for username. A missing file holds no users.
func (s *FileStore) lookup(username string) (string, bool, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read credentials file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name, hash, ok := strings.Cut(strings.TrimSpace(scanner.Text()), ":")
		if ok && name == username {
			return hash, true, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", false, fmt.Errorf("failed to read credentials file: %w", err)
	}
	return "", false, nil
}
