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

/*
Package auth provides the credential store used by LOGIN and REGISTER.

OVERVIEW:
=========
The chat core only needs two synchronous calls:

	Authenticate(username, password) error
	Register(username, password) error

Two backends implement them:

  - FileStore: a flat file with one "username:bcrypt-hash" line per user
  - BadgerStore: a BadgerDB keyspace with one "user:<name>" record per user

Passwords are always stored as bcrypt hashes.

VALIDATION:
===========
Usernames and passwords must fit their wire fields (31 and 63 bytes). A
username may not contain ':' or whitespace, since the file backend uses ':'
as separator and the text client splits commands on spaces.
*/
//go:generate go run go.uber.org/mock/mockgen -source=auth.go -destination=../mocks/mock_credentials.go -package=mocks
package auth

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

// Credential errors.
var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserExists         = errors.New("username already exists")
	ErrInvalidInput       = errors.New("invalid credentials format")
)

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendBadger = "badger"
)

// CredentialStore checks and records user credentials.
type CredentialStore interface {
	// Authenticate returns nil when the pair matches a registered user and
	// ErrInvalidCredentials otherwise.
	Authenticate(username, password string) error

	// Register records a new user. It returns ErrUserExists for a taken
	// name and ErrInvalidInput when the pair fails validation.
	Register(username, password string) error
}

// Store is a CredentialStore holding resources.
type Store interface {
	CredentialStore
	io.Closer
}

// Options selects and configures a backend.
type Options struct {
	Backend    string
	Path       string
	BcryptCost int
}

// Open creates the configured backend.
func Open(opts Options) (Store, error) {
	switch opts.Backend {
	case BackendFile, "":
		return NewFileStore(opts.Path, opts.BcryptCost), nil
	case BackendBadger:
		return OpenBadgerStore(opts.Path, opts.BcryptCost)
	default:
		return nil, fmt.Errorf("unknown credentials backend %q", opts.Backend)
	}
}

// Credentials is the validated form of a LOGIN/REGISTER payload.
type Credentials struct {
	Username string `validate:"required,maxbytes=31,username"`
	Password string `validate:"required,maxbytes=63"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// The stock max tag counts runes; the wire fields are sized in bytes.
	_ = v.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		n, err := strconv.Atoi(fl.Param())
		return err == nil && len(fl.Field().String()) <= n
	})
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return !strings.ContainsFunc(fl.Field().String(), func(r rune) bool {
			return r == ':' || r == 0 || unicode.IsSpace(r) || !unicode.IsPrint(r)
		})
	})
	return v
}

// Validate checks a username/password pair against the wire limits.
func Validate(username, password string) error {
	if err := validate.Struct(Credentials{Username: username, Password: password}); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// HashPassword hashes a password using bcrypt.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// checkPassword compares a stored hash with a candidate password.
func checkPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
