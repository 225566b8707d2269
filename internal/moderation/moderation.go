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

// Package moderation censors banned words in chat text.
//
// Matching runs an Aho-Corasick automaton over a normalized copy of the text:
// leet-speak digits and symbols are mapped back to letters, case is folded and
// punctuation and symbols are skipped, so "B.4.d-g3r" still matches "badger".
// Whitespace separates words: a run of it folds to one space, so a banned
// word matches anywhere inside a word but never across a space ("this hit"
// is left alone). The matched span is then masked in the original text with
// the replacement rune, keeping everything outside the span as written.
package moderation

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

// ErrNoWords is returned by New when the word list is empty after
// normalization.
var ErrNoWords = errors.New("no words to censor")

// DefaultReplacement masks censored runes.
const DefaultReplacement = '*'

// Moderator masks banned words. It is immutable after New and safe for
// concurrent use.
type Moderator struct {
	machine     *goahocorasick.Machine
	replacement rune
}

// New builds a moderator for words.
func New(words []string, replacement rune) (*Moderator, error) {
	patterns := make([][]rune, 0, len(words))
	for _, w := range words {
		if p := trimSeparators(normalizeWord(w)); len(p) > 0 {
			patterns = append(patterns, p)
		}
	}
	if len(patterns) == 0 {
		return nil, ErrNoWords
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, fmt.Errorf("failed to build word matcher: %w", err)
	}
	if replacement == 0 {
		replacement = DefaultReplacement
	}
	return &Moderator{machine: m, replacement: replacement}, nil
}

// Censor returns text with every banned word masked.
func (m *Moderator) Censor(text string) string {
	norm, origIdx := normalize(text)
	if len(norm) == 0 {
		return text
	}
	hits := m.machine.MultiPatternSearch(norm, false)
	if len(hits) == 0 {
		return text
	}

	runes := []rune(text)
	for _, hit := range hits {
		end := hit.Pos + len(hit.Word)
		if hit.Pos < 0 || end > len(origIdx) {
			continue
		}
		for i := origIdx[hit.Pos]; i <= origIdx[end-1]; i++ {
			runes[i] = m.replacement
		}
	}
	return string(runes)
}

// LoadWords reads one word per line from path. Blank lines and lines starting
// with '#' are skipped.
func LoadWords(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open word list: %w", err)
	}
	defer f.Close()

	var words []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read word list: %w", err)
	}
	return words, nil
}

// normalize folds s into its searchable form and records, for every kept
// rune, its index in []rune(s).
func normalize(s string) ([]rune, []int) {
	norm := make([]rune, 0, len(s))
	idx := make([]int, 0, len(s))
	i := 0
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			if len(norm) > 0 && norm[len(norm)-1] != separator {
				norm = append(norm, separator)
				idx = append(idx, i)
			}
		default:
			r = unleet(unicode.ToLower(r))
			if !unicode.IsPunct(r) && !unicode.IsSymbol(r) {
				norm = append(norm, r)
				idx = append(idx, i)
			}
		}
		i++
	}
	return norm, idx
}

// separator stands for a run of whitespace in normalized text.
const separator = ' '

func normalizeWord(w string) []rune {
	norm, _ := normalize(w)
	return norm
}

func trimSeparators(p []rune) []rune {
	for len(p) > 0 && p[len(p)-1] == separator {
		p = p[:len(p)-1]
	}
	for len(p) > 0 && p[0] == separator {
		p = p[1:]
	}
	return p
}

func unleet(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	case '7':
		return 't'
	}
	return r
}
