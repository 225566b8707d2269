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

package moderation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCensor(t *testing.T) {
	m, err := New([]string{"badger", "snake"}, '*')
	require.NoError(t, err)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"clean text", "hello there", "hello there"},
		{"plain word", "the badger is here", "the ****** is here"},
		{"repeated", "snake snake", "***** *****"},
		{"case folded", "BADGER", "******"},
		{"leet and punctuation", "a B.4.d.g.€r!", "a **********!"},
		{"non ascii around", "un été avec un badger", "un été avec un ******"},
		{"empty", "", ""},
		{"inside a word", "honeybadgers", "honey******s"},
		{"across a space", "bad ger", "bad ger"},
		{"across spaced leet", "sn4  ke", "sn4  ke"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Censor(tt.input))
		})
	}
}

func TestCensorPhrase(t *testing.T) {
	m, err := New([]string{"  bad   word "}, '#')
	require.NoError(t, err)

	assert.Equal(t, "a ######## here", m.Censor("a bad word here"))
	assert.Equal(t, "a ########\there", m.Censor("a bad\tword\there"))
	assert.Equal(t, "badword", m.Censor("badword"))
}

func TestCensorDefaultReplacement(t *testing.T) {
	m, err := New([]string{"snake"}, 0)
	require.NoError(t, err)
	assert.Equal(t, "*****", m.Censor("snake"))
}

func TestNewNoWords(t *testing.T) {
	_, err := New(nil, '*')
	assert.ErrorIs(t, err, ErrNoWords)

	_, err = New([]string{"", "..."}, '*')
	assert.ErrorIs(t, err, ErrNoWords)
}

func TestLoadWords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "words.txt")
	require.NoError(t, os.WriteFile(path, []byte("# banned\nbadger\n\n  snake \n"), 0600))

	words, err := LoadWords(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"badger", "snake"}, words)

	_, err = LoadWords(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
