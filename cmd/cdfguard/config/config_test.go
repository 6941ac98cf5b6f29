// Copyright (C) 2025 l3montree GmbH
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePublicKey(t *testing.T) {
	t.Run("an explicit value wins over everything", func(t *testing.T) {
		t.Setenv("COSIGN_PUBLIC_KEY_PEM", "env-key")

		key, found := ResolvePublicKey("flag-key", "")

		require.True(t, found)
		assert.Equal(t, "flag-key", key)
	})

	t.Run("the PEM env var wins over the base64 one", func(t *testing.T) {
		t.Setenv("COSIGN_PUBLIC_KEY_PEM", "pem-key")
		t.Setenv("COSIGN_PUBLIC_KEY_B64", base64.StdEncoding.EncodeToString([]byte("b64-key")))

		key, found := ResolvePublicKey("", "")

		require.True(t, found)
		assert.Equal(t, "pem-key", key)
	})

	t.Run("the base64 env var is decoded", func(t *testing.T) {
		t.Setenv("COSIGN_PUBLIC_KEY_PEM", "")
		t.Setenv("COSIGN_PUBLIC_KEY_B64", base64.StdEncoding.EncodeToString([]byte("b64-key")))

		key, found := ResolvePublicKey("", "")

		require.True(t, found)
		assert.Equal(t, "b64-key", key)
	})

	t.Run("a committed key below the bundle root is picked up last", func(t *testing.T) {
		t.Setenv("COSIGN_PUBLIC_KEY_PEM", "")
		t.Setenv("COSIGN_PUBLIC_KEY_B64", "")
		root := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(root, ".github/keys"), 0755))
		require.NoError(t, os.WriteFile(filepath.Join(root, ".github/keys/cosign.pub"), []byte("repo-key"), 0644))

		key, found := ResolvePublicKey("", root)

		require.True(t, found)
		assert.Equal(t, "repo-key", key)
	})

	t.Run("nothing available means no key", func(t *testing.T) {
		t.Setenv("COSIGN_PUBLIC_KEY_PEM", "")
		t.Setenv("COSIGN_PUBLIC_KEY_B64", "")

		_, found := ResolvePublicKey("", t.TempDir())

		assert.False(t, found)
	})
}

func TestWriteKeyFile(t *testing.T) {
	path, cleanup, err := WriteKeyFile("key-content")
	require.NoError(t, err)
	defer cleanup()

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "key-content", string(content))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	cleanup()
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
