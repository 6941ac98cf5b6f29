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

package cdf_test

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/l3montree-dev/cdfguard/internal/cdf"
	"github.com/l3montree-dev/cdfguard/utils"
	"github.com/stretchr/testify/require"
)

func sha256Hex(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func sha256HexUpper(content []byte) string {
	return strings.ToUpper(sha256Hex(content))
}

func writeFile(t *testing.T, root, name string, content []byte) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, content, 0644))
}

func writeManifest(t *testing.T, root string, manifest cdf.Manifest) {
	t.Helper()
	content, err := json.Marshal(manifest)
	require.NoError(t, err)
	writeFile(t, root, cdf.ManifestFileName, content)
}

// writeBundle creates a bundle directory with a manifest declaring the given
// files with their correct digests.
func writeBundle(t *testing.T, files map[string][]byte) string {
	t.Helper()
	root := t.TempDir()

	manifest := cdf.Manifest{CDFVersion: "1.0", Pattern: "webservice"}
	for name, content := range files {
		writeFile(t, root, name, content)
		manifest.Files = append(manifest.Files, cdf.FileEntry{
			Name:      name,
			SHA256:    sha256Hex(content),
			Signature: name + ".sig",
		})
	}
	writeManifest(t, root, manifest)
	return root
}

func findingsOfKind(findings []cdf.Finding, kind cdf.Kind) []cdf.Finding {
	return utils.Filter(findings, func(f cdf.Finding) bool {
		return f.Kind == kind
	})
}
