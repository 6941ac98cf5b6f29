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

package cdf

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/opencontainers/go-digest"
)

// placeholderHashPrefix marks entries whose digest has not been filled in
// yet. Such entries are scaffolding from before the bundle was signed and are
// counted but not verified.
const placeholderHashPrefix = "placeholder_"

// CheckIntegrity recomputes the content digest of every declared file and
// compares it against the manifest. This is the tamper-detection core: any
// byte changed after the manifest was signed surfaces here as a hash
// mismatch.
//
// The manifest's own entry is exempt from hashing. It cannot carry its own
// digest without a circular dependency; its integrity rests on signature
// verification instead. The exemption is counted like every other entry.
func CheckIntegrity(manifest *Manifest, bundleRoot string, acc *Accumulator) {
	for _, entry := range manifest.Files {
		acc.CountFile()

		if entry.Name == "" || entry.SHA256 == "" {
			continue
		}
		if entry.Name == ManifestFileName {
			continue
		}
		if strings.HasPrefix(entry.SHA256, placeholderHashPrefix) {
			slog.Debug("skipping placeholder hash", "file", entry.Name)
			continue
		}

		path := filepath.Join(bundleRoot, filepath.FromSlash(entry.Name))
		file, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				acc.Add(errorFinding(KindFileMissing, entry.Name, "declared in manifest but not found on disk"))
			} else {
				acc.Add(errorFinding(KindFileMissing, entry.Name, err.Error()))
			}
			continue
		}

		actual, err := digest.SHA256.FromReader(file)
		file.Close()
		if err != nil {
			acc.Add(errorFinding(KindHashMismatch, entry.Name, "could not hash file: "+err.Error()))
			continue
		}

		if !strings.EqualFold(actual.Encoded(), entry.SHA256) {
			acc.Add(errorFinding(KindHashMismatch, entry.Name, fmt.Sprintf("expected %s, got %s", entry.SHA256, actual.Encoded())))
			continue
		}

		slog.Debug("hash matches", "file", entry.Name)
	}
}
