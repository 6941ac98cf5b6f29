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
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// DefaultProtectedExtension is the file class subject to unauthorized-file
// enforcement: infrastructure code.
const DefaultProtectedExtension = ".tf"

// ScanUnauthorized compares the protected files physically present under
// bundleRoot against the set declared in the manifest. This is the
// injection-prevention half of the pipeline: re-validating declared files
// would never notice a rogue file the manifest does not mention, so the scan
// walks the filesystem independently.
//
// With failOnUnauthorized, rogue files are errors and fail the run; otherwise
// they are surfaced as warnings only.
func ScanUnauthorized(manifest *Manifest, bundleRoot, protectedExt string, failOnUnauthorized bool, acc *Accumulator) error {
	authorized := make(map[string]struct{})
	for _, entry := range manifest.Files {
		if strings.HasSuffix(entry.Name, protectedExt) {
			authorized[filepath.ToSlash(entry.Name)] = struct{}{}
		}
	}

	discovered, err := discoverProtectedFiles(bundleRoot, protectedExt)
	if err != nil {
		return err
	}

	for _, path := range discovered {
		if _, ok := authorized[path]; ok {
			continue
		}
		if failOnUnauthorized {
			acc.Add(errorFinding(KindUnauthorizedFile, path, "not declared in "+ManifestFileName))
		} else {
			acc.Add(warningFinding(KindUnauthorizedFile, path, "not declared in "+ManifestFileName))
		}
	}

	return nil
}

// discoverProtectedFiles enumerates every protected-class file under root,
// skipping .git. The result is sorted so repeated runs report rogue files in
// the same order.
func discoverProtectedFiles(root, protectedExt string) ([]string, error) {
	var discovered []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), protectedExt) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		discovered = append(discovered, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not scan bundle for protected files")
	}
	sort.Strings(discovered)
	return discovered, nil
}
