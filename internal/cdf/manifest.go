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
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ManifestFileName is the well-known name of the CDF manifest inside a bundle.
const ManifestFileName = "cdf-meta.json"

type FileEntry struct {
	Name      string `json:"name"`
	SHA256    string `json:"sha256"`
	Signature string `json:"signature,omitempty"`
}

// Manifest is the signed declaration of which files, hashes and signatures
// belong to a CDF bundle. It is loaded once per run and read-only afterwards.
type Manifest struct {
	CDFVersion string      `json:"cdf_version"`
	Pattern    string      `json:"pattern"`
	Files      []FileEntry `json:"files"`
}

var manifestRequiredFields = []string{"cdf_version", "pattern", "files"}

// LoadManifest reads and parses the manifest at path. Structural problems are
// returned as findings - one per missing top-level field, so a manifest
// missing both cdf_version and pattern surfaces both at once. The returned
// error is reserved for I/O failures; an absent or unparseable manifest yields
// a nil manifest plus findings.
func LoadManifest(path string) (*Manifest, []Finding, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, []Finding{errorFinding(KindManifestNotFound, ManifestFileName, "no "+ManifestFileName+" found in bundle")}, nil
		}
		return nil, nil, errors.Wrap(err, "could not read manifest")
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(content, &raw); err != nil {
		return nil, []Finding{errorFinding(KindMalformedJSON, ManifestFileName, err.Error())}, nil
	}

	var findings []Finding
	for _, field := range manifestRequiredFields {
		if _, ok := raw[field]; !ok {
			findings = append(findings, errorFinding(KindMissingField, ManifestFileName, "missing required field "+field))
		}
	}

	var manifest Manifest
	if err := json.Unmarshal(content, &manifest); err != nil {
		findings = append(findings, errorFinding(KindMalformedJSON, ManifestFileName, err.Error()))
		return nil, findings, nil
	}

	// entry paths have to be unique - a duplicate would make the integrity
	// verdict for that path ambiguous
	seen := make(map[string]struct{}, len(manifest.Files))
	for _, entry := range manifest.Files {
		if entry.Name == "" {
			continue
		}
		if _, ok := seen[entry.Name]; ok {
			findings = append(findings, errorFinding(KindDuplicateEntry, entry.Name, "declared more than once"))
			continue
		}
		seen[entry.Name] = struct{}{}
	}

	return &manifest, findings, nil
}

//go:embed cdf-meta.schema.json
var manifestSchemaJSON []byte

var (
	manifestSchemaOnce sync.Once
	manifestSchema     *jsonschema.Schema
	manifestSchemaErr  error
)

func compiledManifestSchema() (*jsonschema.Schema, error) {
	manifestSchemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(manifestSchemaJSON))
		if err != nil {
			manifestSchemaErr = err
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("cdf-meta.schema.json", doc); err != nil {
			manifestSchemaErr = err
			return
		}
		manifestSchema, manifestSchemaErr = compiler.Compile("cdf-meta.schema.json")
	})
	return manifestSchema, manifestSchemaErr
}

// ValidateManifestSchema runs the embedded JSON schema over the manifest at
// path. Only used at the strict validation level; the per-field checks in
// LoadManifest stay authoritative for the basic and full levels.
func ValidateManifestSchema(path string) []Finding {
	schema, err := compiledManifestSchema()
	if err != nil {
		return []Finding{errorFinding(KindSchemaViolation, ManifestFileName, err.Error())}
	}

	file, err := os.Open(path)
	if err != nil {
		// absence is already reported by LoadManifest
		return nil
	}
	defer file.Close()

	doc, err := jsonschema.UnmarshalJSON(file)
	if err != nil {
		// malformed JSON is already reported by LoadManifest
		return nil
	}

	err = schema.Validate(doc)
	if err == nil {
		return nil
	}

	validationErr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []Finding{errorFinding(KindSchemaViolation, ManifestFileName, err.Error())}
	}

	var findings []Finding
	for _, leaf := range leafCauses(validationErr) {
		findings = append(findings, errorFinding(KindSchemaViolation, ManifestFileName, schemaViolationDetail(leaf)))
	}
	return findings
}

func leafCauses(err *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(err.Causes) == 0 {
		return []*jsonschema.ValidationError{err}
	}
	var leaves []*jsonschema.ValidationError
	for _, cause := range err.Causes {
		leaves = append(leaves, leafCauses(cause)...)
	}
	return leaves
}

var schemaMessagePrinter = message.NewPrinter(language.English)

func schemaViolationDetail(err *jsonschema.ValidationError) string {
	location := "/"
	for i, seg := range err.InstanceLocation {
		if i > 0 {
			location += "/"
		}
		location += seg
	}
	return fmt.Sprintf("at %s: %s", location, err.ErrorKind.LocalizedString(schemaMessagePrinter))
}
