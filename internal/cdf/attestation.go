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
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	toto "github.com/in-toto/in-toto-golang/in_toto"
	"github.com/pkg/errors"
)

const (
	attestationSuffix = ".attestation.json"
	signatureSuffix   = ".sig"
	certificateSuffix = ".cert"
)

// attestationRequiredFields are the top-level fields of an in-toto statement.
// A document missing several of them reports one finding per field.
var attestationRequiredFields = []string{"_type", "subject", "predicateType", "predicate"}

// SignatureArtifact groups an attestation document with its detached
// signature and certificate siblings, derived by suffix substitution
// (.json -> .sig / .cert).
type SignatureArtifact struct {
	DocumentPath    string
	SignaturePath   string
	CertificatePath string
}

// ArtifactForDocument derives the sibling artifact paths for an attestation
// document.
func ArtifactForDocument(documentPath string) SignatureArtifact {
	base := strings.TrimSuffix(documentPath, ".json")
	return SignatureArtifact{
		DocumentPath:    documentPath,
		SignaturePath:   base + signatureSuffix,
		CertificatePath: base + certificateSuffix,
	}
}

// DiscoverAttestations lists every *.attestation.json under root, sorted for
// deterministic report ordering.
func DiscoverAttestations(root string) ([]string, error) {
	var documents []string
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
		if strings.HasSuffix(d.Name(), attestationSuffix) {
			documents = append(documents, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not scan bundle for attestations")
	}
	sort.Strings(documents)
	return documents, nil
}

// ValidateAttestation checks a single attestation document for the expected
// provenance-statement shape and the presence of its companion artifacts.
//
// The certificate sibling is a structural expectation and its absence is
// reported even when the later verification step will use a public key
// instead - presence of the certificate and usage of the certificate are two
// separate questions.
//
// When the document is structurally sound it is also decoded into an in-toto
// statement for the strict-level subject digest cross-check.
func ValidateAttestation(documentPath, bundleRoot string) (*toto.Statement, []Finding) {
	rel := relToBundle(documentPath, bundleRoot)

	content, err := os.ReadFile(documentPath)
	if err != nil {
		return nil, []Finding{errorFinding(KindInvalidAttestationJSON, rel, err.Error())}
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(content, &raw); err != nil {
		return nil, []Finding{errorFinding(KindInvalidAttestationJSON, rel, err.Error())}
	}

	var findings []Finding
	structurallyValid := true
	for _, field := range attestationRequiredFields {
		if _, ok := raw[field]; !ok {
			structurallyValid = false
			findings = append(findings, errorFinding(KindMissingAttestationField, rel, "missing required field "+field))
		}
	}

	artifact := ArtifactForDocument(documentPath)
	if _, err := os.Stat(artifact.SignaturePath); err != nil {
		findings = append(findings, errorFinding(KindSignatureFileMissing, relToBundle(artifact.SignaturePath, bundleRoot), "no detached signature for attestation"))
	}
	if _, err := os.Stat(artifact.CertificatePath); err != nil {
		findings = append(findings, errorFinding(KindCertificateFileMissing, relToBundle(artifact.CertificatePath, bundleRoot), "no certificate for attestation"))
	}

	if !structurallyValid {
		return nil, findings
	}

	var statement toto.Statement
	if err := json.Unmarshal(content, &statement); err != nil {
		findings = append(findings, errorFinding(KindInvalidAttestationJSON, rel, err.Error()))
		return nil, findings
	}

	return &statement, findings
}

// CrossCheckSubjects compares the sha256 digests an attestation claims for
// its subjects against the manifest declaration. Only subjects whose name
// matches a declared file are considered; an attestation is free to cover
// artifacts outside the bundle.
func CrossCheckSubjects(statement *toto.Statement, manifest *Manifest, documentPath, bundleRoot string) []Finding {
	declared := make(map[string]string, len(manifest.Files))
	for _, entry := range manifest.Files {
		declared[entry.Name] = entry.SHA256
	}

	rel := relToBundle(documentPath, bundleRoot)

	var findings []Finding
	for _, subject := range statement.Subject {
		expected, ok := declared[subject.Name]
		if !ok || expected == "" {
			continue
		}
		claimed, ok := subject.Digest["sha256"]
		if !ok || claimed == "" {
			continue
		}
		if !strings.EqualFold(claimed, expected) {
			findings = append(findings, errorFinding(KindSubjectDigestMismatch, rel, "subject "+subject.Name+" disagrees with manifest digest"))
		}
	}
	return findings
}

func relToBundle(path, bundleRoot string) string {
	rel, err := filepath.Rel(bundleRoot, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}
