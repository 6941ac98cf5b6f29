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

import "fmt"

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Kind identifies a single validation failure class. Every stage of the
// pipeline reports its failures through one of these kinds so the aggregator
// can count and render them uniformly.
type Kind string

const (
	// manifest
	KindManifestNotFound Kind = "manifest-not-found"
	KindMalformedJSON    Kind = "malformed-json"
	KindMissingField     Kind = "missing-manifest-field"
	KindDuplicateEntry   Kind = "duplicate-manifest-entry"
	KindSchemaViolation  Kind = "manifest-schema-violation"

	// integrity
	KindFileMissing  Kind = "file-missing"
	KindHashMismatch Kind = "hash-mismatch"

	// unauthorized file scan
	KindUnauthorizedFile Kind = "unauthorized-file"

	// attestation structure
	KindInvalidAttestationJSON  Kind = "invalid-attestation-json"
	KindMissingAttestationField Kind = "missing-attestation-field"
	KindSignatureFileMissing    Kind = "signature-file-missing"
	KindCertificateFileMissing  Kind = "certificate-file-missing"
	KindSubjectDigestMismatch   Kind = "subject-digest-mismatch"

	// signature verification
	KindSignatureInvalid      Kind = "signature-invalid"
	KindCertificateMissing    Kind = "certificate-missing"
	KindIdentityUnconstrained Kind = "identity-unconstrained"
	KindVerifierUnavailable   Kind = "verifier-unavailable"
)

// Finding is a single validation result. Findings are data, not Go errors:
// stages accumulate them and keep going, the run never aborts on the first
// failure.
type Finding struct {
	Kind     Kind     `json:"kind"`
	Severity Severity `json:"severity"`
	// Path is the bundle-relative path the finding refers to, empty for
	// findings about the bundle as a whole.
	Path   string `json:"path,omitempty"`
	Detail string `json:"detail,omitempty"`
}

func (f Finding) String() string {
	if f.Path == "" {
		return fmt.Sprintf("%s: %s", f.Kind, f.Detail)
	}
	if f.Detail == "" {
		return fmt.Sprintf("%s: %s", f.Kind, f.Path)
	}
	return fmt.Sprintf("%s: %s: %s", f.Kind, f.Path, f.Detail)
}

func errorFinding(kind Kind, path, detail string) Finding {
	return Finding{Kind: kind, Severity: SeverityError, Path: path, Detail: detail}
}

func warningFinding(kind Kind, path, detail string) Finding {
	return Finding{Kind: kind, Severity: SeverityWarning, Path: path, Detail: detail}
}
