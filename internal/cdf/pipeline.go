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
	"context"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	toto "github.com/in-toto/in-toto-golang/in_toto"
	"github.com/l3montree-dev/cdfguard/utils"
	"github.com/pkg/errors"
)

// defaultVerifier prefers the cosign CLI, matching how bundles are signed.
// When cosign is missing but a public key is at hand, in-process key
// verification still allows a judgement instead of VerifierUnavailable.
func defaultVerifier(trust TrustMaterial, timeout time.Duration) BlobVerifier {
	if _, err := exec.LookPath("cosign"); err != nil && trust.PublicKeyPEM != "" {
		slog.Debug("cosign not found, falling back to in-process key verification")
		return KeyVerifier{}
	}
	return CosignVerifier{Timeout: timeout}
}

type ValidationLevel string

const (
	// LevelBasic checks manifest structure and file integrity only.
	LevelBasic ValidationLevel = "basic"
	// LevelFull adds the unauthorized-file scan, attestation structure
	// checks and signature verification.
	LevelFull ValidationLevel = "full"
	// LevelStrict additionally validates the manifest against its JSON
	// schema and cross-checks attestation subject digests.
	LevelStrict ValidationLevel = "strict"
)

func ParseValidationLevel(s string) (ValidationLevel, error) {
	switch ValidationLevel(s) {
	case LevelBasic, LevelFull, LevelStrict:
		return ValidationLevel(s), nil
	}
	return "", errors.Errorf("unknown validation level %q, expected basic, full or strict", s)
}

// Options is the configuration surface of the validation pipeline, produced
// by the CLI layer.
type Options struct {
	// BundlePath is the bundle root, the manifest file inside it, or empty
	// to search the working directory.
	BundlePath string

	Level                   ValidationLevel
	FailOnUnauthorizedFiles bool
	SkipSignatureValidation bool

	// ProtectedExtension is the file class subject to unauthorized-file
	// enforcement, DefaultProtectedExtension when empty.
	ProtectedExtension string

	Trust TrustMaterial
	// Verifier overrides the default collaborator selection, mainly for
	// tests.
	Verifier BlobVerifier
	// VerifyTimeout bounds a single external verification.
	VerifyTimeout time.Duration
}

// Pipeline runs the validation stages in their fixed order: manifest load,
// integrity check, unauthorized-file scan, attestation validation, signature
// verification, aggregation. Stage ordering is what keeps error ordering in
// the report deterministic.
type Pipeline struct {
	opts Options
}

func NewPipeline(opts Options) *Pipeline {
	if opts.Level == "" {
		opts.Level = LevelFull
	}
	if opts.ProtectedExtension == "" {
		opts.ProtectedExtension = DefaultProtectedExtension
	}
	if opts.Verifier == nil {
		opts.Verifier = defaultVerifier(opts.Trust, opts.VerifyTimeout)
	}
	return &Pipeline{opts: opts}
}

// Run executes the pipeline and aggregates all findings into a single
// report. Every stage accumulates and continues - the point of a run is a
// complete audit, not a fail-fast. The only fatal condition is a bundle root
// that cannot be accessed at all.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	root, err := FindBundleRoot(p.opts.BundlePath)
	if err != nil {
		return Report{}, err
	}
	if root == "" {
		slog.Info("no CDF bundle found, nothing to validate")
		return SkippedReport(), nil
	}
	if _, err := os.Stat(root); err != nil {
		return Report{}, errors.Wrap(err, "bundle root is not accessible")
	}

	slog.Info("validating CDF bundle", "root", root, "level", p.opts.Level)

	acc := NewAccumulator()

	manifest, findings, err := LoadManifest(filepath.Join(root, ManifestFileName))
	if err != nil {
		return Report{}, err
	}
	acc.Add(findings...)
	acc.StageRan("manifest")

	if p.opts.Level == LevelStrict {
		acc.Add(ValidateManifestSchema(filepath.Join(root, ManifestFileName))...)
		acc.StageRan("manifest-schema")
	}

	if manifest != nil {
		CheckIntegrity(manifest, root, acc)
		acc.StageRan("integrity")

		if p.opts.Level != LevelBasic {
			if err := ScanUnauthorized(manifest, root, p.opts.ProtectedExtension, p.opts.FailOnUnauthorizedFiles, acc); err != nil {
				return Report{}, err
			}
			acc.StageRan("unauthorized-scan")
		}
	}

	if p.opts.Level != LevelBasic && !p.opts.SkipSignatureValidation {
		if err := p.runAttestationStages(ctx, manifest, root, acc); err != nil {
			return Report{}, err
		}
	} else if p.opts.SkipSignatureValidation {
		slog.Info("signature validation skipped")
	}

	return acc.Report(p.opts.Level), nil
}

func (p *Pipeline) runAttestationStages(ctx context.Context, manifest *Manifest, root string, acc *Accumulator) error {
	documents, err := DiscoverAttestations(root)
	if err != nil {
		return err
	}

	statements := make(map[string]*toto.Statement, len(documents))
	for _, document := range documents {
		statement, findings := ValidateAttestation(document, root)
		acc.Add(findings...)
		if statement != nil {
			statements[document] = statement
		}
	}
	acc.StageRan("attestation")

	if p.opts.Level == LevelStrict && manifest != nil {
		for _, document := range documents {
			if statement, ok := statements[document]; ok {
				acc.Add(CrossCheckSubjects(statement, manifest, document, root)...)
			}
		}
		acc.StageRan("subject-digests")
	}

	artifacts := make([]SignatureArtifact, 0, len(documents))
	for _, document := range documents {
		artifacts = append(artifacts, ArtifactForDocument(document))
	}
	VerifySignatures(ctx, artifacts, p.opts.Trust, p.opts.Verifier, root, acc)
	acc.StageRan("signature")

	return nil
}

// FindBundleRoot resolves the directory to validate. An explicit path must
// contain the manifest (or be the manifest file itself); an empty path
// triggers a recursive search from the working directory, first hit wins.
// An empty result means there is nothing to validate.
func FindBundleRoot(explicit string) (string, error) {
	if explicit != "" {
		dir := utils.GetDirFromPath(explicit)
		if _, err := os.Stat(filepath.Join(dir, ManifestFileName)); err == nil {
			return dir, nil
		}
		return "", nil
	}

	var found string
	err := filepath.WalkDir(".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == ManifestFileName {
			found = filepath.Dir(path)
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", errors.Wrap(err, "could not search for CDF bundle")
	}
	return found, nil
}
