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
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/l3montree-dev/cdfguard/internal/cdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindBundleRoot(t *testing.T) {
	t.Run("accepts a directory containing the manifest", func(t *testing.T) {
		root := writeBundle(t, map[string][]byte{"main.tf": []byte("a")})

		found, err := cdf.FindBundleRoot(root)

		require.NoError(t, err)
		assert.Equal(t, root, found)
	})

	t.Run("accepts the manifest file itself", func(t *testing.T) {
		root := writeBundle(t, map[string][]byte{"main.tf": []byte("a")})

		found, err := cdf.FindBundleRoot(filepath.Join(root, cdf.ManifestFileName))

		require.NoError(t, err)
		assert.Equal(t, root, found)
	})

	t.Run("a directory without a manifest resolves to nothing", func(t *testing.T) {
		found, err := cdf.FindBundleRoot(t.TempDir())

		require.NoError(t, err)
		assert.Empty(t, found)
	})
}

func runPipeline(t *testing.T, opts cdf.Options) cdf.Report {
	t.Helper()
	report, err := cdf.NewPipeline(opts).Run(context.Background())
	require.NoError(t, err)
	return report
}

func TestPipelineRun(t *testing.T) {
	t.Run("a clean bundle passes with one counted file", func(t *testing.T) {
		root := writeBundle(t, map[string][]byte{"main.tf": []byte("resource {}\n")})

		report := runPipeline(t, cdf.Options{
			BundlePath:              root,
			FailOnUnauthorizedFiles: true,
			SkipSignatureValidation: true,
		})

		assert.Equal(t, cdf.StatusPassed, report.Status)
		assert.Equal(t, 0, report.ErrorCount)
		assert.Equal(t, 1, report.FileCount)
	})

	t.Run("a bundle without attestations needs no trust material", func(t *testing.T) {
		root := writeBundle(t, map[string][]byte{"main.tf": []byte("resource {}\n")})

		report := runPipeline(t, cdf.Options{
			BundlePath:              root,
			FailOnUnauthorizedFiles: true,
			Verifier:                &fakeVerifier{},
		})

		assert.Equal(t, cdf.StatusPassed, report.Status)
		assert.Equal(t, 0, report.ErrorCount)
	})

	t.Run("no bundle means skipped, not failed", func(t *testing.T) {
		report := runPipeline(t, cdf.Options{BundlePath: t.TempDir()})

		assert.Equal(t, cdf.StatusSkipped, report.Status)
		assert.Zero(t, report.ErrorCount)
		assert.Zero(t, report.FileCount)
	})

	t.Run("mutating one byte fails the run with a single mismatch", func(t *testing.T) {
		root := writeBundle(t, map[string][]byte{"main.tf": []byte("resource {}\n")})
		writeFile(t, root, "main.tf", []byte("resource {}!\n"))

		report := runPipeline(t, cdf.Options{
			BundlePath:              root,
			SkipSignatureValidation: true,
		})

		assert.Equal(t, cdf.StatusFailed, report.Status)
		assert.Equal(t, 1, report.ErrorCount)
		mismatches := findingsOfKind(report.Findings, cdf.KindHashMismatch)
		require.Len(t, mismatches, 1)
		assert.Equal(t, "main.tf", mismatches[0].Path)
	})

	t.Run("a rogue protected file fails the run under the fail policy", func(t *testing.T) {
		root := writeBundle(t, map[string][]byte{"main.tf": []byte("resource {}\n")})
		writeFile(t, root, "rogue.tf", []byte("backdoor"))

		report := runPipeline(t, cdf.Options{
			BundlePath:              root,
			FailOnUnauthorizedFiles: true,
			SkipSignatureValidation: true,
		})

		assert.Equal(t, cdf.StatusFailed, report.Status)
		assert.GreaterOrEqual(t, report.ErrorCount, 1)
	})

	t.Run("the same rogue file alone does not fail a lenient run", func(t *testing.T) {
		root := writeBundle(t, map[string][]byte{"main.tf": []byte("resource {}\n")})
		writeFile(t, root, "rogue.tf", []byte("backdoor"))

		report := runPipeline(t, cdf.Options{
			BundlePath:              root,
			FailOnUnauthorizedFiles: false,
			SkipSignatureValidation: true,
		})

		assert.Equal(t, cdf.StatusPassed, report.Status)
		assert.Equal(t, 0, report.ErrorCount)
		assert.Len(t, findingsOfKind(report.Findings, cdf.KindUnauthorizedFile), 1)
	})

	t.Run("running twice over an unmodified bundle is idempotent", func(t *testing.T) {
		root := writeBundle(t, map[string][]byte{"main.tf": []byte("resource {}\n")})
		writeFile(t, root, "rogue.tf", []byte("backdoor"))
		opts := cdf.Options{
			BundlePath:              root,
			FailOnUnauthorizedFiles: true,
			SkipSignatureValidation: true,
		}

		first := runPipeline(t, opts)
		second := runPipeline(t, opts)

		assert.Equal(t, first, second)
	})

	t.Run("skipping signature validation leaves those stages out of the summary", func(t *testing.T) {
		root := writeBundle(t, map[string][]byte{"main.tf": []byte("resource {}\n")})

		report := runPipeline(t, cdf.Options{
			BundlePath:              root,
			SkipSignatureValidation: true,
		})

		assert.Contains(t, report.Summary, "integrity")
		assert.NotContains(t, report.Summary, "signature")
		assert.NotContains(t, report.Summary, "attestation")
	})

	t.Run("basic level skips the unauthorized-file scan", func(t *testing.T) {
		root := writeBundle(t, map[string][]byte{"main.tf": []byte("resource {}\n")})
		writeFile(t, root, "rogue.tf", []byte("backdoor"))

		report := runPipeline(t, cdf.Options{
			BundlePath:              root,
			Level:                   cdf.LevelBasic,
			FailOnUnauthorizedFiles: true,
		})

		assert.Equal(t, cdf.StatusPassed, report.Status)
		assert.Empty(t, findingsOfKind(report.Findings, cdf.KindUnauthorizedFile))
	})

	t.Run("attestations are validated and verified at the full level", func(t *testing.T) {
		content := []byte("resource {}\n")
		root := writeBundle(t, map[string][]byte{"main.tf": content})
		writeFile(t, root, "build.attestation.json", []byte(fmt.Sprintf(validStatement, sha256Hex(content))))
		writeFile(t, root, "build.attestation.sig", []byte("c2ln"))
		writeFile(t, root, "build.attestation.cert", []byte("cert"))

		verifier := &fakeVerifier{}
		report := runPipeline(t, cdf.Options{
			BundlePath:              root,
			FailOnUnauthorizedFiles: true,
			Trust:                   cdf.TrustMaterial{PublicKeyPEM: "pem", PublicKeyPath: "/tmp/key"},
			Verifier:                verifier,
		})

		assert.Equal(t, cdf.StatusPassed, report.Status)
		assert.Len(t, verifier.calls, 1)
		assert.Contains(t, report.Summary, "attestation")
		assert.Contains(t, report.Summary, "signature")
	})

	t.Run("an attestation missing fields fails the run", func(t *testing.T) {
		root := writeBundle(t, map[string][]byte{"main.tf": []byte("resource {}\n")})
		writeFile(t, root, "build.attestation.json", []byte(`{"_type":"s","predicate":{}}`))
		writeFile(t, root, "build.attestation.sig", []byte("c2ln"))
		writeFile(t, root, "build.attestation.cert", []byte("cert"))

		report := runPipeline(t, cdf.Options{
			BundlePath: root,
			Trust:      cdf.TrustMaterial{PublicKeyPEM: "pem", PublicKeyPath: "/tmp/key"},
			Verifier:   &fakeVerifier{},
		})

		assert.Equal(t, cdf.StatusFailed, report.Status)
		assert.Len(t, findingsOfKind(report.Findings, cdf.KindMissingAttestationField), 2)
	})

	t.Run("strict level cross-checks attestation subjects against the manifest", func(t *testing.T) {
		content := []byte("resource {}\n")
		root := writeBundle(t, map[string][]byte{"main.tf": content})
		// attestation claims a different digest than the manifest declares
		writeFile(t, root, "build.attestation.json", []byte(fmt.Sprintf(validStatement, sha256Hex([]byte("other")))))
		writeFile(t, root, "build.attestation.sig", []byte("c2ln"))
		writeFile(t, root, "build.attestation.cert", []byte("cert"))

		report := runPipeline(t, cdf.Options{
			BundlePath: root,
			Level:      cdf.LevelStrict,
			Trust:      cdf.TrustMaterial{PublicKeyPEM: "pem", PublicKeyPath: "/tmp/key"},
			Verifier:   &fakeVerifier{},
		})

		assert.Equal(t, cdf.StatusFailed, report.Status)
		assert.Len(t, findingsOfKind(report.Findings, cdf.KindSubjectDigestMismatch), 1)
	})
}

func TestParseValidationLevel(t *testing.T) {
	for _, valid := range []string{"basic", "full", "strict"} {
		level, err := cdf.ParseValidationLevel(valid)
		require.NoError(t, err)
		assert.Equal(t, cdf.ValidationLevel(valid), level)
	}

	_, err := cdf.ParseValidationLevel("paranoid")
	assert.Error(t, err)
}
