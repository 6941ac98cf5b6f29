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
	"context"
	"crypto"
	"encoding/base64"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/pkg/errors"
	"github.com/sigstore/sigstore/pkg/cryptoutils"
	"github.com/sigstore/sigstore/pkg/signature"
	"github.com/sigstore/sigstore/pkg/signature/options"
)

// ErrVerifierUnavailable signals that no verification judgement could be
// made because the external collaborator could not run - a missing binary or
// a timeout, not an invalid signature.
var ErrVerifierUnavailable = errors.New("signature verifier unavailable")

// TrustMaterial carries everything the verifier may verify against. A public
// key wins over per-artifact certificates when both are available.
type TrustMaterial struct {
	// PublicKeyPEM is the PEM-encoded public key content, empty when
	// verification should fall back to per-artifact certificates.
	PublicKeyPEM string
	// PublicKeyPath points to the same key written to disk for verifiers
	// that shell out.
	PublicKeyPath string

	// IdentityRegexp and IssuerRegexp constrain who may have signed when
	// verifying via certificate. They carry no default: accepting any
	// identity is an explicit, insecure opt-in via AcceptAnyIdentity.
	IdentityRegexp string
	IssuerRegexp   string

	// AcceptAnyIdentity permits certificate verification without identity
	// and issuer constraints.
	AcceptAnyIdentity bool

	// IgnoreTLog skips transparency log verification for offline bundles.
	IgnoreTLog bool
}

func (t TrustMaterial) HasPublicKey() bool {
	return t.PublicKeyPEM != "" || t.PublicKeyPath != ""
}

// BlobVerifier is the narrow collaborator interface for cryptographic
// signature verification. The pipeline does not care whether an
// implementation shells out to a binary, uses a library or calls a remote
// service.
type BlobVerifier interface {
	// Verify checks the detached signature of artifact against trust.
	// A nil return means the signature is valid. ErrVerifierUnavailable
	// (possibly wrapped) means no judgement could be made.
	Verify(ctx context.Context, artifact SignatureArtifact, trust TrustMaterial) error
}

// CosignVerifier verifies blobs by invoking the cosign CLI, the same way the
// bundles were signed. Each invocation is bounded by Timeout.
type CosignVerifier struct {
	// Binary is the cosign executable, "cosign" when empty.
	Binary  string
	Timeout time.Duration
}

const defaultVerifyTimeout = 30 * time.Second

func (c CosignVerifier) Verify(ctx context.Context, artifact SignatureArtifact, trust TrustMaterial) error {
	binary := c.Binary
	if binary == "" {
		binary = "cosign"
	}
	if _, err := exec.LookPath(binary); err != nil {
		return errors.Wrap(ErrVerifierUnavailable, "cosign not found in PATH")
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultVerifyTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{"verify-blob", "--signature", artifact.SignaturePath}
	switch {
	case trust.PublicKeyPath != "":
		args = append(args, "--key", trust.PublicKeyPath)
	default:
		args = append(args,
			"--certificate", artifact.CertificatePath,
			"--certificate-identity-regexp", trust.IdentityRegexp,
			"--certificate-oidc-issuer-regexp", trust.IssuerRegexp,
		)
	}
	if trust.IgnoreTLog {
		args = append(args, "--insecure-ignore-tlog")
	}
	args = append(args, artifact.DocumentPath)

	var out bytes.Buffer
	var errOut bytes.Buffer

	verifyCmd := exec.CommandContext(ctx, binary, args...) // nolint:gosec // arguments are file paths and regexps from the validation config
	verifyCmd.Stdout = &out
	verifyCmd.Stderr = &errOut

	err := verifyCmd.Run()
	if err != nil {
		if ctx.Err() != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return errors.Wrap(ErrVerifierUnavailable, "cosign timed out")
			}
			return errors.Wrap(ErrVerifierUnavailable, "cosign canceled")
		}
		slog.Debug("cosign verify-blob failed", "document", artifact.DocumentPath, "out", out.String(), "errOut", errOut.String())
		return errors.Errorf("cosign rejected signature: %s", errOut.String())
	}

	return nil
}

// KeyVerifier verifies detached signatures in-process against a PEM public
// key. Signature files are expected to hold a base64 encoded signature, as
// written by cosign sign-blob.
type KeyVerifier struct{}

func (KeyVerifier) Verify(ctx context.Context, artifact SignatureArtifact, trust TrustMaterial) error {
	pub, err := cryptoutils.UnmarshalPEMToPublicKey([]byte(trust.PublicKeyPEM))
	if err != nil {
		return errors.Wrap(err, "could not parse public key")
	}

	verifier, err := signature.LoadVerifier(pub, crypto.SHA256)
	if err != nil {
		return errors.Wrap(err, "could not load verifier")
	}

	sigContent, err := os.ReadFile(artifact.SignaturePath)
	if err != nil {
		return errors.Wrap(err, "could not read signature file")
	}

	sig, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(sigContent)))
	if err != nil {
		// tolerate raw (non base64) signature files
		sig = sigContent
	}

	document, err := os.Open(artifact.DocumentPath)
	if err != nil {
		return errors.Wrap(err, "could not open attestation document")
	}
	defer document.Close()

	return verifier.VerifySignature(bytes.NewReader(sig), document, options.WithContext(ctx))
}

// unconstrained reports whether a pattern matches any signer.
func unconstrained(pattern string) bool {
	return pattern == "" || pattern == ".*"
}

// VerifySignatures runs the verifier over every artifact whose detached
// signature exists on disk. Artifacts without a signature file were already
// reported by the attestation validator and are skipped here. Verification
// never mutates state; each artifact yields at most one finding.
//
// The identity and issuer constraints are enforced here, per artifact, only
// when certificate-based verification is about to happen. A bundle without
// attestations never needs them.
func VerifySignatures(ctx context.Context, artifacts []SignatureArtifact, trust TrustMaterial, verifier BlobVerifier, bundleRoot string, acc *Accumulator) {
	for _, artifact := range artifacts {
		if _, err := os.Stat(artifact.SignaturePath); err != nil {
			continue
		}

		rel := relToBundle(artifact.DocumentPath, bundleRoot)

		if !trust.HasPublicKey() {
			if _, err := os.Stat(artifact.CertificatePath); err != nil {
				acc.Add(errorFinding(KindCertificateMissing, rel, "neither public key nor certificate available for verification"))
				continue
			}
			if !trust.AcceptAnyIdentity && (unconstrained(trust.IdentityRegexp) || unconstrained(trust.IssuerRegexp)) {
				acc.Add(errorFinding(KindIdentityUnconstrained, rel, "certificate verification without identity and issuer constraints proves the bundle was signed by something, not by whom"))
				continue
			}
		}

		err := verifier.Verify(ctx, artifact, trust)
		switch {
		case err == nil:
			slog.Debug("signature verified", "document", rel)
		case errors.Is(err, ErrVerifierUnavailable):
			acc.Add(errorFinding(KindVerifierUnavailable, rel, err.Error()))
		default:
			acc.Add(errorFinding(KindSignatureInvalid, rel, err.Error()))
		}
	}
}
