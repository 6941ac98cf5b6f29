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

package commands

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/l3montree-dev/cdfguard/cmd/cdfguard/config"
	"github.com/l3montree-dev/cdfguard/internal/cdf"
	"github.com/l3montree-dev/cdfguard/internal/ci"
	"github.com/l3montree-dev/cdfguard/utils"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func validateCmd(cmd *cobra.Command, args []string) error {
	config.ParseValidateConfig()
	cfg := config.RuntimeValidateConfig

	level, err := cdf.ParseValidationLevel(cfg.ValidationLevel)
	if err != nil {
		return err
	}

	bundleRoot, err := cdf.FindBundleRoot(cfg.Path)
	if err != nil {
		return err
	}
	if bundleRoot == "" {
		report := cdf.SkippedReport()
		fmt.Println(report.Summary)
		if err := ci.WriteOutputs(report); err != nil {
			slog.Error("could not persist validation outputs", "err", err)
		}
		return nil
	}

	trust, cleanup, err := buildTrustMaterial(bundleRoot)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	pipeline := cdf.NewPipeline(cdf.Options{
		BundlePath:              cfg.Path,
		Level:                   level,
		FailOnUnauthorizedFiles: cfg.FailOnUnauthorizedFiles,
		SkipSignatureValidation: cfg.SkipSignatureValidation,
		ProtectedExtension:      cfg.ProtectedExtension,
		Trust:                   trust,
		VerifyTimeout:           time.Duration(cfg.Timeout) * time.Second,
	})

	report, err := pipeline.Run(cmd.Context())
	if err != nil {
		return err
	}

	printFindings(report)
	fmt.Println(report.Summary)

	if err := ci.WriteOutputs(report); err != nil {
		slog.Error("could not persist validation outputs", "err", err)
	}

	if report.Status == cdf.StatusFailed {
		return errors.Errorf("validation failed with %d error(s)", report.ErrorCount)
	}
	return nil
}

// buildTrustMaterial resolves the public key and the certificate identity
// constraints. Certificate verification without identity constraints accepts
// a signature from anyone holding any certificate, so the wildcard is an
// explicit opt-in, never a default. The refusal of unconstrained certificate
// verification happens per artifact inside the pipeline - a bundle without
// attestations never needs the constraints.
func buildTrustMaterial(bundleRoot string) (cdf.TrustMaterial, func(), error) {
	cfg := config.RuntimeValidateConfig

	trust := cdf.TrustMaterial{
		IdentityRegexp:    cfg.CertIdentityRegexp,
		IssuerRegexp:      cfg.CertIssuerRegexp,
		IgnoreTLog:        cfg.InsecureIgnoreTlog,
		AcceptAnyIdentity: cfg.InsecureAcceptAnyIdentity,
	}

	keyContent, found := config.ResolvePublicKey(cfg.PublicKey, bundleRoot)
	if found {
		trust.PublicKeyPEM = keyContent
		keyPath, cleanup, err := config.WriteKeyFile(keyContent)
		if err != nil {
			return cdf.TrustMaterial{}, nil, err
		}
		trust.PublicKeyPath = keyPath
		slog.Info("using public key from inputs/env/repo for verification")
		return trust, cleanup, nil
	}

	if cfg.InsecureAcceptAnyIdentity {
		slog.Warn("accepting certificates from ANY identity and ANY issuer - this proves the bundle was signed by something, not by whom")
		if trust.IdentityRegexp == "" {
			trust.IdentityRegexp = ".*"
		}
		if trust.IssuerRegexp == "" {
			trust.IssuerRegexp = ".*"
		}
	}

	return trust, nil, nil
}

func printFindings(report cdf.Report) {
	if len(report.Findings) == 0 {
		return
	}

	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"Severity", "Check", "Path", "Detail"})
	tw.AppendRows(utils.Map(report.Findings, func(f cdf.Finding) table.Row {
		return table.Row{f.Severity, f.Kind, f.Path, f.Detail}
	}))
	fmt.Println(tw.Render())
}

func NewValidateCommand() *cobra.Command {
	validateCommand := &cobra.Command{
		Use:   "validate",
		Short: "Validate a CDF bundle",
		Long:  `Validate a CDF bundle: manifest structure, file integrity, unauthorized infrastructure files, attestation structure and signatures.`,
		RunE:  validateCmd,
	}

	validateCommand.Flags().String("path", "", "The bundle directory (or its cdf-meta.json). Defaults to searching the working directory.")
	validateCommand.Flags().String("validationLevel", "full", "Validation level. Options: basic, full, strict")
	validateCommand.Flags().Bool("failOnUnauthorizedFiles", true, "Fail the run when undeclared infrastructure files are found")
	validateCommand.Flags().Bool("skipSignatureValidation", false, "Skip attestation and signature checks")
	validateCommand.Flags().String("protectedExtension", cdf.DefaultProtectedExtension, "File extension subject to unauthorized-file enforcement")

	validateCommand.Flags().String("certIdentityRegexp", "", "Regexp the certificate identity has to match")
	validateCommand.Flags().String("certIssuerRegexp", "", "Regexp the certificate OIDC issuer has to match")
	validateCommand.Flags().Bool("insecureAcceptAnyIdentity", false, "Accept certificates from any identity and issuer")
	validateCommand.Flags().Bool("insecureIgnoreTlog", false, "Skip transparency log verification")

	validateCommand.Flags().String("publicKey", "", "PEM encoded public key to verify signatures with")
	validateCommand.Flags().Int("timeout", 30, "Per-verification timeout in seconds")

	return validateCommand
}
