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

package config

import (
	"encoding/base64"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type validateConfig struct {
	Path                    string `json:"path" mapstructure:"path"`
	ValidationLevel         string `json:"validationLevel" mapstructure:"validationLevel"`
	FailOnUnauthorizedFiles bool   `json:"failOnUnauthorizedFiles" mapstructure:"failOnUnauthorizedFiles"`
	SkipSignatureValidation bool   `json:"skipSignatureValidation" mapstructure:"skipSignatureValidation"`
	ProtectedExtension      string `json:"protectedExtension" mapstructure:"protectedExtension"`

	CertIdentityRegexp        string `json:"certIdentityRegexp" mapstructure:"certIdentityRegexp"`
	CertIssuerRegexp          string `json:"certIssuerRegexp" mapstructure:"certIssuerRegexp"`
	InsecureAcceptAnyIdentity bool   `json:"insecureAcceptAnyIdentity" mapstructure:"insecureAcceptAnyIdentity"`
	InsecureIgnoreTlog        bool   `json:"insecureIgnoreTlog" mapstructure:"insecureIgnoreTlog"`

	PublicKey string `json:"publicKey" mapstructure:"publicKey"`
	Timeout   int    `json:"timeout" mapstructure:"timeout"`
}

var RuntimeValidateConfig validateConfig

func ParseValidateConfig() {
	err := viper.Unmarshal(&RuntimeValidateConfig)
	if err != nil {
		panic(err)
	}

	if RuntimeValidateConfig.ValidationLevel == "" {
		RuntimeValidateConfig.ValidationLevel = "full"
	}

	if RuntimeValidateConfig.Timeout <= 0 {
		RuntimeValidateConfig.Timeout = 30
	}
}

const (
	publicKeyPEMEnvVar = "COSIGN_PUBLIC_KEY_PEM"
	publicKeyB64EnvVar = "COSIGN_PUBLIC_KEY_B64"
)

// repoKeyCandidates is where a public key may be committed alongside the
// code, relative to the working directory and the bundle root.
var repoKeyCandidates = []string{".github/keys/cosign.pub"}

// ResolvePublicKey gathers the trust material public key. Resolution order:
// explicit flag value, PEM env var, base64 env var, committed key file. The
// first hit wins. The bool reports whether any key was found.
func ResolvePublicKey(flagValue, bundleRoot string) (string, bool) {
	if flagValue != "" {
		return flagValue, true
	}

	if pem := os.Getenv(publicKeyPEMEnvVar); pem != "" {
		return pem, true
	}

	if b64 := os.Getenv(publicKeyB64EnvVar); b64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(b64)
		if err == nil {
			return string(decoded), true
		}
	}

	for _, candidate := range repoKeyCandidates {
		for _, dir := range []string{".", bundleRoot} {
			if dir == "" {
				continue
			}
			content, err := os.ReadFile(filepath.Join(dir, candidate))
			if err == nil {
				return string(content), true
			}
		}
	}

	return "", false
}

// WriteKeyFile stores the key content in a uuid-named temp dir with minimum
// permissions so it can be handed to the cosign subprocess. The returned
// cleanup removes the directory again.
func WriteKeyFile(content string) (string, func(), error) {
	dir := filepath.Join(os.TempDir(), uuid.New().String())
	if err := os.Mkdir(dir, 0700); err != nil {
		return "", nil, errors.Wrap(err, "could not create temp dir")
	}

	path := filepath.Join(dir, "cosign-pubkey.pem")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		os.RemoveAll(dir) // nolint:errcheck
		return "", nil, errors.Wrap(err, "could not write public key")
	}

	return path, func() {
		os.RemoveAll(dir) // nolint:errcheck
	}, nil
}
