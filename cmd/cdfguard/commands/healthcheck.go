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
	"bytes"
	"log/slog"
	"os/exec"

	"github.com/spf13/cobra"
)

func NewHealthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the health of the validator",
		Long:  `Check if all external tools are installed for signature verification to function`,
		Args:  cobra.ExactArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			for _, command := range []string{"cosign"} {
				binCmd := exec.Command(command, "version")
				var out bytes.Buffer
				binCmd.Stdout = &out

				err := binCmd.Run()
				if err != nil {
					slog.Error("could not execute command", "command", command, "err", err)
					continue
				}
				slog.Info("command executed successfully", "command", command)
			}
		},
	}
}
