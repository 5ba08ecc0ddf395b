/*
 * Copyright 2026 The Revdoc Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"runtime"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/revdoc/revdoc/internal/version"
)

// versionInfo is the version of the CLI.
type versionInfo struct {
	Version   string `json:"version" yaml:"version"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	BuildDate string `json:"build_date,omitempty" yaml:"build_date,omitempty"`
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of revdoc",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := versionInfo{
				Version:   version.Version,
				GoVersion: runtime.Version(),
				BuildDate: version.BuildDate,
			}

			return printOutput(cmd, info, func() table.Writer {
				tw := newTable()
				tw.AppendRow(table.Row{"Revdoc:", info.Version})
				tw.AppendRow(table.Row{"Go:", info.GoVersion})
				tw.AppendRow(table.Row{"Build Date:", info.BuildDate})
				return tw
			})
		},
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
}
