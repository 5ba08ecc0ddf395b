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
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// newTable returns a borderless table writer.
func newTable() table.Writer {
	tw := table.NewWriter()
	tw.Style().Options.DrawBorder = false
	tw.Style().Options.SeparateColumns = false
	tw.Style().Options.SeparateFooter = false
	tw.Style().Options.SeparateHeader = false
	tw.Style().Options.SeparateRows = false
	return tw
}

// printOutput prints v in the format of the "output" setting. renderTable
// is used when no format is set.
func printOutput(cmd *cobra.Command, v interface{}, renderTable func() table.Writer) error {
	switch output := viper.GetString("output"); output {
	case "":
		cmd.Printf("%s\n", renderTable().Render())
	case "json":
		jsonOutput, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal JSON: %w", err)
		}
		cmd.Println(string(jsonOutput))
	case "yaml":
		yamlOutput, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal YAML: %w", err)
		}
		cmd.Println(string(yamlOutput))
	default:
		return fmt.Errorf("unknown output format: %s", output)
	}

	return nil
}

func printSaveResult(cmd *cobra.Command, id, rev string, v interface{}) error {
	return printOutput(cmd, v, func() table.Writer {
		tw := newTable()
		tw.AppendHeader(table.Row{"ID", "REV"})
		tw.AppendRow(table.Row{id, rev})
		return tw
	})
}

func sortedKeys(m map[string]interface{}) []string {
	return slices.Sorted(maps.Keys(m))
}
