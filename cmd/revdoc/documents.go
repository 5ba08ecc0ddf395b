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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/revdoc/revdoc/client"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List all documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := newClient()
			if err != nil {
				return err
			}
			defer cli.Close()

			docs, err := cli.ListDocuments(context.Background())
			if err != nil {
				return err
			}

			return printOutput(cmd, docs, func() table.Writer {
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "REV", "GENERATION", "DELETED", "UPDATED AT"})
				for _, doc := range docs {
					tw.AppendRow(table.Row{
						doc.ID,
						doc.Rev,
						doc.Generation,
						doc.Deleted,
						doc.UpdatedAt.Format(time.RFC3339),
					})
				}
				return tw
			})
		},
	}
}

func newGetCmd() *cobra.Command {
	var rev string
	cmd := &cobra.Command{
		Use:   "get [document id]",
		Short: "Print the body of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := newClient()
			if err != nil {
				return err
			}
			defer cli.Close()

			body, err := cli.GetDocument(context.Background(), args[0], rev)
			if err != nil {
				return err
			}

			return printOutput(cmd, body, func() table.Writer {
				tw := newTable()
				tw.AppendHeader(table.Row{"KEY", "VALUE"})
				for _, key := range sortedKeys(body) {
					encoded, err := json.Marshal(body[key])
					if err != nil {
						encoded = []byte(fmt.Sprint(body[key]))
					}
					tw.AppendRow(table.Row{key, string(encoded)})
				}
				return tw
			})
		},
	}
	cmd.Flags().StringVar(&rev, "rev", "", "The revision to print instead of the current one")
	return cmd
}

func newPutCmd() *cobra.Command {
	var (
		rev      string
		bodyPath string
	)
	cmd := &cobra.Command{
		Use:   "put [document id] [JSON body]",
		Short: "Save a new revision of a document",
		Long: "Save a new revision of a document. The body is given as an argument, " +
			"or read from --file, \"-\" reading it from standard input.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readBody(cmd, args, bodyPath)
			if err != nil {
				return err
			}

			var body map[string]interface{}
			if err := json.Unmarshal(raw, &body); err != nil {
				return fmt.Errorf("body must be a JSON object: %w", err)
			}

			cli, err := newClient()
			if err != nil {
				return err
			}
			defer cli.Close()

			result, err := cli.PutDocument(context.Background(), args[0], rev, body)
			if err != nil {
				return err
			}
			return printSaveResult(cmd, result.ID, result.Rev, result)
		},
	}
	cmd.Flags().StringVar(&rev, "rev", "", "The parent revision, required unless the document is new or deleted")
	cmd.Flags().StringVarP(&bodyPath, "file", "f", "", "Read the body from the file")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	var rev string
	cmd := &cobra.Command{
		Use:   "delete [document id]",
		Short: "Delete a document",
		Long:  "Delete a document by saving a deletion revision. The current revision is used unless --rev is given.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := newClient()
			if err != nil {
				return err
			}
			defer cli.Close()

			ctx := context.Background()
			parent, err := resolveRev(ctx, cli, args[0], rev)
			if err != nil {
				return err
			}

			result, err := cli.DeleteDocument(ctx, args[0], parent)
			if err != nil {
				return err
			}
			return printSaveResult(cmd, result.ID, result.Rev, result)
		},
	}
	cmd.Flags().StringVar(&rev, "rev", "", "The revision to delete")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var rev string
	cmd := &cobra.Command{
		Use:   "history [document id]",
		Short: "Show the history of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := newClient()
			if err != nil {
				return err
			}
			defer cli.Close()

			history, err := cli.History(context.Background(), args[0], rev)
			if err != nil {
				return err
			}

			return printOutput(cmd, history, func() table.Writer {
				tw := newTable()
				tw.AppendHeader(table.Row{"SEQ", "REV", "DELETED"})
				for _, r := range history {
					tw.AppendRow(table.Row{r.Sequence, r.Rev, r.Deleted})
				}
				return tw
			})
		},
	}
	cmd.Flags().StringVar(&rev, "rev", "", "The revision whose lineage is shown instead of the current one")
	return cmd
}

func newCompactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compact [document id]",
		Short: "Drop the bodies of the old revisions of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := newClient()
			if err != nil {
				return err
			}
			defer cli.Close()

			count, err := cli.Compact(context.Background(), args[0])
			if err != nil {
				return err
			}

			result := map[string]interface{}{"id": args[0], "compacted": count}
			return printOutput(cmd, result, func() table.Writer {
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "COMPACTED"})
				tw.AppendRow(table.Row{args[0], count})
				return tw
			})
		},
	}
}

// readBody returns the body given as the second argument or read from
// path.
func readBody(cmd *cobra.Command, args []string, path string) ([]byte, error) {
	switch {
	case len(args) == 2 && path != "":
		return nil, errors.New("body is given both as an argument and as a file")
	case len(args) == 2:
		return []byte(args[1]), nil
	case path == "-":
		return io.ReadAll(cmd.InOrStdin())
	case path != "":
		raw, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		return raw, nil
	default:
		return nil, errors.New("body is required")
	}
}

// resolveRev returns rev, or the current revision of the document when rev
// is empty.
func resolveRev(ctx context.Context, cli *client.Client, id, rev string) (string, error) {
	if rev != "" {
		return rev, nil
	}

	body, err := cli.GetDocument(ctx, id, "")
	if err != nil {
		return "", err
	}
	current, ok := body["_rev"].(string)
	if !ok || current == "" {
		return "", fmt.Errorf("document %s has no revision", id)
	}
	return current, nil
}

func init() {
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newPutCmd())
	rootCmd.AddCommand(newDeleteCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newCompactCmd())
}
