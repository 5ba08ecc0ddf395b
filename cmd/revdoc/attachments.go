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
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newAttachCmd() *cobra.Command {
	var (
		rev         string
		contentType string
	)
	cmd := &cobra.Command{
		Use:   "attach [document id] [name] [file]",
		Short: "Save a new revision carrying the file as an attachment",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(filepath.Clean(args[2]))
			if err != nil {
				return fmt.Errorf("open attachment: %w", err)
			}
			defer func() {
				_ = file.Close()
			}()

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

			result, err := cli.PutAttachment(ctx, args[0], parent, args[1], contentType, file)
			if err != nil {
				return err
			}
			return printSaveResult(cmd, result.ID, result.Rev, result)
		},
	}
	cmd.Flags().StringVar(&rev, "rev", "", "The parent revision, the current one if omitted")
	cmd.Flags().StringVar(&contentType, "content-type", "", "Content type of the attachment")
	return cmd
}

func newDetachCmd() *cobra.Command {
	var rev string
	cmd := &cobra.Command{
		Use:   "detach [document id] [name]",
		Short: "Save a new revision without the named attachment",
		Args:  cobra.ExactArgs(2),
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

			result, err := cli.DeleteAttachment(ctx, args[0], parent, args[1])
			if err != nil {
				return err
			}
			return printSaveResult(cmd, result.ID, result.Rev, result)
		},
	}
	cmd.Flags().StringVar(&rev, "rev", "", "The parent revision, the current one if omitted")
	return cmd
}

func newCatCmd() *cobra.Command {
	var rev string
	cmd := &cobra.Command{
		Use:   "cat [document id] [name]",
		Short: "Write the content of an attachment to standard output",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := newClient()
			if err != nil {
				return err
			}
			defer cli.Close()

			rc, _, err := cli.GetAttachment(context.Background(), args[0], rev, args[1])
			if err != nil {
				return err
			}
			defer func() {
				_ = rc.Close()
			}()

			if _, err := io.Copy(cmd.OutOrStdout(), rc); err != nil {
				return fmt.Errorf("copy attachment: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&rev, "rev", "", "The revision to read instead of the current one")
	return cmd
}

func init() {
	rootCmd.AddCommand(newAttachCmd())
	rootCmd.AddCommand(newDetachCmd())
	rootCmd.AddCommand(newCatCmd())
}
