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

// Package main is the entry point of the revdoc CLI.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/revdoc/revdoc/client"
)

const defaultRPCAddr = "localhost:5984"

var rootCmd = &cobra.Command{
	Use:          "revdoc",
	Short:        "Revisioned JSON document store with attachments",
	SilenceUsage: true,
}

// Run executes CLI.
func Run() int {
	if err := rootCmd.Execute(); err != nil {
		return 1
	}

	return 0
}

// newClient dials the server named by the "rpcAddr" setting.
func newClient() (*client.Client, error) {
	rpcAddr := viper.GetString("rpcAddr")
	cli, err := client.New(rpcAddr, client.WithLogger(zap.NewNop()))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcAddr, err)
	}
	return cli, nil
}

func init() {
	rootCmd.PersistentFlags().String("rpc-addr", defaultRPCAddr, "Address of the revdoc server")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output format: json, yaml or empty for a table")

	_ = viper.BindPFlag("rpcAddr", rootCmd.PersistentFlags().Lookup("rpc-addr"))
	_ = viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))

	// REVDOC_RPC_ADDR and REVDOC_OUTPUT override the defaults of the flags.
	_ = viper.BindEnv("rpcAddr", "REVDOC_RPC_ADDR")
	_ = viper.BindEnv("output", "REVDOC_OUTPUT")
}
