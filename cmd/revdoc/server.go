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
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/revdoc/revdoc/server"
	"github.com/revdoc/revdoc/server/backend"
	"github.com/revdoc/revdoc/server/backend/blobs/minio"
	"github.com/revdoc/revdoc/server/backend/database/mongo"
	"github.com/revdoc/revdoc/server/logging"
)

var (
	gracefulTimeout = 10 * time.Second
)

var (
	flagConfPath string
	flagLogLevel string

	rpcReadTimeout       time.Duration
	housekeepingInterval time.Duration
	blobGracePeriod      time.Duration
	disableHousekeeping  bool

	mongoConnectionURI     string
	mongoConnectionTimeout time.Duration
	mongoDatabase          string
	mongoPingTimeout       time.Duration

	minioEndpoint  string
	minioAccessKey string
	minioSecretKey string
	minioBucket    string
	minioUseSSL    bool

	conf = server.NewConfig()
)

func newServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "server [options]",
		Short: "Start revdoc server",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf.RPC.ReadTimeout = rpcReadTimeout.String()
			conf.Housekeeping.Interval = housekeepingInterval.String()
			conf.Housekeeping.BlobGracePeriod = blobGracePeriod.String()
			if disableHousekeeping {
				conf.Housekeeping = nil
			}

			if mongoConnectionURI != "" {
				conf.Mongo = &mongo.Config{
					ConnectionURI:     mongoConnectionURI,
					ConnectionTimeout: mongoConnectionTimeout.String(),
					Database:          mongoDatabase,
					PingTimeout:       mongoPingTimeout.String(),
					BodyCacheSize:     conf.Backend.BodyCacheSize,
				}
				if !cmd.Flags().Changed("backend-store") {
					conf.Backend.Store = backend.StoreMongo
				}
			}

			if minioEndpoint != "" {
				conf.MinIO = &minio.Config{
					Endpoint:  minioEndpoint,
					AccessKey: minioAccessKey,
					SecretKey: minioSecretKey,
					Bucket:    minioBucket,
					UseSSL:    minioUseSSL,
				}
				if !cmd.Flags().Changed("backend-blobs") {
					conf.Backend.Blobs = backend.BlobsMinIO
				}
			}

			// If config file is given, command-line arguments will be overwritten.
			if flagConfPath != "" {
				parsed, err := server.NewConfigFromFile(flagConfPath)
				if err != nil {
					return err
				}
				conf = parsed
			}

			if err := logging.SetLogLevel(flagLogLevel); err != nil {
				return err
			}

			r, err := server.New(conf)
			if err != nil {
				return err
			}

			if err := r.Start(); err != nil {
				return err
			}

			if code := handleSignal(r); code != 0 {
				return fmt.Errorf("exit code: %d", code)
			}

			return nil
		},
	}
}

func handleSignal(r *server.Revdoc) int {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	var sig os.Signal
	select {
	case s := <-sigCh:
		sig = s
	case <-r.ShutdownCh():
		// revdoc is already shutdown
		return 0
	}

	graceful := false
	if sig == syscall.SIGINT || sig == syscall.SIGTERM {
		graceful = true
	}

	gracefulCh := make(chan struct{})
	go func() {
		if err := r.Shutdown(graceful); err != nil {
			return
		}
		close(gracefulCh)
	}()

	select {
	case <-sigCh:
		return 1
	case <-time.After(gracefulTimeout):
		return 1
	case <-gracefulCh:
		return 0
	}
}

func init() {
	cmd := newServerCmd()
	cmd.Flags().StringVarP(
		&flagConfPath,
		"config",
		"c",
		"",
		"Config path",
	)
	cmd.Flags().StringVarP(
		&flagLogLevel,
		"log-level",
		"l",
		"info",
		"Log level: debug, info, warn, error, panic, fatal",
	)
	cmd.Flags().IntVar(
		&conf.RPC.Port,
		"rpc-port",
		server.DefaultRPCPort,
		"RPC port",
	)
	cmd.Flags().IntVar(
		&conf.RPC.MaxRequestBytes,
		"rpc-max-request-bytes",
		server.DefaultRPCMaxRequestBytes,
		"Maximum client request size in bytes the server will accept, attachments included.",
	)
	cmd.Flags().DurationVar(
		&rpcReadTimeout,
		"rpc-read-timeout",
		server.DefaultRPCReadTimeout,
		"Time allowed to read a whole request.",
	)
	cmd.Flags().BoolVar(
		&conf.RPC.EnablePprof,
		"enable-pprof",
		false,
		"Enable runtime profiling data via HTTP server.",
	)
	cmd.Flags().StringVar(
		&conf.Backend.Store,
		"backend-store",
		server.DefaultStore,
		"Revision store: memory, sqlite or mongo",
	)
	cmd.Flags().StringVar(
		&conf.Backend.SQLitePath,
		"sqlite-path",
		server.DefaultSQLitePath,
		"Database file of the sqlite store",
	)
	cmd.Flags().IntVar(
		&conf.Backend.BodyCacheSize,
		"body-cache-size",
		server.DefaultBodyCacheSize,
		"The number of revision bodies cached by the store.",
	)
	cmd.Flags().StringVar(
		&conf.Backend.Blobs,
		"backend-blobs",
		server.DefaultBlobs,
		"Attachment blob store: memory, localfs or minio",
	)
	cmd.Flags().StringVar(
		&conf.Backend.BlobsDir,
		"blobs-dir",
		server.DefaultBlobsDir,
		"Directory of the localfs blob store",
	)
	cmd.Flags().IntVar(
		&conf.Backend.RegistrySize,
		"registry-size",
		server.DefaultRegistrySize,
		"The number of document handles kept in memory.",
	)
	cmd.Flags().DurationVar(
		&housekeepingInterval,
		"housekeeping-interval",
		server.DefaultHousekeepingInterval,
		"housekeeping interval between housekeeping runs",
	)
	cmd.Flags().IntVar(
		&conf.Housekeeping.CompactionMinGeneration,
		"housekeeping-compaction-min-generation",
		server.DefaultHousekeepingCompactionMinGeneration,
		"generation a document must reach before its old revision bodies are dropped",
	)
	cmd.Flags().IntVar(
		&conf.Housekeeping.DocumentFetchSize,
		"housekeeping-document-fetch-size",
		server.DefaultHousekeepingDocumentFetchSize,
		"maximum number of documents compacted in a single housekeeping run",
	)
	cmd.Flags().DurationVar(
		&blobGracePeriod,
		"housekeeping-blob-grace-period",
		server.DefaultHousekeepingBlobGracePeriod,
		"age an unreferenced attachment blob must reach before housekeeping removes it",
	)
	cmd.Flags().BoolVar(
		&disableHousekeeping,
		"disable-housekeeping",
		false,
		"Disable the background compaction of old revisions.",
	)
	cmd.Flags().StringVar(
		&mongoConnectionURI,
		"mongo-connection-uri",
		"",
		"MongoDB's connection URI",
	)
	cmd.Flags().DurationVar(
		&mongoConnectionTimeout,
		"mongo-connection-timeout",
		server.DefaultMongoConnectionTimeout,
		"Mongo DB's connection timeout",
	)
	cmd.Flags().StringVar(
		&mongoDatabase,
		"mongo-database",
		server.DefaultMongoDatabase,
		"revdoc's database name in MongoDB",
	)
	cmd.Flags().DurationVar(
		&mongoPingTimeout,
		"mongo-ping-timeout",
		server.DefaultMongoPingTimeout,
		"Mongo DB's ping timeout",
	)
	cmd.Flags().StringVar(
		&minioEndpoint,
		"minio-endpoint",
		"",
		"MinIO endpoint of the attachment blobs",
	)
	cmd.Flags().StringVar(
		&minioAccessKey,
		"minio-access-key",
		"",
		"MinIO access key",
	)
	cmd.Flags().StringVar(
		&minioSecretKey,
		"minio-secret-key",
		"",
		"MinIO secret key",
	)
	cmd.Flags().StringVar(
		&minioBucket,
		"minio-bucket",
		server.DefaultMinIOBucket,
		"MinIO bucket of the attachment blobs",
	)
	cmd.Flags().BoolVar(
		&minioUseSSL,
		"minio-use-ssl",
		false,
		"Whether to reach MinIO over TLS",
	)

	rootCmd.AddCommand(cmd)
}
