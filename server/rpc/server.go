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

// Package rpc provides the HTTP API of revdoc. Documents, their revisions
// and their attachments are served as JSON resources, next to the metrics
// and the runtime profiles of the process.
package rpc

import (
	"context"
	"fmt"
	"net/http/pprof"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/revdoc/revdoc/server/backend"
	"github.com/revdoc/revdoc/server/logging"
)

const (
	httpPrefixMetrics = "/metrics"
	httpPrefixPProf   = "/debug/pprof"

	shutdownTimeout = 3 * time.Second
)

// Server is the HTTP server of revdoc.
type Server struct {
	conf    *Config
	app     *fiber.App
	backend *backend.Backend
}

// NewServer creates a new instance of Server.
func NewServer(conf *Config, be *backend.Backend) (*Server, error) {
	app := fiber.New(fiber.Config{
		// document ids taken from the path are kept in the registry
		Immutable:             true,
		DisableStartupMessage: true,
		BodyLimit:             conf.MaxRequestBytes,
		ReadTimeout:           conf.ParseReadTimeout(),
		ErrorHandler:          errorHandler,
	})

	app.Use(withRequestLogger)

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get(httpPrefixMetrics, adaptor.HTTPHandler(
		promhttp.HandlerFor(be.Metrics.Registry(), promhttp.HandlerOpts{}),
	))
	if conf.EnablePprof {
		app.Get(httpPrefixPProf+"/profile", adaptor.HTTPHandlerFunc(pprof.Profile))
		app.Get(httpPrefixPProf+"/symbol", adaptor.HTTPHandlerFunc(pprof.Symbol))
		app.Get(httpPrefixPProf+"/cmdline", adaptor.HTTPHandlerFunc(pprof.Cmdline))
		app.Get(httpPrefixPProf+"/trace", adaptor.HTTPHandlerFunc(pprof.Trace))
		app.Get(httpPrefixPProf+"/*", adaptor.HTTPHandlerFunc(pprof.Index))
	}

	registerDocumentRoutes(app, newDocumentService(be))

	return &Server{
		conf:    conf,
		app:     app,
		backend: be,
	}, nil
}

// App returns the fiber application of the server.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start starts the server by opening the port.
func (s *Server) Start() error {
	return s.listenAndServe()
}

// Shutdown shuts down the server. A graceful shutdown waits for in-flight
// requests.
func (s *Server) Shutdown(graceful bool) {
	var err error
	if graceful {
		err = s.app.ShutdownWithContext(context.Background())
	} else {
		err = s.app.ShutdownWithTimeout(shutdownTimeout)
	}
	if err != nil {
		logging.DefaultLogger().Errorf("HTTP server shutdown: %v", err)
	}
}

func (s *Server) listenAndServe() error {
	go func() {
		logging.DefaultLogger().Infof("serving API on %d", s.conf.Port)
		if err := s.app.Listen(fmt.Sprintf(":%d", s.conf.Port)); err != nil {
			logging.DefaultLogger().Errorf("HTTP server Listen: %v", err)
		}
	}()
	return nil
}

// withRequestLogger carries a logger naming the request in the user context
// of the request.
func withRequestLogger(c *fiber.Ctx) error {
	logger := logging.DefaultLogger().With("method", c.Method(), "path", c.Path())
	c.SetUserContext(logging.With(c.UserContext(), logger))
	return c.Next()
}
