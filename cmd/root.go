// Copyright 2024 Celine Data Platform Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/celine-eu/dataset-api/internal/log"
	"github.com/celine-eu/dataset-api/internal/server"
	"github.com/celine-eu/dataset-api/internal/telemetry"
)

var (
	//go:embed version.txt
	versionString string
)

func init() {
	versionString = strings.TrimSpace(versionString)
}

// Execute adds all child commands to the root command and runs it. Called
// once by main.main.
func Execute() {
	if err := NewCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// Command represents one invocation of the CLI.
type Command struct {
	*cobra.Command

	cfg        server.ServerConfig
	logger     log.Logger
	configFile string
	outStream  io.Writer
	errStream  io.Writer
}

// NewCommand returns a Command wired with every flag the gateway accepts.
func NewCommand() *Command {
	out := os.Stdout
	errOut := os.Stderr

	baseCmd := &cobra.Command{
		Use:           "dataset-api",
		Version:       versionString,
		SilenceErrors: true,
	}
	cmd := &Command{
		Command:   baseCmd,
		outStream: out,
		errStream: errOut,
	}
	baseCmd.SetOut(out)
	baseCmd.SetErr(errOut)

	flags := cmd.Flags()
	flags.StringVarP(&cmd.cfg.Address, "address", "a", "", "Address of the interface the server will listen on.")
	flags.IntVarP(&cmd.cfg.Port, "port", "p", 0, "Port the server will listen on.")
	flags.StringVar(&cmd.configFile, "config", "config.yaml", "Path to the gateway's YAML configuration file.")
	flags.Var(&cmd.cfg.LogLevel, "log-level", "Minimum level logged. Allowed: 'debug', 'info', 'warn', 'error'.")
	flags.Var(&cmd.cfg.LoggingFormat, "logging-format", "Logging format to use. Allowed: 'standard' or 'json'.")

	cmd.RunE = func(*cobra.Command, []string) error { return run(cmd) }

	return cmd
}

// run loads the YAML config, overlays the flag-provided overrides, and
// starts the HTTP server, mirroring the teacher's own run() shape.
func run(cmd *Command) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	fileCfg, err := server.LoadConfig(cmd.configFile)
	if err != nil {
		return fmt.Errorf("unable to load config %q: %w", cmd.configFile, err)
	}
	cmd.cfg = overlayFlags(fileCfg, cmd.cfg)

	var logger log.Logger
	switch cmd.cfg.LoggingFormat.String() {
	case "json":
		logger, err = log.NewStructuredLogger(cmd.outStream, cmd.errStream, cmd.cfg.LogLevel.String())
	default:
		logger, err = log.NewStdLogger(cmd.outStream, cmd.errStream, cmd.cfg.LogLevel.String())
	}
	if err != nil {
		return fmt.Errorf("unable to initialize logger: %w", err)
	}
	cmd.logger = logger

	tracer, otelShutdown, err := telemetry.SetupOTel(ctx, "dataset-api", versionString)
	if err != nil {
		errMsg := fmt.Errorf("error setting up telemetry: %w", err)
		cmd.logger.Error(errMsg.Error())
		return errMsg
	}
	defer func() {
		if err := otelShutdown(ctx); err != nil {
			cmd.logger.Error("error shutting down telemetry", log.Err(err))
		}
	}()

	cmd.cfg.Version = versionString
	s, err := server.NewServer(ctx, cmd.cfg, cmd.logger, tracer)
	if err != nil {
		errMsg := fmt.Errorf("dataset-api failed to start: %w", err)
		cmd.logger.Error(errMsg.Error())
		return errMsg
	}

	l, err := s.Listen(ctx)
	if err != nil {
		errMsg := fmt.Errorf("dataset-api failed to mount listener: %w", err)
		cmd.logger.Error(errMsg.Error())
		return errMsg
	}
	cmd.logger.Info("server ready to serve")
	if err := s.Serve(l); err != nil {
		errMsg := fmt.Errorf("dataset-api crashed: %w", err)
		cmd.logger.Error(errMsg.Error())
		return errMsg
	}
	return nil
}

// overlayFlags applies any explicitly-set flag value on top of the loaded
// file config, letting a flag win only when its value differs from the flag
// default (empty address, port 0, log level "info", format "standard").
func overlayFlags(fileCfg, flagCfg server.ServerConfig) server.ServerConfig {
	if flagCfg.Address != "" {
		fileCfg.Address = flagCfg.Address
	}
	if flagCfg.Port != 0 {
		fileCfg.Port = flagCfg.Port
	}
	if flagCfg.LogLevel.String() != "" && flagCfg.LogLevel.String() != "info" {
		fileCfg.LogLevel = flagCfg.LogLevel
	}
	if flagCfg.LoggingFormat.String() != "" && flagCfg.LoggingFormat.String() != "standard" {
		fileCfg.LoggingFormat = flagCfg.LoggingFormat
	}
	return fileCfg
}
