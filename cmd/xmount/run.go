/*
	Copyright NetFoundry Inc.

	Licensed under the Apache License, Version 2.0 (the "License");
	you may not use this file except in compliance with the License.
	You may obtain a copy of the License at

	https://www.apache.org/licenses/LICENSE-2.0

	Unless required by applicable law or agreed to in writing, software
	distributed under the License is distributed on an "AS IS" BASIS,
	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
	See the License for the specific language governing permissions and
	limitations under the License.
*/

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/michaelquigley/pfxlog"
	"github.com/openziti/xmount"
	"github.com/openziti/xmount/s3resource"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const metricsContextId xmount.ContextId = "metrics"

type runOptions struct {
	configFile     string
	logLevel       string
	metrics        bool
	metricsPattern string
}

func runCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the listeners and mount the configured contexts",
		Long: `Start the listeners and mount the configured contexts.

Runs until interrupted (SIGINT or SIGTERM), then unmounts every context
and shuts the listeners down.

Examples:
  xmount run --config xmount.yml
  xmount run -c xmount.yml --log-level debug --metrics`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configFile, "config", "c", "", "Path to the YAML configuration file")
	cmd.Flags().StringVarP(&opts.logLevel, "log-level", "l", "info", "Log level (trace, debug, info, warn, error)")
	cmd.Flags().BoolVar(&opts.metrics, "metrics", false, "Mount Prometheus metrics as a context")
	cmd.Flags().StringVar(&opts.metricsPattern, "metrics-pattern", "/metrics/*", "Url pattern of the metrics context")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func run(opts *runOptions) error {
	level, err := logrus.ParseLevel(opts.logLevel)
	if err != nil {
		return errors.Wrapf(err, "invalid log level [%s]", opts.logLevel)
	}
	pfxlog.GlobalInit(level, pfxlog.DefaultOptions().SetTrimPrefix("github.com/openziti/"))

	cfgmap, err := loadConfig(opts.configFile)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	instance := xmount.NewDefaultInstance(xmount.NewRegistryMap(),
		xmount.WithMetrics(xmount.NewMetrics(xmount.WithRegisterer(registry))))
	instance.ResourceProviders[s3resource.ResourceType] = s3resource.Provider

	if err := instance.Controller.AddListener(xmount.ServerListenerFunc(func(event xmount.ServerEvent) {
		pfxlog.Logger().WithField("event", event.String()).Info("server state changed")
	})); err != nil {
		return err
	}

	if err := instance.LoadConfig(cfgmap); err != nil {
		return errors.Wrapf(err, "invalid configuration [%s]", opts.configFile)
	}

	if err := instance.Run(); err != nil {
		instance.Shutdown()
		return err
	}

	if opts.metrics {
		model := &xmount.ContextModel{Id: metricsContextId, Name: "prometheus metrics"}
		mapping := &xmount.Mapping{
			Name:        "metrics",
			UrlPatterns: []string{opts.metricsPattern},
			Handler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		}
		if _, err := instance.Mount(model, mapping); err != nil {
			instance.Shutdown()
			return err
		}
	}

	for _, addr := range instance.Controller.ListenAddresses() {
		pfxlog.Logger().Infof("listening on %s", addr)
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	sig := <-signals
	pfxlog.Logger().Infof("received %s, shutting down", sig)

	instance.Shutdown()

	return nil
}
