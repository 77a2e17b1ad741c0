package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/storefront/tracez"
	"github.com/storefront/tracez/internal/logging"
	"github.com/storefront/tracez/internal/storefront"
	"github.com/storefront/tracez/zipkin"
)

const cliName = "storefront"

// app holds what every subcommand needs. It is built before a subcommand
// runs and torn down after it returns.
type app struct {
	cfg       *tracez.Config
	logger    *zap.Logger
	tracer    *tracez.Tracer
	processor *tracez.BatchProcessor
	registry  *prometheus.Registry
	client    *storefront.Client
}

// newRootCommand returns the root command and the app it sets up. The
// caller shuts the app down after the command returns, whatever the outcome.
func newRootCommand() (*cobra.Command, *app) {
	var (
		apiURL       string
		collectorURL string
		a            = &app{}
	)

	command := &cobra.Command{
		Use:           cliName,
		Short:         "Traced client for the storefront API",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.setup(apiURL, collectorURL)
		},
	}

	command.PersistentFlags().StringVar(&apiURL, "api-url", storefront.DefaultBaseURL, "Storefront API base URL")
	command.PersistentFlags().StringVar(&collectorURL, "collector-url", "", "Zipkin span endpoint (overrides TRACEZ_COLLECTOR_URL)")

	command.AddCommand(newProductsCommand(a))
	command.AddCommand(newLoginCommand(a))
	command.AddCommand(newRegisterCommand(a))
	return command, a
}

func (a *app) setup(apiURL, collectorURL string) error {
	cfg, err := tracez.LoadConfig()
	if err != nil {
		return err
	}
	if collectorURL != "" {
		cfg.CollectorURL = collectorURL
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	a.cfg = cfg

	a.logger, err = logging.New(logging.Config{
		Level:       cfg.LogLevel,
		Development: cfg.LogDevelopment,
	})
	if err != nil {
		return err
	}

	exporter, err := zipkin.New(cfg.CollectorURL,
		zipkin.WithLogger(a.logger),
		zipkin.WithTimeout(cfg.ExportTimeout),
	)
	if err != nil {
		return err
	}

	a.registry = prometheus.NewRegistry()
	a.processor = tracez.NewBatchProcessor(exporter, cfg.Batch(),
		tracez.WithBatchLogger(a.logger),
		tracez.WithMetrics(tracez.NewMetrics(a.registry)),
	)
	a.tracer = tracez.New(
		tracez.WithLogger(a.logger),
		tracez.WithSampler(cfg.Sampler()),
		tracez.WithResource(cfg.Resource()),
		tracez.WithProcessor(a.processor),
	)
	a.client = storefront.New(apiURL, a.tracer, storefront.WithLogger(a.logger))

	a.logger.Debug("tracing configured",
		zap.String("service", cfg.ServiceName),
		zap.String("collector", cfg.CollectorURL),
		zap.Float64("sample_rate", cfg.SampleRate),
	)
	return nil
}

// shutdown flushes spans within the configured timeout. Spans that cannot
// be delivered in time are dropped and do not fail the command.
func (a *app) shutdown() {
	if a.tracer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.tracer.Shutdown(ctx); err != nil {
		a.logger.Warn("tracing shutdown incomplete", zap.Error(err))
	}
	a.logMetrics()
	_ = a.logger.Sync()
}

// logMetrics writes the final value of every tracing metric so a short
// lived command still reports what happened to its spans.
func (a *app) logMetrics() {
	series, err := metricSeries(a.registry)
	if err != nil {
		a.logger.Warn("failed to gather tracing metrics", zap.Error(err))
		return
	}
	names := make([]string, 0, len(series))
	for name := range series {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]zap.Field, 0, len(names))
	for _, name := range names {
		fields = append(fields, zap.Float64(name, series[name]))
	}
	a.logger.Info("tracing stopped", fields...)
}

// metricSeries flattens gathered counters and gauges into
// name{label=value,...} -> value.
func metricSeries(g prometheus.Gatherer) (map[string]float64, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, err
	}
	series := make(map[string]float64)
	for _, family := range families {
		for _, m := range family.GetMetric() {
			name := family.GetName()
			if labels := m.GetLabel(); len(labels) > 0 {
				pairs := make([]string, 0, len(labels))
				for _, l := range labels {
					pairs = append(pairs, l.GetName()+"="+l.GetValue())
				}
				name += "{" + strings.Join(pairs, ",") + "}"
			}
			switch {
			case m.GetCounter() != nil:
				series[name] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				series[name] = m.GetGauge().GetValue()
			}
		}
	}
	return series, nil
}

func newProductsCommand(a *app) *cobra.Command {
	command := &cobra.Command{
		Use:   "products",
		Short: "Manage products",
	}

	command.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			products, err := a.client.Products().List(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), products)
		},
	})

	command.AddCommand(&cobra.Command{
		Use:   "get ID",
		Short: "Show one product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			product, err := a.client.Products().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), product)
		},
	})

	var product storefront.Product
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a product",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			created, err := a.client.Products().Create(cmd.Context(), product)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), created)
		},
	}
	create.Flags().StringVar(&product.Name, "name", "", "Product name")
	create.Flags().StringVar(&product.Description, "description", "", "Product description")
	create.Flags().Float64Var(&product.Price, "price", 0, "Unit price")
	create.Flags().IntVar(&product.Quantity, "quantity", 0, "Quantity in stock")
	_ = create.MarkFlagRequired("name")
	command.AddCommand(create)

	var replacement storefront.Product
	update := &cobra.Command{
		Use:   "update ID",
		Short: "Replace a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			replacement.ID = args[0]
			updated, err := a.client.Products().Update(cmd.Context(), replacement)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), updated)
		},
	}
	update.Flags().StringVar(&replacement.Name, "name", "", "Product name")
	update.Flags().StringVar(&replacement.Description, "description", "", "Product description")
	update.Flags().Float64Var(&replacement.Price, "price", 0, "Unit price")
	update.Flags().IntVar(&replacement.Quantity, "quantity", 0, "Quantity in stock")
	_ = update.MarkFlagRequired("name")
	command.AddCommand(update)

	command.AddCommand(&cobra.Command{
		Use:   "delete ID",
		Short: "Delete a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client.Products().Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "product %s deleted\n", args[0])
			return err
		},
	})

	return command
}

func newLoginCommand(a *app) *cobra.Command {
	var email, password string
	command := &cobra.Command{
		Use:   "login",
		Short: "Log in and print the session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			session, err := a.client.Auth().Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), session)
		},
	}
	command.Flags().StringVar(&email, "email", "", "Account email")
	command.Flags().StringVar(&password, "password", "", "Account password")
	_ = command.MarkFlagRequired("email")
	_ = command.MarkFlagRequired("password")
	return command
}

func newRegisterCommand(a *app) *cobra.Command {
	var user storefront.User
	command := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.client.Auth().Register(cmd.Context(), user); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "account %s registered\n", user.Email)
			return err
		},
	}
	command.Flags().StringVar(&user.Name, "name", "", "Display name")
	command.Flags().StringVar(&user.Email, "email", "", "Account email")
	command.Flags().StringVar(&user.Password, "password", "", "Account password")
	_ = command.MarkFlagRequired("email")
	_ = command.MarkFlagRequired("password")
	return command
}

func printJSON(w io.Writer, v any) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
