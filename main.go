package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/haryshwa05/pharmasynapse/internal/circuitbreaker"
	"github.com/haryshwa05/pharmasynapse/internal/formatting"
	"github.com/haryshwa05/pharmasynapse/internal/health"
	"github.com/haryshwa05/pharmasynapse/internal/httpapi"
	"github.com/haryshwa05/pharmasynapse/internal/intent"
	"github.com/haryshwa05/pharmasynapse/internal/mcptools"
)

// version is set at build time.
var version = "dev"

func main() {
	var cfgPath string

	rootCmd := &cobra.Command{
		Use:           "pharmasynapse",
		Short:         "Pharmaceutical intelligence analysis engine",
		Long:          "Resolves a pharma question into stages, gathers market, trial, patent, trade, web and internal evidence concurrently, and synthesizes a go/no-go recommendation.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default $CONFIG_PATH or config/pharmasynapse.yaml)")

	rootCmd.AddCommand(serveCmd(&cfgPath), analyzeCmd(&cfgPath), mcpCmd(&cfgPath))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func serveCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with health and metrics endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.close()
			logger := a.logger

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			circuitbreaker.StartMetricsCollection(ctx, 10*time.Second)
			a.degrader.Start(ctx)

			hm, err := a.healthManager()
			if err != nil {
				return err
			}
			admin := health.StartAdminServer(hm, a.cfg.Server.MetricsPort, logger)

			mux := http.NewServeMux()
			httpapi.NewAnalysisHandler(a.svc, logger).RegisterRoutes(mux)
			httpapi.NewStreamingHandler(a.events, logger).RegisterRoutes(mux)

			srv := &http.Server{
				Addr:              ":" + strconv.Itoa(a.cfg.Server.HTTPPort),
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       a.cfg.Server.ReadTimeout,
				// Long enough for a full analysis plus synthesis.
				WriteTimeout: a.cfg.Orchestrator.RequestTimeout + a.cfg.Synthesis.Timeout + 10*time.Second,
				IdleTimeout:  90 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				logger.Info("API server listening", zap.Int("port", a.cfg.Server.HTTPPort))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case <-ctx.Done():
				logger.Info("Shutting down")
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("api server: %w", err)
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("API server shutdown failed", zap.Error(err))
			}
			if err := admin.Shutdown(shutdownCtx); err != nil {
				logger.Error("Admin server shutdown failed", zap.Error(err))
			}
			return nil
		},
	}
}

func analyzeCmd(cfgPath *string) *cobra.Command {
	var (
		q      intent.RawQuery
		format string
		width  int
	)
	cmd := &cobra.Command{
		Use:   "analyze [question]",
		Short: "Run one analysis and print the report",
		Example: `  pharmasynapse analyze "market size of metformin in India"
  pharmasynapse analyze --molecule metformin --disease NAFLD --format json`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				q.Question = strings.Join(args, " ")
			}
			format = strings.ToLower(format)
			if format != "markdown" && format != "json" {
				return fmt.Errorf("--format must be markdown or json, got %q", format)
			}

			a, err := newApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			resp, err := a.svc.Analyze(ctx, q)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if format == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}

			md := formatting.Markdown(resp.Report())
			if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
				if rendered, err := formatting.RenderTerminal(md, width); err == nil {
					md = rendered
				} else {
					a.logger.Debug("Terminal rendering failed; printing raw Markdown", zap.Error(err))
				}
			}
			_, err = fmt.Fprint(out, md)
			return err
		},
	}
	cmd.Flags().StringVar(&q.Molecule, "molecule", "", "molecule for a structured analysis")
	cmd.Flags().StringVar(&q.Disease, "disease", "", "disease or indication for a structured analysis")
	cmd.Flags().StringVar(&q.Region, "region", "", "geography for market and trade data")
	cmd.Flags().StringVarP(&format, "format", "f", "markdown", "output format: markdown or json")
	cmd.Flags().IntVar(&width, "width", 100, "word wrap width for terminal output")
	return cmd
}

func mcpCmd(cfgPath *string) *cobra.Command {
	var (
		transport string
		addr      string
	)
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the analysis tools over the Model Context Protocol",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			a.degrader.Start(ctx)

			tools := mcptools.NewToolService(a.svc, a.logger)
			switch transport {
			case "stdio":
				return mcptools.RunStdio(ctx, tools)
			case "http":
				a.logger.Info("MCP server listening", zap.String("addr", addr))
				return mcptools.RunHTTP(ctx, tools, addr)
			default:
				return fmt.Errorf("--transport must be stdio or http, got %q", transport)
			}
		},
	}
	cmd.Flags().StringVar(&transport, "transport", "stdio", "stdio or http")
	cmd.Flags().StringVar(&addr, "addr", ":8090", "listen address for the http transport")
	return cmd
}
