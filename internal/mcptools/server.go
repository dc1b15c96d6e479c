// Package mcptools exposes the analysis service as Model Context Protocol
// tools.
package mcptools

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// version is set by the linker at build time.
var version = "dev"

// NewMCPServer creates an MCP server with the analysis tools registered.
func NewMCPServer(svc *ToolService) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "pharmasynapse",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "analyze_query",
		Description: "Analyze a pharmaceutical question or a molecule/disease pair. Gathers market, clinical trial, patent, trade, web and internal evidence, then returns a go/no-go decision with insights, recommendations and data gaps.",
	}, svc.AnalyzeQuery)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_pipelines",
		Description: "List the registered analysis pipelines with the stages each one runs.",
	}, svc.ListPipelines)

	return server
}

// RunStdio serves the tools over stdin/stdout until ctx is done or the
// client disconnects.
func RunStdio(ctx context.Context, svc *ToolService) error {
	return NewMCPServer(svc).Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves the tools over streamable HTTP on addr.
func RunHTTP(ctx context.Context, svc *ToolService, addr string) error {
	server := NewMCPServer(svc)

	handler := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
