// TokenSafe MCP Server - Exposes token safety analysis as MCP tools for LLMs
package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mbd888/tokensafe/internal/mcpserver"
)

func main() {
	_ = godotenv.Load()

	cfg := mcpserver.Config{
		APIURL:     envOrDefault("TOKENSAFE_API_URL", "http://localhost:8080"),
		MaxRetries: 2,
	}
	if v := os.Getenv("TOKENSAFE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			fmt.Fprintf(os.Stderr, "TOKENSAFE_TIMEOUT: %v\n", err)
			os.Exit(1)
		}
		cfg.Timeout = d
	}
	if v := os.Getenv("TOKENSAFE_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			fmt.Fprintln(os.Stderr, "TOKENSAFE_MAX_RETRIES must be a non-negative integer")
			os.Exit(1)
		}
		cfg.MaxRetries = n
	}

	s := mcpserver.NewMCPServer(cfg)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
