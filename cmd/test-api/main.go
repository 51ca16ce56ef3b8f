// Package main is a smoke-test utility that verifies the portal's HTTP API is
// reachable after a deployment. It probes the public endpoints and checks that
// an unauthenticated whoami is rejected, printing each status and exiting
// non-zero on an unexpected result.
//
// Usage: test-api [base-url]   (default http://localhost:8080)
package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

type probe struct {
	method string
	path   string
	want   int
}

func main() {
	base := "http://localhost:8080"
	if len(os.Args) > 1 {
		base = strings.TrimRight(os.Args[1], "/")
	}

	probes := []probe{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/ready", http.StatusOK},
		{http.MethodGet, "/version", http.StatusOK},
		{http.MethodGet, "/api/auth/me", http.StatusUnauthorized},
		{http.MethodPost, "/api/auth/logout", http.StatusOK},
	}

	client := &http.Client{Timeout: 10 * time.Second}
	failed := false
	for _, p := range probes {
		req, err := http.NewRequest(p.method, base+p.path, nil)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		resp, err := client.Do(req)
		if err != nil {
			fmt.Printf("%-6s %-20s error: %v\n", p.method, p.path, err)
			failed = true
			continue
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()

		mark := "ok"
		if resp.StatusCode != p.want {
			mark = fmt.Sprintf("FAIL (want %d)", p.want)
			failed = true
		}
		fmt.Printf("%-6s %-20s %d %s\n       %s\n", p.method, p.path, resp.StatusCode, mark, strings.TrimSpace(string(body)))
	}

	if failed {
		os.Exit(1)
	}
}
