// upectl is a thin one-shot client for upe's HTTP status API: it
// issues a single request per invocation and prints the JSON response:
// the same dataplane state the embedded console's "show" commands
// display, which the console reads from the dataplane manager directly.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

var subcommands = map[string]string{
	"status":    "/api/v1/status",
	"stats":     "/api/v1/stats",
	"rules":     "/api/v1/rules",
	"arp":       "/api/v1/neighbors?table=arp",
	"ndp":       "/api/v1/neighbors?table=ndp",
	"neighbors": "/api/v1/neighbors",
	"events":    "/api/v1/events",
}

func main() {
	addr := flag.String("addr", "http://127.0.0.1:8080", "upe HTTP API base URL")
	user := flag.String("user", "", "HTTP Basic Auth username")
	pass := flag.String("pass", "", "HTTP Basic Auth password")
	apiKey := flag.String("api-key", "", "API key sent via X-API-Key")
	timeout := flag.Duration("timeout", 10*time.Second, "request timeout")
	raw := flag.Bool("raw", false, "print the raw response body instead of pretty-printed JSON")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "usage: upectl [flags] <%s>\n", strings.Join(subcommandNames(), "|"))
		os.Exit(2)
	}

	path, ok := subcommands[flag.Arg(0)]
	if !ok {
		fmt.Fprintf(os.Stderr, "upectl: unknown command %q (want one of: %s)\n", flag.Arg(0), strings.Join(subcommandNames(), ", "))
		os.Exit(2)
	}

	req, err := http.NewRequest(http.MethodGet, strings.TrimRight(*addr, "/")+path, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "upectl: %v\n", err)
		os.Exit(1)
	}
	if *user != "" {
		req.SetBasicAuth(*user, *pass)
	}
	if *apiKey != "" {
		req.Header.Set("X-API-Key", *apiKey)
	}

	client := &http.Client{Timeout: *timeout}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "upectl: request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "upectl: read response: %v\n", err)
		os.Exit(1)
	}

	if *raw {
		os.Stdout.Write(body)
		fmt.Println()
		return
	}

	var pretty map[string]any
	if err := json.Unmarshal(body, &pretty); err != nil {
		os.Stdout.Write(body)
		fmt.Println()
		return
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		os.Stdout.Write(body)
		fmt.Println()
		return
	}
	fmt.Println(string(out))

	if resp.StatusCode >= 400 {
		os.Exit(1)
	}
}

func subcommandNames() []string {
	names := make([]string, 0, len(subcommands))
	for name := range subcommands {
		names = append(names, name)
	}
	return names
}
