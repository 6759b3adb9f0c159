package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "version", "--version", "-v":
		fmt.Printf("extracthubctl %s\n", version)
	case "status":
		doStatus()
	case "provider", "providers":
		doProviders()
	case "cache":
		doCache(args)
	case "vault":
		doVault(args)
	case "stats":
		doStats()
	case "logs":
		doLogs(args)
	case "audit":
		doAudit(args)
	case "workflow", "workflows":
		doWorkflows(args)
	case "events":
		doEvents()
	case "extract-test":
		doExtractTest(args)
	case "help", "--help", "-h":
		usageTo(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	usageTo(os.Stderr)
}

func usageTo(w io.Writer) {
	_, _ = fmt.Fprintf(w, `extracthubctl — CLI for the ExtractHub admin API

Usage: extracthubctl <command> [arguments]

Environment:
  EXTRACTHUB_URL          Base URL (default: http://localhost:8080)
  EXTRACTHUB_ADMIN_TOKEN  Bearer token for admin endpoints

Commands:
  status                      Show server health and provider count
  providers                   List providers with circuit state

  cache stats                 Show response cache counters
  cache clear                 Evict all cached responses

  vault unlock <passphrase>   Unlock the credential vault
  vault lock                  Lock the credential vault

  stats                       Show rolling extraction aggregates
  logs [--limit N]            Show extraction logs
  audit [--limit N]           Show admin audit trail

  workflows                   List recent extraction workflows
  workflows describe <id>     Show one workflow execution
  events                      Stream real-time SSE events

  extract-test [prompt]       Send a small extraction request

  version                     Show version
  help                        Show this help

Examples:
  extracthubctl status
  extracthubctl vault unlock "my-secret-passphrase"
  extracthubctl logs --limit 20
  extracthubctl extract-test "List the tender closing date."
`)
}

// --- HTTP helpers ---

func baseURL() string {
	if u := os.Getenv("EXTRACTHUB_URL"); u != "" {
		return strings.TrimRight(u, "/")
	}
	return "http://localhost:8080"
}

func adminToken() string {
	return os.Getenv("EXTRACTHUB_ADMIN_TOKEN")
}

func doRequest(method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequest(method, baseURL()+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := adminToken(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return http.DefaultClient.Do(req)
}

func doGet(path string) map[string]any {
	resp, err := doRequest("GET", path, nil)
	fatal(err)
	defer func() { _ = resp.Body.Close() }()
	return readJSON(resp)
}

func doPost(path, bodyJSON string) map[string]any {
	resp, err := doRequest("POST", path, strings.NewReader(bodyJSON))
	fatal(err)
	defer func() { _ = resp.Body.Close() }()
	return readJSON(resp)
}

func readJSON(resp *http.Response) map[string]any {
	data, err := io.ReadAll(resp.Body)
	fatal(err)
	if resp.StatusCode >= 400 {
		fmt.Fprintf(os.Stderr, "HTTP %d: %s\n", resp.StatusCode, string(data))
		os.Exit(1)
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		fmt.Println(string(data))
		os.Exit(0)
	}
	return result
}

func prettyJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

func fatal(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func requireArgs(args []string, min int, usage string) {
	if len(args) < min {
		fmt.Fprintf(os.Stderr, "usage: extracthubctl %s\n", usage)
		os.Exit(1)
	}
}

func parseLimit(args []string) int {
	for i, a := range args {
		if a == "--limit" && i+1 < len(args) {
			n, _ := strconv.Atoi(args[i+1])
			if n > 0 {
				return n
			}
		}
	}
	return 50
}

// --- Commands ---

func doStatus() {
	resp, err := doRequest("GET", "/healthz", nil)
	fatal(err)
	defer func() { _ = resp.Body.Close() }()
	data, _ := io.ReadAll(resp.Body)
	var h map[string]any
	_ = json.Unmarshal(data, &h)

	status := "unknown"
	if s, ok := h["status"].(string); ok {
		status = s
	}
	providers := 0
	if n, ok := h["providers"].(float64); ok {
		providers = int(n)
	}
	fmt.Printf("Server:    %s\n", baseURL())
	fmt.Printf("Status:    %s\n", status)
	fmt.Printf("Providers: %d\n", providers)
}

func doProviders() {
	data := doGet("/v1/providers")
	providers, _ := data["providers"].([]any)
	if len(providers) == 0 {
		fmt.Println("No providers configured.")
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PROVIDER\tMODEL\tPRIORITY\tCIRCUIT\tFAILURES")
	for _, p := range providers {
		m, ok := p.(map[string]any)
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		model, _ := m["model"].(string)
		prio := fmtNum(m["priority"])
		state, _ := m["circuit_state"].(string)
		failures := fmtNum(m["failure_count"])
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", name, model, prio, state, failures)
	}
	_ = tw.Flush()
}

func doCache(args []string) {
	requireArgs(args, 1, "cache <stats|clear>")
	switch args[0] {
	case "stats":
		data := doGet("/v1/cache/stats")
		fmt.Println(prettyJSON(data))
	case "clear":
		result := doPost("/admin/v1/cache/clear", "{}")
		if result["cleared"] == true {
			fmt.Println("Cache cleared.")
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown cache command: %s\n", args[0])
		os.Exit(1)
	}
}

func doVault(args []string) {
	requireArgs(args, 1, "vault <unlock|lock> [args]")
	switch args[0] {
	case "unlock":
		requireArgs(args, 2, "vault unlock <passphrase>")
		body := fmt.Sprintf(`{"passphrase":%s}`, jsonStr(args[1]))
		result := doPost("/admin/v1/vault/unlock", body)
		if result["locked"] == false {
			fmt.Println("Vault unlocked.")
		}
	case "lock":
		result := doPost("/admin/v1/vault/lock", "{}")
		if result["locked"] == true {
			fmt.Println("Vault locked.")
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown vault command: %s\n", args[0])
		os.Exit(1)
	}
}

func doStats() {
	data := doGet("/admin/v1/stats")
	fmt.Println(prettyJSON(data))
}

func doLogs(args []string) {
	limit := parseLimit(args)
	data := doGet(fmt.Sprintf("/admin/v1/logs?limit=%d", limit))
	logs, _ := data["logs"].([]any)
	if len(logs) == 0 {
		fmt.Println("No extraction logs.")
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TIME\tPROVIDER\tMODEL\tLATENCY\tCACHE\tSTATUS\tREQUEST ID")
	for _, l := range logs {
		m, _ := l.(map[string]any)
		ts := fmtTime(m["timestamp"])
		prov, _ := m["provider"].(string)
		model, _ := m["model"].(string)
		lat := fmtDuration(m["latency_ms"])
		cache := "-"
		if m["cache_hit"] == true {
			cache = "hit"
		}
		status := "ok"
		if m["success"] == false {
			status, _ = m["error_category"].(string)
		}
		reqID, _ := m["request_id"].(string)
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", ts, prov, model, lat, cache, status, reqID)
	}
	_ = tw.Flush()
}

func doAudit(args []string) {
	limit := parseLimit(args)
	data := doGet(fmt.Sprintf("/admin/v1/audit?limit=%d", limit))
	logs, _ := data["audit"].([]any)
	if len(logs) == 0 {
		fmt.Println("No audit entries.")
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TIME\tACTION\tRESOURCE\tREQUEST ID")
	for _, l := range logs {
		m, _ := l.(map[string]any)
		ts := fmtTime(m["timestamp"])
		action, _ := m["action"].(string)
		resource, _ := m["resource"].(string)
		reqID, _ := m["request_id"].(string)
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", ts, action, resource, reqID)
	}
	_ = tw.Flush()
}

func doWorkflows(args []string) {
	if len(args) == 0 || args[0] == "list" {
		data := doGet("/admin/v1/workflows")
		if data["temporal_enabled"] == false {
			fmt.Println("Temporal dispatch is disabled.")
			return
		}
		workflows, _ := data["workflows"].([]any)
		if len(workflows) == 0 {
			fmt.Println("No workflow executions.")
			return
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "WORKFLOW ID\tSTATUS\tSTARTED")
		for _, wf := range workflows {
			m, _ := wf.(map[string]any)
			id, _ := m["workflow_id"].(string)
			status, _ := m["status"].(string)
			started := fmtTime(m["start_time"])
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", id, status, started)
		}
		_ = tw.Flush()
		return
	}
	switch args[0] {
	case "describe":
		requireArgs(args, 2, "workflows describe <id>")
		data := doGet("/admin/v1/workflows/" + args[1])
		fmt.Println(prettyJSON(data))
	default:
		fmt.Fprintf(os.Stderr, "unknown workflows command: %s\n", args[0])
		os.Exit(1)
	}
}

func doEvents() {
	resp, err := doRequest("GET", "/admin/v1/events", nil)
	fatal(err)
	defer func() { _ = resp.Body.Close() }()

	fmt.Println("Streaming events (Ctrl-C to stop)...")
	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			for _, line := range strings.Split(string(buf[:n]), "\n") {
				line = strings.TrimSpace(line)
				if !strings.HasPrefix(line, "data:") {
					continue
				}
				payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
				var evt map[string]any
				if json.Unmarshal([]byte(payload), &evt) != nil {
					continue
				}
				evtType, _ := evt["type"].(string)
				provider, _ := evt["provider"].(string)
				ts := time.Now().Format("15:04:05")
				switch evtType {
				case "extraction_failed":
					category, _ := evt["error_category"].(string)
					fmt.Printf("[%s] %s  provider=%s category=%s\n", ts, evtType, provider, category)
				case "breaker_state_change":
					oldState, _ := evt["old_state"].(string)
					newState, _ := evt["new_state"].(string)
					fmt.Printf("[%s] %s  provider=%s %s->%s\n", ts, evtType, provider, oldState, newState)
				default:
					latency := fmtDuration(evt["latency_ms"])
					cache := ""
					if evt["cache_hit"] == true {
						cache = " cache=hit"
					}
					fmt.Printf("[%s] %s  provider=%s latency=%s%s\n", ts, evtType, provider, latency, cache)
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				fmt.Println("Event stream closed.")
			}
			break
		}
	}
}

func doExtractTest(args []string) {
	prompt := "Reply with the word OK and nothing else."
	if len(args) > 0 {
		prompt = args[0]
	}
	payload := fmt.Sprintf(`{"prompt":%s,"max_tokens":16}`, jsonStr(prompt))

	start := time.Now()
	resp, err := doRequest("POST", "/v1/extract", strings.NewReader(payload))
	latency := time.Since(start)
	fatal(err)
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("Status:   %d\n", resp.StatusCode)
	fmt.Printf("Latency:  %v\n", latency.Round(time.Millisecond))
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("Error:    %s\n", string(body))
		return
	}
	var out map[string]any
	if json.Unmarshal(body, &out) == nil {
		provider, _ := out["provider"].(string)
		model, _ := out["model"].(string)
		text, _ := out["text"].(string)
		if len(text) > 200 {
			text = text[:197] + "..."
		}
		fmt.Printf("Provider: %s\n", provider)
		fmt.Printf("Model:    %s\n", model)
		if out["cached"] == true {
			fmt.Println("Cache:    hit")
		}
		fmt.Printf("Response: %s\n", text)
	}
}

// --- Formatting helpers ---

func fmtNum(v any) string {
	if v == nil {
		return "-"
	}
	switch n := v.(type) {
	case float64:
		if n == float64(int(n)) {
			return strconv.Itoa(int(n))
		}
		return strconv.FormatFloat(n, 'f', 2, 64)
	case int:
		return strconv.Itoa(n)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func fmtDuration(v any) string {
	if v == nil {
		return "-"
	}
	if f, ok := v.(float64); ok {
		if f < 1000 {
			return fmt.Sprintf("%.0fms", f)
		}
		return fmt.Sprintf("%.1fs", f/1000)
	}
	return fmt.Sprintf("%v", v)
}

func fmtTime(v any) string {
	if v == nil {
		return "-"
	}
	if s, ok := v.(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.Local().Format("2006-01-02 15:04:05")
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.Local().Format("2006-01-02 15:04:05")
		}
		return s
	}
	return fmt.Sprintf("%v", v)
}

func jsonStr(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func init() {
	http.DefaultClient.Timeout = 60 * time.Second
}
