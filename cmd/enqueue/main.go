package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"
)

// One-shot trigger for external schedulers (Cloud Scheduler, cron): hits the
// long-lived API's /cron/trigger endpoint and exits. Queue processing always
// stays with the API process.
func main() {
	addr := flag.String("addr", envOr("GRAMTRACK_ADDR", "http://localhost:8080"), "base URL of the running API")
	token := flag.String("token", os.Getenv("GRAMTRACK_TOKEN"), "bearer token for operational endpoints")
	timeout := flag.Duration("timeout", 30*time.Second, "request timeout")
	flag.Parse()

	req, err := http.NewRequest(http.MethodPost, *addr+"/cron/trigger", nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	if *token != "" {
		req.Header.Set("Authorization", "Bearer "+*token)
	}

	client := &http.Client{Timeout: *timeout}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		fmt.Fprintf(os.Stderr, "trigger failed: %s\n", resp.Status)
		os.Exit(1)
	}

	var body struct {
		Enqueued int `json:"enqueued"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	fmt.Printf("enqueued %d profiles\n", body.Enqueued)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
