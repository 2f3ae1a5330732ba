// Command fleetchat is a terminal chat client for the fleetrag API.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/fleetdesk/fleetrag/pkg/tui"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	_ = godotenv.Load()

	apiURL := flag.String("api", envOr("FLEETRAG_API", "http://localhost:8080"), "fleetrag API base URL")
	domain := flag.String("domain", "orders", "initial domain (orders or vehicles)")
	timeout := flag.Duration("timeout", 2*time.Minute, "per-request timeout")
	flag.Parse()

	client := tui.NewClient(*apiURL, *timeout)
	if _, err := tea.NewProgram(tui.New(client, *domain), tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintln(os.Stderr, "fleetchat:", err)
		os.Exit(1)
	}
}
