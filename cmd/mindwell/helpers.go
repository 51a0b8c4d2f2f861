package main

import (
	"encoding/json"
	"fmt"
	"os"

	mindwell "github.com/mindwell-health/mindwell-go"
)

// getClient builds an authenticated client from the stored configuration.
func getClient() *mindwell.Client {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Auth.Token == "" {
		fmt.Fprintln(os.Stderr, "No access token. Run 'mindwell login <token>' first.")
		os.Exit(1)
	}

	var opts []mindwell.ClientOption
	if cfg.Default.BaseURL != "" {
		opts = append(opts, mindwell.WithBaseURL(cfg.Default.BaseURL))
	} else if cfg.Default.Environment != "" && cfg.Default.Environment != "production" {
		opts = append(opts, mindwell.WithEnvironment(mindwell.Environment(cfg.Default.Environment)))
	}

	return mindwell.NewClient(cfg.Auth.Token, opts...)
}

// getSession builds a realtime session on top of the configured client.
func getSession() (*mindwell.Client, *mindwell.Session) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	client := getClient()

	user := &mindwell.User{ID: cfg.Auth.UserID, FirstName: cfg.Auth.UserName}
	session := mindwell.NewSession(client, mindwell.SessionConfig{
		User:            user,
		Token:           cfg.Auth.Token,
		RealtimeEnabled: true,
	}, mindwell.WithNotifier(mindwell.NotifierFunc(func(level mindwell.NotifyLevel, title, body string) {
		fmt.Printf("[%s] %s: %s\n", level, title, body)
	})))
	return client, session
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
