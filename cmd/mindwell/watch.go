package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	mindwell "github.com/mindwell-health/mindwell-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var watchMetricsAddr string

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
}

var watchCmd = &cobra.Command{
	Use:   "watch <conversation-id>",
	Short: "Watch a conversation live",
	Long:  "Connect to the realtime stream, open a conversation, and print messages, typing and presence changes as they happen. Ctrl-C to stop.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conversationID := args[0]
		_, session := getSession()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if watchMetricsAddr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			go func() {
				if err := http.ListenAndServe(watchMetricsAddr, mux); err != nil {
					fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
				}
			}()
		}

		session.OnStateChange(func(state mindwell.ConnectionState) {
			switch {
			case state.Connected:
				fmt.Println("-- connected --")
			case state.Reconnecting:
				fmt.Printf("-- reconnecting (%s) --\n", state.Err)
			case state.Err != "":
				fmt.Printf("-- disconnected: %s --\n", state.Err)
			}
		})

		var lastPrinted string
		session.OnUpdate(func() {
			msgs := session.Messages(conversationID)
			if len(msgs) > 0 {
				last := msgs[len(msgs)-1]
				key := last.ID + last.LocalID
				if key != lastPrinted {
					lastPrinted = key
					marker := ""
					if last.Pending() {
						marker = " (sending…)"
					}
					fmt.Printf("[%s] %s: %s%s\n", last.CreatedAt.Local().Format("15:04"), last.SenderName, last.Content, marker)
				}
			}
			if typing := session.TypingUsers(conversationID); len(typing) > 0 {
				names := make([]string, 0, len(typing))
				for _, t := range typing {
					names = append(names, t.UserName)
				}
				fmt.Printf("… %s typing\n", strings.Join(names, ", "))
			}
		})

		if err := session.Connect(ctx); err != nil {
			return err
		}
		defer session.Disconnect()

		if _, err := session.LoadConversations(ctx); err != nil {
			return err
		}
		if err := session.SelectConversation(ctx, conversationID); err != nil {
			return err
		}
		fmt.Printf("Watching %s. Ctrl-C to stop.\n", conversationID)

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		fmt.Println("\nBye.")
		return nil
	},
}
