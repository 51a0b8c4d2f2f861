package main

import (
	"context"
	"fmt"
	"time"

	mindwell "github.com/mindwell-health/mindwell-go"
	"github.com/spf13/cobra"
)

// ============================================================================
// Flag variables
// ============================================================================

var (
	// conversations
	conversationsJSON bool

	// history
	historyLimit int
	historyJSON  bool

	// send
	sendFile string
	sendJSON bool

	// search
	searchJSON bool
)

// ============================================================================
// Commands
// ============================================================================

func init() {
	rootCmd.AddCommand(conversationsCmd)
	conversationsCmd.Flags().BoolVar(&conversationsJSON, "json", false, "Output as JSON")

	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "Maximum number of messages")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Output as JSON")

	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVar(&sendFile, "file", "", "Attach a file to the message")
	sendCmd.Flags().BoolVar(&sendJSON, "json", false, "Output as JSON")

	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Output as JSON")

	rootCmd.AddCommand(reactCmd)
	rootCmd.AddCommand(blockCmd)
	rootCmd.AddCommand(unblockCmd)
}

var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "List your conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		convs, err := client.Messaging().Conversations.List(ctx)
		if err != nil {
			return fmt.Errorf("failed to list conversations: %w", err)
		}

		if conversationsJSON {
			printJSON(convs)
			return nil
		}
		if len(convs) == 0 {
			fmt.Println("No conversations.")
			return nil
		}
		for _, c := range convs {
			title := c.Title
			if title == "" {
				title = c.ID
			}
			line := fmt.Sprintf("%-36s  %s", c.ID, title)
			if c.UnreadCount > 0 {
				line += fmt.Sprintf("  (%d unread)", c.UnreadCount)
			}
			if c.LastMessage != nil {
				line += fmt.Sprintf("\n    %s: %s", c.LastMessage.SenderName, c.LastMessage.Content)
			}
			fmt.Println(line)
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <conversation-id>",
	Short: "Show message history for a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		msgs, err := client.Messaging().Messages.History(ctx, args[0], &mindwell.PageOptions{Limit: historyLimit})
		if err != nil {
			return fmt.Errorf("failed to load history: %w", err)
		}

		if historyJSON {
			printJSON(msgs)
			return nil
		}
		for _, m := range msgs {
			ts := m.CreatedAt.Local().Format("15:04")
			content := m.Content
			if m.Deleted {
				content = "(deleted)"
			}
			fmt.Printf("[%s] %s: %s\n", ts, m.SenderName, content)
			for _, r := range m.Reactions {
				fmt.Printf("        %s %s\n", r.Emoji, r.UserID)
			}
		}
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <conversation-id> <content>",
	Short: "Send a message",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		conversationID, content := args[0], args[1]
		_, session := getSession()
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		var opts *mindwell.SendOptions
		if sendFile != "" {
			att, err := session.UploadAttachment(ctx, sendFile)
			if err != nil {
				return err
			}
			opts = &mindwell.SendOptions{Attachments: []mindwell.Attachment{*att}}
		}

		msg, err := session.SendMessage(ctx, conversationID, content, opts)
		if err != nil {
			return err
		}
		if sendJSON {
			printJSON(msg)
			return nil
		}
		fmt.Printf("Sent %s\n", msg.ID)
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search your messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		msgs, err := client.Messaging().Messages.Search(ctx, args[0])
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}

		if searchJSON {
			printJSON(msgs)
			return nil
		}
		if len(msgs) == 0 {
			fmt.Println("No matches.")
			return nil
		}
		for _, m := range msgs {
			fmt.Printf("%s  [%s] %s: %s\n", m.ConversationID, m.CreatedAt.Local().Format("2006-01-02 15:04"), m.SenderName, m.Content)
		}
		return nil
	},
}

var reactCmd = &cobra.Command{
	Use:   "react <message-id> <emoji>",
	Short: "Add a reaction to a message",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := client.Messaging().Messages.React(ctx, args[0], args[1]); err != nil {
			return fmt.Errorf("failed to react: %w", err)
		}
		fmt.Println("Reaction added.")
		return nil
	},
}

var blockCmd = &cobra.Command{
	Use:   "block <user-id> [reason]",
	Short: "Block a user",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason := ""
		if len(args) == 2 {
			reason = args[1]
		}
		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := client.Messaging().Moderation.BlockUser(ctx, args[0], reason); err != nil {
			return fmt.Errorf("failed to block user: %w", err)
		}
		fmt.Println("User blocked.")
		return nil
	},
}

var unblockCmd = &cobra.Command{
	Use:   "unblock <user-id>",
	Short: "Unblock a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := client.Messaging().Moderation.UnblockUser(ctx, args[0]); err != nil {
			return fmt.Errorf("failed to unblock user: %w", err)
		}
		fmt.Println("User unblocked.")
		return nil
	},
}
