package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

var serverURL string

func main() {
	rootCmd := &cobra.Command{
		Use:     "venueflowctl",
		Short:   "VenueFlow CLI - interact with a VenueFlow server",
		Long:    "venueflowctl is a command-line interface for inspecting conversations, sending messages and working the approval queue.",
		Version: version,
	}

	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", getDefaultServer(), "VenueFlow server URL")

	rootCmd.AddCommand(newConversationCommand())
	rootCmd.AddCommand(newMessageCommand())
	rootCmd.AddCommand(newHilCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func getDefaultServer() string {
	if server := os.Getenv("VENUEFLOW_SERVER"); server != "" {
		return server
	}
	return "http://localhost:8080"
}

func newConversationCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversation",
		Aliases: []string{"conv"},
		Short:   "Inspect conversations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getJSON("/api/v1/conversations")
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show one conversation's full state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return getJSON("/api/v1/conversations/" + args[0])
		},
	})

	return cmd
}

func newMessageCommand() *cobra.Command {
	var messageID string

	cmd := &cobra.Command{
		Use:   "message <conversation-id> <text>",
		Short: "Send a client message into a conversation",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]interface{}{
				"message_id": messageID,
				"text":       strings.Join(args[1:], " "),
			}
			return postJSON("/api/v1/conversations/"+args[0]+"/messages", body)
		},
	}
	cmd.Flags().StringVar(&messageID, "id", "", "Message id (optional, for idempotent planning)")
	return cmd
}

func newHilCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hil",
		Short: "Work the approval queue",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List pending approval tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getJSON("/api/v1/hil/tasks")
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "approve <task-id>",
		Short: "Approve a parked draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return postJSON("/api/v1/hil/tasks/"+args[0]+"/approve", nil)
		},
	})

	var notes string
	reject := &cobra.Command{
		Use:   "reject <task-id>",
		Short: "Reject a parked draft with notes for the rebuild",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return postJSON("/api/v1/hil/tasks/"+args[0]+"/reject", map[string]string{"notes": notes})
		},
	}
	reject.Flags().StringVarP(&notes, "notes", "n", "", "Manager notes explaining the rejection")
	cmd.AddCommand(reject)

	return cmd
}

func getJSON(path string) error {
	resp, err := http.Get(serverURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func postJSON(path string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := http.Post(serverURL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func printResponse(resp *http.Response) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, data, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(data))
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}
