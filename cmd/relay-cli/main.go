// Package main provides a terminal chat client for the relay. It streams
// turns, survives disconnects through cursor-based resume, and picks up an
// in-flight turn after a restart.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/client"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "relay base URL")
	session := flag.String("session", "", "session id (default: generated)")
	user := flag.String("user", "cli", "user id")
	token := flag.String("token", "", "bearer token")
	stateDir := flag.String("state-dir", defaultStateDir(), "directory for persisted stream state")
	flag.Parse()

	sessionID := *session
	if sessionID == "" {
		sessionID = "sess_" + uuid.New().String()[:8]
	}

	cursors, err := client.NewFileCursorStore(*stateDir)
	if err != nil {
		log.Fatalf("Failed to open cursor store: %v", err)
	}

	transport := client.NewHTTPTransport(*server)
	chat := client.NewChatClient(transport, cursors, sessionID, *user, *token)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		fmt.Println("\nInterrupted")
		cancel()
	}()

	fmt.Printf("Connected to %s (session %s)\n", *server, sessionID)

	// Pick up an in-flight turn from a previous run, if any.
	err = chat.Reconnect(ctx, client.Callbacks{
		OnConnected: func(attempt int) {
			fmt.Printf("[resuming previous turn, attempt %d]\n", attempt)
		},
	})
	if err != nil && !errors.Is(err, client.ErrNoPersistedStream) && !errors.Is(err, context.Canceled) {
		log.Printf("WARN: Failed to resume previous turn: %v", err)
	}
	if err == nil {
		printNewOutput(chat, &renderState{})
	}

	fmt.Println("Type a message and press enter. Commands: /stop, /quit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch line {
		case "/quit", "/exit":
			return
		case "/stop":
			if err := chat.Stop(ctx); err != nil {
				fmt.Printf("stop failed: %v\n", err)
			}
			continue
		}

		if err := runTurn(ctx, chat, line); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			fmt.Printf("\n[connection lost, response may be incomplete: %v]\n", err)
		}
	}
}

// renderState tracks how much of each message has already been printed so
// polling can emit only the new suffix.
type renderState struct {
	printed map[string]int
	tools   map[string]bool
}

// runTurn sends one turn and renders output incrementally while it streams.
func runTurn(ctx context.Context, chat *client.ChatClient, message string) error {
	done := make(chan error, 1)
	go func() {
		done <- chat.SendTurn(ctx, message)
	}()

	rs := &renderState{}
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			printNewOutput(chat, rs)
			fmt.Println()
			return err
		case <-ticker.C:
			printNewOutput(chat, rs)
		}
	}
}

// printNewOutput prints text and tool activity that arrived since last call.
func printNewOutput(chat *client.ChatClient, rs *renderState) {
	if rs.printed == nil {
		rs.printed = make(map[string]int)
		rs.tools = make(map[string]bool)
	}

	for _, tool := range chat.Dispatcher().Tools() {
		if !rs.tools[tool.ID] {
			rs.tools[tool.ID] = true
			fmt.Printf("\n[tool: %s]\n", tool.Name)
		}
	}

	for _, msg := range chat.Dispatcher().Messages() {
		if n := rs.printed[msg.ID]; n < len(msg.Text) {
			fmt.Print(msg.Text[n:])
			rs.printed[msg.ID] = len(msg.Text)
		}
	}

	state := chat.Dispatcher().State()
	if state.Phase == client.PhaseError && !rs.tools["__err"] {
		rs.tools["__err"] = true
		fmt.Printf("\n[error: %s]\n", state.ErrMessage)
	}
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".relay-cli"
	}
	return home + "/.relay-cli"
}
