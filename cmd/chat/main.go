package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/curiolabs/curio/internal/config"
	"github.com/curiolabs/curio/internal/model/chat"
	"github.com/curiolabs/curio/internal/service/recs"
	"github.com/curiolabs/curio/internal/service/turn"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env, using system environment: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	baseURL := flag.String("base", cfg.API.BaseURL, "recommendation API (or proxy) base URL")
	token := flag.String("token", cfg.API.APIKey, "bearer token: API key or proxy-issued virtual token")
	userID := flag.String("user", cfg.API.ExternalUserID, "external user id sent with each query")
	conversation := flag.String("conversation", "", "conversation id to resume")
	query := flag.String("query", "", "one-shot query; omit for interactive mode")
	timeout := flag.Duration("timeout", time.Duration(cfg.API.TimeoutSec)*time.Second, "per-turn timeout, 0 for none")

	flag.Parse()

	if strings.TrimSpace(*token) == "" {
		log.Fatal("no credentials: set CURIO_API_KEY or pass -token")
	}

	client := recs.NewClient(*baseURL, recs.StaticToken(*token))
	ctrl := turn.NewController(client, *userID)

	printer := newPrinter()
	ctrl.SetOnUpdate(printer.update)

	ctx := context.Background()

	if *conversation != "" {
		if err := ctrl.LoadConversation(ctx, *conversation); err != nil {
			log.Fatalf("failed to load conversation %s: %v", *conversation, err)
		}
		printer.replay(ctrl.Snapshot())
	}

	if *query != "" {
		runTurn(ctx, ctrl, printer, *query, *timeout)
		return
	}

	fmt.Println("Curio chat. Commands: /load <id>, /list, /clear, /quit. Ctrl+C stops a streaming reply.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue
		case line == "/quit":
			return
		case line == "/clear":
			ctrl.ClearChat()
			printer.reset()
			fmt.Println("(chat cleared)")
		case line == "/list":
			listConversations(ctx, client, *userID)
		case strings.HasPrefix(line, "/load "):
			id := strings.TrimSpace(strings.TrimPrefix(line, "/load "))
			if err := ctrl.LoadConversation(ctx, id); err != nil {
				fmt.Printf("load failed: %v\n", err)
				continue
			}
			printer.replay(ctrl.Snapshot())
		default:
			runTurn(ctx, ctrl, printer, line, *timeout)
		}
	}
}

// runTurn sends one query. An interrupt during the turn cancels the stream
// instead of killing the process.
func runTurn(parent context.Context, ctrl *turn.Controller, printer *deltaPrinter, query string, timeout time.Duration) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	printer.beginTurn()
	err := ctrl.SendMessage(ctx, query)
	printer.endTurn(ctrl.Snapshot())
	if err != nil {
		fmt.Printf("turn failed: %v\n", err)
	}
}

func listConversations(ctx context.Context, client *recs.Client, userID string) {
	convs, err := client.GetConversations(ctx, userID, 20)
	if err != nil {
		fmt.Printf("list failed: %v\n", err)
		return
	}
	if len(convs) == 0 {
		fmt.Println("(no conversations)")
		return
	}
	for _, c := range convs {
		fmt.Printf("%s  %d messages  updated %s\n", c.ID, c.MessageCount, c.UpdatedAt.Format(time.RFC3339))
	}
}

// deltaPrinter renders snapshot updates as incremental terminal output.
type deltaPrinter struct {
	printed   int
	toolState map[string]chat.ToolCallStatus
}

func newPrinter() *deltaPrinter {
	return &deltaPrinter{toolState: make(map[string]chat.ToolCallStatus)}
}

func (p *deltaPrinter) reset() {
	p.printed = 0
	p.toolState = make(map[string]chat.ToolCallStatus)
}

func (p *deltaPrinter) beginTurn() {
	p.reset()
}

// update prints newly accumulated content and tool-call transitions. It runs
// synchronously with each fold, so output order matches event order.
func (p *deltaPrinter) update(snap turn.Snapshot) {
	msg, ok := lastAssistant(snap)
	if !ok {
		return
	}

	for _, call := range msg.ToolCalls {
		if p.toolState[call.ToolCallID] != call.Status {
			p.toolState[call.ToolCallID] = call.Status
			fmt.Printf("\n[tool %s: %s]\n", call.ToolName, call.Status)
		}
	}

	if len(msg.Content) > p.printed {
		fmt.Print(msg.Content[p.printed:])
		p.printed = len(msg.Content)
	}
}

func (p *deltaPrinter) endTurn(snap turn.Snapshot) {
	fmt.Println()
	msg, ok := lastAssistant(snap)
	if !ok {
		return
	}
	if msg.Artifacts != nil {
		for _, book := range msg.Artifacts.Books {
			fmt.Printf("  book: %s — %s\n", book.Title, book.Author)
		}
		for _, music := range msg.Artifacts.Music {
			switch {
			case music.Album != nil:
				fmt.Printf("  album: %s — %s (%d tracks)\n", music.Album.Title, music.Album.Artist, len(music.Album.Tracks))
			case music.Track != nil:
				fmt.Printf("  track: %s — %s\n", music.Track.Title, music.Track.Artist)
			}
		}
		for _, s := range msg.Artifacts.Suggestions {
			fmt.Printf("  suggestion: %s\n", s.Text)
		}
	}
	if msg.ModelUsed != "" {
		fmt.Printf("  (%s via %s, %d+%d tokens, %dms)\n",
			msg.ModelUsed, msg.AgentUsed, msg.TokensInput, msg.TokensOutput, msg.ExecutionTimeMs)
	}
}

// replay prints a freshly loaded conversation.
func (p *deltaPrinter) replay(snap turn.Snapshot) {
	p.reset()
	for _, msg := range snap.Messages {
		fmt.Printf("%s: %s\n", msg.Role, msg.Content)
	}
}

func lastAssistant(snap turn.Snapshot) (chat.Message, bool) {
	for i := len(snap.Messages) - 1; i >= 0; i-- {
		if snap.Messages[i].Role == chat.RoleAssistant {
			return snap.Messages[i], true
		}
	}
	return chat.Message{}, false
}
