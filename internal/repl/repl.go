// Package repl is the interactive line-at-a-time chat loop.
package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/petasbytes/go-chatgraph/internal/chat"
	"github.com/petasbytes/go-chatgraph/internal/graph"
)

// QuitTokens end the session; compared case-insensitively after trimming.
var QuitTokens = []string{"quit", "exit", "退出", "q"}

func IsQuit(line string) bool {
	s := strings.ToLower(strings.TrimSpace(line))
	for _, q := range QuitTokens {
		if s == q {
			return true
		}
	}
	return false
}

// Session is the part of chat.Bot the REPL drives.
type Session interface {
	Chat(ctx context.Context, input, threadID string) (string, error)
	History(ctx context.Context, threadID string) ([]string, error)
	State(ctx context.Context, threadID string) (chat.State, bool, error)
	Checkpoints(ctx context.Context, threadID string) ([]graph.Snapshot[chat.State], error)
}

// Command is a slash command.
type Command struct {
	Name        string
	Usage       string
	Description string
	Handler     func(ctx context.Context, args string) error
}

type REPL struct {
	session  Session
	in       io.Reader
	out      io.Writer
	thread   string
	commands map[string]Command
	order    []string
}

func New(session Session, in io.Reader, out io.Writer, threadID string) *REPL {
	if threadID == "" {
		threadID = chat.DefaultThreadID
	}
	r := &REPL{
		session:  session,
		in:       in,
		out:      out,
		thread:   threadID,
		commands: make(map[string]Command),
	}
	r.registerBuiltins()
	return r
}

// Thread is the thread id turns are currently sent to.
func (r *REPL) Thread() string { return r.thread }

// Register adds a slash command; a later registration with the same name replaces it.
func (r *REPL) Register(c Command) {
	if _, ok := r.commands[c.Name]; !ok {
		r.order = append(r.order, c.Name)
	}
	r.commands[c.Name] = c
}

func (r *REPL) registerBuiltins() {
	r.Register(Command{
		Name: "/help", Description: "Show available commands",
		Handler: func(context.Context, string) error {
			fmt.Fprintln(r.out, "Available commands:")
			for _, name := range r.order {
				c := r.commands[name]
				usage := c.Name
				if c.Usage != "" {
					usage += " " + c.Usage
				}
				fmt.Fprintf(r.out, "  %-20s %s\n", usage, c.Description)
			}
			fmt.Fprintf(r.out, "  %-20s %s\n", strings.Join(QuitTokens, ", "), "End the conversation")
			return nil
		},
	})
	r.Register(Command{
		Name: "/history", Description: "Print the transcript of the current thread",
		Handler: func(ctx context.Context, _ string) error {
			hist, err := r.session.History(ctx, r.thread)
			if err != nil {
				return err
			}
			if len(hist) == 0 {
				fmt.Fprintln(r.out, "No conversation history yet.")
				return nil
			}
			PrintHistory(r.out, hist)
			return nil
		},
	})
	r.Register(Command{
		Name: "/intent", Description: "Show the intent of the last user message",
		Handler: func(ctx context.Context, _ string) error {
			st, found, err := r.session.State(ctx, r.thread)
			if err != nil {
				return err
			}
			if !found || st.UserIntent == "" {
				fmt.Fprintln(r.out, "No intent recorded yet.")
				return nil
			}
			fmt.Fprintf(r.out, "intent: %s (step: %s)\n", st.UserIntent, st.CurrentStep)
			return nil
		},
	})
	r.Register(Command{
		Name: "/thread", Usage: "[id]", Description: "Show or switch the current thread",
		Handler: func(_ context.Context, args string) error {
			if id := strings.TrimSpace(args); id != "" {
				r.thread = id
			}
			fmt.Fprintf(r.out, "thread: %s\n", r.thread)
			return nil
		},
	})
	r.Register(Command{
		Name: "/checkpoints", Description: "List checkpoints of the current thread",
		Handler: func(ctx context.Context, _ string) error {
			snaps, err := r.session.Checkpoints(ctx, r.thread)
			if err != nil {
				return err
			}
			if len(snaps) == 0 {
				fmt.Fprintln(r.out, "No checkpoints found.")
				return nil
			}
			for _, s := range snaps {
				fmt.Fprintf(r.out, "  [step=%d] %s  node=%s  messages=%d\n", s.Step, s.CheckpointID, s.Node, len(s.Values.Messages))
			}
			return nil
		},
	})
}

// PrintHistory writes transcript entries separated by dashed lines.
func PrintHistory(w io.Writer, entries []string) {
	for _, e := range entries {
		fmt.Fprintln(w, e)
		fmt.Fprintln(w, strings.Repeat("-", 50))
	}
}

// Run reads lines until a quit token, EOF or ctx cancellation. Errors from a
// single turn are printed and the loop continues.
func (r *REPL) Run(ctx context.Context) error {
	fmt.Fprintln(r.out, "=== chatgraph ===")
	fmt.Fprintln(r.out, "Type 'quit' or '退出' to end the conversation, /help for commands.")
	fmt.Fprintln(r.out)

	done := make(chan struct{})
	defer close(done)

	// stdin reader goroutine -> lines into channel
	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	inputCh := make(chan string)
	go func() {
		defer close(inputCh)
		for scanner.Scan() {
			select {
			case inputCh <- scanner.Text():
			case <-done:
				return
			}
		}
	}()

	for {
		fmt.Fprint(r.out, "You: ")
		var (
			line string
			ok   bool
		)
		select {
		case <-ctx.Done():
			fmt.Fprintln(r.out, "\nConversation interrupted. Goodbye!")
			return nil
		case line, ok = <-inputCh:
			if !ok {
				fmt.Fprintln(r.out)
				return scanner.Err()
			}
		}

		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case IsQuit(line):
			fmt.Fprintln(r.out, "Goodbye!")
			return nil
		case strings.HasPrefix(line, "/"):
			r.dispatch(ctx, line)
			continue
		}

		reply, err := r.session.Chat(ctx, line, r.thread)
		if err != nil {
			fmt.Fprintf(r.out, "error: %v\n\n", err)
			continue
		}
		fmt.Fprintf(r.out, "AI: %s\n\n", reply)
	}
}

func (r *REPL) dispatch(ctx context.Context, line string) {
	name, args, _ := strings.Cut(line, " ")
	cmd, ok := r.commands[name]
	if !ok {
		fmt.Fprintf(r.out, "Unknown command: %s (try /help)\n", name)
		return
	}
	if err := cmd.Handler(ctx, args); err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
	}
}
