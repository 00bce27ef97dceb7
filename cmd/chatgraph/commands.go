package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/petasbytes/go-chatgraph/internal/api"
	"github.com/petasbytes/go-chatgraph/internal/chat"
	"github.com/petasbytes/go-chatgraph/internal/repl"
	"github.com/petasbytes/go-chatgraph/memory"
)

// DemoInputs is the scripted conversation run by the demo command.
var DemoInputs = []string{
	"Hello!",
	"Can you explain what artificial intelligence is?",
	"Thanks for the explanation. Goodbye!",
}

type chatOptions struct {
	thread     string
	importPath string
}

func addChatFlags(cmd *cobra.Command, o *chatOptions) {
	cmd.Flags().StringVar(&o.thread, "thread", chat.DefaultThreadID, "conversation thread id")
	cmd.Flags().StringVar(&o.importPath, "import", "", "seed the thread from a conversation JSON file")
}

func chatCmd(gf *globalFlags) *cobra.Command {
	o := &chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat",
		Long: `Start an interactive chat on stdin.

Type quit, exit, q or 退出 to leave. Slash commands (/help, /history, /intent,
/thread, /checkpoints) inspect the conversation without sending it to the model.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), gf, o)
		},
	}
	addChatFlags(cmd, o)
	return cmd
}

func runChat(ctx context.Context, gf *globalFlags, o *chatOptions) error {
	a, err := newApp(ctx, gf, appOptions{needModel: true, quietLogs: true})
	if err != nil {
		return err
	}
	defer a.close()

	if o.importPath != "" {
		if err := importThread(ctx, a.bot, o.thread, o.importPath); err != nil {
			return err
		}
		fmt.Printf("Imported %s into thread %q\n", o.importPath, o.thread)
	}
	return repl.New(a.bot, os.Stdin, os.Stdout, o.thread).Run(ctx)
}

func importThread(ctx context.Context, bot *chat.Bot, threadID, path string) error {
	msgs, err := memory.LoadConversation(path)
	if err != nil {
		return fmt.Errorf("import %s: %w", path, err)
	}
	if len(msgs) == 0 {
		return fmt.Errorf("import %s: no messages found", path)
	}
	return bot.Import(ctx, threadID, msgs)
}

func demoCmd(gf *globalFlags) *cobra.Command {
	var thread string
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a scripted three-turn conversation and print its history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), gf, appOptions{needModel: true, quietLogs: true})
			if err != nil {
				return err
			}
			defer a.close()
			return runDemo(cmd.Context(), a.bot, thread, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&thread, "thread", chat.DefaultThreadID, "conversation thread id")
	return cmd
}

func runDemo(ctx context.Context, bot *chat.Bot, thread string, w io.Writer) error {
	fmt.Fprintln(w, "=== chatgraph demo ===")
	for _, input := range DemoInputs {
		fmt.Fprintf(w, "User: %s\n", input)
		res := <-bot.ChatAsync(ctx, input, thread)
		if res.Err != nil {
			return fmt.Errorf("demo failed: %w", res.Err)
		}
		fmt.Fprintf(w, "AI: %s\n\n", res.Reply)
	}

	hist, err := bot.History(ctx, thread)
	if err != nil {
		return fmt.Errorf("demo failed: %w", err)
	}
	fmt.Fprintln(w, "=== Conversation history ===")
	repl.PrintHistory(w, hist)
	return nil
}

func serveCmd(gf *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), gf, appOptions{needModel: true})
			if err != nil {
				return err
			}
			defer a.close()
			if addr == "" {
				addr = a.cfg.Addr
			}
			return api.NewServer(a.bot, a.log).ListenAndServe(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8080)")
	return cmd
}

func historyCmd(gf *globalFlags) *cobra.Command {
	var (
		thread      string
		exportPath  string
		checkpoints bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print a thread's transcript, checkpoints, or export its messages",
		Long: `Print a thread's transcript from the checkpoint store.

This is most useful with a persistent --store; the memory store starts empty
in every process.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, gf, appOptions{})
			if err != nil {
				return err
			}
			defer a.close()
			return runHistory(ctx, a.bot, thread, exportPath, checkpoints, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&thread, "thread", chat.DefaultThreadID, "conversation thread id")
	cmd.Flags().StringVar(&exportPath, "export", "", "write the thread's messages to this JSON file")
	cmd.Flags().BoolVar(&checkpoints, "checkpoints", false, "list checkpoints instead of the transcript")
	return cmd
}

var errThreadNotFound = errors.New("thread not found")

func runHistory(ctx context.Context, bot *chat.Bot, thread, exportPath string, checkpoints bool, w io.Writer) error {
	st, found, err := bot.State(ctx, thread)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", errThreadNotFound, thread)
	}

	if exportPath != "" {
		if err := memory.SaveConversation(exportPath, st.Messages); err != nil {
			return fmt.Errorf("export: %w", err)
		}
		fmt.Fprintf(w, "Exported %d messages to %s\n", len(st.Messages), exportPath)
		return nil
	}

	if checkpoints {
		snaps, err := bot.Checkpoints(ctx, thread)
		if err != nil {
			return err
		}
		for _, s := range snaps {
			fmt.Fprintf(w, "[step=%d] %s  node=%s  step_marker=%s  at=%s\n",
				s.Step, s.CheckpointID, s.Node, s.Values.CurrentStep, s.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	}

	fmt.Fprintf(w, "=== Conversation history (%s) ===\n", thread)
	repl.PrintHistory(w, st.ConversationHistory)
	return nil
}

func threadsCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "threads",
		Short: "List thread ids known to the checkpoint store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), gf, appOptions{})
			if err != nil {
				return err
			}
			defer a.close()
			ids, err := a.bot.Threads(cmd.Context())
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Println("No threads found.")
				return nil
			}
			fmt.Println(strings.Join(ids, "\n"))
			return nil
		},
	}
}
