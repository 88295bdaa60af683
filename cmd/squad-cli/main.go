// ABOUTME: Terminal client for a cool-squad server
// ABOUTME: Lists and posts to channels and boards, tails channels live and reads bot monologues

package main

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/2389/cool-squad/internal/client"
	"github.com/2389/cool-squad/internal/conversation"
)

const defaultServer = "http://127.0.0.1:8080"

var errUsage = errors.New("usage")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := run(ctx, os.Args[1:], os.Stdout)
	switch {
	case errors.Is(err, errUsage):
		printUsage(os.Stderr)
		os.Exit(1)
	case errors.Is(err, context.Canceled):
	case err != nil:
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage(w io.Writer) {
	yellow := color.New(color.FgYellow)

	fmt.Fprintln(w, "Usage: squad-cli [--server URL] <command> [args]")
	fmt.Fprintln(w)
	yellow.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  channels                                  List channels")
	fmt.Fprintln(w, "  post <channel> <author> <text>            Post a message")
	fmt.Fprintln(w, "  tail <channel>                            Follow a channel live")
	fmt.Fprintln(w, "  boards [board]                            List boards, or a board's threads")
	fmt.Fprintln(w, "  thread <board> <thread>                   Show a thread")
	fmt.Fprintln(w, "  new-thread <board> <author> <title> <text>  Start a thread")
	fmt.Fprintln(w, "  reply <board> <thread> <author> <text>    Reply in a thread")
	fmt.Fprintln(w, "  bots                                      List bots")
	fmt.Fprintln(w, "  monologue <bot> [limit]                   Show a bot's recent thoughts")
	fmt.Fprintln(w)
	yellow.Fprintln(w, "Environment:")
	fmt.Fprintf(w, "  COOL_SQUAD_URL   Server URL (default: %s)\n", defaultServer)
}

// parseArgs splits the global --server flag from the command and its args.
func parseArgs(args []string) (server, cmd string, rest []string, err error) {
	server = os.Getenv("COOL_SQUAD_URL")
	if server == "" {
		server = defaultServer
	}
	for len(args) > 0 && strings.HasPrefix(args[0], "-") {
		arg := args[0]
		switch {
		case arg == "--server" || arg == "-s":
			if len(args) < 2 {
				return "", "", nil, fmt.Errorf("%s requires a value", arg)
			}
			server = args[1]
			args = args[2:]
		case strings.HasPrefix(arg, "--server="):
			server = strings.TrimPrefix(arg, "--server=")
			args = args[1:]
		case arg == "-h" || arg == "--help":
			return "", "", nil, errUsage
		default:
			return "", "", nil, fmt.Errorf("unknown flag: %s", arg)
		}
	}
	if len(args) == 0 {
		return "", "", nil, errUsage
	}
	return server, args[0], args[1:], nil
}

func run(ctx context.Context, args []string, out io.Writer) error {
	server, cmd, rest, err := parseArgs(args)
	if err != nil {
		return err
	}
	c := client.New(server, nil)

	need := func(n int) error {
		if len(rest) < n {
			return errUsage
		}
		return nil
	}

	switch cmd {
	case "channels":
		return cmdChannels(ctx, c, out)
	case "post":
		if err := need(3); err != nil {
			return err
		}
		return cmdPost(ctx, c, out, rest[0], rest[1], strings.Join(rest[2:], " "))
	case "tail":
		if err := need(1); err != nil {
			return err
		}
		return cmdTail(ctx, c, out, rest[0])
	case "boards":
		if len(rest) > 0 {
			return cmdBoardThreads(ctx, c, out, rest[0])
		}
		return cmdBoards(ctx, c, out)
	case "thread":
		if err := need(2); err != nil {
			return err
		}
		return cmdThread(ctx, c, out, rest[0], rest[1])
	case "new-thread":
		if err := need(4); err != nil {
			return err
		}
		return cmdNewThread(ctx, c, out, rest[0], rest[1], rest[2], strings.Join(rest[3:], " "))
	case "reply":
		if err := need(4); err != nil {
			return err
		}
		return cmdReply(ctx, c, out, rest[0], rest[1], rest[2], strings.Join(rest[3:], " "))
	case "bots":
		return cmdBots(ctx, c, out)
	case "monologue":
		if err := need(1); err != nil {
			return err
		}
		limit := 20
		if len(rest) > 1 {
			n, err := strconv.Atoi(rest[1])
			if err != nil || n < 0 {
				return fmt.Errorf("limit must be a non-negative number: %q", rest[1])
			}
			limit = n
		}
		return cmdMonologue(ctx, c, out, rest[0], limit)
	case "help":
		printUsage(out)
		return nil
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

var authorColors = []color.Attribute{
	color.FgCyan, color.FgGreen, color.FgYellow, color.FgMagenta, color.FgBlue, color.FgHiRed,
}

// authorColor picks a stable color for a name.
func authorColor(name string) *color.Color {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return color.New(authorColors[h.Sum32()%uint32(len(authorColors))], color.Bold)
}

func formatMessage(m conversation.Message) string {
	ts := color.HiBlackString(m.Timestamp.Local().Format(time.TimeOnly))
	return fmt.Sprintf("%s %s %s", ts, authorColor(m.Author).Sprint(m.Author+":"), m.Content)
}

func printTriggered(out io.Writer, triggered []string) {
	if len(triggered) > 0 {
		fmt.Fprintln(out, color.HiBlackString("  triggered: %s", strings.Join(triggered, ", ")))
	}
}

func cmdChannels(ctx context.Context, c *client.Client, out io.Writer) error {
	channels, err := c.ListChannels(ctx)
	if err != nil {
		return err
	}
	if len(channels) == 0 {
		fmt.Fprintln(out, "no channels yet")
		return nil
	}
	for _, ch := range channels {
		fmt.Fprintln(out, "#"+ch)
	}
	return nil
}

func cmdPost(ctx context.Context, c *client.Client, out io.Writer, channel, author, text string) error {
	msg, triggered, err := c.PostMessage(ctx, channel, author, text)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, formatMessage(msg))
	printTriggered(out, triggered)
	return nil
}

func cmdTail(ctx context.Context, c *client.Client, out io.Writer, channel string) error {
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Fprintf(out, "following #%s (ctrl-c to stop)\n", channel)
	return c.Tail(ctx, channel, client.TailOptions{
		OnReconnect: func(_ int, reason error) {
			if reason != nil {
				yellow.Fprintf(out, "-- reconnecting: %v\n", reason)
				return
			}
			yellow.Fprintln(out, "-- catching up")
		},
	}, func(m conversation.Message) {
		fmt.Fprintln(out, formatMessage(m))
	})
}

func cmdBoards(ctx context.Context, c *client.Client, out io.Writer) error {
	boards, err := c.ListBoards(ctx)
	if err != nil {
		return err
	}
	if len(boards) == 0 {
		fmt.Fprintln(out, "no boards yet")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDESCRIPTION")
	for _, b := range boards {
		fmt.Fprintf(w, "%s\t%s\t%s\n", b.ID, b.Name, b.Description)
	}
	return w.Flush()
}

func cmdBoardThreads(ctx context.Context, c *client.Client, out io.Writer, board string) error {
	threads, err := c.BoardThreads(ctx, board)
	if err != nil {
		return err
	}
	if len(threads) == 0 {
		fmt.Fprintf(out, "no threads on %s\n", board)
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tAUTHOR\tMESSAGES\tTAGS")
	for _, t := range threads {
		title := t.Title
		if t.Pinned {
			title = "📌 " + title
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", t.ID, title, t.Author, t.MessageCount, strings.Join(t.Tags, ","))
	}
	return w.Flush()
}

func printThread(out io.Writer, t conversation.Thread) {
	cyan := color.New(color.FgCyan, color.Bold)
	cyan.Fprintln(out, t.Title)
	if len(t.Tags) > 0 {
		fmt.Fprintln(out, color.HiBlackString("tags: %s", strings.Join(t.Tags, ", ")))
	}
	for _, m := range t.Messages {
		fmt.Fprintln(out, formatMessage(m))
	}
}

func cmdThread(ctx context.Context, c *client.Client, out io.Writer, board, thread string) error {
	t, err := c.GetThread(ctx, board, thread)
	if err != nil {
		return err
	}
	printThread(out, t)
	return nil
}

func cmdNewThread(ctx context.Context, c *client.Client, out io.Writer, board, author, title, text string) error {
	t, triggered, err := c.CreateThread(ctx, board, author, title, text, nil)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, color.HiBlackString("thread %s", t.ID))
	printThread(out, t)
	printTriggered(out, triggered)
	return nil
}

func cmdReply(ctx context.Context, c *client.Client, out io.Writer, board, thread, author, text string) error {
	msg, triggered, err := c.PostThreadMessage(ctx, board, thread, author, text)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, formatMessage(msg))
	printTriggered(out, triggered)
	return nil
}

func cmdBots(ctx context.Context, c *client.Client, out io.Writer) error {
	bots, err := c.ListBots(ctx)
	if err != nil {
		return err
	}
	for _, b := range bots {
		fmt.Fprintln(out, authorColor(b).Sprint(b))
	}
	return nil
}

func cmdMonologue(ctx context.Context, c *client.Client, out io.Writer, bot string, limit int) error {
	m, err := c.Monologue(ctx, bot, limit)
	if err != nil {
		return err
	}

	state := color.GreenString("enabled")
	if !m.Enabled {
		state = color.YellowString("disabled")
	}
	fmt.Fprintf(out, "%s monologue %s (max %d thoughts)\n", authorColor(m.Bot).Sprint(m.Bot), state, m.MaxThoughts)

	if len(m.Thoughts) == 0 {
		fmt.Fprintln(out, "no thoughts yet")
	}
	for _, th := range m.Thoughts {
		fmt.Fprintf(out, "%s %s %s\n",
			color.HiBlackString(th.Timestamp.Local().Format(time.TimeOnly)),
			color.MagentaString("[%s]", th.Category),
			th.Content)
	}

	if len(m.ToolConsiderations) > 0 {
		fmt.Fprintln(out)
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TOOL\tRELEVANCE\tREASONING")
		for _, tc := range m.ToolConsiderations {
			fmt.Fprintf(w, "%s\t%.2f\t%s\n", tc.ToolName, tc.RelevanceScore, tc.Reasoning)
		}
		return w.Flush()
	}
	return nil
}
