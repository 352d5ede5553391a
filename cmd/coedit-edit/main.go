// Command coedit-edit is a line oriented client for a coedit server.
//
// Usage:
//
//	coedit-edit [flags] new
//	coedit-edit [flags] ls
//	coedit-edit [flags] cat <doc>
//	coedit-edit [flags] watch <doc>
//	coedit-edit [flags] edit <doc> <row>
//	coedit-edit [flags] history <doc> [n]
//
// edit locks <row>, then writes each line read from stdin into it, so piping
// several lines inserts them in place. The lock is released and the document
// closed on EOF.
//
// history prints the archived versions of a document, newest first. It needs
// an archive backend that keeps history on the server.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/maruel/coedit/internal/client"
	"github.com/maruel/ksid"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "coedit-edit: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	serverURL := flag.String("server", "http://localhost:8080", "coedit server URL")
	interval := flag.Duration("interval", client.DefaultPollInterval, "Poll interval for watch")
	debounce := flag.Duration("debounce", client.DefaultDebounce, "Delay before a typed row is written")
	verbose := flag.Bool("v", false, "Enable debug logging")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: coedit-edit [flags] new|ls|cat <doc>|watch <doc>|edit <doc> <row>|history <doc> [n]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})))

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		return errors.New("missing command")
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	c, err := client.Register(ctx, *serverURL, nil)
	if err != nil {
		return err
	}
	defer func() {
		// Release locks even when interrupted.
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := c.Disconnect(dctx); err != nil {
			slog.Warn("disconnect failed", "err", err)
		}
	}()

	switch cmd, rest := args[0], args[1:]; cmd {
	case "new":
		if len(rest) != 0 {
			return errors.New("new takes no argument")
		}
		id, err := c.NewDocument(ctx)
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	case "ls":
		ids, err := c.ListDocuments(ctx)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	case "cat":
		id, err := parseDoc(rest, 1)
		if err != nil {
			return err
		}
		snap, err := c.Snapshot(ctx, id)
		if err != nil {
			return err
		}
		for i, row := range snap.Rows {
			mark := ' '
			if snap.Holders[i] != "" {
				mark = '*'
			}
			fmt.Printf("%4d%c %s\n", i, mark, row)
		}
		return nil
	case "watch":
		id, err := parseDoc(rest, 1)
		if err != nil {
			return err
		}
		return watch(ctx, c, id, *interval, os.Stdout)
	case "edit":
		id, err := parseDoc(rest, 2)
		if err != nil {
			return err
		}
		row, err := strconv.Atoi(rest[1])
		if err != nil || row < 0 {
			return fmt.Errorf("invalid row %q", rest[1])
		}
		return edit(ctx, c, id, row, *debounce, os.Stdin)
	case "history":
		n := 0
		if len(rest) == 2 {
			if n, err = strconv.Atoi(rest[1]); err != nil || n < 0 {
				return fmt.Errorf("invalid count %q", rest[1])
			}
			rest = rest[:1]
		}
		id, err := parseDoc(rest, 1)
		if err != nil {
			return err
		}
		return history(ctx, c, id, n, os.Stdout)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func parseDoc(args []string, want int) (ksid.ID, error) {
	if len(args) != want {
		return 0, fmt.Errorf("expected %d argument(s), got %d", want, len(args))
	}
	id, err := ksid.Parse(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid document %q: %w", args[0], err)
	}
	return id, nil
}

// watch prints rows as other clients change them until ctx is canceled.
func watch(ctx context.Context, b client.Backend, id ksid.ID, interval time.Duration, w io.Writer) error {
	s, err := client.Open(ctx, b, id, 0)
	if err != nil {
		return err
	}
	seen := s.Buffer().Rows()
	for i, row := range seen {
		_, _ = fmt.Fprintf(w, "%4d  %s\n", i, row)
	}
	p := client.NewPoller(s, interval)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		updated, err := p.Sync(ctx)
		if err != nil {
			slog.WarnContext(ctx, "sync failed", "err", err)
			continue
		}
		rows := s.Buffer().Rows()
		for _, i := range updated {
			if i >= len(seen) || seen[i] != rows[i] {
				_, _ = fmt.Fprintf(w, "%4d~ %s\n", i, rows[i])
			}
		}
		seen = rows
	}
}

// edit locks row and types every line of r into it.
func edit(ctx context.Context, b client.Backend, id ksid.ID, row int, debounce time.Duration, r io.Reader) error {
	s, err := client.Open(ctx, b, id, debounce)
	if err != nil {
		return err
	}
	ok, err := s.Typing(ctx, row)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("row %d is locked by another client", row)
	}
	at := row
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		for {
			if r := s.Composing(); r != at && r >= 0 {
				// A debounced write moved the lock to the last line written.
				lines = lines[len(lines)-1:]
				at = r
			}
			err := s.Edit(at, strings.Join(append(lines, sc.Text()), "\n"))
			if errors.Is(err, client.ErrNotComposing) && s.Composing() != at && s.Composing() >= 0 {
				continue
			}
			if err != nil {
				return errors.Join(err, s.Close(ctx))
			}
			break
		}
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return errors.Join(err, s.Close(ctx))
	}
	return s.Close(ctx)
}

// history prints the newest n archived versions of a document, all when n is
// 0.
func history(ctx context.Context, b client.Backend, id ksid.ID, n int, w io.Writer) error {
	revs, err := b.History(ctx, id, n)
	if err != nil {
		return err
	}
	for _, r := range revs {
		ref := r.Ref
		if len(ref) > 12 {
			ref = ref[:12]
		}
		if ref == "" {
			ref = "-"
		}
		by := string(r.Client)
		if by == "" {
			by = "-"
		}
		_, _ = fmt.Fprintf(w, "%s %s %s (%d rows)\n", r.When.UTC().Format(time.RFC3339), ref, by, len(r.Rows))
		for i, row := range r.Rows {
			_, _ = fmt.Fprintf(w, "%4d  %s\n", i, row)
		}
	}
	return nil
}
