package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/danmuck/edgekv/internal/client"
	"github.com/danmuck/edgekv/internal/logging"
	"github.com/danmuck/edgekv/internal/protocol"
)

const prompt = "> "

func main() {
	var (
		host      string
		port      int
		benchmark bool
		ops       int
	)
	flag.StringVar(&host, "h", "127.0.0.1", "server host")
	flag.StringVar(&host, "host", "127.0.0.1", "server host")
	flag.IntVar(&port, "p", 6379, "server port")
	flag.IntVar(&port, "port", 6379, "server port")
	flag.BoolVar(&benchmark, "benchmark", false, "run the SET/GET benchmark and exit")
	flag.IntVar(&ops, "n", 50000, "benchmark operation count")
	flag.Parse()

	logging.ConfigureRuntime("kvcli")
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	c, err := client.Dial(ctx, addr, client.DefaultConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "kvcli: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	if benchmark {
		if _, err := client.RunBenchmark(ctx, c, ops, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "kvcli: benchmark: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fmt.Printf("Connected to %s\n", addr)
	app := NewApp(os.Stdin, os.Stdout, c)
	if err := app.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "kvcli: %v\n", err)
		os.Exit(1)
	}
}

// App hosts the interactive prompt loop.
type App struct {
	in     *bufio.Scanner
	out    io.Writer
	client *client.Client
}

func NewApp(in io.Reader, out io.Writer, c *client.Client) *App {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &App{in: scanner, out: out, client: c}
}

// Run reads commands until EOF, quit, cancellation, or a transport failure.
// It consumes the input and must be called at most once.
func (a *App) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	lines, scanErr := a.readLines(done)

	for {
		fmt.Fprint(a.out, prompt)
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(a.out)
			return nil
		case text, ok := <-lines:
			if !ok {
				fmt.Fprintln(a.out)
				return <-scanErr
			}
			line = strings.TrimSpace(text)
		}
		if line == "" {
			continue
		}
		if isExit(line) {
			return nil
		}

		args, err := client.ParseCommandLine(line)
		if err != nil {
			fmt.Fprintf(a.out, "(error) %v\n", err)
			continue
		}
		if len(args) == 0 {
			continue
		}

		if strings.EqualFold(args[0], "SUBSCRIBE") {
			return a.subscribe(ctx, args[1:])
		}

		v, err := a.client.DoStrings(args...)
		if err != nil {
			if protocol.IsDecodeError(err) {
				fmt.Fprintf(a.out, "(protocol error) %v\n", err)
				continue
			}
			return fmt.Errorf("connection lost: %w", err)
		}
		if v == nil {
			fmt.Fprintln(a.out, "(empty reply)")
			continue
		}
		if err := client.Render(a.out, v); err != nil {
			return err
		}
	}
}

// readLines scans input on its own goroutine so a blocked read cannot hold off
// cancellation. scanErr is filled before lines is closed.
func (a *App) readLines(done <-chan struct{}) (<-chan string, <-chan error) {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		for a.in.Scan() {
			select {
			case lines <- a.in.Text():
			case <-done:
				return
			}
		}
		scanErr <- a.in.Err()
	}()
	return lines, scanErr
}

// subscribe streams pushes until interrupted; the connection cannot be reused after.
func (a *App) subscribe(ctx context.Context, channels []string) error {
	if len(channels) == 0 {
		fmt.Fprintln(a.out, "(error) SUBSCRIBE needs at least one channel")
		return nil
	}
	fmt.Fprintf(a.out, "Reading messages... (press Ctrl-C to quit)\n")
	err := a.client.Subscribe(ctx, channels, func(v protocol.Value) error {
		return client.Render(a.out, v)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func isExit(line string) bool {
	switch strings.ToLower(line) {
	case "quit", "exit", "close":
		return true
	}
	return false
}
