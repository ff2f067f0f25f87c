package main // terminal kiosk for picking a seat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/labstack/gommon/log"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/kiosk-seat-engine/internal/config"
	"github.com/iliyamo/kiosk-seat-engine/internal/kiosk"
)

const help = `commands:
  map                 show the seat map
  flight <id>         track another flight
  select <seat>       lock a seat (choosing again releases the previous one)
  confirm <booking>   confirm the selected seat for a booking
  back                release the selection
  reset               release the selection and start a new session
  refresh             refetch the seat map
  quit`

func main() {
	cfg := config.LoadKioskConfig()
	pflag.StringVarP(&cfg.ServerURL, "server", "s", cfg.ServerURL, "seat service base URL")
	pflag.StringVarP(&cfg.FlightID, "flight", "f", cfg.FlightID, "flight to track at start-up")
	pflag.DurationVar(&cfg.ReconnectDelay, "reconnect-delay", cfg.ReconnectDelay, "pause between realtime reconnect attempts")
	pflag.IntVar(&cfg.ReconnectBurst, "reconnect-burst", cfg.ReconnectBurst, "reconnect attempts allowed back to back")
	pflag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	pflag.Parse()

	logger := config.NewLogger("kiosk", cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, os.Stdin, os.Stdout); err != nil {
		logger.Fatalf("kiosk: %v", err)
	}
}

func run(ctx context.Context, cfg config.KioskConfig, logger *log.Logger, in io.Reader, out io.Writer) error {
	ch := kiosk.NewRealtimeChannel(
		kiosk.WebSocketDialer{URL: kiosk.WebSocketURL(cfg.ServerURL)},
		kiosk.ChannelOptions{RetryDelay: cfg.ReconnectDelay, Burst: cfg.ReconnectBurst},
		logger,
	)
	inv := kiosk.NewInventory(kiosk.NewHTTPClient(cfg.ServerURL, nil), ch, kiosk.NewSessionIdentity(), logger)

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ch.Run(gctx) })
	g.Go(func() error { return inv.Run(gctx) })
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case n := <-inv.Notices():
				printNotice(out, n)
			}
		}
	})

	fmt.Fprintf(out, "kiosk session %s\n%s\n", inv.Snapshot().Session, help)
	if cfg.FlightID != "" {
		report(out, inv.Track(gctx, cfg.FlightID))
		_ = kiosk.Render(out, inv.Snapshot())
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-gctx.Done():
				return
			}
		}
	}()

loop:
	for {
		fmt.Fprint(out, "> ")
		select {
		case <-gctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok || !dispatch(gctx, inv, out, strings.Fields(line)) {
				break loop
			}
		}
	}

	// Run waits for the release to finish before returning.
	_ = inv.Leave()
	cancel()
	return g.Wait()
}

// dispatch runs one command; it returns false on quit.
func dispatch(ctx context.Context, inv *kiosk.Inventory, out io.Writer, args []string) bool {
	if len(args) == 0 {
		return true
	}
	arg := func() string {
		if len(args) > 1 {
			return args[1]
		}
		return ""
	}
	switch strings.ToLower(args[0]) {
	case "map", "m":
		_ = kiosk.Render(out, inv.Snapshot())
	case "flight", "f":
		report(out, inv.Track(ctx, strings.ToUpper(arg())))
		_ = kiosk.Render(out, inv.Snapshot())
	case "select", "s":
		seat := strings.ToUpper(arg())
		if err := inv.SelectSeat(ctx, seat); err != nil {
			report(out, err)
			return true
		}
		fmt.Fprintf(out, "seat %s held for you; confirm with a booking reference\n", seat)
	case "confirm", "c":
		if err := inv.ConfirmSelection(ctx, arg()); err != nil {
			report(out, err)
		}
	case "back", "b":
		report(out, inv.Leave())
	case "reset":
		id, err := inv.Reset()
		if err != nil {
			report(out, err)
			return true
		}
		fmt.Fprintf(out, "new session %s\n", id)
	case "refresh", "r":
		report(out, inv.FetchSeatMap(ctx))
		_ = kiosk.Render(out, inv.Snapshot())
	case "quit", "q", "exit":
		return false
	default:
		fmt.Fprintln(out, help)
	}
	return true
}

func report(out io.Writer, err error) {
	switch {
	case err == nil:
	case errors.Is(err, kiosk.ErrSeatUnavailable):
		fmt.Fprintln(out, "that seat was just taken, please choose another")
	case errors.Is(err, kiosk.ErrLockExpired), errors.Is(err, kiosk.ErrLockNotHeld):
		fmt.Fprintln(out, "your hold on the seat ran out, please select it again")
	case errors.Is(err, kiosk.ErrSeatNotFound):
		fmt.Fprintln(out, "no such seat or flight")
	case errors.Is(err, kiosk.ErrTransportUnavailable):
		fmt.Fprintln(out, "the seat service is unreachable, try again shortly")
	case errors.Is(err, kiosk.ErrNoSelection), errors.Is(err, kiosk.ErrNotTracking):
		fmt.Fprintln(out, err)
	default:
		fmt.Fprintf(out, "error: %v\n", err)
	}
}

func printNotice(out io.Writer, n kiosk.Notice) {
	switch n.Kind {
	case kiosk.NoticeSeatLost:
		fmt.Fprintf(out, "\nseat %s is no longer yours, please choose another\n", n.SeatID)
	case kiosk.NoticeStale:
		fmt.Fprintln(out, "\nconnection lost; seat map may be out of date")
	case kiosk.NoticeFresh:
		fmt.Fprintln(out, "\nreconnected")
	case kiosk.NoticeConfirmed:
		fmt.Fprintf(out, "\nseat %s confirmed\n", n.SeatID)
	}
}
