// Command mrt is a line-mode Morse terminal. It joins a station to a
// KOB wire, keys typed text onto the wire at the configured speed,
// and prints code heard from other stations as decoded text.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/telegraph-engine/kobwire/morse"
	"github.com/telegraph-engine/kobwire/station"
	"github.com/telegraph-engine/kobwire/wire"
)

func main() {
	var (
		serverAddr = flag.String("server", wire.DefaultServerAddr, "KOB server host:port")
		wireNo     = flag.Int("wire", 0, "wire number to join")
		stationID  = flag.String("id", "", "office/station ID to announce")
		wpm        = flag.Int("wpm", 20, "text speed in words per minute")
		cwpm       = flag.Int("cwpm", 0, "character speed in words per minute (0 = same as -wpm)")
		codeType   = flag.String("type", "american", "code variant: american or international")
		spacing    = flag.String("spacing", "none", "Farnsworth spacing: none, char, or word")
		verbose    = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	if err := run(*serverAddr, *wireNo, *stationID, *wpm, *cwpm, *codeType, *spacing, *verbose); err != nil {
		fmt.Fprintln(os.Stderr, "mrt:", err)
		os.Exit(1)
	}
}

func run(serverAddr string, wireNo int, stationID string, wpm, cwpm int, codeType, spacing string, verbose bool) error {
	if wireNo <= 0 {
		return fmt.Errorf("a positive -wire number is required")
	}
	if stationID == "" {
		return fmt.Errorf("a station -id is required")
	}
	if wpm <= 0 {
		return fmt.Errorf("-wpm must be positive")
	}

	ct, err := parseCodeType(codeType)
	if err != nil {
		return err
	}
	sp, err := parseSpacing(spacing)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	reader := morse.NewReader(ctx, log, morse.ReaderConfig{
		WPM:     wpm,
		CodeWPM: cwpm,
		Type:    ct,
		OnDecoded: func(char string, spacing float64) {
			if spacing > 0.5 {
				fmt.Fprint(out, " ")
			}
			fmt.Fprint(out, char)
			out.Flush()
		},
	})

	roster := station.NewRoster(ctx, log, station.RosterConfig{
		OnArrived: func(info station.Info) {
			fmt.Fprintf(out, "\n[%s connected]\n", info.ID)
			out.Flush()
		},
		OnDeparted: func(info station.Info) {
			fmt.Fprintf(out, "\n[%s disconnected]\n", info.ID)
			out.Flush()
		},
	})

	client, err := wire.NewClient(ctx, log, wire.ClientConfig{
		ServerAddr: serverAddr,
		StationID:  stationID,
		OnCode:     reader.Decode,
		OnStationID: func(id string) {
			roster.Heard(id)
		},
		OnSenderChanged: func(id string) {
			roster.SenderChanged(id)
			fmt.Fprintf(out, "\n<%s>\n", id)
			out.Flush()
		},
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
		cancel()
		client.Wait()
		reader.Wait()
		roster.Wait()
	}()

	if err := client.Connect(int16(wireNo)); err != nil {
		return err
	}
	fmt.Fprintf(out, "Connected to wire %d as %s (%d wpm, %s code)\n", wireNo, stationID, wpm, ct)
	out.Flush()

	sender := morse.NewSender(morse.SenderConfig{
		WPM:     wpm,
		CodeWPM: cwpm,
		Type:    ct,
		Spacing: sp,
	})

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := sendLine(client, sender, line); err != nil {
				return err
			}
		}
	}
}

// sendLine keys one line of text onto the wire character by
// character, pacing the sends by each sequence's keying time so
// listeners hear it at the configured speed.
func sendLine(client *wire.Client, sender *morse.Sender, line string) error {
	for _, c := range line + " " {
		code := sender.Encode(c)
		if len(code) == 0 {
			continue
		}
		if err := client.Write(code, string(c)); err != nil {
			return err
		}
		time.Sleep(time.Duration(code.Duration()) * time.Millisecond)
	}
	return nil
}

func parseCodeType(s string) (morse.CodeType, error) {
	switch strings.ToLower(s) {
	case "american":
		return morse.American, nil
	case "international":
		return morse.International, nil
	default:
		return 0, fmt.Errorf("unknown code type %q (want american or international)", s)
	}
}

func parseSpacing(s string) (morse.Spacing, error) {
	switch strings.ToLower(s) {
	case "none":
		return morse.SpacingNone, nil
	case "char":
		return morse.SpacingChar, nil
	case "word":
		return morse.SpacingWord, nil
	default:
		return 0, fmt.Errorf("unknown spacing %q (want none, char, or word)", s)
	}
}
