// kek-chat is a two-party chat sample over kekbit channels.
//
// Each party owns one outbound channel (written by it, identified by --me)
// and tails the other party's channel (--peer). Start it from both sides
// with the ids swapped:
//
//	kek-chat --root /tmp/kekchat --me 1 --peer 2
//	kek-chat --root /tmp/kekchat --me 2 --peer 1
//
// Lines typed at the prompt are published to the outbound channel; records
// arriving on the peer channel are printed as they appear. Closing the
// prompt (ctrl-d) closes the outbound channel, which ends the peer's tail.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/calvinalkan/kekbit/pkg/kekbit"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"
)

const forever = uint64(99_999_999_999)

func main() {
	flags := flag.NewFlagSet("kek-chat", flag.ContinueOnError)
	root := flags.String("root", filepath.Join(os.TempDir(), "kekchat"), "root directory for chat channels")
	me := flags.Uint64("me", 0, "own id: outbound channel id and writer id")
	peer := flags.Uint64("peer", 0, "peer id: channel to tail")
	capacity := flags.Uint32("capacity", 1_000_000, "outbound channel capacity hint")

	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}

		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	if *me == 0 || *peer == 0 || *me == *peer {
		fmt.Fprintln(os.Stderr, "error: --me and --peer must be distinct non-zero ids")
		os.Exit(1)
	}

	if err := run(*root, *me, *peer, *capacity); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(root string, me, peer uint64, capacity uint32) error {
	meta := kekbit.NewMetadata(me, me, capacity, 1000, forever, kekbit.Millis)

	writer, err := kekbit.CreateChannel(root, meta, kekbit.EncoderHandler{})
	if err != nil {
		return fmt.Errorf("creating outbound channel: %w", err)
	}
	defer writer.Close()

	fmt.Printf("chatting as %d, waiting for peer %d (ctrl-d to leave)\n", me, peer)

	stop := make(chan struct{})
	defer close(stop)

	go tailPeer(root, peer, stop)

	prompt := liner.NewLiner()
	defer prompt.Close()

	prompt.SetCtrlCAborts(true)

	if f, histErr := os.Open(historyFile()); histErr == nil {
		_, _ = prompt.ReadHistory(f)
		_ = f.Close()
	}

	for {
		line, promptErr := prompt.Prompt(fmt.Sprintf("%d> ", me))
		if promptErr != nil {
			if errors.Is(promptErr, liner.ErrPromptAborted) || errors.Is(promptErr, io.EOF) {
				fmt.Println("\nbye")
				saveHistory(prompt)

				return nil
			}

			return fmt.Errorf("reading input: %w", promptErr)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		prompt.AppendHistory(line)

		_, writeErr := writer.Write([]byte(line))
		if writeErr != nil {
			if errors.Is(writeErr, kekbit.ErrChannelFull) {
				fmt.Println("outbound channel is full, leaving")
				saveHistory(prompt)

				return nil
			}

			fmt.Println("send failed:", writeErr)
		}
	}
}

// tailPeer follows the peer's channel and prints every record until the
// channel exhausts or the chat ends.
func tailPeer(root string, peer uint64, stop <-chan struct{}) {
	reader, err := kekbit.OpenChannelWithRetry(root, peer, 60_000, 600)
	if err != nil {
		fmt.Printf("\rpeer %d never showed up: %v\n", peer, err)

		return
	}
	defer reader.Close()

	iter := reader.TryIter()

	for {
		select {
		case <-stop:
			return
		default:
		}

		record, ok := iter.Next()
		if ok {
			fmt.Printf("\r[%d] %s\n", peer, record)

			continue
		}

		if iter.Exhausted() != nil {
			fmt.Printf("\rpeer %d left the chat\n", peer)

			return
		}

		time.Sleep(100 * time.Millisecond)
	}
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".kek_chat_history")
}

func saveHistory(prompt *liner.State) {
	path := historyFile()
	if path == "" {
		return
	}

	f, err := os.Create(path)
	if err != nil {
		return
	}

	_, _ = prompt.WriteHistory(f)
	_ = f.Close()
}
