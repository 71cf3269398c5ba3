package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/calvinalkan/kekbit/internal/cli"
	"github.com/calvinalkan/kekbit/pkg/fs"
	"github.com/calvinalkan/kekbit/pkg/kekbit"

	flag "github.com/spf13/pflag"
)

// profileFlags binds the channel profile to a command's flag set. Flags that
// the user actually set override the values loaded from the profile file.
type profileFlags struct {
	flags *flag.FlagSet

	config    string
	root      string
	writerID  uint64
	channelID uint64
	capacity  uint32
	maxMsgLen uint32
	timeout   uint64
	tick      string
}

func bindProfileFlags(flags *flag.FlagSet) *profileFlags {
	p := &profileFlags{flags: flags}

	flags.StringVarP(&p.config, "config", "c", ProfileFileName, "channel profile file")
	flags.StringVar(&p.root, "root", "", "root directory for channel storage")
	flags.Uint64Var(&p.writerID, "writer-id", 0, "producer identifier")
	flags.Uint64Var(&p.channelID, "channel-id", 0, "channel identifier")
	flags.Uint32Var(&p.capacity, "capacity", 0, "channel capacity hint in bytes")
	flags.Uint32Var(&p.maxMsgLen, "max-msg-len", 0, "maximum message length hint in bytes")
	flags.Uint64Var(&p.timeout, "timeout", 0, "producer inactivity timeout in tick units")
	flags.StringVar(&p.tick, "tick", "", "tick unit: nanos, micros, millis or secs")

	return p
}

// resolve loads the profile file and applies flag overrides.
func (p *profileFlags) resolve(fsys fs.FS) (Profile, error) {
	profile, err := LoadProfile(fsys, p.config)
	if err != nil {
		return Profile{}, err
	}

	if p.flags.Changed("root") {
		profile.Root = p.root
	}

	if p.flags.Changed("writer-id") {
		profile.WriterID = p.writerID
	}

	if p.flags.Changed("channel-id") {
		profile.ChannelID = p.channelID
	}

	if p.flags.Changed("capacity") {
		profile.Capacity = p.capacity
	}

	if p.flags.Changed("max-msg-len") {
		profile.MaxMsgLen = p.maxMsgLen
	}

	if p.flags.Changed("timeout") {
		profile.Timeout = p.timeout
	}

	if p.flags.Changed("tick") {
		profile.TickUnit = p.tick
	}

	return profile, nil
}

func initCommand() *cli.Command {
	flags := flag.NewFlagSet("init", flag.ContinueOnError)
	config := flags.StringP("config", "c", ProfileFileName, "profile file to create")
	force := flags.Bool("force", false, "overwrite an existing profile")

	return &cli.Command{
		Flags: flags,
		Usage: "init [flags]",
		Short: "write a default channel profile",
		Exec: func(_ context.Context, o *cli.IO, _ []string) error {
			fsys := fs.NewReal()

			if !*force {
				exists, err := fsys.Exists(*config)
				if err != nil {
					return err
				}

				if exists {
					return fmt.Errorf("%s already exists (use --force to overwrite)", *config)
				}
			}

			if err := SaveProfile(fsys, *config, DefaultProfile()); err != nil {
				return err
			}

			o.Println("wrote", *config)

			return nil
		},
	}
}

func createCommand() *cli.Command {
	flags := flag.NewFlagSet("create", flag.ContinueOnError)
	profile := bindProfileFlags(flags)

	return &cli.Command{
		Flags: flags,
		Usage: "create [flags]",
		Short: "create a channel and print its effective geometry",
		Long: "create materializes the channel described by the profile without\n" +
			"feeding it any records, then closes it. Capacity and max message\n" +
			"length are printed as stored, after hint clamping. Use write to\n" +
			"create and feed a channel in one step.",
		Exec: func(_ context.Context, o *cli.IO, _ []string) error {
			cfg, err := profile.resolve(fs.NewReal())
			if err != nil {
				return err
			}

			meta, err := cfg.metadata()
			if err != nil {
				return err
			}

			writer, err := kekbit.CreateChannel(cfg.Root, meta, kekbit.EncoderHandler{})
			if err != nil {
				return err
			}

			o.Println("path:       ", kekbit.StoragePath(cfg.Root, meta.ChannelID()))
			o.Println("capacity:   ", meta.Capacity())
			o.Println("max msg len:", meta.MaxMsgLen())

			return writer.Close()
		},
	}
}

func writeCommand() *cli.Command {
	flags := flag.NewFlagSet("write", flag.ContinueOnError)
	profile := bindProfileFlags(flags)
	withTimestamp := flags.Bool("timestamp", false, "prefix records with a wall-clock timestamp")
	withSequence := flags.Bool("seq", false, "prefix records with a sequence number")

	return &cli.Command{
		Flags: flags,
		Usage: "write [flags]",
		Short: "create a channel and append stdin lines as records",
		Long: "write creates the channel described by the profile and appends one\n" +
			"record per stdin line until EOF, then closes the channel.",
		Exec: func(ctx context.Context, o *cli.IO, _ []string) error {
			cfg, err := profile.resolve(fs.NewReal())
			if err != nil {
				return err
			}

			meta, err := cfg.metadata()
			if err != nil {
				return err
			}

			var pipeline kekbit.Handler = kekbit.EncoderHandler{}

			if *withSequence {
				pipeline = kekbit.Link(pipeline, kekbit.NewSequenceHandler())
			}

			if *withTimestamp {
				pipeline = kekbit.Link(pipeline, kekbit.NewTimestampHandler(meta.TickUnit()))
			}

			writer, err := kekbit.CreateChannel(cfg.Root, meta, pipeline)
			if err != nil {
				return err
			}
			defer writer.Close()

			o.ErrPrintln("channel ready at", kekbit.StoragePath(cfg.Root, meta.ChannelID()))

			scanner := bufio.NewScanner(os.Stdin)

			for scanner.Scan() {
				if ctx.Err() != nil {
					break
				}

				_, writeErr := writer.Write(scanner.Bytes())
				if writeErr == nil {
					continue
				}

				if errors.Is(writeErr, kekbit.ErrNoSpaceForRecord) {
					o.ErrPrintln("skipped: record too large:", writeErr)

					continue
				}

				return writeErr
			}

			return scanner.Err()
		},
	}
}

func readCommand() *cli.Command {
	flags := flag.NewFlagSet("read", flag.ContinueOnError)
	profile := bindProfileFlags(flags)
	waitMillis := flags.Uint64("wait-ms", 5000, "how long to retry opening the channel")
	tries := flags.Uint64("tries", 50, "open attempts within the wait window")
	withTimeout := flags.Bool("with-timeout", false, "stop after producer inactivity exceeds the channel timeout")

	return &cli.Command{
		Flags: flags,
		Usage: "read [flags]",
		Short: "follow a channel and print each record",
		Exec: func(ctx context.Context, o *cli.IO, _ []string) error {
			cfg, err := profile.resolve(fs.NewReal())
			if err != nil {
				return err
			}

			shmReader, err := kekbit.OpenChannelWithRetry(cfg.Root, cfg.ChannelID, *waitMillis, *tries)
			if err != nil {
				return err
			}
			defer shmReader.Close()

			var reader kekbit.Reader = shmReader

			if *withTimeout {
				reader = kekbit.WithTimeout(shmReader)
			}

			iter := kekbit.NewTryIter(reader)

			for ctx.Err() == nil {
				record, ok := iter.Next()
				if ok {
					o.Printf("%s\n", record)

					continue
				}

				exhausted := iter.Exhausted()
				if exhausted == nil {
					time.Sleep(50 * time.Millisecond)

					continue
				}

				if errors.Is(exhausted, kekbit.ErrClosed) {
					o.ErrPrintln("channel closed by producer")

					return nil
				}

				return exhausted
			}

			return nil
		},
	}
}

func statCommand() *cli.Command {
	flags := flag.NewFlagSet("stat", flag.ContinueOnError)
	profile := bindProfileFlags(flags)

	return &cli.Command{
		Flags: flags,
		Usage: "stat [flags]",
		Short: "print a channel's metadata",
		Exec: func(_ context.Context, o *cli.IO, _ []string) error {
			cfg, err := profile.resolve(fs.NewReal())
			if err != nil {
				return err
			}

			reader, err := kekbit.OpenChannel(cfg.Root, cfg.ChannelID)
			if err != nil {
				return err
			}
			defer reader.Close()

			meta := reader.Metadata()

			o.Println("path:          ", kekbit.StoragePath(cfg.Root, cfg.ChannelID))
			o.Println("version:       ", meta.Version())
			o.Println("writer id:     ", meta.WriterID())
			o.Println("channel id:    ", meta.ChannelID())
			o.Println("capacity:      ", meta.Capacity())
			o.Println("max msg len:   ", meta.MaxMsgLen())
			o.Printf("timeout:        %d %s\n", meta.Timeout(), meta.TickUnit())
			o.Printf("created:        %d %s since epoch\n", meta.CreationTime(), meta.TickUnit())

			return nil
		},
	}
}

func pathCommand() *cli.Command {
	flags := flag.NewFlagSet("path", flag.ContinueOnError)
	profile := bindProfileFlags(flags)

	return &cli.Command{
		Flags: flags,
		Usage: "path [flags]",
		Short: "print the storage path for a channel id",
		Exec: func(_ context.Context, o *cli.IO, _ []string) error {
			cfg, err := profile.resolve(fs.NewReal())
			if err != nil {
				return err
			}

			o.Println(kekbit.StoragePath(cfg.Root, cfg.ChannelID))

			return nil
		},
	}
}
