// Package cli provides the command plumbing shared by the kekbit command
// line tools: flag parsing, unified help output and dispatch.
package cli

import (
	"context"
	"errors"
	"strings"

	flag "github.com/spf13/pflag"
)

// Command defines a CLI command with unified help generation.
type Command struct {
	// Flags defines command-specific flags.
	// The FlagSet name is not used - command identity comes from Usage.
	Flags *flag.FlagSet

	// Usage is the freeform usage string shown after the binary name in
	// help. Includes the command name and arguments/flags.
	// Examples: "write [flags]", "stat --channel-id <id>"
	Usage string

	// Short is a one-line description for the global help listing.
	Short string

	// Long is the full description shown in command help.
	// If empty, Short is used instead.
	Long string

	// Exec runs the command after flags are parsed.
	Exec func(ctx context.Context, o *IO, args []string) error
}

// Name returns the command name (first word of Usage).
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")
	return name
}

// PrintHelp prints the full help output for "<app> <cmd> --help".
func (c *Command) PrintHelp(o *IO, appName string) {
	o.Println("Usage:", appName, c.Usage)
	o.Println()

	desc := c.Long
	if desc == "" {
		desc = c.Short
	}

	o.Println(desc)

	if c.Flags != nil && c.Flags.HasFlags() {
		o.Println()
		o.Println("Flags:")

		var buf strings.Builder
		c.Flags.SetOutput(&buf)
		c.Flags.PrintDefaults()
		o.Printf("%s", buf.String())
	}
}

// Run parses flags and executes the command. Returns exit code.
// Handles error printing internally for consistent output ordering.
func (c *Command) Run(ctx context.Context, o *IO, appName string, args []string) int {
	c.Flags.SetOutput(&strings.Builder{}) // discard pflag output

	err := c.Flags.Parse(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			c.PrintHelp(o, appName)
			return 0
		}

		o.ErrPrintln("error:", err)
		o.ErrPrintln()
		c.PrintHelp(o, appName)

		return 1
	}

	if err := c.Exec(ctx, o, c.Flags.Args()); err != nil {
		o.ErrPrintln("error:", err)
		return 1
	}

	return 0
}

// App dispatches an argument vector to its registered commands.
type App struct {
	// Name is the binary name shown in help output.
	Name string

	// Short is the one-line application description.
	Short string

	// Commands in help-listing order.
	Commands []*Command
}

// Run dispatches args (without the binary name) and returns the exit code.
func (a *App) Run(ctx context.Context, o *IO, args []string) int {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" || args[0] == "-h" {
		a.printHelp(o)

		return 0
	}

	name := args[0]

	for _, cmd := range a.Commands {
		if cmd.Name() == name {
			return cmd.Run(ctx, o, a.Name, args[1:])
		}
	}

	o.ErrPrintln("error: unknown command", name)
	o.ErrPrintln()
	a.printHelp(o)

	return 1
}

func (a *App) printHelp(o *IO) {
	o.Println(a.Short)
	o.Println()
	o.Println("Usage:", a.Name, "<command> [flags]")
	o.Println()
	o.Println("Commands:")

	// Column width follows the registered commands, so the listing stays
	// aligned no matter how verbose a Usage string gets.
	width := 0

	for _, cmd := range a.Commands {
		if len(cmd.Usage) > width {
			width = len(cmd.Usage)
		}
	}

	for _, cmd := range a.Commands {
		o.Printf("  %-*s  %s\n", width, cmd.Usage, cmd.Short)
	}
}
