package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/google/shlex"

	"xlr8rc/core"
	"xlr8rc/host/config"
)

var (
	configPath = flag.String("config", "", "JSON config file")
	backend    = flag.String("backend", "", "Backend: serial or soft (overrides config)")
	device     = flag.String("device", "", "Serial device path (overrides config)")
	baud       = flag.Int("baud", 0, "Baud rate (overrides config)")
	debug      = flag.Bool("debug", false, "Enable debug output")
)

var errQuit = errors.New("quit")

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if cfg.Debug {
		core.SetDebugWriter(func(s string) { log.Print(s) })
		core.SetDebugEnabled(true)
	}

	fmt.Println("RC Host - XLR8 RC receiver console")
	fmt.Println("==================================")
	fmt.Println()

	if cfg.Backend == config.BackendSerial {
		fmt.Printf("Connecting to receiver on %s at %d baud...\n", cfg.Device, cfg.Baud)
	} else {
		fmt.Printf("Using GPIO lines %v on %s...\n", cfg.Lines, cfg.Chip)
	}
	rx, err := openReceiver(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer rx.Close()

	fmt.Println("Connected successfully!")
	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")

	sh := &shell{
		rx:   rx,
		out:  os.Stdout,
		poll: time.Duration(cfg.PollInterval) * time.Millisecond,
	}
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		if err := sh.exec(scanner.Text()); err != nil {
			if err == errQuit {
				fmt.Println("Goodbye!")
				return
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig merges the config file and command line flags
func loadConfig() (*config.HostConfig, error) {
	cfg := config.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadConfigFile(*configPath); err != nil {
			return nil, err
		}
	}

	if *backend != "" {
		cfg.Backend = *backend
	}
	if *device != "" {
		cfg.Device = *device
	}
	if *baud != 0 {
		cfg.Baud = *baud
	}
	if *debug {
		cfg.Debug = true
	}
	return cfg, cfg.Validate()
}

// shell runs console commands against a receiver
type shell struct {
	rx   receiver
	out  io.Writer
	poll time.Duration
}

// exec runs one input line. Returns errQuit on quit.
func (s *shell) exec(line string) error {
	args, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	if len(args) == 0 {
		return nil
	}

	cmd, args := args[0], args[1:]
	switch cmd {
	case "quit", "exit", "q":
		return errQuit

	case "help", "?":
		s.printHelp()

	case "alloc":
		n, err := s.rx.Alloc()
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "channel %d allocated\n", n)

	case "enable", "disable":
		n, err := channelArg(cmd, args)
		if err != nil {
			return err
		}
		if cmd == "enable" {
			err = s.rx.Enable(n)
		} else {
			err = s.rx.Disable(n)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "channel %d %sd\n", n, cmd)

	case "read":
		n, err := channelArg(cmd, args)
		if err != nil {
			return err
		}
		return s.read(n)

	case "watch":
		if len(args) != 2 {
			return fmt.Errorf("usage: watch CHANNEL COUNT")
		}
		n, err := channelArg(cmd, args[:1])
		if err != nil {
			return err
		}
		count, err := strconv.Atoi(args[1])
		if err != nil || count <= 0 {
			return fmt.Errorf("watch: invalid count %q", args[1])
		}
		for i := 0; i < count; i++ {
			if i > 0 {
				time.Sleep(s.poll)
			}
			if err := s.read(n); err != nil {
				return err
			}
		}

	case "status":
		status, err := s.rx.Status()
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "%d of %d channels allocated\n", status.Allocated, status.Capacity)

	default:
		return fmt.Errorf("unknown command: %s (type 'help' for available commands)", cmd)
	}
	return nil
}

func (s *shell) read(n uint8) error {
	state, err := s.rx.Read(n)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "channel %d: %v (enabled=%v)\n", n, core.PulseMicros(state.Pulse), state.Enabled)
	return nil
}

func (s *shell) printHelp() {
	fmt.Fprintln(s.out, "\nAvailable commands:")
	fmt.Fprintln(s.out, "  help                 - Show this help message")
	fmt.Fprintln(s.out, "  alloc                - Allocate the next receiver channel")
	fmt.Fprintln(s.out, "  enable N             - Arm channel N")
	fmt.Fprintln(s.out, "  disable N            - Disarm channel N")
	fmt.Fprintln(s.out, "  read N               - Read channel N's pulse width")
	fmt.Fprintln(s.out, "  watch N COUNT        - Read channel N COUNT times")
	fmt.Fprintln(s.out, "  status               - Show slot usage")
	fmt.Fprintln(s.out, "  quit/exit/q          - Exit the program")
	fmt.Fprintln(s.out)
}

// channelArg parses the single channel number argument
func channelArg(cmd string, args []string) (uint8, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("usage: %s CHANNEL", cmd)
	}
	n, err := strconv.ParseUint(args[0], 10, 8)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid channel %q", cmd, args[0])
	}
	return uint8(n), nil
}
