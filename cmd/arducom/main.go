// Command arducom is the reference host tool (spec §6): it sends one
// command to an Arducom slave over serial, I²C, or TCP and prints the
// reply, exiting with the slave/master error code on failure so shell
// scripts can branch on it directly.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/arducom-go/arducom/arducomerr"
	"github.com/arducom-go/arducom/master"
	"github.com/arducom-go/arducom/transport"
	"github.com/arducom-go/arducom/transport/i2cbus"
	"github.com/arducom-go/arducom/transport/serial"
	"github.com/arducom-go/arducom/transport/tcp"
)

const version = "arducom-go 1.0"

var (
	usbSerialLike = regexp.MustCompile(`^(/dev/tty|/dev/rfcomm|COM)`)
	i2cLike       = regexp.MustCompile(`^/dev/i2c`)
)

type config struct {
	device      string
	transportID string
	baud        int
	address     string // i2c address (hex) or tcp port
	command     int
	expected    int
	payloadArg  string
	fromStdin   bool
	inFormat    string
	outFormat   string
	sep         string
	sepIn       string
	sepOut      string
	noChecksum  bool
	timeoutMS   int
	delayMS     int
	retries     int
	lockKey     int64
	initDelayMS int
	noNewline   bool
	noInterpret bool
	verbose     bool
	veryVerbose bool
	showVersion bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr *os.File) int {
	cfg, err := parseFlags(args, stderr)
	if err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		fmt.Fprintln(stderr, err)
		return 1
	}
	if cfg.showVersion {
		fmt.Fprintln(stdout, version)
		return 0
	}

	logger := newLogger(stderr, cfg.verbose, cfg.veryVerbose)

	t, lockOverride, err := buildTransport(cfg)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	m := master.New(t)
	m.SetLogger(logger)
	ctx := context.Background()
	if err := m.Open(ctx); err != nil {
		fmt.Fprintln(stderr, err)
		return exitCodeFor(err)
	}
	defer m.Close()

	inFmt, err := parseFormat(cfg.inFormat)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	outFmt, err := parseFormat(cfg.outFormat)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	payload, err := buildPayload(cfg, inFmt)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	params := master.Parameters{
		Checksummed:     !cfg.noChecksum,
		DelayMS:         cfg.delayMS,
		TimeoutMS:       cfg.timeoutMS,
		Retries:         cfg.retries,
		Verbose:         cfg.verbose,
		VeryVerbose:     cfg.veryVerbose,
		LockKeyOverride: lockOverride,
	}

	logger.Debug("executing command", "command", cfg.command, "payloadLen", len(payload))

	reply, info, err := m.Execute(ctx, params, byte(cfg.command), payload, cfg.expected, true)
	if err != nil {
		if aerr, ok := arducomerr.As(err); ok {
			fmt.Fprintf(stderr, "error: %s (code %d, info %d)\n", aerr.Kind, byte(aerr.Kind), aerr.Info)
		} else {
			fmt.Fprintln(stderr, err)
		}
		_ = info
		return exitCodeFor(err)
	}

	text, err := decodePayload(outFmt, reply, cfg.sepOut)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if cfg.noNewline {
		fmt.Fprint(stdout, text)
	} else {
		fmt.Fprintln(stdout, text)
	}
	return 0
}

func newLogger(w *os.File, verbose, veryVerbose bool) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case veryVerbose:
		level = slog.LevelDebug
	case verbose:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// exitCodeFor implements the exit-code-equals-last-error-code contract
// (spec §6): the process exit status mirrors the failing Kind's byte
// value so scripts can branch on it the same way they would on a wire
// error reply.
func exitCodeFor(err error) int {
	if aerr, ok := arducomerr.As(err); ok {
		return int(aerr.Kind)
	}
	return 1
}

func parseFlags(args []string, stderr *os.File) (config, error) {
	var cfg config
	fs := flag.NewFlagSet("arducom", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&cfg.device, "d", "", "device endpoint: serial path, /dev/i2cN, or host[:port]")
	fs.StringVar(&cfg.transportID, "t", "", "transport override: serial, i2c, or tcpip (default: auto-detect from -d)")
	fs.IntVar(&cfg.baud, "b", 57600, "serial baud rate")
	fs.StringVar(&cfg.address, "a", "", "I2C address (hex) or TCP port")
	fs.IntVar(&cfg.command, "c", -1, "command code (required)")
	fs.IntVar(&cfg.expected, "e", transport.DefaultMaximumPayload, "expected reply length")
	fs.StringVar(&cfg.payloadArg, "p", "", "payload, interpreted per -i")
	fs.BoolVar(&cfg.fromStdin, "r", false, "read payload from stdin instead of -p")
	fs.StringVar(&cfg.inFormat, "i", "Hex", "payload input format: Hex, Raw, Bin, Byte, Int16, Int32, Int64, Float")
	fs.StringVar(&cfg.outFormat, "o", "Hex", "reply output format: Hex, Raw, Bin, Byte, Int16, Int32, Int64, Float")
	fs.StringVar(&cfg.sep, "s", " ", "separator for multi-value input and output formats")
	fs.StringVar(&cfg.sepIn, "si", "", "separator override for input (defaults to -s)")
	fs.StringVar(&cfg.sepOut, "so", "", "separator override for output (defaults to -s)")
	fs.BoolVar(&cfg.noChecksum, "n", false, "disable checksums")
	fs.IntVar(&cfg.timeoutMS, "u", master.DefaultHostTimeoutMS, "per-attempt timeout, milliseconds")
	fs.IntVar(&cfg.delayMS, "l", 0, "delay before polling for a reply, milliseconds")
	fs.IntVar(&cfg.retries, "x", 0, "retries on NO_DATA / timeout")
	lockKey := fs.Int64("k", -1, "interprocess lock key override (-1: unset, 0: no locking)")
	fs.IntVar(&cfg.initDelayMS, "initDelay", 0, "override the transport init delay, milliseconds")
	fs.BoolVar(&cfg.noNewline, "no-newline", false, "don't print a trailing newline after the reply")
	fs.BoolVar(&cfg.noInterpret, "no-interpret", false, "print the reply as raw hex, ignoring -o")
	fs.BoolVar(&cfg.verbose, "v", false, "verbose logging")
	fs.BoolVar(&cfg.veryVerbose, "vv", false, "very verbose logging")
	fs.BoolVar(&cfg.showVersion, "version", false, "print the version and exit")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	cfg.lockKey = *lockKey

	if cfg.noInterpret {
		cfg.outFormat = "Hex"
	}
	if cfg.sepIn == "" {
		cfg.sepIn = cfg.sep
	}
	if cfg.sepOut == "" {
		cfg.sepOut = cfg.sep
	}
	if cfg.device == "" {
		return cfg, fmt.Errorf("-d is required")
	}
	if cfg.command < 0 || cfg.command > 255 {
		return cfg, fmt.Errorf("-c is required and must be 0-255")
	}
	return cfg, nil
}

// detectTransport implements the endpoint auto-detect rules (spec §6):
// serial-looking device paths (and Windows COM ports) go to serial,
// /dev/i2c* paths go to I2C, and an IP address literal, with or without
// a :port suffix, goes to TCP. Anything else, host names included, falls
// back to serial.
func detectTransport(device string) string {
	switch {
	case i2cLike.MatchString(device):
		return "i2c"
	case usbSerialLike.MatchString(device):
		return "serial"
	}
	host := device
	if h, _, err := net.SplitHostPort(device); err == nil {
		host = h
	}
	if net.ParseIP(host) != nil {
		return "tcpip"
	}
	return "serial"
}

func buildTransport(cfg config) (transport.Transport, int64, error) {
	id := cfg.transportID
	if id == "" {
		id = detectTransport(cfg.device)
	}

	var lockOverride *uint32
	if cfg.lockKey >= 0 {
		v := uint32(cfg.lockKey)
		lockOverride = &v
	}

	switch strings.ToLower(id) {
	case "serial":
		return serial.New(serial.Config{
			Address:         cfg.device,
			BaudRate:        cfg.baud,
			InitDelay:       time.Duration(cfg.initDelayMS) * time.Millisecond,
			LockKeyOverride: lockOverride,
		}), cfg.lockKey, nil

	case "i2c":
		addr, err := strconv.ParseUint(strings.TrimPrefix(cfg.address, "0x"), 16, 16)
		if err != nil {
			return nil, 0, fmt.Errorf("invalid I2C address %q: %w", cfg.address, err)
		}
		return i2cbus.NewMaster(i2cbus.Config{
			BusName:         cfg.device,
			Address:         uint16(addr),
			LockKeyOverride: lockOverride,
		}), cfg.lockKey, nil

	case "tcpip":
		addr := cfg.device
		if cfg.address != "" {
			addr = net.JoinHostPort(cfg.device, cfg.address)
		} else if _, _, err := net.SplitHostPort(addr); err != nil {
			addr = net.JoinHostPort(cfg.device, strconv.Itoa(tcp.DefaultPort))
		}
		return tcp.NewMaster(tcp.Config{
			Address:         addr,
			Timeout:         time.Duration(cfg.timeoutMS) * time.Millisecond,
			LockKeyOverride: lockOverride,
		}), cfg.lockKey, nil

	default:
		return nil, 0, fmt.Errorf("unknown transport %q", id)
	}
}

func buildPayload(cfg config, inFmt format) ([]byte, error) {
	if cfg.fromStdin {
		var line string
		if _, err := fmt.Fscanln(os.Stdin, &line); err != nil {
			return nil, fmt.Errorf("reading payload from stdin: %w", err)
		}
		return encodePayload(inFmt, line, cfg.sepIn)
	}
	if cfg.payloadArg == "" {
		return nil, nil
	}
	return encodePayload(inFmt, cfg.payloadArg, cfg.sepIn)
}
