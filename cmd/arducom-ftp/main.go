// Command arducom-ftp is a thin client for the file-transfer command
// range a slave registers through package ftp (spec §6): it drives the
// eight FTP operations through the shared master execute engine, using
// the FTP-specific default retry count.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/arducom-go/arducom/arducomerr"
	"github.com/arducom-go/arducom/ftp"
	"github.com/arducom-go/arducom/master"
	"github.com/arducom-go/arducom/transport"
	"github.com/arducom-go/arducom/transport/serial"
	"github.com/arducom-go/arducom/transport/tcp"
)

// defaultFTPRetries is higher than the interactive tool's default
// because file transfers run many commands back to back over a link
// that may drop the occasional frame (spec §4.6).
const defaultFTPRetries = 3

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr *os.File) int {
	fs := flag.NewFlagSet("arducom-ftp", flag.ContinueOnError)
	fs.SetOutput(stderr)

	device := fs.String("d", "", "device endpoint")
	baudRate := fs.Int("b", 57600, "serial baud rate")
	base := fs.Int("base", int(ftp.DefaultBase), "FTP command range base")
	op := fs.String("op", "list", "operation: init, list, rewind, chdir, openread, readfile, closefile, delete")
	arg := fs.String("arg", "", "operation argument (path or byte count, ASCII)")
	retries := fs.Int("x", defaultFTPRetries, "retries on NO_DATA / timeout")
	timeoutMS := fs.Int("u", master.DefaultHostTimeoutMS, "per-attempt timeout, milliseconds")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 1
	}
	if *device == "" {
		fmt.Fprintln(stderr, "-d is required")
		return 1
	}

	operation, err := parseOp(*op)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	t := buildFTPTransport(*device, *baudRate)
	m := master.New(t)
	ctx := context.Background()
	if err := m.Open(ctx); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer m.Close()

	params := master.Parameters{
		Checksummed:     true,
		TimeoutMS:       *timeoutMS,
		Retries:         *retries,
		LockKeyOverride: -1,
	}

	cmd := byte(*base) + byte(operation)
	reply, info, err := m.Execute(ctx, params, cmd, []byte(*arg), transport.DefaultMaximumPayload, true)
	if err != nil {
		if aerr, ok := arducomerr.As(err); ok {
			fmt.Fprintf(stderr, "error: %s (code %d, info %d)\n", aerr.Kind, byte(aerr.Kind), aerr.Info)
			return int(aerr.Kind)
		}
		fmt.Fprintln(stderr, err)
		return 1
	}
	_ = info
	fmt.Fprintf(stdout, "%s: %s\n", operation, string(reply))
	return 0
}

func parseOp(s string) (ftp.Operation, error) {
	switch strings.ToLower(s) {
	case "init":
		return ftp.OpInit, nil
	case "list":
		return ftp.OpList, nil
	case "rewind":
		return ftp.OpRewind, nil
	case "chdir":
		return ftp.OpChdir, nil
	case "openread":
		return ftp.OpOpenRead, nil
	case "readfile":
		return ftp.OpReadFile, nil
	case "closefile":
		return ftp.OpCloseFile, nil
	case "delete":
		return ftp.OpDelete, nil
	default:
		return 0, fmt.Errorf("unknown FTP operation %q", s)
	}
}

func buildFTPTransport(device string, baudRate int) transport.Transport {
	if host, port, err := net.SplitHostPort(device); err == nil {
		if _, convErr := strconv.Atoi(port); convErr == nil {
			return tcp.NewMaster(tcp.Config{Address: net.JoinHostPort(host, port), Timeout: 5 * time.Second})
		}
	}
	return serial.New(serial.Config{Address: device, BaudRate: baudRate})
}
