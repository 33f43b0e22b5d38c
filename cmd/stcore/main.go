// Package main provides the stcore CLI for building and checking
// safetensors containers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/born-ml/stcore/internal/serialization"
)

const version = "v0.1.0"

// Exit codes. Validation failures are distinct from usage and I/O errors so
// scripts can tell a bad container from a bad invocation.
const (
	exitOK      = 0
	exitError   = 1
	exitUsage   = 2
	exitInvalid = 3
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "stcore %s - safetensors container tool\n\n", version)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  version                     Show version")
	fmt.Fprintln(w, "  pack -config pack.toml      Build a container from raw tensor files")
	fmt.Fprintln(w, "  inspect [-json] FILE        Print the header")
	fmt.Fprintln(w, "  verify [-sha256 HEX] FILE   Validate a container")
	fmt.Fprintln(w, "  hash FILE                   Print the SHA-256 of the container")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "FILE may be a local path or s3://bucket/key (MinIO settings from STCORE_MINIO_* env).")
	fmt.Fprintln(w, "Compressed (zstd, lz4) containers are detected and decompressed.")
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return exitUsage
	}

	cmd, rest := args[0], args[1:]
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	verbose := fs.Bool("v", false, "debug logging")

	var err error
	switch cmd {
	case "version":
		fmt.Fprintf(stdout, "stcore %s\n", version)
		return exitOK

	case "pack":
		configPath := fs.String("config", "pack.toml", "pack manifest")
		if fs.Parse(rest) != nil {
			return exitUsage
		}
		logger := newLogger(stderr, *verbose)
		err = runPack(ctx, *configPath, logger)

	case "inspect":
		asJSON := fs.Bool("json", false, "print the raw JSON header")
		if fs.Parse(rest) != nil || fs.NArg() != 1 {
			fmt.Fprintln(stderr, "usage: stcore inspect [-json] FILE")
			return exitUsage
		}
		logger := newLogger(stderr, *verbose)
		err = runInspect(ctx, fs.Arg(0), *asJSON, stdout, logger)

	case "verify":
		sum := fs.String("sha256", "", "expected hex SHA-256 of the container")
		if fs.Parse(rest) != nil || fs.NArg() != 1 {
			fmt.Fprintln(stderr, "usage: stcore verify [-sha256 HEX] FILE")
			return exitUsage
		}
		logger := newLogger(stderr, *verbose)
		err = runVerify(ctx, fs.Arg(0), *sum, stdout, logger)

	case "hash":
		if fs.Parse(rest) != nil || fs.NArg() != 1 {
			fmt.Fprintln(stderr, "usage: stcore hash FILE")
			return exitUsage
		}
		logger := newLogger(stderr, *verbose)
		err = runHash(ctx, fs.Arg(0), stdout, logger)

	case "help", "-h", "--help":
		usage(stdout)
		return exitOK

	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", cmd)
		usage(stderr)
		return exitUsage
	}

	if err == nil {
		return exitOK
	}
	fmt.Fprintf(stderr, "stcore %s: %v\n", cmd, err)
	if errors.Is(err, errChecksumMismatch) {
		return exitInvalid
	}
	if kind := serialization.KindOf(err); kind.Valid() && kind != serialization.KindIoError {
		return exitInvalid
	}
	return exitError
}
