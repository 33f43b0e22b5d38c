package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/born-ml/stcore/internal/serialization"
	"github.com/rs/zerolog"
)

var errChecksumMismatch = errors.New("checksum mismatch")

func runInspect(ctx context.Context, target string, asJSON bool, stdout io.Writer, logger zerolog.Logger) error {
	c, err := openContainer(ctx, target, logger)
	if err != nil {
		return err
	}
	defer func() { _ = c.close() }()

	h := c.st.Header()
	if asJSON {
		header, err := serialization.EncodeHeader(&h)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(stdout, "%s\n", header)
		return err
	}

	return printHeader(stdout, h, len(c.raw))
}

func printHeader(w io.Writer, h serialization.Header, total int) error {
	fmt.Fprintf(w, "tensors: %d  payload: %d bytes  file: %d bytes\n",
		len(h.Tensors), h.PayloadSize(), total)

	if h.Metadata != nil {
		keys := make([]string, 0, len(h.Metadata))
		for k := range h.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintln(w, "metadata:")
		for _, k := range keys {
			fmt.Fprintf(w, "  %s = %s\n", k, h.Metadata[k])
		}
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDTYPE\tSHAPE\tOFFSETS\tBYTES")
	for _, t := range h.Tensors {
		fmt.Fprintf(tw, "%s\t%s\t%s\t[%d, %d)\t%d\n",
			t.Name, t.Info.DType, formatShape(t.Info.Shape),
			t.Info.DataOffsets[0], t.Info.DataOffsets[1], t.Info.Size())
	}
	return tw.Flush()
}

func formatShape(shape []uint64) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = fmt.Sprint(d)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func runVerify(ctx context.Context, target, wantSum string, stdout io.Writer, logger zerolog.Logger) error {
	c, err := openContainer(ctx, target, logger)
	if err != nil {
		logger.Error().Str("file", target).Str("kind", serialization.KindOf(err).String()).Msg("invalid container")
		return err
	}
	defer func() { _ = c.close() }()

	// Touch every tensor so view construction is checked too.
	views, err := c.st.Tensors()
	if err != nil {
		return err
	}

	sum := serialization.Fingerprint(c.raw)
	if wantSum != "" && !strings.EqualFold(strings.TrimSpace(wantSum), sum) {
		return fmt.Errorf("%w: got %s, want %s", errChecksumMismatch, sum, wantSum)
	}

	logger.Debug().Str("file", target).Int("tensors", len(views)).Str("sha256", sum).Msg("verified")
	_, err = fmt.Fprintf(stdout, "OK %s (%d tensors)\n", target, len(views))
	return err
}

// runHash prints the SHA-256 of the decompressed container, so the same
// content hashes equally whatever framing it is stored with.
func runHash(ctx context.Context, target string, stdout io.Writer, logger zerolog.Logger) error {
	data, err := fetch(ctx, target)
	if err != nil {
		return fmt.Errorf("read %s: %w", target, err)
	}
	logger.Debug().Str("file", target).Int("bytes", len(data)).Msg("hashing")
	_, err = fmt.Fprintf(stdout, "%s  %s\n", serialization.Fingerprint(data), target)
	return err
}
