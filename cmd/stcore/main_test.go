package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/born-ml/stcore/internal/serialization"
	"github.com/born-ml/stcore/internal/storage"
)

// packFixture writes two raw tensor files and a manifest into a temp dir and
// returns the manifest path and the output path.
func packFixture(t *testing.T, compression string) (string, string) {
	t.Helper()
	dir := t.TempDir()

	weight := make([]byte, 2*3*4)
	for i := range weight {
		weight[i] = byte(i)
	}
	if err := os.WriteFile(filepath.Join(dir, "weight.bin"), weight, 0o600); err != nil {
		t.Fatal(err)
	}
	// bias lives at offset 4 of a shared file.
	if err := os.WriteFile(filepath.Join(dir, "shared.bin"), []byte{9, 9, 9, 9, 1, 2, 3, 4, 5, 6, 7, 8}, 0o600); err != nil {
		t.Fatal(err)
	}

	body := `
output = "model.safetensors"
compression = "` + compression + `"
concurrency = 2

[metadata]
format = "pt"

[[tensor]]
name = "layer.weight"
dtype = "F32"
shape = [2, 3]
file = "weight.bin"

[[tensor]]
name = "layer.bias"
dtype = "F16"
shape = [4]
file = "shared.bin"
offset = 4
`
	return writeConfig(t, dir, body), filepath.Join(dir, "model.safetensors")
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestPackInspectVerifyHash(t *testing.T) {
	config, output := packFixture(t, "none")

	if code, _, stderr := runCLI(t, "pack", "-config", config); code != exitOK {
		t.Fatalf("pack exit %d: %s", code, stderr)
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	st, err := serialization.Deserialize(data)
	if err != nil {
		t.Fatalf("deserialize output: %v", err)
	}
	if got := st.Names(); len(got) != 2 || got[0] != "layer.bias" || got[1] != "layer.weight" {
		t.Fatalf("unexpected names: %v", got)
	}
	bias, err := st.Tensor("layer.bias")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(bias.Data(), []byte{1, 2, 3, 4, 5, 6, 7, 8}) {
		t.Fatalf("unexpected bias data: %v", bias.Data())
	}

	code, stdout, stderr := runCLI(t, "inspect", output)
	if code != exitOK {
		t.Fatalf("inspect exit %d: %s", code, stderr)
	}
	for _, want := range []string{"tensors: 2", "format = pt", "layer.weight", "F32", "[2, 3]", "[8, 32)"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("inspect output missing %q:\n%s", want, stdout)
		}
	}

	code, stdout, _ = runCLI(t, "inspect", "-json", output)
	if code != exitOK || !strings.HasPrefix(stdout, `{"__metadata__":{"format":"pt"},"layer.bias":`) {
		t.Fatalf("unexpected json inspect (%d): %s", code, stdout)
	}

	code, stdout, _ = runCLI(t, "verify", output)
	if code != exitOK || !strings.HasPrefix(stdout, "OK ") {
		t.Fatalf("verify exit %d: %s", code, stdout)
	}

	code, stdout, _ = runCLI(t, "hash", output)
	if code != exitOK {
		t.Fatalf("hash exit %d", code)
	}
	sum := serialization.Fingerprint(data)
	if !strings.HasPrefix(stdout, sum) {
		t.Fatalf("hash %q does not start with %s", stdout, sum)
	}

	if code, _, _ := runCLI(t, "verify", "-sha256", sum, output); code != exitOK {
		t.Fatalf("verify with matching sum exit %d", code)
	}
	if code, _, _ := runCLI(t, "verify", "-sha256", strings.Repeat("0", 64), output); code != exitInvalid {
		t.Fatalf("verify with wrong sum exit %d", code)
	}
}

func TestPackCompressedHashesLikePlain(t *testing.T) {
	plainConfig, plainOut := packFixture(t, "none")
	zstdConfig, zstdOut := packFixture(t, "zstd")

	for _, config := range []string{plainConfig, zstdConfig} {
		if code, _, stderr := runCLI(t, "pack", "-config", config); code != exitOK {
			t.Fatalf("pack exit %d: %s", code, stderr)
		}
	}

	raw, err := os.ReadFile(zstdOut)
	if err != nil {
		t.Fatal(err)
	}
	if storage.Detect(raw) != storage.CompressionZSTD {
		t.Fatalf("expected zstd framed output")
	}

	_, plainHash, _ := runCLI(t, "hash", plainOut)
	_, zstdHash, _ := runCLI(t, "hash", zstdOut)
	if strings.Fields(plainHash)[0] != strings.Fields(zstdHash)[0] {
		t.Fatalf("hash differs: %s vs %s", plainHash, zstdHash)
	}

	if code, _, stderr := runCLI(t, "verify", zstdOut); code != exitOK {
		t.Fatalf("verify compressed exit %d: %s", code, stderr)
	}
}

func TestVerifyCapsDecompressedSize(t *testing.T) {
	config, out := packFixture(t, "lz4")
	if code, _, stderr := runCLI(t, "pack", "-config", config); code != exitOK {
		t.Fatalf("pack exit %d: %s", code, stderr)
	}

	t.Setenv("STCORE_MAX_DECOMPRESSED", "16")
	code, _, stderr := runCLI(t, "verify", out)
	if code != exitError || !strings.Contains(stderr, "exceeds limit") {
		t.Fatalf("verify exit %d: %s", code, stderr)
	}

	t.Setenv("STCORE_MAX_DECOMPRESSED", "lots")
	if code, _, stderr := runCLI(t, "hash", out); code != exitError {
		t.Fatalf("hash exit %d: %s", code, stderr)
	}
}

func TestPackFailures(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "short.bin"), []byte{1, 2, 3}, 0o600); err != nil {
		t.Fatal(err)
	}
	config := writeConfig(t, dir, `
[[tensor]]
name = "w"
dtype = "F32"
shape = [2]
file = "short.bin"
`)
	code, _, stderr := runCLI(t, "pack", "-config", config)
	if code != exitError || !strings.Contains(stderr, "too short") {
		t.Fatalf("unexpected result %d: %s", code, stderr)
	}

	config = writeConfig(t, dir, `
[[tensor]]
name = "__metadata__"
dtype = "U8"
shape = [3]
file = "short.bin"
`)
	if code, _, stderr := runCLI(t, "pack", "-config", config); code != exitInvalid {
		t.Fatalf("reserved name exit %d: %s", code, stderr)
	}
}

func TestVerifyRejectsCorruptContainer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.safetensors")
	// Header claims 4 payload bytes, only 1 follows.
	header := `{"a":{"dtype":"U8","shape":[4],"data_offsets":[0,4]}}`
	buf := append([]byte{byte(len(header)), 0, 0, 0, 0, 0, 0, 0}, header...)
	buf = append(buf, 1)
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		t.Fatal(err)
	}

	code, _, stderr := runCLI(t, "verify", path)
	if code != exitInvalid {
		t.Fatalf("verify exit %d: %s", code, stderr)
	}
	if !strings.Contains(stderr, "MetadataIncompleteBuffer") {
		t.Fatalf("expected kind in log output: %s", stderr)
	}
}

func TestRunUsage(t *testing.T) {
	if code, _, _ := runCLI(t); code != exitUsage {
		t.Fatalf("no args exit %d", code)
	}
	if code, _, _ := runCLI(t, "frobnicate"); code != exitUsage {
		t.Fatalf("unknown command exit %d", code)
	}
	if code, _, _ := runCLI(t, "inspect"); code != exitUsage {
		t.Fatalf("inspect without file exit %d", code)
	}
	code, stdout, _ := runCLI(t, "version")
	if code != exitOK || !strings.Contains(stdout, version) {
		t.Fatalf("version: %d %q", code, stdout)
	}
	if code, _, _ := runCLI(t, "verify", filepath.Join(t.TempDir(), "missing")); code != exitError {
		t.Fatalf("missing file exit %d", code)
	}
}
