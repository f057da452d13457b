package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/anykernel/bootprep/magiskboot/magiskboottest"
	"github.com/fatih/color"
	"github.com/klauspost/compress/zip"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rawKernel = "kernel kernel kernel kernel kernel kernel kernel kernel"

func TestMain(m *testing.M) {
	magiskboottest.Main()
	color.NoColor = true
	os.Exit(m.Run())
}

type result struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	t.Logf("bootprep %s -> %d\n%s%s", strings.Join(args, " "), code, stdout.String(), stderr.String())
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func writeZip(t *testing.T, path string, members map[string][]byte) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, data := range members {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

func lz4Legacy(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	require.NoError(t, w.Apply(lz4.LegacyOption(true)))
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func akZip(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ak3.zip")
	writeZip(t, path, map[string][]byte{
		"Image.lz4":    lz4Legacy(t, []byte(rawKernel)),
		"dtb":          []byte("device trees"),
		"anykernel.sh": []byte("#!/sbin/sh\n"),
	})
	return path
}

func TestPrebuilt(t *testing.T) {
	tool := magiskboottest.Install(t)
	out := filepath.Join(t.TempDir(), "prebuilt")

	r := runCLI(t, "--magiskboot", tool, "prebuilt", "--zip", akZip(t), "--out", out)
	require.Equal(t, 0, r.code)
	for _, name := range []string{"Image", "Image.lz4", "Image.gz", "dtb.img"} {
		assert.FileExists(t, filepath.Join(out, name))
		assert.Contains(t, r.stdout, filepath.Join(out, name))
	}

	data, err := os.ReadFile(filepath.Join(out, "Image"))
	require.NoError(t, err)
	assert.Equal(t, rawKernel, string(data))
}

func TestPrebuiltNativeCodec(t *testing.T) {
	out := filepath.Join(t.TempDir(), "prebuilt")

	r := runCLI(t, "--magiskboot", magiskboottest.Install(t), "--codec", "native", "prebuilt", "--zip", akZip(t), "--out", out)
	require.Equal(t, 0, r.code)
	assert.FileExists(t, filepath.Join(out, "Image.lz4"))
}

func TestMissingToolLeavesNoOutput(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")

	r := runCLI(t, "--magiskboot", filepath.Join(dir, "magiskboot"), "prebuilt", "--zip", akZip(t), "--out", out)
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, "External tool not found")
	assert.NoDirExists(t, out)
}

func TestWorkspaceRemoved(t *testing.T) {
	tool := magiskboottest.Install(t)
	zip := akZip(t)
	dir := t.TempDir()
	tmp := isolateTemp(t)

	r := runCLI(t, "--magiskboot", tool, "prebuilt", "--zip", zip, "--out", filepath.Join(dir, "ok"))
	require.Equal(t, 0, r.code)
	emptyDir(t, tmp)

	r = runCLI(t, "--magiskboot", filepath.Join(dir, "magiskboot"), "prebuilt", "--zip", zip, "--out", filepath.Join(dir, "missing"))
	require.Equal(t, 1, r.code)
	emptyDir(t, tmp)
}

func TestPrebuiltStockOnly(t *testing.T) {
	stock := t.TempDir()
	magiskboottest.WriteImage(t, filepath.Join(stock, "boot.img"), map[string][]byte{"kernel": []byte(rawKernel)})
	magiskboottest.WriteImage(t, filepath.Join(stock, "vendor_kernel_boot.img"), map[string][]byte{
		"dtb": []byte("stock dtb"),
		"ramdisk.cpio": magiskboottest.Cpio(t, map[string][]byte{
			"lib/modules/a.ko":         []byte("module a"),
			"lib/modules/modules.load": []byte("a.ko\n"),
		}),
	})
	require.NoError(t, os.WriteFile(filepath.Join(stock, "dtbo.img"), []byte("stock dtbo"), 0644))
	out := filepath.Join(t.TempDir(), "prebuilt")

	r := runCLI(t, "--magiskboot", magiskboottest.Install(t), "prebuilt", "--stock", stock, "--out", out)
	require.Equal(t, 0, r.code)
	for _, name := range []string{"Image", "Image.lz4", "dtb", "dtb.img", "dtbo", "a.ko", "vendor_kernel_boot.modules.load"} {
		assert.Contains(t, r.stdout, "wrote   "+filepath.Join(out, name))
	}
	assert.Contains(t, r.stdout, "copied  "+filepath.Join(out, "boot.img"))
	assert.Contains(t, r.stderr, "written, 2 copied, 0 skipped")
}

func TestMissingArgument(t *testing.T) {
	tool := magiskboottest.Install(t)

	r := runCLI(t, "--magiskboot", tool, "prebuilt", "--out", t.TempDir())
	assert.Equal(t, 1, r.code)

	r = runCLI(t, "--magiskboot", tool, "repack", "--out", t.TempDir())
	assert.Equal(t, 1, r.code)
}

func TestPrebuiltMissingArchive(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")

	r := runCLI(t, "--magiskboot", magiskboottest.Install(t), "prebuilt", "--zip", filepath.Join(dir, "nope.zip"), "--out", out)
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, "Archive not found")
	assert.NoDirExists(t, out)
}

func TestRepackNothingToDo(t *testing.T) {
	in := t.TempDir()
	magiskboottest.WriteImage(t, filepath.Join(in, "boot.img"), map[string][]byte{"kernel": []byte("stock")})
	out := filepath.Join(t.TempDir(), "out")

	r := runCLI(t, "--magiskboot", magiskboottest.Install(t), "repack", "--input", in, "--out", out)
	assert.Equal(t, 0, r.code)
	assert.NoDirExists(t, out)
}

func TestRepack(t *testing.T) {
	in := t.TempDir()
	magiskboottest.WriteImage(t, filepath.Join(in, "boot.img"), map[string][]byte{
		"kernel":       []byte("stock"),
		"ramdisk.cpio": []byte("ramdisk"),
	})
	require.NoError(t, os.WriteFile(filepath.Join(in, "vbmeta.img"), []byte("vbmeta"), 0644))
	image := filepath.Join(t.TempDir(), "Image")
	require.NoError(t, os.WriteFile(image, []byte(rawKernel), 0644))
	out := filepath.Join(t.TempDir(), "out")

	r := runCLI(t, "--magiskboot", magiskboottest.Install(t), "repack", "--input", in, "--out", out, "--Image", image)
	require.Equal(t, 0, r.code)
	assert.Contains(t, r.stdout, "copied  "+filepath.Join(out, "vbmeta.img"))

	boot := magiskboottest.ReadImage(t, filepath.Join(out, "boot.img"))
	assert.Equal(t, rawKernel, string(boot["kernel"]))
}

func TestRepackUnpackFailure(t *testing.T) {
	in := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(in, "boot.img"), []byte("garbage"), 0644))

	r := runCLI(t, "--magiskboot", magiskboottest.Install(t), "repack", "--input", in, "--out", filepath.Join(t.TempDir(), "out"), "--zip", akZip(t))
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, "unpack boot.img")
}

func TestMaxArchiveSize(t *testing.T) {
	r := runCLI(t, "--max-archive-size", "16B", "list-archive", akZip(t))
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, "size limit")

	r = runCLI(t, "--max-archive-size", "nonsense", "list-archive", akZip(t))
	assert.Equal(t, 1, r.code)
}

func TestListArchive(t *testing.T) {
	r := runCLI(t, "list-archive", akZip(t))
	require.Equal(t, 0, r.code)

	lines := strings.Split(r.stdout, "\n")
	var kernel, dtb string
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 4 && fields[0] == "kernel" {
			kernel = fields[3]
		}
		if len(fields) == 4 && fields[0] == "dtb" {
			dtb = fields[3]
		}
	}
	assert.Equal(t, "Image.lz4", kernel)
	assert.Equal(t, "dtb", dtb)
	assert.Contains(t, r.stdout, "lz4_legacy")
}

func TestInspect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Image.lz4")
	require.NoError(t, os.WriteFile(path, lz4Legacy(t, []byte(rawKernel)), 0644))

	r := runCLI(t, "inspect", path, "--length", "0x20")
	require.Equal(t, 0, r.code)
	assert.Contains(t, r.stdout, path+": lz4_legacy")
	assert.Contains(t, r.stdout, "00000000  02 21 4c 18")
}

func TestInspectNegativeRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Image")
	require.NoError(t, os.WriteFile(path, []byte(rawKernel), 0644))

	for _, args := range [][]string{
		{"--length=-1"},
		{"--offset=-16"},
		{"--length=-0x10"},
	} {
		r := runCLI(t, append([]string{"inspect", path}, args...)...)
		assert.Equal(t, 1, r.code)
		assert.Contains(t, r.stderr, "must not be negative")
	}
}

func TestHexdumpPadsLastLine(t *testing.T) {
	dump := hexdump(0x38, []byte("ARM\x64"), []bool{true, true, true, true})
	want := "00000038  41 52 4d 64 " + strings.Repeat("   ", 4) + " " + strings.Repeat("   ", 8) + " " +
		"|ARMd" + strings.Repeat(" ", 12) + "|\n"
	assert.Equal(t, want, dump)
}

/* isolateTemp points TMPDIR at a fresh directory for the rest of the test */
func isolateTemp(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "tmp")
	require.NoError(t, os.Mkdir(dir, 0755))
	t.Setenv("TMPDIR", dir)
	return dir
}

func emptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "%s should be empty", dir)
}
