package ffmpeg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/handiism/bilibili-downloader/internal/logging"
)

// writeScript creates an executable shell script named name in dir.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fakes require a POSIX shell")
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func testEngine(ffmpegPath, ffprobePath string) *Engine {
	return &Engine{
		ffmpeg:  ffmpegPath,
		ffprobe: ffprobePath,
		hw:      NewHWAccelConfig(AccelNone),
		logger:  logging.Discard(),
	}
}

// lastArg is a shell snippet storing the final argument in $out.
const lastArg = `for a in "$@"; do out="$a"; done
`

func TestRun_Success(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "ffmpeg", lastArg+`
echo "  Duration: 00:00:10.00, start: 0.000000, bitrate: 100 kb/s" >&2
printf 'frame=1 time=00:00:02.00 speed=1x\r' >&2
printf 'frame=2 time=00:00:05.00 speed=1x\r' >&2
printf 'frame=3 time=00:00:04.00 speed=1x\r' >&2
printf 'frame=4 time=00:00:09.90 speed=1x\n' >&2
echo merged > "$out"
`)
	out := filepath.Join(dir, "out.mp4")
	var got []int
	res := testEngine(script, "").Run(context.Background(), Merge{VideoPath: "v.m4s", AudioPath: "a.m4s", Output: out}, func(p int) {
		got = append(got, p)
	})

	if !res.Success {
		t.Fatalf("Run() failed: %s\n%s", res.Message, res.Output)
	}
	want := []int{20, 50, 99, 100}
	if len(got) != len(want) {
		t.Fatalf("progress = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("progress = %v, want %v", got, want)
		}
	}
}

func TestRun_Failure(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "ffmpeg", `
i=0
while [ $i -lt 30 ]; do echo "noise line $i" >&2; i=$((i+1)); done
echo "v.m4s: Invalid data found when processing input" >&2
exit 1
`)
	res := testEngine(script, "").Run(context.Background(), Merge{VideoPath: "v.m4s", Output: filepath.Join(dir, "out.mp4")}, nil)

	if res.Success {
		t.Fatal("Run() succeeded, want failure")
	}
	if !errors.Is(res.Err, ErrProcessFailed) {
		t.Errorf("Err = %v, want ErrProcessFailed", res.Err)
	}
	if !strings.Contains(res.Message, "exit code 1") || !strings.Contains(res.Message, "Invalid data") {
		t.Errorf("Message = %q", res.Message)
	}
	if n := len(strings.Split(res.Output, "\n")); n != tailLines {
		t.Errorf("Output has %d lines, want %d", n, tailLines)
	}
	if strings.Contains(res.Output, "noise line 0\n") {
		t.Error("Output kept lines beyond the tail")
	}
}

func TestRun_MissingOutput(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "ffmpeg", "exit 0\n")

	var got []int
	res := testEngine(script, "").Run(context.Background(), Merge{VideoPath: "v", Output: filepath.Join(dir, "none.mp4")}, func(p int) {
		got = append(got, p)
	})
	if res.Success || !errors.Is(res.Err, ErrProcessFailed) {
		t.Errorf("Run() = %+v, want ErrProcessFailed", res)
	}
	for _, p := range got {
		if p == 100 {
			t.Error("100% reported without output")
		}
	}
}

func TestRun_Cancelled(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "ffmpeg", "exec sleep 10\n")

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	start := time.Now()
	res := testEngine(script, "").Run(ctx, Merge{VideoPath: "v", Output: filepath.Join(dir, "out.mp4")}, nil)
	if res.Success || res.Message != "cancelled" {
		t.Errorf("Run() = %+v, want cancelled", res)
	}
	if !errors.Is(res.Err, context.Canceled) {
		t.Errorf("Err = %v, want context.Canceled", res.Err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("cancellation did not stop ffmpeg promptly")
	}
}

func TestRun_Unavailable(t *testing.T) {
	res := testEngine("", "").Run(context.Background(), Merge{VideoPath: "v", Output: "o.mp4"}, nil)
	if !res.Unavailable || !errors.Is(res.Err, ErrUnavailable) {
		t.Errorf("Run() = %+v, want unavailable", res)
	}
}

func TestRun_InvalidBeforeUnavailable(t *testing.T) {
	res := testEngine("", "").Run(context.Background(), Merge{}, nil)
	if res.Unavailable || !errors.Is(res.Err, ErrInvalidOperation) {
		t.Errorf("Run() = %+v, want invalid operation", res)
	}
}

func TestRun_ProbeFailure(t *testing.T) {
	dir := t.TempDir()
	ffmpeg := writeScript(t, dir, "ffmpeg", "exit 0\n")
	ffprobe := writeScript(t, dir, "ffprobe", "echo 'No such file' >&2\nexit 1\n")

	res := testEngine(ffmpeg, ffprobe).Run(context.Background(), Reverse{Input: "missing.mp4", Output: filepath.Join(dir, "o.mp4")}, nil)
	if res.Success || res.Err == nil {
		t.Errorf("Run() = %+v, want probe error", res)
	}
}

func TestProbe(t *testing.T) {
	dir := t.TempDir()
	ffprobe := writeScript(t, dir, "ffprobe", `cat <<'EOF'
{"streams":[{"codec_type":"video","codec_name":"hevc","width":1280,"height":720,"avg_frame_rate":"25/1"}],"format":{"duration":"5.000"}}
EOF
`)
	got, err := testEngine("", ffprobe).Probe(context.Background(), "in.mp4")
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if got.VideoCodec != "hevc" || got.Duration != 5 || got.HasAudio {
		t.Errorf("Probe() = %+v", got)
	}

	if _, err := testEngine("", "").Probe(context.Background(), "in.mp4"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Probe() without ffprobe error = %v, want ErrUnavailable", err)
	}
}

const detectScript = `case "$2" in
-hwaccels)
	printf 'Hardware acceleration methods:\nvdpau\ncuda\nvaapi\n'
	;;
-encoders)
	printf ' V....D libx264\n V....D h264_vaapi\n V....D hevc_vaapi\n'
	;;
esac
`

func TestDetectAccelerators(t *testing.T) {
	dir := t.TempDir()
	e := testEngine(writeScript(t, dir, "ffmpeg", detectScript), "")

	got, err := e.DetectAccelerators(context.Background())
	if err != nil {
		t.Fatalf("DetectAccelerators() error = %v", err)
	}
	// cuda is listed as a method but h264_nvenc is missing.
	want := []Accelerator{AccelVAAPI, AccelNone}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("DetectAccelerators() = %v, want %v", got, want)
	}
	if SelectAccelerator(got) != AccelVAAPI {
		t.Errorf("SelectAccelerator() = %v, want vaapi", SelectAccelerator(got))
	}
}

func TestNewEngine_AutoDetect(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "ffmpeg", detectScript)

	e := NewEngine(context.Background(), Options{Dir: dir, HWAccel: AccelAuto, Logger: logging.Discard()})
	if !e.Available() {
		t.Fatal("engine unavailable with bundled ffmpeg")
	}
	if e.Accelerator() != AccelVAAPI {
		t.Errorf("Accelerator() = %v, want vaapi", e.Accelerator())
	}
}

func TestSelectAccelerator(t *testing.T) {
	tests := []struct {
		name      string
		available []Accelerator
		want      Accelerator
	}{
		{"nothing", nil, AccelNone},
		{"only software", []Accelerator{AccelNone}, AccelNone},
		{"cuda preferred over qsv", []Accelerator{AccelQSV, AccelCUDA, AccelNone}, AccelCUDA},
		{"videotoolbox", []Accelerator{AccelVideoToolbox, AccelNone}, AccelVideoToolbox},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SelectAccelerator(tt.available); got != tt.want {
				t.Errorf("SelectAccelerator() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseAccelerator(t *testing.T) {
	tests := map[string]Accelerator{
		"":       AccelNone,
		"none":   AccelNone,
		" CUDA ": AccelCUDA,
		"auto":   AccelAuto,
		"bogus":  AccelNone,
		"vaapi":  AccelVAAPI,
	}
	for in, want := range tests {
		if got := ParseAccelerator(in); got != want {
			t.Errorf("ParseAccelerator(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestHWAccelConfig_Encoder(t *testing.T) {
	cfg := NewHWAccelConfig(AccelQSV)
	if got := cfg.Encoder("h265"); got != "hevc_qsv" {
		t.Errorf("Encoder(h265) = %q", got)
	}
	if got := cfg.Encoder("vp9"); got != "h264_qsv" {
		t.Errorf("Encoder(vp9) = %q, want h264 default", got)
	}
	if got := NewHWAccelConfig(AccelAuto).Accelerator; got != AccelNone {
		t.Errorf("auto config = %v, want none", got)
	}
}

func TestLocate(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "bin")
	if err := os.MkdirAll(bin, 0o755); err != nil {
		t.Fatal(err)
	}
	want := writeScript(t, bin, "ffprobe", "exit 0\n")

	got, ok := Locate(dir, "ffprobe")
	if !ok || got != want {
		t.Errorf("Locate() = %q, %v; want %q", got, ok, want)
	}

	if err := os.WriteFile(filepath.Join(dir, "notexec"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", t.TempDir())
	if _, ok := Locate(dir, "notexec"); ok {
		t.Error("Locate() accepted a non-executable file")
	}
	if _, ok := Locate("", "ffmpeg"); ok {
		t.Error("Locate() found ffmpeg on an empty PATH")
	}
}
