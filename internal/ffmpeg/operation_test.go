package ffmpeg

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"
)

func fakeProbe(results map[string]*ProbeResult) func(context.Context, string) (*ProbeResult, error) {
	return func(_ context.Context, path string) (*ProbeResult, error) {
		if r, ok := results[path]; ok {
			return r, nil
		}
		return nil, errors.New("no such file")
	}
}

func planArgs(t *testing.T, op Operation, env *planEnv) *plan {
	t.Helper()
	if err := op.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if env == nil {
		env = &planEnv{hw: NewHWAccelConfig(AccelNone)}
	}
	p, err := op.plan(context.Background(), env)
	if err != nil {
		t.Fatalf("plan() error = %v", err)
	}
	if last := p.args[len(p.args)-1]; last != op.OutputPath() {
		t.Errorf("last arg = %q, want output %q", last, op.OutputPath())
	}
	return p
}

// containsSeq reports whether seq appears contiguously in args.
func containsSeq(args []string, seq ...string) bool {
	for i := 0; i+len(seq) <= len(args); i++ {
		if slices.Equal(args[i:i+len(seq)], seq) {
			return true
		}
	}
	return false
}

func TestMerge_Plan(t *testing.T) {
	p := planArgs(t, Merge{VideoPath: "v.m4s", AudioPath: "a.m4s", Output: "out.mp4"}, nil)
	for _, seq := range [][]string{
		{"-i", "v.m4s"},
		{"-i", "a.m4s"},
		{"-map", "0:v:0", "-map", "1:a:0"},
		{"-c", "copy"},
		{"-movflags", "+faststart"},
	} {
		if !containsSeq(p.args, seq...) {
			t.Errorf("args %v missing %v", p.args, seq)
		}
	}
}

func TestMerge_VideoOnly(t *testing.T) {
	p := planArgs(t, Merge{VideoPath: "v.m4s", Output: "out.mkv"}, nil)
	if containsSeq(p.args, "-map", "1:a:0") {
		t.Errorf("video only merge maps audio: %v", p.args)
	}
	if containsSeq(p.args, "-movflags", "+faststart") {
		t.Errorf("faststart set for mkv: %v", p.args)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		op   Operation
	}{
		{"merge without video", Merge{Output: "o.mp4"}},
		{"merge without output", Merge{VideoPath: "v"}},
		{"convert crf too high", Convert{Input: "i", Output: "o", CRF: 60}},
		{"convert in place", Convert{Input: "same.mp4", Output: "same.mp4"}},
		{"cut end before start", Cut{Input: "i", Output: "o", Start: 5 * time.Second, End: 2 * time.Second}},
		{"cut negative start", Cut{Input: "i", Output: "o", Start: -time.Second, End: time.Second}},
		{"concat no clips", Concat{Output: "o"}},
		{"concat half resolution", Concat{Output: "o", Width: 1280, Clips: []Clip{{Path: "a"}}}},
		{"concat empty clip path", Concat{Output: "o", Clips: []Clip{{Path: " "}}}},
		{"concat inverted clip", Concat{Output: "o", Clips: []Clip{{Path: "a", Start: 4, End: 2}}}},
		{"compress zero height", Compress{Input: "i", Output: "o"}},
		{"reverse no input", Reverse{Output: "o"}},
		{"delogo empty region", Delogo{Input: "i", Output: "o", W: 0, H: 10}},
		{"delogo negative origin", Delogo{Input: "i", Output: "o", X: -1, W: 10, H: 10}},
		{"extract bitrate too high", ExtractAudio{Input: "i", Output: "o", Bitrate: 512}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.op.Validate()
			if !errors.Is(err, ErrInvalidOperation) {
				t.Errorf("Validate() = %v, want ErrInvalidOperation", err)
			}
		})
	}
}

func TestConvert_Plan(t *testing.T) {
	t.Run("software", func(t *testing.T) {
		p := planArgs(t, Convert{Input: "in.flv", Output: "out.mp4", Codec: "hevc", CRF: 20, Preset: "slow"}, nil)
		if !containsSeq(p.args, "-c:v", "libx265", "-preset", "slow", "-crf", "20") {
			t.Errorf("args = %v", p.args)
		}
		if !containsSeq(p.args, "-pix_fmt", "yuv420p") {
			t.Errorf("software encode missing pix_fmt: %v", p.args)
		}
	})

	t.Run("hardware requested", func(t *testing.T) {
		env := &planEnv{hw: NewHWAccelConfig(AccelCUDA)}
		p := planArgs(t, Convert{Input: "in.flv", Output: "out.mp4", HWAccel: true}, env)
		if !containsSeq(p.args, "-hwaccel", "cuda", "-i", "in.flv") {
			t.Errorf("decode flags must precede input: %v", p.args)
		}
		if !containsSeq(p.args, "-c:v", "h264_nvenc") || !containsSeq(p.args, "-cq", "23") {
			t.Errorf("args = %v", p.args)
		}
	})

	t.Run("hardware available but not requested", func(t *testing.T) {
		env := &planEnv{hw: NewHWAccelConfig(AccelCUDA)}
		p := planArgs(t, Convert{Input: "in.flv", Output: "out.mp4"}, env)
		if slices.Contains(p.args, "h264_nvenc") {
			t.Errorf("hardware encoder used without HWAccel: %v", p.args)
		}
	})

	t.Run("vaapi upload filter", func(t *testing.T) {
		env := &planEnv{hw: NewHWAccelConfig(AccelVAAPI)}
		p := planArgs(t, Convert{Input: "in.flv", Output: "out.mp4", HWAccel: true}, env)
		if !containsSeq(p.args, "-vf", "format=nv12,hwupload") {
			t.Errorf("args = %v", p.args)
		}
	})
}

func TestCut_Plan(t *testing.T) {
	t.Run("fast", func(t *testing.T) {
		p := planArgs(t, Cut{Input: "in.mp4", Output: "out.mp4", Start: 90 * time.Second, End: 150 * time.Second}, nil)
		if !containsSeq(p.args, "-ss", "90.000", "-i", "in.mp4", "-t", "60.000", "-c", "copy") {
			t.Errorf("args = %v", p.args)
		}
		if p.duration != 60 {
			t.Errorf("duration = %v, want 60", p.duration)
		}
	})

	t.Run("accurate", func(t *testing.T) {
		p := planArgs(t, Cut{Input: "in.mp4", Output: "out.mp4", Start: 1500 * time.Millisecond, End: 4 * time.Second, Accurate: true}, nil)
		if !containsSeq(p.args, "-i", "in.mp4", "-ss", "1.500", "-t", "2.500") {
			t.Errorf("accurate cut must seek after input: %v", p.args)
		}
		if !containsSeq(p.args, "-c:v", "libx264") {
			t.Errorf("accurate cut must re-encode: %v", p.args)
		}
	})
}

func TestConcat_Plan(t *testing.T) {
	probe := fakeProbe(map[string]*ProbeResult{
		"a.mp4": {Duration: 30, FrameRate: 25, HasVideo: true, HasAudio: true},
		"b.mp4": {Duration: 12, FrameRate: 30, HasVideo: true},
	})
	op := Concat{
		Output: "out.mp4",
		Width:  1280,
		Height: 720,
		Clips: []Clip{
			{Path: "a.mp4", Start: 5, End: 10},
			{Path: "b.mp4", Start: 30, Unit: UnitFrames},
		},
	}
	p := planArgs(t, op, &planEnv{probe: probe})

	idx := slices.Index(p.args, "-filter_complex")
	if idx < 0 {
		t.Fatalf("no filter graph: %v", p.args)
	}
	graph := p.args[idx+1]

	for _, want := range []string{
		"[0:v:0]trim=start=5.000:end=10.000",
		"[0:a:0]atrim=start=5.000:end=10.000",
		"[1:v:0]trim=start=1.000:end=12.000",
		"anullsrc=channel_layout=stereo:sample_rate=44100,atrim=duration=11.000[a1]",
		"scale=1280:720:force_original_aspect_ratio=decrease",
		"[v0][a0][v1][a1]concat=n=2:v=1:a=1[outv][outa]",
	} {
		if !strings.Contains(graph, want) {
			t.Errorf("graph missing %q\ngraph: %s", want, graph)
		}
	}
	if p.duration != 16 {
		t.Errorf("duration = %v, want 16", p.duration)
	}
}

func TestConcat_PlanDefaultsToFirstClipSize(t *testing.T) {
	probe := fakeProbe(map[string]*ProbeResult{
		"wide.mp4": {Duration: 10, Width: 1921, Height: 1080, HasVideo: true, HasAudio: true},
		"tall.mp4": {Duration: 10, Width: 720, Height: 1280, HasVideo: true, HasAudio: true},
	})
	op := Concat{Output: "out.mp4", Clips: []Clip{{Path: "wide.mp4"}, {Path: "tall.mp4"}}}
	p := planArgs(t, op, &planEnv{probe: probe})

	graph := p.args[slices.Index(p.args, "-filter_complex")+1]
	want := "scale=1920:1080:force_original_aspect_ratio=decrease,pad=1920:1080:(ow-iw)/2:(oh-ih)/2,setsar=1"
	if n := strings.Count(graph, want); n != 2 {
		t.Errorf("graph scales %d clips to the first clip's size, want 2\ngraph: %s", n, graph)
	}
}

func TestConcat_PlanErrors(t *testing.T) {
	probe := fakeProbe(map[string]*ProbeResult{
		"audio.m4a": {Duration: 10, HasAudio: true},
		"novid.mp4": {Duration: 10, HasVideo: true},
	})
	tests := []struct {
		name string
		clip Clip
	}{
		{"missing file", Clip{Path: "missing.mp4"}},
		{"no video stream", Clip{Path: "audio.m4a"}},
		{"frames without rate", Clip{Path: "novid.mp4", Start: 10, Unit: UnitFrames}},
		{"start past end of file", Clip{Path: "novid.mp4", Start: 20}},
		{"unknown resolution", Clip{Path: "novid.mp4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := Concat{Output: "out.mp4", Clips: []Clip{tt.clip}}
			if _, err := op.plan(context.Background(), &planEnv{probe: probe}); err == nil {
				t.Error("plan() succeeded, want error")
			}
		})
	}
}

func TestCompress_Plan(t *testing.T) {
	p := planArgs(t, Compress{Input: "in.mp4", Output: "small.mp4", MaxHeight: 720}, nil)
	if !containsSeq(p.args, "-vf", `scale=-2:min(ih\,720)`) {
		t.Errorf("args = %v", p.args)
	}
	if !containsSeq(p.args, "-crf", "28") || !containsSeq(p.args, "-b:a", "128k") {
		t.Errorf("compress defaults missing: %v", p.args)
	}
}

func TestReverse_Plan(t *testing.T) {
	probe := fakeProbe(map[string]*ProbeResult{
		"with.mp4":   {Duration: 8, HasVideo: true, HasAudio: true},
		"silent.mp4": {Duration: 8, HasVideo: true},
	})

	p := planArgs(t, Reverse{Input: "with.mp4", Output: "out.mp4"}, &planEnv{probe: probe})
	if !containsSeq(p.args, "-af", "areverse") {
		t.Errorf("audio not reversed: %v", p.args)
	}
	if p.duration != 8 {
		t.Errorf("duration = %v, want 8", p.duration)
	}

	p = planArgs(t, Reverse{Input: "silent.mp4", Output: "out.mp4"}, &planEnv{probe: probe})
	if slices.Contains(p.args, "areverse") || !slices.Contains(p.args, "-an") {
		t.Errorf("silent input args = %v", p.args)
	}
}

func TestDelogo_Plan(t *testing.T) {
	p := planArgs(t, Delogo{Input: "in.mp4", Output: "out.mp4", X: 10, Y: 20, W: 100, H: 40}, nil)
	if !containsSeq(p.args, "-vf", "delogo=x=10:y=20:w=100:h=40") {
		t.Errorf("args = %v", p.args)
	}

	p = planArgs(t, Delogo{Input: "in.mp4", Output: "out.mp4", X: 10, Y: 20, W: 100, H: 40, Blur: true}, nil)
	idx := slices.Index(p.args, "-filter_complex")
	if idx < 0 || !strings.Contains(p.args[idx+1], "crop=100:40:10:20,boxblur") {
		t.Errorf("blur args = %v", p.args)
	}
}

func TestExtractAudio_Plan(t *testing.T) {
	p := planArgs(t, ExtractAudio{Input: "in.mp4", Output: "out.mp3"}, nil)
	if !containsSeq(p.args, "-vn", "-map", "0:a:0", "-c:a", "libmp3lame", "-b:a", "192k") {
		t.Errorf("args = %v", p.args)
	}
}
