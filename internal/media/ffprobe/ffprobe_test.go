package ffprobe

import (
	"context"
	"errors"
	"math"
	"testing"

	"upscaler/internal/procexec"
	"upscaler/internal/services"
)

const sampleJSON = `{
  "streams": [
    {"index": 0, "codec_name": "h264", "codec_type": "video", "width": 640, "height": 360,
     "r_frame_rate": "30000/1001", "avg_frame_rate": "30000/1001", "nb_frames": "300", "duration": "10.01"},
    {"index": 1, "codec_name": "aac", "codec_type": "audio", "sample_rate": "44100", "channels": 2}
  ],
  "format": {"filename": "input.mp4", "nb_streams": 2, "duration": "10.01", "size": "1000", "bit_rate": "32000"}
}`

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"24/1", 24},
		{"30000/1001", 30000.0 / 1001.0},
		{"25", 25},
		{"0/0", 0},
		{"30/0", 0},
		{"", 0},
		{"abc/1", 0},
	}
	for _, tt := range tests {
		if got := ParseFrameRate(tt.in); math.Abs(got-tt.want) > 1e-9 {
			t.Fatalf("ParseFrameRate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestResultHelpersHandleInvalidNumbers(t *testing.T) {
	result := Result{Format: Format{Duration: "bad", Size: "-1"}}
	if !math.IsNaN(result.DurationSeconds()) {
		t.Fatalf("expected duration NaN, got %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 0 {
		t.Fatalf("expected size 0, got %d", result.SizeBytes())
	}
}

func TestVideoInfoDefaultsFPS(t *testing.T) {
	result := Result{
		Streams: []Stream{{CodecType: "video", Width: 320, Height: 240, RFrameRate: "0/0"}},
		Format:  Format{Duration: "2"},
	}
	info, err := result.VideoInfo()
	if err != nil {
		t.Fatalf("VideoInfo returned error: %v", err)
	}
	if info.FPS != DefaultFPS {
		t.Fatalf("expected default fps, got %v", info.FPS)
	}
	if info.Frames != 48 {
		t.Fatalf("expected frame estimate 48, got %d", info.Frames)
	}
	if info.HasAudio {
		t.Fatal("expected no audio")
	}
}

func TestProberParsesOutput(t *testing.T) {
	var captured procexec.Command
	p := &Prober{Binary: "ffprobe", run: func(_ context.Context, cmd procexec.Command) ([]byte, error) {
		captured = cmd
		return []byte(sampleJSON), nil
	}}
	info, err := p.Probe(context.Background(), "/work/input.mp4")
	if err != nil {
		t.Fatalf("Probe returned error: %v", err)
	}
	if info.Width != 640 || info.Height != 360 || info.Frames != 300 || !info.HasAudio {
		t.Fatalf("unexpected info: %+v", info)
	}
	if math.Abs(info.FPS-29.97) > 0.01 {
		t.Fatalf("unexpected fps %v", info.FPS)
	}
	if captured.Args[len(captured.Args)-1] != "/work/input.mp4" {
		t.Fatalf("input path not passed last: %v", captured.Args)
	}
}

func TestProberRejectsAudioOnlyInput(t *testing.T) {
	p := &Prober{Binary: "ffprobe", run: func(context.Context, procexec.Command) ([]byte, error) {
		return []byte(`{"streams":[{"codec_type":"audio"}],"format":{}}`), nil
	}}
	_, err := p.Probe(context.Background(), "/work/input.mp4")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestProberWrapsToolFailure(t *testing.T) {
	p := &Prober{Binary: "ffprobe", run: func(context.Context, procexec.Command) ([]byte, error) {
		return nil, &procexec.Error{Command: "ffprobe", Output: "moov atom not found", Err: errors.New("exit status 1")}
	}}
	_, err := p.Probe(context.Background(), "/work/input.mp4")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}
