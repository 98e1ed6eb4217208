package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"upscaler/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "merge", "ffmpeg", "mux failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"merge", "ffmpeg", "mux failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{services.Wrap(services.ErrValidation, "submit", "", "bad scale", nil), "validation"},
		{services.Wrap(services.ErrTimeout, "frames", "ffmpeg", "deadline", nil), "timeout"},
		{services.Wrap(services.ErrMissingOutput, "audio", "", "empty", nil), "missing_output"},
		{services.Wrap(services.ErrExternalTool, "merge", "", "exit 1", nil), "external_tool"},
		{errors.New("plain"), "transient"},
	}
	for _, tt := range tests {
		if got := services.Kind(tt.err); got != tt.want {
			t.Fatalf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestMessageStripsMarker(t *testing.T) {
	err := services.Wrap(services.ErrExternalTool, "audio", "ffmpeg", "exit status 1", nil)
	if got := services.Message(err); got != "audio: ffmpeg: exit status 1" {
		t.Fatalf("unexpected message %q", got)
	}
	if got := services.Message(errors.New("raw")); got != "raw" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestMarkerOf(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", services.Wrap(services.ErrTimeout, "enhance", "", "slow", nil))
	if got := services.MarkerOf(wrapped); got != services.ErrTimeout {
		t.Fatalf("MarkerOf = %v, want timeout", got)
	}
	if got := services.MarkerOf(errors.New("plain")); got != services.ErrTransient {
		t.Fatalf("MarkerOf(plain) = %v, want transient", got)
	}
}
