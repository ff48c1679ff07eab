package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker"
)

type fakeGenerator struct {
	mu    sync.Mutex
	calls int
	reply string
	err   error
	delay time.Duration
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.err
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestGuard_Generate(t *testing.T) {
	tests := []struct {
		name    string
		backend *fakeGenerator
		timeout time.Duration
		want    string
		wantErr error
	}{
		{
			name:    "passes reply through",
			backend: &fakeGenerator{reply: "Paris is lovely."},
			want:    "Paris is lovely.",
		},
		{
			name:    "backend error",
			backend: &fakeGenerator{err: errors.New("boom")},
		},
		{
			name:    "blank reply is a failure",
			backend: &fakeGenerator{reply: "  \n"},
			wantErr: ErrEmptyResponse,
		},
		{
			name:    "slow backend hits timeout",
			backend: &fakeGenerator{reply: "late", delay: time.Second},
			timeout: 20 * time.Millisecond,
			wantErr: context.DeadlineExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			guard := NewGuard(tt.backend, GuardConfig{Name: "fake", Timeout: tt.timeout})

			got, err := guard.Generate(context.Background(), "prompt")

			if tt.want == "" {
				if err == nil {
					t.Fatalf("Generate() expected error, got reply %q", got)
				}
				if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
					t.Errorf("Generate() error = %v, want %v", err, tt.wantErr)
				}
				return
			}

			if err != nil {
				t.Fatalf("Generate() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Generate() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGuard_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	backend := &fakeGenerator{err: errors.New("unavailable")}
	guard := NewGuard(backend, GuardConfig{Name: "fake"})

	for i := 0; i < 3; i++ {
		if _, err := guard.Generate(context.Background(), "prompt"); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}

	if guard.State() != "open" {
		t.Fatalf("State() = %q, want open", guard.State())
	}

	_, err := guard.Generate(context.Background(), "prompt")
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("Generate() error = %v, want ErrOpenState", err)
	}
	if backend.callCount() != 3 {
		t.Errorf("backend called %d times, want 3", backend.callCount())
	}
}

func TestGuard_RateLimit(t *testing.T) {
	backend := &fakeGenerator{reply: "ok"}
	guard := NewGuard(backend, GuardConfig{Name: "fake", RPM: 1})

	if _, err := guard.Generate(context.Background(), "first"); err != nil {
		t.Fatalf("first Generate() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := guard.Generate(ctx, "second"); err == nil {
		t.Fatal("second Generate() expected rate limit error, got nil")
	}
	if backend.callCount() != 1 {
		t.Errorf("backend called %d times, want 1", backend.callCount())
	}
	if guard.State() != "closed" {
		t.Errorf("State() = %q, want closed", guard.State())
	}
}

func TestGuard_DefaultName(t *testing.T) {
	guard := NewGuard(&fakeGenerator{reply: "ok"}, GuardConfig{})
	if guard.Name() != "llm" {
		t.Errorf("Name() = %q, want llm", guard.Name())
	}
}

type fakeImageGenerator struct {
	fakeGenerator
	imageCalls int
}

func (f *fakeImageGenerator) DescribeImage(ctx context.Context, data []byte, mimeType string) (string, error) {
	f.mu.Lock()
	f.imageCalls++
	f.mu.Unlock()
	return f.Generate(ctx, "image")
}

func TestGuard_DescribeImage(t *testing.T) {
	tests := []struct {
		name    string
		backend Generator
		timeout time.Duration
		want    string
		wantErr error
	}{
		{
			name:    "passes transcription through",
			backend: &fakeImageGenerator{fakeGenerator: fakeGenerator{reply: "Boarding pass to Paris"}},
			want:    "Boarding pass to Paris",
		},
		{
			name:    "slow transcriber hits timeout",
			backend: &fakeImageGenerator{fakeGenerator: fakeGenerator{reply: "late", delay: time.Second}},
			timeout: 20 * time.Millisecond,
			wantErr: context.DeadlineExceeded,
		},
		{
			name:    "blank transcription is a failure",
			backend: &fakeImageGenerator{fakeGenerator: fakeGenerator{reply: " "}},
			wantErr: ErrEmptyResponse,
		},
		{
			name:    "backend without images",
			backend: &fakeGenerator{reply: "ok"},
			wantErr: ErrImagesUnsupported,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			guard := NewGuard(tt.backend, GuardConfig{Name: "fake", Timeout: tt.timeout})

			start := time.Now()
			got, err := guard.DescribeImage(context.Background(), []byte{0x89, 'P', 'N', 'G'}, "image/png")
			elapsed := time.Since(start)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("DescribeImage() error = %v, want %v", err, tt.wantErr)
				}
				if tt.timeout > 0 && elapsed > 500*time.Millisecond {
					t.Errorf("DescribeImage() took %v, want it cut off near %v", elapsed, tt.timeout)
				}
				return
			}
			if err != nil {
				t.Fatalf("DescribeImage() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("DescribeImage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGuard_DescribeImageSharesBreaker(t *testing.T) {
	backend := &fakeImageGenerator{fakeGenerator: fakeGenerator{err: errors.New("unavailable")}}
	guard := NewGuard(backend, GuardConfig{Name: "fake"})

	for i := 0; i < 3; i++ {
		_, _ = guard.Generate(context.Background(), "prompt")
	}

	_, err := guard.DescribeImage(context.Background(), []byte("img"), "image/png")
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("DescribeImage() error = %v, want ErrOpenState", err)
	}
	if backend.imageCalls != 0 {
		t.Errorf("image backend called %d times, want 0", backend.imageCalls)
	}
}

func TestGuard_SupportsImages(t *testing.T) {
	if NewGuard(&fakeGenerator{}, GuardConfig{}).SupportsImages() {
		t.Error("SupportsImages() = true for a text-only backend")
	}
	if !NewGuard(&fakeImageGenerator{}, GuardConfig{}).SupportsImages() {
		t.Error("SupportsImages() = false for an image backend")
	}
}
