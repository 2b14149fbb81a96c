package pull

import (
	"strings"
	"testing"
	"time"
)

func date(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	valid := Config{ChannelID: "C0123ABCD", BatchSize: 100, DelayBetweenRequests: time.Second}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "missing channel id",
			cfg: func() Config {
				c := valid
				c.ChannelID = ""
				return c
			}(),
			want: "channelId",
		},
		{
			name: "lowercase channel id",
			cfg: func() Config {
				c := valid
				c.ChannelID = "c0123abcd"
				return c
			}(),
			want: "channelId",
		},
		{
			name: "wrong prefix",
			cfg: func() Config {
				c := valid
				c.ChannelID = "X0123ABCD"
				return c
			}(),
			want: "channelId",
		},
		{
			name: "start after end",
			cfg: func() Config {
				c := valid
				c.StartDate = date("2024-01-02T00:00:00Z")
				c.EndDate = date("2024-01-01T00:00:00Z")
				return c
			}(),
			want: "startDate",
		},
		{
			name: "negative batch size",
			cfg: func() Config {
				c := valid
				c.BatchSize = -1
				return c
			}(),
			want: "batchSize",
		},
		{
			name: "negative delay",
			cfg: func() Config {
				c := valid
				c.DelayBetweenRequests = -time.Second
				return c
			}(),
			want: "delayBetweenRequests",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
			if !IsValidation(err) {
				t.Fatalf("expected a validation error, got %T", err)
			}
		})
	}

	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	openEnded := valid
	openEnded.StartDate = date("2024-01-01T00:00:00Z")
	if err := openEnded.Validate(); err != nil {
		t.Fatalf("open-ended window rejected: %v", err)
	}
}

func TestConfigNormalize(t *testing.T) {
	t.Parallel()

	limits := Limits{
		DefaultBatchSize: 100,
		MaxBatchSize:     200,
		MinDelay:         500 * time.Millisecond,
		DefaultDelay:     time.Second,
	}

	c := Config{ChannelID: "C0123ABCD"}
	c.Normalize(limits)
	if c.BatchSize != 100 {
		t.Fatalf("expected default batch size, got %d", c.BatchSize)
	}
	if c.DelayBetweenRequests != time.Second {
		t.Fatalf("expected default delay, got %v", c.DelayBetweenRequests)
	}

	c = Config{ChannelID: "C0123ABCD", BatchSize: 1000, DelayBetweenRequests: time.Millisecond}
	c.Normalize(limits)
	if c.BatchSize != 200 {
		t.Fatalf("expected batch size clamped to 200, got %d", c.BatchSize)
	}
	if c.DelayBetweenRequests != 500*time.Millisecond {
		t.Fatalf("expected delay floored to 500ms, got %v", c.DelayBetweenRequests)
	}
}

func TestConfigOverlaps(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b Config
		want bool
	}{
		{
			name: "disjoint windows",
			a:    Config{StartDate: date("2024-01-01T00:00:00Z"), EndDate: date("2024-01-02T00:00:00Z")},
			b:    Config{StartDate: date("2024-02-01T00:00:00Z"), EndDate: date("2024-02-02T00:00:00Z")},
			want: false,
		},
		{
			name: "touching boundary",
			a:    Config{StartDate: date("2024-01-01T00:00:00Z"), EndDate: date("2024-01-02T00:00:00Z")},
			b:    Config{StartDate: date("2024-01-02T00:00:00Z"), EndDate: date("2024-01-03T00:00:00Z")},
			want: true,
		},
		{
			name: "contained window",
			a:    Config{StartDate: date("2024-01-01T00:00:00Z"), EndDate: date("2024-01-31T00:00:00Z")},
			b:    Config{StartDate: date("2024-01-10T00:00:00Z"), EndDate: date("2024-01-11T00:00:00Z")},
			want: true,
		},
		{
			name: "both unbounded",
			a:    Config{},
			b:    Config{},
			want: true,
		},
		{
			name: "open end meets later window",
			a:    Config{StartDate: date("2024-01-15T00:00:00Z")},
			b:    Config{StartDate: date("2024-02-01T00:00:00Z"), EndDate: date("2024-02-02T00:00:00Z")},
			want: true,
		},
		{
			name: "open start misses later window",
			a:    Config{EndDate: date("2024-01-10T00:00:00Z")},
			b:    Config{StartDate: date("2024-02-01T00:00:00Z")},
			want: false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.a.Overlaps(tt.b); got != tt.want {
				t.Fatalf("Overlaps() = %v, want %v", got, tt.want)
			}
			if got := tt.b.Overlaps(tt.a); got != tt.want {
				t.Fatalf("Overlaps() not symmetric: reversed = %v, want %v", got, tt.want)
			}
		})
	}
}
