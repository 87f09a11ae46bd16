package logger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Level     string
	Console   bool
	SampleN   int
	Service   string
	Component string
}

type ctxKey string

const (
	ctxReqIDKey  ctxKey = "request_id"
	ctxFeature   ctxKey = "feature"
	ctxComponent ctxKey = "component"
	ctxDataset   ctxKey = "dataset"
)

func WithRequestID(ctx context.Context, reqID string) context.Context {
	if reqID == "" {
		reqID = NewID()
	}
	return context.WithValue(ctx, ctxReqIDKey, reqID)
}

// RequestID returns the id stored by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxReqIDKey).(string)
	return id
}

func WithFeature(ctx context.Context, feature string) context.Context {
	if feature == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxFeature, feature)
}

// WithDataset tags log lines with the dataset file a request was served from.
func WithDataset(ctx context.Context, path string) context.Context {
	if path == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxDataset, path)
}

func WithComponent(ctx context.Context, component string) context.Context {
	if component == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxComponent, component)
}

func NewID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// Build returns the process logger. Unknown or empty levels fall back to
// info. Sampling never drops warnings or errors.
func Build(cfg Config, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "timestamp"
	zerolog.MessageFieldName = "msg"
	if cfg.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000"}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zl := zerolog.New(out).Level(lvl)
	if cfg.SampleN > 1 {
		s := &zerolog.BasicSampler{N: uint32(min(cfg.SampleN, math.MaxInt32))}
		zl = zl.Sample(&zerolog.LevelSampler{DebugSampler: s, InfoSampler: s})
	}

	fields := zl.With().Timestamp()
	if cfg.Service != "" {
		fields = fields.Str("service", cfg.Service)
	}
	if cfg.Component != "" {
		fields = fields.Str("component", cfg.Component)
	}
	return fields.Logger()
}

// Component returns a child of parent tagged with component.
func Component(parent zerolog.Logger, component string) *zerolog.Logger {
	l := parent.With().Str("component", component).Logger()
	return &l
}

// FromContext returns a child logger with the request fields carried by ctx.
func FromContext(ctx context.Context, parent *zerolog.Logger) *zerolog.Logger {
	var base zerolog.Logger
	if parent == nil {
		base = zerolog.New(io.Discard)
	} else {
		base = *parent
	}
	w := base.With()
	if v := ctx.Value(ctxReqIDKey); v != nil {
		if s, ok := v.(string); ok && s != "" {
			w = w.Str("request_id", s)
		}
	}
	if v := ctx.Value(ctxFeature); v != nil {
		if s, ok := v.(string); ok && s != "" {
			w = w.Str("feature", s)
		}
	}
	if v := ctx.Value(ctxComponent); v != nil {
		if s, ok := v.(string); ok && s != "" {
			w = w.Str("component", s)
		}
	}
	if v := ctx.Value(ctxDataset); v != nil {
		if s, ok := v.(string); ok && s != "" {
			w = w.Str("dataset", s)
		}
	}
	l := w.Logger()
	return &l
}
