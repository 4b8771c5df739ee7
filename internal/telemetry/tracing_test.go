package telemetry

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracerDisabled(t *testing.T) {
	tp, err := InitTracer(context.Background(), TracerConfig{ServiceName: "ktvplayer"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("InitTracer: %v", err)
	}
	if tp.provider != nil {
		t.Fatal("disabled tracing created an SDK provider")
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestSamplerFor(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1, "AlwaysOnSampler"},
		{2, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{-1, "AlwaysOffSampler"},
		{0.25, "TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		desc := samplerFor(tt.rate).Description()
		if !strings.HasPrefix(desc, "ParentBased{root:"+tt.want) {
			t.Errorf("samplerFor(%v) = %s, want root %s", tt.rate, desc, tt.want)
		}
	}
}

func TestPlayerSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	_, span := StartPlayerSpan(context.Background(), "set_vocal_mode", VocalModeAttr("instrumental"))
	span.SetAttributes(SessionAttr("sess-1"))
	EndSpan(span, errors.New("crossfade interrupted"))

	_, seek := StartPlayerSpan(context.Background(), "seek", SeekAttr(30))
	EndSpan(seek, nil)

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("ended spans = %d, want 2", len(spans))
	}

	failed := spans[0]
	if failed.Name() != "player.set_vocal_mode" {
		t.Errorf("span name = %q", failed.Name())
	}
	if failed.Status().Code != codes.Error {
		t.Errorf("status = %v, want error", failed.Status().Code)
	}
	attrs := map[string]string{}
	for _, kv := range failed.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	if attrs["ktv.vocal_mode"] != "instrumental" || attrs["ktv.session_id"] != "sess-1" {
		t.Errorf("attributes = %v", attrs)
	}

	if spans[1].Status().Code != codes.Unset {
		t.Errorf("successful span status = %v", spans[1].Status().Code)
	}
}
