package eventbus

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"voicekey/internal/domain"
)

// BenchmarkEventBusPublish benchmarks the hot path: key events produce
// overlay updates at typing speed.
func BenchmarkEventBusPublish(b *testing.B) {
	bus := New(slog.Default())
	ctx := context.Background()
	event := domain.Event{
		Type:      domain.EventOverlayProcessing,
		Timestamp: time.Now(),
	}

	bus.Subscribe(domain.EventOverlayProcessing, func(_ context.Context, _ domain.Event) {})

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		bus.Publish(ctx, event)
	}

	bus.Close()
}

// BenchmarkEventBusPublishMultipleSubscribers benchmarks with multiple subscribers
func BenchmarkEventBusPublishMultipleSubscribers(b *testing.B) {
	bus := New(slog.Default())
	ctx := context.Background()
	event := domain.Event{
		Type:      domain.EventOverlayMode,
		Timestamp: time.Now(),
	}

	for i := 0; i < 10; i++ {
		bus.Subscribe(domain.EventOverlayMode, func(_ context.Context, _ domain.Event) {})
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		bus.Publish(ctx, event)
	}

	bus.Close()
}

// BenchmarkEventBusPublishParallel benchmarks concurrent publishing
func BenchmarkEventBusPublishParallel(b *testing.B) {
	bus := New(slog.Default())
	event := domain.Event{
		Type:      domain.EventOverlayMode,
		Timestamp: time.Now(),
	}

	bus.SubscribeAll(func(_ context.Context, _ domain.Event) {})

	b.ResetTimer()
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		ctx := context.Background()
		for pb.Next() {
			bus.Publish(ctx, event)
		}
	})

	bus.Close()
}

// BenchmarkEventBusPublishNoSubscribers benchmarks publishing with no subscribers (best case)
func BenchmarkEventBusPublishNoSubscribers(b *testing.B) {
	bus := New(slog.Default())
	ctx := context.Background()
	event := domain.Event{
		Type:      domain.EventSessionStarted,
		Timestamp: time.Now(),
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		bus.Publish(ctx, event)
	}

	bus.Close()
}
