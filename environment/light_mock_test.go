package environment

import (
	"context"
	"fmt"
	"testing"
)

func TestMockLightSensor_StaticValue(t *testing.T) {
	sensor := NewMockLightSensor(func(ctx context.Context) (uint32, error) {
		return 500, nil
	})

	lux, err := sensor.ReadLux(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lux != 500 {
		t.Errorf("expected 500 lux, got %d", lux)
	}
	if sensor.Calls() != 1 {
		t.Errorf("expected 1 call, got %d", sensor.Calls())
	}
}

func TestMockLightSensor_DynamicBehavior(t *testing.T) {
	var count uint32
	sensor := NewMockLightSensor(func(ctx context.Context) (uint32, error) {
		count++
		return count * 100, nil
	})

	ctx := context.Background()
	for i, expected := range []uint32{100, 200, 300} {
		lux, err := sensor.ReadLux(ctx)
		if err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
		if lux != expected {
			t.Errorf("call %d: expected %d lux, got %d", i, expected, lux)
		}
	}
}

func TestMockLightSensor_ErrorHandling(t *testing.T) {
	sensor := NewMockLightSensor(func(ctx context.Context) (uint32, error) {
		return 0, fmt.Errorf("sensor malfunction")
	})

	_, err := sensor.ReadLux(context.Background())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if err.Error() != "sensor malfunction" {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestMockLightSensor_ContextUsage(t *testing.T) {
	var receivedCtx context.Context
	sensor := NewMockLightSensor(func(ctx context.Context) (uint32, error) {
		receivedCtx = ctx
		return 1000, nil
	})

	type contextKey string
	key := contextKey("test")
	ctx := context.WithValue(context.Background(), key, "test-value")

	if _, err := sensor.ReadLux(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if receivedCtx.Value(key) != "test-value" {
		t.Error("context was not passed through correctly")
	}
}
