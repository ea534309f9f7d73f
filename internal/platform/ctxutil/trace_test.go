package ctxutil

import (
	"context"
	"testing"
)

func TestLogFields(t *testing.T) {
	if got := LogFields(context.Background()); got != nil {
		t.Fatalf("no trace data: got %v", got)
	}
	ctx := WithTraceData(context.Background(), &TraceData{RequestID: "msg-1"})
	got := LogFields(ctx)
	if len(got) != 2 || got[0] != "request_id" || got[1] != "msg-1" {
		t.Fatalf("unexpected fields: %v", got)
	}
	ctx = WithTraceData(context.Background(), &TraceData{TraceID: "t", RequestID: "r"})
	if got := LogFields(ctx); len(got) != 4 {
		t.Fatalf("unexpected fields: %v", got)
	}
}
