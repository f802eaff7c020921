package grpc

import (
	"context"
	"testing"
	"time"

	collectortracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/harryn0502/tracelens/internal/config"
	"github.com/harryn0502/tracelens/internal/model"
)

func TestGRPCServerExport(t *testing.T) {
	cfg := config.Config{
		GRPCPort:           "0",
		GRPCMaxRecvMsgSize: 4 * 1024 * 1024,
		GRPCMaxSendMsgSize: 4 * 1024 * 1024,
		GRPCEnabled:        true,
		DefaultProject:     "default-project",
	}

	ch := make(chan *model.Span, 10)
	server, err := NewServer(cfg, ch)
	if err != nil {
		t.Fatalf("failed to create gRPC server: %v", err)
	}
	go func() {
		if err := server.Start(); err != nil {
			t.Logf("server error: %v", err)
		}
	}()
	defer server.Stop()
	time.Sleep(100 * time.Millisecond)

	conn, err := grpc.NewClient(server.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	client := collectortracepb.NewTraceServiceClient(conn)
	req := &collectortracepb.ExportTraceServiceRequest{
		ResourceSpans: []*tracepb.ResourceSpans{{
			ScopeSpans: []*tracepb.ScopeSpans{{
				Spans: []*tracepb.Span{{
					TraceId:           []byte("test-trace-id-123"),
					SpanId:            []byte("test-span"),
					Name:              "test-span",
					StartTimeUnixNano: 1750000000000000000,
					EndTimeUnixNano:   1750000001000000000,
				}},
			}},
		}},
	}

	// Without metadata the configured default project applies.
	resp, err := client.Export(context.Background(), req)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if resp.PartialSuccess == nil || resp.PartialSuccess.RejectedSpans != 0 {
		t.Errorf("unexpected response: %+v", resp)
	}
	select {
	case span := <-ch:
		if span.SessionName == nil || *span.SessionName != "default-project" {
			t.Errorf("expected default project stamped, got %v", span.SessionName)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for span")
	}

	// Explicit metadata wins over the default.
	ctx := metadata.NewOutgoingContext(context.Background(), metadata.Pairs("x-project", "team-a"))
	if _, err := client.Export(ctx, req); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	select {
	case span := <-ch:
		if span.SessionName == nil || *span.SessionName != "team-a" {
			t.Errorf("expected metadata project stamped, got %v", span.SessionName)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for span")
	}
}
