package handler

import (
	"context"
	"log/slog"

	collectortracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/harryn0502/tracelens/internal/contextkey"
	"github.com/harryn0502/tracelens/internal/model"
	"github.com/harryn0502/tracelens/internal/translator"
)

// TraceServiceHandler implements the OTLP TraceService gRPC interface.
type TraceServiceHandler struct {
	collectortracepb.UnimplementedTraceServiceServer
	translator *translator.Translator
	channel    chan *model.Span
}

func NewTraceServiceHandler(tr *translator.Translator, ch chan *model.Span) *TraceServiceHandler {
	return &TraceServiceHandler{
		translator: tr,
		channel:    ch,
	}
}

// Export handles the ExportTrace gRPC call.
func (h *TraceServiceHandler) Export(ctx context.Context, req *collectortracepb.ExportTraceServiceRequest) (*collectortracepb.ExportTraceServiceResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}

	slog.Debug("Received gRPC trace export request",
		"resource_spans_count", len(req.ResourceSpans),
	)

	spans := h.translator.Translate(req)

	project, _ := ctx.Value(contextkey.ProjectKey).(string)

	for _, span := range spans {
		if project != "" && span.SessionName == nil {
			span.SessionName = &project
		}

		// Non-blocking send so a full collector never hangs the RPC.
		select {
		case h.channel <- span:
		default:
			slog.Warn("Channel full, dropping span", "span_id", span.ID)
		}
	}

	return &collectortracepb.ExportTraceServiceResponse{
		PartialSuccess: &collectortracepb.ExportTracePartialSuccess{
			RejectedSpans: 0,
			ErrorMessage:  "",
		},
	}, nil
}
