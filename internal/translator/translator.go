package translator

import (
	"log/slog"

	collectortracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"

	"github.com/harryn0502/tracelens/internal/model"
)

// Translator converts OTLP export requests into internal spans. Parent
// resolution and ordering are left to the trace pipeline; this layer only
// maps wire shapes.
type Translator struct {
	converter *Converter
}

func NewTranslator() *Translator {
	return &Translator{converter: &Converter{}}
}

// Translate converts every OTLP span in the request to a Span slice. Spans
// that cannot be converted (unusable ids) are skipped with a warning rather
// than failing the batch.
func (t *Translator) Translate(req *collectortracepb.ExportTraceServiceRequest) []*model.Span {
	total := 0
	for _, rs := range req.ResourceSpans {
		for _, ss := range rs.ScopeSpans {
			total += len(ss.Spans)
		}
	}

	spans := make([]*model.Span, 0, total)
	for _, rs := range req.ResourceSpans {
		for _, ss := range rs.ScopeSpans {
			for _, span := range ss.Spans {
				s, err := t.converter.ConvertSpan(span)
				if err != nil {
					slog.Warn("skipping unconvertible span", "name", span.Name, "err", err)
					continue
				}
				spans = append(spans, s)
			}
		}
	}
	return spans
}
