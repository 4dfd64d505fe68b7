package llms

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vigila-ai/vigila/pkg/config"
	"github.com/vigila-ai/vigila/pkg/httpclient"
	"github.com/vigila-ai/vigila/pkg/observability"
)

// callContext applies the per-call timeout from opts, falling back to the
// configured default.
func callContext(ctx context.Context, opts Options, defaultTimeout time.Duration) (context.Context, context.CancelFunc) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// startSpan opens the standard LLM request span.
func startSpan(ctx context.Context, backend, model string, streaming bool) (context.Context, trace.Span) {
	tracer := observability.GetTracer("vigila.llm")
	return tracer.Start(ctx, observability.SpanLLMRequest,
		trace.WithAttributes(
			attribute.String(observability.AttrLLMModel, model),
			attribute.String("provider", backend),
			attribute.Bool("streaming", streaming),
		),
	)
}

// finishCall closes out the span and records call metrics.
func finishCall(span trace.Span, model, operation string, start time.Time, inputTokens, outputTokens int, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(
			attribute.Int("llm.tokens.input", inputTokens),
			attribute.Int("llm.tokens.output", outputTokens),
		)
		span.SetStatus(codes.Ok, "success")
	}
	span.End()

	if metrics := observability.GetGlobalMetrics(); metrics != nil {
		metrics.RecordLLMCall(model, operation, time.Since(start), inputTokens, outputTokens, err)
	}
}

// newHTTPClient builds the retrying client for a backend, with the
// matching rate-limit header parser.
func newHTTPClient(backend config.LLMBackend) *httpclient.Client {
	switch backend {
	case config.LLMBackendAnthropic:
		return httpclient.New(httpclient.WithHeaderParser(httpclient.ParseAnthropicHeaders))
	case config.LLMBackendOpenAI:
		return httpclient.New(httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders))
	default:
		return httpclient.New()
	}
}
