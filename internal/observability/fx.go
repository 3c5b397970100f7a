package observability

import (
	"github.com/testbedhq/balance/internal/observability/metrics"
	"github.com/testbedhq/balance/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		metrics.New,
		metrics.NewHTTPMetrics,
		tracing.NewProvider,
	),
	fx.Invoke(ensureTracingProvider),
)

func ensureTracingProvider(_ *sdktrace.TracerProvider) {}
