package obs

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitMeter installs a global OTel meter provider that exports through reg,
// so instruments such as the pgx duration histogram appear on /metrics next
// to the native collectors.
func InitMeter(namespace string, reg prometheus.Registerer) (func(context.Context) error, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	exp, err := otelprom.New(otelprom.WithRegisterer(reg), otelprom.WithNamespace(namespace), otelprom.WithoutScopeInfo())
	if err != nil {
		return nil, fmt.Errorf("prometheus metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exp))
	otel.SetMeterProvider(mp)
	return mp.Shutdown, nil
}
