// Copyright 2024 Celine Data Platform Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package telemetry wires a process-wide TracerProvider whose Tracer the
// server uses to span component initialization (server assembly and the
// identity verifier). Request-time work is not spanned.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// SetupOTel installs a TracerProvider as the process-wide default and
// returns its Tracer plus a shutdown func. The provider carries the service
// resource attributes and the SDK's default sampler; no SpanProcessor or
// exporter is registered, so spans are not exported.
func SetupOTel(ctx context.Context, serviceName, serviceVersion string) (oteltrace.Tracer, func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithHost(),
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("build telemetry resource: %w", err)
	}

	provider := trace.NewTracerProvider(trace.WithResource(res))
	otel.SetTracerProvider(provider)

	tracer := provider.Tracer("dataset-api")
	return tracer, provider.Shutdown, nil
}
