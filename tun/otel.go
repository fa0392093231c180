/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package tun

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// telemetry holds the optional OpenTelemetry instruments. All methods are
// no-ops when the adapter was configured without a meter or tracer.
type telemetry struct {
	tracer    trace.Tracer
	sent      metric.Int64Counter
	received  metric.Int64Counter
	discarded metric.Int64Counter
}

func newTelemetry(meter metric.Meter, tracer trace.Tracer) *telemetry {
	t := &telemetry{tracer: tracer}
	if meter != nil {
		t.sent, _ = meter.Int64Counter("tunshm.frames.sent")
		t.received, _ = meter.Int64Counter("tunshm.frames.received")
		t.discarded, _ = meter.Int64Counter("tunshm.frames.discarded")
	}
	return t
}

func (t *telemetry) addSent(n int64) {
	if t.sent != nil && n > 0 {
		t.sent.Add(context.Background(), n)
	}
}

func (t *telemetry) addReceived(n int64) {
	if t.received != nil && n > 0 {
		t.received.Add(context.Background(), n)
	}
}

func (t *telemetry) addDiscarded(n int64) {
	if t.discarded != nil && n > 0 {
		t.discarded.Add(context.Background(), n)
	}
}

// startSpan opens a span and returns a closure ending it, recording err if
// one is passed.
func (t *telemetry) startSpan(ctx context.Context, name string) (context.Context, func(error)) {
	if t.tracer == nil {
		return ctx, func(error) {}
	}
	ctx, span := t.tracer.Start(ctx, name)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}
}
