// Copyright (c) 2026 - The Eventcore authors.
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

package main

import (
	"fmt"
	"io"

	opentracing "github.com/opentracing/opentracing-go"
	jaeger "github.com/uber/jaeger-client-go"
	"github.com/uber/jaeger-client-go/transport/zipkin"
	zk "github.com/uber/jaeger-client-go/zipkin"
)

// newTracer sets the global tracer, reporting in Zipkin format to the host.
// It must be closed on exit using the returned io.Closer.
func newTracer(serviceName, host string) (io.Closer, error) {
	transport, err := zipkin.NewHTTPTransport("http://" + host + ":9411/api/v1/spans")
	if err != nil {
		return nil, fmt.Errorf("could not init Zipkin HTTP transport: %w", err)
	}

	// Zipkin shares span IDs between client and server spans.
	propagator := zk.NewZipkinB3HTTPHeaderPropagator()

	tracer, closer := jaeger.NewTracer(
		serviceName,
		jaeger.NewConstSampler(true),
		jaeger.NewRemoteReporter(transport),
		jaeger.TracerOptions.Injector(opentracing.HTTPHeaders, propagator),
		jaeger.TracerOptions.Extractor(opentracing.HTTPHeaders, propagator),
		jaeger.TracerOptions.ZipkinSharedRPCSpan(true),
		jaeger.TracerOptions.Gen128Bit(true),
	)
	opentracing.SetGlobalTracer(tracer)

	return closer, nil
}
