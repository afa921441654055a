package exporters

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHeaders(t *testing.T) {
	headers, err := ParseHeaders("api-key=secret, x-team = graph ,")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"api-key": "secret", "x-team": "graph"}, headers)

	_, err = ParseHeaders("novalue")
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		in       OTLPConfig
		endpoint string
		insecure bool
		protocol string
		wantErr  bool
	}{
		{"host port", OTLPConfig{Endpoint: "collector:4317"}, "collector:4317", false, "grpc", false},
		{"http url", OTLPConfig{Endpoint: "http://collector:4318", Protocol: "http"}, "collector:4318", true, "http", false},
		{"https url", OTLPConfig{Endpoint: "https://otel.example.com"}, "otel.example.com", false, "grpc", false},
		{"empty", OTLPConfig{}, "", false, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.normalize()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.endpoint, got.Endpoint)
			assert.Equal(t, tt.insecure, got.Insecure)
			assert.Equal(t, tt.protocol, got.Protocol)
		})
	}
}

func TestNewOTLPExporterRejectsUnknownProtocol(t *testing.T) {
	_, err := NewOTLPExporter(context.Background(), OTLPConfig{Endpoint: "localhost:4317", Protocol: "thrift"})
	assert.ErrorContains(t, err, "unsupported otlp protocol")
}
