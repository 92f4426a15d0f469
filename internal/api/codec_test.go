package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestJSONCodecPlainStructs(t *testing.T) {
	c := jsonCodec{}
	token := "abc"

	b, err := c.Marshal(&ListMatchesRequest{UserID: "42", Status: "pending", PaginationToken: &token})
	require.NoError(t, err)
	assert.JSONEq(t, `{"user_id":"42","status":"pending","pagination_token":"abc"}`, string(b))

	var out ListMatchesRequest
	require.NoError(t, c.Unmarshal(b, &out))
	assert.Equal(t, "42", out.UserID)
	require.NotNil(t, out.PaginationToken)
	assert.Equal(t, "abc", *out.PaginationToken)

	assert.Error(t, c.Unmarshal([]byte("{"), &out))
}

func TestJSONCodecProtoMessages(t *testing.T) {
	c := jsonCodec{}

	b, err := c.Marshal(&healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING})
	require.NoError(t, err)
	assert.Contains(t, string(b), "SERVING")

	var out healthpb.HealthCheckResponse
	require.NoError(t, c.Unmarshal(b, &out))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, out.Status)
}

func TestCallOptionsSelectJSON(t *testing.T) {
	opts := callOptions(nil)
	require.Len(t, opts, 1)
	assert.Equal(t, "json", ContentSubtype)
	assert.Equal(t, "json", jsonCodec{}.Name())
}
