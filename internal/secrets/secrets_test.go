package secrets

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	values map[string]string
	calls  int
	err    error
}

func (f *fakeAPI) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(f.values[aws.ToString(in.SecretId)])}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCache_Get(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	api := &fakeAPI{values: map[string]string{"auth": "s3cret"}}
	c := New(api, discardLogger(), WithClock(func() time.Time { return now }))
	ctx := context.Background()

	v, err := c.Get(ctx, "auth")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", v)

	_, err = c.Get(ctx, "auth")
	require.NoError(t, err)
	assert.Equal(t, 1, api.calls, "second read within the TTL is cached")

	now = now.Add(CacheTTL)
	_, err = c.Get(ctx, "auth")
	require.NoError(t, err)
	assert.Equal(t, 2, api.calls, "expired entry is refetched")
}

func TestCache_GetFresh(t *testing.T) {
	api := &fakeAPI{values: map[string]string{"auth": "v1"}}
	c := New(api, discardLogger())
	ctx := context.Background()

	_, err := c.GetFresh(ctx, "auth")
	require.NoError(t, err)
	_, err = c.Get(ctx, "auth")
	require.NoError(t, err)
	assert.Equal(t, 2, api.calls, "GetFresh does not populate the cache")
}

func TestCache_GetJSON(t *testing.T) {
	api := &fakeAPI{values: map[string]string{"db": `{"username":"app","port":5432}`, "bad": "not json"}}
	c := New(api, discardLogger())

	var creds struct {
		Username string `json:"username"`
		Port     int    `json:"port"`
	}
	require.NoError(t, c.GetJSON(context.Background(), "db", &creds))
	assert.Equal(t, "app", creds.Username)
	assert.Equal(t, 5432, creds.Port)

	assert.Error(t, c.GetJSON(context.Background(), "bad", &creds))
}

func TestCache_Error(t *testing.T) {
	api := &fakeAPI{err: errors.New("access denied")}
	c := New(api, discardLogger())

	_, err := c.Get(context.Background(), "auth")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")

	api.err = nil
	api.values = map[string]string{"auth": "ok"}
	v, err := c.Get(context.Background(), "auth")
	require.NoError(t, err)
	assert.Equal(t, "ok", v, "failures are not cached")
}
