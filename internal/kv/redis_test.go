package kv_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wfs-go/internal/kv"
)

func TestNewRedisKV_InvalidURL(t *testing.T) {
	_, err := kv.NewRedisKV("not a url", "")
	assert.Error(t, err)
}

// TestRedisKV_Contract runs against WFS_TEST_REDIS_URL when set.
func TestRedisKV_Contract(t *testing.T) {
	url := os.Getenv("WFS_TEST_REDIS_URL")
	if url == "" {
		t.Skip("WFS_TEST_REDIS_URL not set")
	}
	store, err := kv.NewRedisKV(url, "wfs-test:"+t.Name()+":")
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Ping(context.Background()))

	runKVContract(t, store)
}
