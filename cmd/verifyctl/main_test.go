package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verifyflow.backend/internal/config"
	"verifyflow.backend/internal/infrastructure/queue"
	"verifyflow.backend/pkg/crypto"
	"verifyflow.backend/pkg/jwt"
)

func withHooks(t *testing.T) {
	t.Helper()
	origLoadDotenv := loadDotenv
	origLoadCfg := loadCfg
	origOpenQueue := openQueue
	t.Cleanup(func() {
		loadDotenv = origLoadDotenv
		loadCfg = origLoadCfg
		openQueue = origOpenQueue
	})

	loadDotenv = func(...string) error { return nil }
	loadCfg = func() *config.Config {
		return &config.Config{
			JWT:      config.JWTConfig{Secret: "cli-secret", Issuer: "verifyflow", Expiry: time.Hour},
			Security: config.SecurityConfig{WebhookSecret: "whsec_env"},
		}
	}
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	err := cmd.Execute()
	return strings.TrimSpace(out.String()), err
}

func TestKeygen(t *testing.T) {
	withHooks(t)
	key, err := run(t, "", "keygen")
	require.NoError(t, err)
	assert.Len(t, key, 64)

	_, err = crypto.NewCipher(key)
	assert.NoError(t, err)
}

func TestSign(t *testing.T) {
	withHooks(t)
	payload := `{"event_type":"verification.completed"}`

	sig, err := run(t, payload, "sign", "--secret", "explicit")
	require.NoError(t, err)
	assert.True(t, crypto.VerifySignature([]byte("explicit"), []byte(payload), sig))

	path := filepath.Join(t.TempDir(), "payload.json")
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o600))
	sig, err = run(t, "", "sign", "--file", path)
	require.NoError(t, err)
	assert.True(t, crypto.VerifySignature([]byte("whsec_env"), []byte(payload), sig))

	loadCfg = func() *config.Config { return &config.Config{} }
	_, err = run(t, payload, "sign")
	assert.Error(t, err)
}

func TestToken(t *testing.T) {
	withHooks(t)
	subject := uuid.New()

	token, err := run(t, "", "token", "--subject", subject.String(), "--role", "admin")
	require.NoError(t, err)
	claims, err := jwt.NewJWTService("cli-secret", "verifyflow", time.Hour).ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, subject, claims.SubjectID)
	assert.Equal(t, jwt.RoleAdmin, claims.Role)

	_, err = run(t, "", "token", "--role", "root")
	assert.Error(t, err)
	_, err = run(t, "", "token", "--subject", "nope")
	assert.Error(t, err)
}

func useTestQueue(t *testing.T) *queue.RedisQueue {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	opts := queue.DefaultOptions()
	opts.MaxAttempts = 1
	q := queue.NewRedisQueue(client, opts)
	openQueue = func(context.Context, *config.Config) (queueAdmin, io.Closer, error) {
		return q, io.NopCloser(nil), nil
	}
	return q
}

func TestQueueCommands(t *testing.T) {
	withHooks(t)
	q := useTestQueue(t)
	ctx := context.Background()
	docID := uuid.NewString()

	jobID, err := run(t, "", "queue", "enqueue", docID, "--priority", "high")
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	out, err := run(t, "", "queue", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "ready")
	assert.Regexp(t, `ready\s+1`, out)

	out, err = run(t, "", "queue", "failed")
	require.NoError(t, err)
	assert.Equal(t, "no failed jobs", out)

	job, err := q.Reserve(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	_, err = q.Fail(ctx, job, errors.New("provider outage"))
	require.NoError(t, err)

	out, err = run(t, "", "queue", "failed")
	require.NoError(t, err)
	assert.Contains(t, out, jobID)
	assert.Contains(t, out, "provider outage")

	out, err = run(t, "", "queue", "stats", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"failed": 1`)

	out, err = run(t, "", "queue", "retry", jobID)
	require.NoError(t, err)
	assert.Equal(t, "requeued "+jobID, out)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Ready)
	assert.EqualValues(t, 0, stats.Failed)

	_, err = run(t, "", "queue", "retry", "missing")
	assert.Error(t, err)
	_, err = run(t, "", "queue", "enqueue", "not-a-uuid")
	assert.Error(t, err)
}

func TestQueueCommands_ConnectError(t *testing.T) {
	withHooks(t)
	openQueue = func(context.Context, *config.Config) (queueAdmin, io.Closer, error) {
		return nil, nil, errors.New("dial tcp: refused")
	}
	_, err := run(t, "", "queue", "stats")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to queue")
}
