package cli

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/chatflow/internal/config"
	"github.com/aretw0/chatflow/internal/logging"
)

const pizzaBot = `{
	"id": "pizza",
	"name": "Pizza Bot",
	"conversationFlow": {
		"nodes": [
			{"id": "1", "type": "message", "data": {"message": "Welcome to Pizza"}},
			{"id": "2", "type": "question", "data": {"message": "Your email?", "variable": "email"}},
			{"id": "3", "type": "message", "data": {"message": "Thanks {email}"}}
		],
		"edges": [
			{"source": "1", "target": "2"},
			{"source": "2", "target": "3"}
		]
	}
}`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	bots := filepath.Join(dir, "bots")
	require.NoError(t, os.MkdirAll(bots, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(bots, "pizza.json"), []byte(pizzaBot), 0644))

	cfg := config.Default()
	cfg.Bots.Dir = bots
	cfg.Store.Driver = config.DriverMemory
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	app, err := NewApp(context.Background(), cfg, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func TestApp_Chat(t *testing.T) {
	app := newTestApp(t, testConfig(t))

	out := &bytes.Buffer{}
	id, err := app.Chat(context.Background(), ChatOptions{
		BotID: "pizza",
		In:    strings.NewReader("ana@example.com\n"),
		Out:   out,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Contains(t, out.String(), "Welcome to Pizza")
	assert.Contains(t, out.String(), "Thanks ana@example.com")

	sess, err := app.Engine.Session(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, sess.Finished)
}

func TestApp_ChatJSON(t *testing.T) {
	app := newTestApp(t, testConfig(t))

	out := &bytes.Buffer{}
	_, err := app.Chat(context.Background(), ChatOptions{
		BotID: "pizza",
		JSON:  true,
		In:    strings.NewReader(`{"input": "bob@example.com"}` + "\n"),
		Out:   out,
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), `"sessionId"`)
	assert.Contains(t, out.String(), "Thanks bob@example.com")
}

func TestApp_FileStoreResume(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Driver = config.DriverFile
	cfg.Store.Dir = filepath.Join(t.TempDir(), "sessions")
	app := newTestApp(t, cfg)

	id, err := app.Chat(context.Background(), ChatOptions{
		BotID: "pizza",
		In:    strings.NewReader(""),
		Out:   io.Discard,
	})
	require.NoError(t, err)

	out := &bytes.Buffer{}
	_, err = app.Chat(context.Background(), ChatOptions{
		SessionID: id,
		In:        strings.NewReader("carol@example.com\n"),
		Out:       out,
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Thanks carol@example.com")
}

func TestApp_RedisStoreWithLock(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig(t)
	cfg.Store.Driver = config.DriverRedis
	cfg.Store.RedisAddr = mr.Addr()
	cfg.Store.Lock = true
	app := newTestApp(t, cfg)

	reply, err := app.Engine.Start(context.Background(), "pizza")
	require.NoError(t, err)
	assert.True(t, mr.Exists(cfg.Store.Prefix+reply.SessionID))
}

func TestApp_RedisUnreachable(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Driver = config.DriverRedis
	cfg.Store.RedisAddr = "127.0.0.1:1"

	_, err := NewApp(context.Background(), cfg, logging.NewNop())
	assert.ErrorContains(t, err, "failed to reach redis")
}

func TestApp_SQLiteStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Driver = config.DriverSQLite
	cfg.Store.DSN = filepath.Join(t.TempDir(), "chatflow.db")
	app := newTestApp(t, cfg)

	reply, err := app.Engine.Start(context.Background(), "pizza")
	require.NoError(t, err)

	sessions, err := app.Engine.Sessions(context.Background(), "pizza")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, reply.SessionID, sessions[0].ID)
}

func TestApp_ProtectedStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Driver = config.DriverFile
	cfg.Store.Dir = filepath.Join(t.TempDir(), "sessions")
	cfg.Security.PIIPatterns = []string{"email"}
	cfg.Security.EncryptionKey = hex.EncodeToString(bytes.Repeat([]byte{7}, 32))
	app := newTestApp(t, cfg)

	id, err := app.Chat(context.Background(), ChatOptions{
		BotID: "pizza",
		In:    strings.NewReader("dave@example.com\n"),
		Out:   io.Discard,
	})
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(cfg.Store.Dir, id+".json"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "dave@example.com")

	sess, err := app.Engine.Session(context.Background(), id)
	require.NoError(t, err)
	assert.NotEqual(t, "dave@example.com", sess.Variables["email"])
}

func TestApp_InvalidEncryptionKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.Security.EncryptionKey = "short"

	_, err := NewApp(context.Background(), cfg, logging.NewNop())
	assert.Error(t, err)
}

func TestApp_Serve(t *testing.T) {
	app := newTestApp(t, testConfig(t))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.ServeListener(ctx, ln) }()

	url := fmt.Sprintf("http://%s", ln.Addr().String())
	require.Eventually(t, func() bool {
		resp, err := http.Get(url + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	_, err = app.Engine.Start(context.Background(), "pizza")
	require.NoError(t, err)

	resp, err := http.Get(url + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "chatflow_sessions_started_total")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestSignalContext_ParentCancel(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	sc := NewSignalContext(parent)
	cancel()
	<-sc.Done()
	assert.Nil(t, sc.Signal())
}
