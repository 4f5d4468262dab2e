package loadwatch_test

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/app"
	"github.com/aussiebroadwan/loadwatch/pkg/loadwatchsdk"
	"github.com/stretchr/testify/require"
)

/*
 * End-to-end helpers: the real application wired to a temporary sqlite
 * database and a fake LINE platform, driven over HTTP.
 */

const (
	channelSecret = "e2e-channel-secret"
	jobsToken     = "e2e-jobs-token"

	playerCode = "1111"
	coachCode  = "0607"
)

// outbound is one message the service sent to the platform.
type outbound struct {
	Kind  string // reply or push
	To    string // reply token or user id
	Texts []string
}

// fakeLINE stands in for api.line.me.
type fakeLINE struct {
	mu       sync.Mutex
	sent     []outbound
	profiles map[string]string
}

func (f *fakeLINE) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if userID, ok := strings.CutPrefix(r.URL.Path, "/v2/bot/profile/"); ok {
		name, found := f.profiles[userID]
		if !found {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"Not found"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"userId": userID, "displayName": name})
		return
	}

	var body struct {
		ReplyToken string `json:"replyToken"`
		To         string `json:"to"`
		Messages   []struct {
			Text string `json:"text"`
		} `json:"messages"`
	}
	raw, _ := io.ReadAll(r.Body)
	_ = json.Unmarshal(raw, &body)

	out := outbound{}
	switch r.URL.Path {
	case "/v2/bot/message/reply":
		out.Kind, out.To = "reply", body.ReplyToken
	case "/v2/bot/message/push":
		out.Kind, out.To = "push", body.To
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	for _, m := range body.Messages {
		out.Texts = append(out.Texts, m.Text)
	}

	f.mu.Lock()
	f.sent = append(f.sent, out)
	f.mu.Unlock()

	_, _ = w.Write([]byte(`{}`))
}

func (f *fakeLINE) replyFor(token string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.sent {
		if o.Kind == "reply" && o.To == token && len(o.Texts) > 0 {
			return o.Texts[0], true
		}
	}
	return "", false
}

// pushes returns push texts keyed by recipient.
func (f *fakeLINE) pushes() map[string][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string][]string)
	for _, o := range f.sent {
		if o.Kind == "push" {
			out[o.To] = append(out[o.To], o.Texts...)
		}
	}
	return out
}

func (f *fakeLINE) reset() {
	f.mu.Lock()
	f.sent = nil
	f.mu.Unlock()
}

type env struct {
	baseURL string
	line    *fakeLINE
	client  *loadwatchsdk.Client
	tokens  atomic.Int64
}

// setupLoadwatch starts the service configured through the environment,
// the same way a deployment would configure it.
func setupLoadwatch(t *testing.T) *env {
	t.Helper()

	line := &fakeLINE{profiles: map[string]string{"Uplayer-alice": "Alice"}}
	lineSrv := httptest.NewServer(line)
	t.Cleanup(lineSrv.Close)

	t.Setenv(app.ConfigFileEnv, "")
	t.Setenv("ENV", "test")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("TIMEZONE", "Asia/Taipei")
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_FILE", filepath.Join(t.TempDir(), "loadwatch.db"))
	t.Setenv("TRANSPORT", "line")
	t.Setenv("LINE_CHANNEL_SECRET", channelSecret)
	t.Setenv("LINE_CHANNEL_ACCESS_TOKEN", "e2e-access-token")
	t.Setenv("LINE_API_ENDPOINT", lineSrv.URL)
	t.Setenv("VERIFY_CODES", playerCode+":player,"+coachCode+":coach")
	t.Setenv("JOBS_TOKEN", jobsToken)
	t.Setenv("SCHEDULE_ENABLED", "false")

	cfg, err := app.LoadConfig("")
	require.NoError(t, err)

	application, err := app.New(cfg)
	require.NoError(t, err)

	srv := httptest.NewServer(application.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = application.Shutdown()
	})

	return &env{
		baseURL: srv.URL,
		line:    line,
		client:  loadwatchsdk.NewClient(srv.URL, jobsToken),
	}
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(channelSecret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// postWebhook delivers raw as a LINE callback and returns the status code.
func (e *env) postWebhook(t *testing.T, raw []byte, signature string) int {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, e.baseURL+"/callback", bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Line-Signature", signature)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

// say sends text from userID and returns the service's reply.
func (e *env) say(t *testing.T, userID, text string) string {
	t.Helper()

	token := fmt.Sprintf("rt-%d", e.tokens.Add(1))
	event := map[string]any{
		"destination": "Ubot",
		"events": []map[string]any{{
			"type":       "message",
			"replyToken": token,
			"timestamp":  time.Now().UnixMilli(),
			"mode":       "active",
			"source":     map[string]string{"type": "user", "userId": userID},
			"message":    map[string]string{"id": token, "type": "text", "text": text},
		}},
	}
	raw, err := json.Marshal(event)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, e.postWebhook(t, raw, sign(raw)))

	reply, ok := e.line.replyFor(token)
	require.True(t, ok, "no reply for %q from %s", text, userID)
	return reply
}
