package handlers

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prizedraw/internal/models"
	"prizedraw/internal/services"
	"prizedraw/internal/storage"
)

func TestHub_PushesStoreChanges(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := services.Open(ctx, storage.NewMemory())
	require.NoError(t, err)
	engine := services.NewEngine(store, rand.New(rand.NewSource(1)))
	hub := NewHub()
	go hub.Run(ctx)
	unsubscribe := store.Subscribe(hub.Observe(engine))
	defer unsubscribe()

	router := gin.New()
	NewHTTPHandler(store, engine, hub).RegisterRoutes(router)
	srv := httptest.NewServer(router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	// Registration is asynchronous; keep mutating until a message arrives.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				store.AddPrize(ctx, models.Prize{Name: "一等奖", Quota: 1, Enabled: true})
			}
		}
	}()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))

	assert.Equal(t, "change", msg.Type)
	require.NotNil(t, msg.Change)
	assert.Equal(t, services.ChangePrizes, msg.Change.Kind)
	assert.NotEmpty(t, msg.Change.Quotas)
	assert.Equal(t, services.StateIdle, msg.State)
}

func TestRollMessage(t *testing.T) {
	ctx := context.Background()
	store, err := services.Open(ctx, storage.NewMemory())
	require.NoError(t, err)
	require.NoError(t, store.BulkSetPersons(ctx, []models.Person{
		{EmployeeID: "E1", Name: "张三"},
		{EmployeeID: "E2", Name: "李四"},
		{EmployeeID: "E3", Name: "王五"},
	}))
	prize, err := store.AddPrize(ctx, models.Prize{Name: "一等奖", Quota: 2, Enabled: true})
	require.NoError(t, err)
	engine := services.NewEngine(store, rand.New(rand.NewSource(3)))

	_, ok := rollMessage(engine)
	assert.False(t, ok, "nothing rolls while idle")

	_, err = engine.Begin(prize.ID, 2)
	require.NoError(t, err)

	m, ok := rollMessage(engine)
	require.True(t, ok)
	assert.Equal(t, "roll", m.Type)
	assert.Equal(t, services.StateAwaitingCommit, m.State)
	require.NotNil(t, m.Pending)
	assert.Len(t, m.Names, 2)
}

func TestHub_DropsWhenQueueFull(t *testing.T) {
	hub := NewHub()
	for i := 0; i < outgoingBuffer+5; i++ {
		hub.Publish(Message{Type: "roll"})
	}
	assert.Len(t, hub.Broadcast, outgoingBuffer)
}

func TestHub_DrawWithObserverSubscribed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := services.Open(ctx, storage.NewMemory())
	require.NoError(t, err)
	require.NoError(t, store.BulkSetPersons(ctx, []models.Person{
		{EmployeeID: "E1", Name: "张三"},
		{EmployeeID: "E2", Name: "李四"},
	}))
	prize, err := store.AddPrize(ctx, models.Prize{Name: "一等奖", Quota: 1, Enabled: true})
	require.NoError(t, err)
	engine := services.NewEngine(store, rand.New(rand.NewSource(2)))
	hub := NewHub()
	go hub.Run(ctx)
	defer store.Subscribe(hub.Observe(engine))()

	router := gin.New()
	NewHTTPHandler(store, engine, hub).RegisterRoutes(router)

	serve := func(method, path, body string) int {
		done := make(chan int, 1)
		go func() {
			r := httptest.NewRequest(method, path, strings.NewReader(body))
			r.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, r)
			done <- w.Code
		}()
		select {
		case code := <-done:
			return code
		case <-time.After(2 * time.Second):
			t.Fatalf("%s %s did not return", method, path)
			return 0
		}
	}

	assert.Equal(t, http.StatusOK, serve(http.MethodPost, "/api/draws", `{"prizeId":"`+prize.ID+`","count":1}`))
	assert.Equal(t, http.StatusOK, serve(http.MethodGet, "/api/health", ""))
	assert.Equal(t, http.StatusOK, serve(http.MethodGet, "/api/draws/state", ""))
	assert.Len(t, store.ListWinnerRecords(services.RecordFilter{}), 1)
}
