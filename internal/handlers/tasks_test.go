package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"rapport/internal/worker"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskStatusHandler(t *testing.T) {
	w := worker.New(4, zerolog.Nop())
	t.Cleanup(func() { w.Shutdown(context.Background()) })

	done := make(chan struct{})
	id, err := w.Enqueue("noop", func(ctx context.Context) (interface{}, error) {
		close(done)
		return "ok", nil
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run")
	}

	// poll until the worker records the terminal status
	deadline := time.Now().Add(2 * time.Second)
	for {
		task, ok := w.Status(id)
		if ok && task.Status == worker.StatusDone {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("task never reached done status")
		}
		time.Sleep(5 * time.Millisecond)
	}

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(id)

	require.NoError(t, TaskStatusHandler(w)(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var task worker.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &task))
	assert.Equal(t, worker.StatusDone, task.Status)
	assert.Equal(t, "ok", task.Result)
}

func TestTaskStatusHandler_UnknownID(t *testing.T) {
	w := worker.New(4, zerolog.Nop())
	t.Cleanup(func() { w.Shutdown(context.Background()) })

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues("no-such-task")

	require.NoError(t, TaskStatusHandler(w)(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelTaskHandler_FinishedTask(t *testing.T) {
	w := worker.New(4, zerolog.Nop())
	t.Cleanup(func() { w.Shutdown(context.Background()) })

	id, err := w.Enqueue("quick", func(ctx context.Context) (interface{}, error) {
		return nil, nil
	})
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for {
		task, ok := w.Status(id)
		if ok && task.Status == worker.StatusDone {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("task never finished")
		}
		time.Sleep(5 * time.Millisecond)
	}

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodDelete, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(id)

	require.NoError(t, CancelTaskHandler(w)(c))
	assert.Equal(t, http.StatusConflict, rec.Code)
}
