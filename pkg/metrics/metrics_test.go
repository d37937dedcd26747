package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNoApplication(t *testing.T) {
	ctx := NewContext(context.Background(), nil)
	assert.Nil(t, ctx.Value(NewRelicContextKey{}))

	// None of these should panic without an application or transaction.
	RecordCount(ctx, "count", 1)
	RecordDuration(ctx, "duration", time.Second)
	RecordEvent(ctx, "event", map[string]interface{}{"k": "v"})

	tracer := TraceMethodCall(ctx, "metrics", "TestNoApplication")
	assert.Nil(t, tracer)
	tracer.AddAttribute("k", "v")
	tracer.OnError(assert.AnError)
	tracer.End()
}

func TestWrapHTTPHandler_NoApplication(t *testing.T) {
	var called bool
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	WrapHTTPHandler(nil, "/", h).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.True(t, called)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
