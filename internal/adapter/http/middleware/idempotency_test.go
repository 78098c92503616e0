package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/mock/gomock"

	"github.com/iho/gobank/internal/adapter/repository/redis"
	"github.com/iho/gobank/internal/domain"
	"github.com/iho/gobank/internal/infrastructure/metrics"
	"github.com/iho/gobank/internal/usecase"
	"github.com/iho/gobank/internal/usecase/gomocks"
	"github.com/iho/gobank/internal/usecase/mocks"
)

func postWithKey(key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/accounts/100000000001/deposit", bytes.NewBufferString(`{"amount":"10"}`))
	req.Header.Set(IdempotencyKeyHeader, key)
	return req.WithContext(domain.WithUser(req.Context(), &domain.User{ID: "user-1", Role: domain.RoleCustomer}))
}

func TestIdempotencyMiddleware_ReplaysFirstResponse(t *testing.T) {
	store := mocks.NewMockIdempotencyStore()
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	mw := NewIdempotencyMiddleware(store, time.Hour, m)

	calls := 0
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"balance":"510.00"}`))
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, postWithKey("k-1"))

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, postWithKey("k-1"))

	if calls != 1 {
		t.Fatalf("expected handler to run once, ran %d times", calls)
	}
	if second.Code != http.StatusCreated || second.Body.String() != `{"balance":"510.00"}` {
		t.Fatalf("unexpected replay: %d %s", second.Code, second.Body.String())
	}
	if second.Header().Get(IdempotencyReplayHeader) != "true" {
		t.Fatalf("expected replay header")
	}
	if got := testutil.ToFloat64(m.IdempotentReplays); got != 1 {
		t.Fatalf("expected one replay counted, got %v", got)
	}
}

func TestIdempotencyMiddleware_KeysAreScopedPerUser(t *testing.T) {
	store := mocks.NewMockIdempotencyStore()
	mw := NewIdempotencyMiddleware(store, time.Hour, nil)

	calls := 0
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), postWithKey("shared"))

	other := postWithKey("shared")
	other = other.WithContext(domain.WithUser(context.Background(), &domain.User{ID: "user-2"}))
	handler.ServeHTTP(httptest.NewRecorder(), other)

	if calls != 2 {
		t.Fatalf("expected both users to reach the handler, got %d calls", calls)
	}
}

func TestIdempotencyMiddleware_ReleasesFailedRequests(t *testing.T) {
	store := mocks.NewMockIdempotencyStore()
	mw := NewIdempotencyMiddleware(store, time.Hour, nil)

	status := http.StatusUnprocessableEntity
	calls := 0
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(status)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), postWithKey("retry-me"))
	status = http.StatusOK
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, postWithKey("retry-me"))

	if calls != 2 || rr.Code != http.StatusOK {
		t.Fatalf("expected failed request to be retryable, calls=%d code=%d", calls, rr.Code)
	}
}

func TestIdempotencyMiddleware_StoresResponseAfterClientDisconnect(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redislib.NewClient(&redislib.Options{Addr: mr.Addr()})
	defer client.Close()

	mw := NewIdempotencyMiddleware(redis.NewIdempotencyStore(client), time.Hour, nil)

	calls := 0
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if cancel, ok := r.Context().Value(cancelKey{}).(context.CancelFunc); ok {
			cancel()
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"balance":"510.00"}`))
	}))

	first := postWithKey("k-cancel")
	ctx, cancel := context.WithCancel(first.Context())
	defer cancel()
	handler.ServeHTTP(httptest.NewRecorder(), first.WithContext(context.WithValue(ctx, cancelKey{}, cancel)))

	retry := httptest.NewRecorder()
	handler.ServeHTTP(retry, postWithKey("k-cancel"))

	if calls != 1 {
		t.Fatalf("expected handler to run once, ran %d times", calls)
	}
	if retry.Code != http.StatusOK || retry.Body.String() != `{"balance":"510.00"}` {
		t.Fatalf("expected committed response to replay, got %d %s", retry.Code, retry.Body.String())
	}
	if retry.Header().Get(IdempotencyReplayHeader) != "true" {
		t.Fatalf("expected replay header")
	}
}

type cancelKey struct{}

func TestIdempotencyMiddleware_ReleasesKeyWhenHandlerPanics(t *testing.T) {
	store := mocks.NewMockIdempotencyStore()
	mw := NewIdempotencyMiddleware(store, time.Hour, nil)

	calls := 0
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			panic("boom")
		}
		w.WriteHeader(http.StatusOK)
	}))

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected the panic to propagate")
			}
		}()
		handler.ServeHTTP(httptest.NewRecorder(), postWithKey("k-panic"))
	}()

	if _, ok := store.Stored("user-1:POST:/api/v1/accounts/100000000001/deposit:k-panic"); ok {
		t.Fatal("expected key to be released after panic")
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, postWithKey("k-panic"))
	if calls != 2 || rr.Code != http.StatusOK {
		t.Fatalf("expected retry to reach the handler, calls=%d code=%d", calls, rr.Code)
	}
}

func TestIdempotencyMiddleware_PendingKeyConflicts(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := gomocks.NewMockIdempotencyStore(ctrl)
	store.EXPECT().
		CheckAndSet(gomock.Any(), gomock.Any(), gomock.Nil(), time.Hour).
		Return(true, []byte(usecase.IdempotencyPending), nil)

	rr := httptest.NewRecorder()
	NewIdempotencyMiddleware(store, time.Hour, nil).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run while the key is pending")
	})).ServeHTTP(rr, postWithKey("busy"))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestIdempotencyMiddleware_StoreError(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := gomocks.NewMockIdempotencyStore(ctrl)
	store.EXPECT().
		CheckAndSet(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(false, nil, context.DeadlineExceeded)

	rr := httptest.NewRecorder()
	NewIdempotencyMiddleware(store, time.Hour, nil).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called when store errors")
	})).ServeHTTP(rr, postWithKey("key-err"))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}
}

func TestIdempotencyMiddleware_SkipsNonMutatingRequests(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := gomocks.NewMockIdempotencyStore(ctrl)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts", nil)
	req.Header.Set(IdempotencyKeyHeader, "ignored")
	called := false

	NewIdempotencyMiddleware(store, time.Hour, nil).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})).ServeHTTP(httptest.NewRecorder(), req)

	if !called {
		t.Fatalf("expected next handler to be called")
	}
}
