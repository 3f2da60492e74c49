package httpx

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func tagMW(tag string, trace *[]string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*trace = append(*trace, tag)
			next.ServeHTTP(w, r)
		})
	}
}

func TestChain_Order(t *testing.T) {
	var trace []string
	h := Chain(tagMW("a", &trace), nil, tagMW("b", &trace), tagMW("c", &trace)).
		Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			trace = append(trace, "h")
		}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if got := strings.Join(trace, ","); got != "a,b,c,h" {
		t.Fatalf("trace=%s, want a,b,c,h", got)
	}
}

func TestChain_HandlerSnapshotsChain(t *testing.T) {
	var trace []string
	mws := Chain(tagMW("a", &trace))
	h := mws.Handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	mws[0] = tagMW("z", &trace)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if got := strings.Join(trace, ","); got != "a" {
		t.Fatalf("trace=%s, want a", got)
	}
}

func TestChain_NilHandlerPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	Chain().Handler(nil)
}
