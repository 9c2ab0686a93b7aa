package places

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/reelsplace/internal/logging"
)

// stubProvider is a fake Text Search endpoint. Responses are keyed by query;
// unknown queries get ZERO_RESULTS.
type stubProvider struct {
	mu        sync.Mutex
	responses map[string]SearchResponse
	queries   []string
	languages []string
}

func (s *stubProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/textsearch/json" {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query().Get("query")
	s.mu.Lock()
	s.queries = append(s.queries, q)
	s.languages = append(s.languages, r.URL.Query().Get("language"))
	resp, ok := s.responses[q]
	s.mu.Unlock()
	if !ok {
		resp = SearchResponse{Status: "ZERO_RESULTS"}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *stubProvider) seen() ([]string, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...), append([]string(nil), s.languages...)
}

func newTestResolver(t *testing.T, stub *stubProvider) (*Resolver, *Client) {
	t.Helper()
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)
	client := NewClient(ClientConfig{BaseURL: srv.URL, APIKey: "test-key", Language: "ko", Timeout: time.Second}, srv.Client())
	return NewResolver(client, client, logging.Discard()), client
}

func okResult(id string, photos ...string) SearchResponse {
	rating := 4.4
	total := 87
	res := SearchResult{PlaceID: id, Name: "연남 오브젝트", FormattedAddress: "서울 마포구 연남동 239-10", Rating: &rating, UserRatingsTotal: &total}
	for _, ref := range photos {
		res.Photos = append(res.Photos, Photo{PhotoReference: ref, Width: 800, Height: 600})
	}
	return SearchResponse{Status: StatusOK, Results: []SearchResult{res, {PlaceID: "second"}}}
}

func TestQueries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name, place, address string
		want                 []string
	}{
		{"both", "어니언", "서울 성동구 성수동", []string{"어니언 서울 성동구 성수동", "어니언", "서울 성동구 성수동 카페", "서울 성동구 성수동 식당"}},
		{"name only", "어니언", " ", []string{"어니언"}},
		{"address only", "", "서울 성동구 성수동", []string{"서울 성동구 성수동 카페", "서울 성동구 성수동 식당"}},
		{"neither", "", "", nil},
	}
	for _, tc := range tests {
		if got := Queries(tc.place, tc.address); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("%s: Queries = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestResolveFirstQueryWins(t *testing.T) {
	t.Parallel()

	stub := &stubProvider{responses: map[string]SearchResponse{
		"연남 오브젝트 서울특별시 마포구 연남동 239-10": okResult("ChIJ1", "r0", "r1", "r2", "r3"),
	}}
	r, client := newTestResolver(t, stub)

	p, err := r.Resolve(context.Background(), 7, "연남 오브젝트", "서울특별시 마포구 연남동 239-10")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	queries, languages := stub.seen()
	if len(queries) != 1 {
		t.Fatalf("queries = %q, want exactly one", queries)
	}
	if languages[0] != "ko" {
		t.Fatalf("language = %q, want ko", languages[0])
	}
	if p.ExternalPlaceID != "ChIJ1" || p.UserID != 7 || *p.Rating != 4.4 || *p.ReviewCount != 87 {
		t.Fatalf("unexpected place %+v", p)
	}
	if len(p.Images) != 3 {
		t.Fatalf("images = %d, want 3", len(p.Images))
	}
	for i, img := range p.Images {
		if img.SortOrder != i {
			t.Fatalf("image %d sort order = %d", i, img.SortOrder)
		}
		if want := client.PhotoURL([]string{"r0", "r1", "r2"}[i]); img.ImageURL != want {
			t.Fatalf("image %d url = %q, want %q", i, img.ImageURL, want)
		}
	}
}

func TestResolveFallsThroughCascade(t *testing.T) {
	t.Parallel()

	stub := &stubProvider{responses: map[string]SearchResponse{
		"어니언 서울 성동구 성수동": {Status: StatusOK},
		"어니언":                {Status: "OVER_QUERY_LIMIT"},
		"서울 성동구 성수동 식당":       okResult("ChIJ9", "only"),
	}}
	r, _ := newTestResolver(t, stub)

	p, err := r.Resolve(context.Background(), 1, "어니언", "서울 성동구 성수동")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := []string{"어니언 서울 성동구 성수동", "어니언", "서울 성동구 성수동 카페", "서울 성동구 성수동 식당"}
	if got, _ := stub.seen(); !reflect.DeepEqual(got, want) {
		t.Fatalf("queries = %q, want %q", got, want)
	}
	if p.ExternalPlaceID != "ChIJ9" || len(p.Images) != 1 || p.Images[0].SortOrder != 0 {
		t.Fatalf("unexpected place %+v", p)
	}
}

func TestResolveExhaustedReturnsNoMatch(t *testing.T) {
	t.Parallel()

	stub := &stubProvider{responses: map[string]SearchResponse{}}
	r, _ := newTestResolver(t, stub)

	_, err := r.Resolve(context.Background(), 1, "", "서울 성동구 성수동")
	if !errors.Is(err, ErrNoMatch) {
		t.Fatalf("err = %v, want ErrNoMatch", err)
	}
	if errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("clean misses must not be reported as upstream failure")
	}
	if got, _ := stub.seen(); len(got) != 2 {
		t.Fatalf("queries = %q, want both fallbacks", got)
	}
}

func TestResolveNoInputMakesNoCall(t *testing.T) {
	t.Parallel()

	stub := &stubProvider{}
	r, _ := newTestResolver(t, stub)
	if _, err := r.Resolve(context.Background(), 1, " ", ""); !errors.Is(err, ErrNoInput) {
		t.Fatalf("err = %v, want ErrNoInput", err)
	}
	if got, _ := stub.seen(); len(got) != 0 {
		t.Fatalf("made %d calls", len(got))
	}
}

// flakySearcher fails the first n calls with a transport error.
type flakySearcher struct {
	fail  int
	calls int
	resp  SearchResponse
}

func (f *flakySearcher) TextSearch(ctx context.Context, query string) (SearchResponse, error) {
	f.calls++
	if f.calls <= f.fail {
		return SearchResponse{}, ErrUpstreamUnavailable
	}
	return f.resp, nil
}

type fixedPhotos struct{}

func (fixedPhotos) PhotoURL(ref string) string { return "photo:" + ref }

func TestResolveRecoversFromTransportErrors(t *testing.T) {
	t.Parallel()

	s := &flakySearcher{fail: 2, resp: okResult("ChIJ5", "a")}
	r := NewResolver(s, fixedPhotos{}, logging.Discard())
	p, err := r.Resolve(context.Background(), 1, "어니언", "서울 성동구 성수동")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if s.calls != 3 || p.Images[0].ImageURL != "photo:a" {
		t.Fatalf("calls=%d place=%+v", s.calls, p)
	}

	all := &flakySearcher{fail: 100}
	r = NewResolver(all, fixedPhotos{}, logging.Discard())
	_, err = r.Resolve(context.Background(), 1, "어니언", "")
	if !errors.Is(err, ErrNoMatch) || !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("err = %v, want ErrNoMatch and ErrUpstreamUnavailable", err)
	}
}

func TestClientTimeoutIsTransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, APIKey: "k", Timeout: 50 * time.Millisecond}, srv.Client())
	if _, err := c.TextSearch(context.Background(), "x"); !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("err = %v, want ErrUpstreamUnavailable", err)
	}
}

func TestPhotoURL(t *testing.T) {
	t.Parallel()

	c := NewClient(ClientConfig{BaseURL: "https://maps.googleapis.com/maps/api/place/", APIKey: "KEY"}, nil)
	want := "https://maps.googleapis.com/maps/api/place/photo?maxwidth=400&photo_reference=AbC_1-2&key=KEY"
	if got := c.PhotoURL("AbC_1-2"); got != want {
		t.Fatalf("PhotoURL = %q, want %q", got, want)
	}
}
