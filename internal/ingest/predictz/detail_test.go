package predictz

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

const detailWithResult = `
<html><body>
<div class="predodds">
	<p class="ptxtteam">Team A</p>
	<p class="ptxtscore">3-1</p>
</div>
</body></html>`

const detailWithoutResult = `
<html><body>
<div class="preview"><p>Kick-off 15:00</p></div>
</body></html>`

func TestParseDetail(t *testing.T) {
	score, err := ParseDetail(detailWithResult)
	assert.Equal(t, err, nil)
	assert.Equal(t, score.Home, 3)
	assert.Equal(t, score.Away, 1)
}

func TestParseDetail_NoResult(t *testing.T) {
	_, err := ParseDetail(detailWithoutResult)
	assert.Equal(t, errors.Is(err, ErrNoResult), true)

	_, err = ParseDetail(`<div class="predodds"><p class="ptxtscore">v</p></div>`)
	assert.Equal(t, errors.Is(err, ErrNoResult), true)
}

func TestDetailClient_FetchesWithBrowserHeaders(t *testing.T) {
	var gotUA, gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		w.Write([]byte(detailWithResult))
	}))
	defer srv.Close()

	client := NewDetailClient(5 * time.Second)
	body, err := client.FetchDetail(context.Background(), srv.URL)
	assert.Equal(t, err, nil)
	assert.Equal(t, body, detailWithResult)
	assert.Equal(t, gotUA, UserAgent)
	assert.Equal(t, gotLang, "en-GB,en;q=0.9")
}

func TestDetailClient_DecodesGzip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		gz.Write([]byte(detailWithResult))
		gz.Close()
	}))
	defer srv.Close()

	body, err := NewDetailClient(5*time.Second).FetchDetail(context.Background(), srv.URL)
	assert.Equal(t, err, nil)
	assert.Equal(t, body, detailWithResult)
}

func TestDetailClient_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewDetailClient(5*time.Second).FetchDetail(context.Background(), srv.URL)
	assert.NotEqual(t, err, nil)
	assert.Equal(t, errors.Is(err, ErrChallenged), false)
}

type fakeRenderer struct {
	urls []string
	err  error
}

func (f *fakeRenderer) RenderedHTML(_ context.Context, url string) (string, error) {
	f.urls = append(f.urls, url)
	if f.err != nil {
		return "", f.err
	}
	return detailWithResult, nil
}

const challengePage = `<html><head><title>Just a moment...</title></head>
<body><script src="/cdn-cgi/challenge-platform/h/b/orchestrate/jsch/v1"></script></body></html>`

func TestDetailClient_ChallengeWithoutFallback(t *testing.T) {
	for _, status := range []int{http.StatusForbidden, http.StatusServiceUnavailable} {
		t.Run(fmt.Sprint(status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
				w.Write([]byte(challengePage))
			}))
			defer srv.Close()

			_, err := NewDetailClient(5*time.Second).FetchDetail(context.Background(), srv.URL)
			assert.Equal(t, errors.Is(err, ErrChallenged), true)
		})
	}
}

func TestDetailClient_ChallengeFallsBackToBrowser(t *testing.T) {
	for _, status := range []int{http.StatusForbidden, http.StatusServiceUnavailable, http.StatusOK} {
		t.Run(fmt.Sprint(status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
				w.Write([]byte(challengePage))
			}))
			defer srv.Close()

			renderer := &fakeRenderer{}
			client := NewDetailClient(5 * time.Second).WithBrowserFallback(renderer)

			body, err := client.FetchDetail(context.Background(), srv.URL+"/predictions/a-v-b/")
			assert.Equal(t, err, nil)
			assert.Equal(t, body, detailWithResult)
			assert.Equal(t, renderer.urls, []string{srv.URL + "/predictions/a-v-b/"})

			score, err := ParseDetail(body)
			assert.Equal(t, err, nil)
			assert.Equal(t, *score, Score{Home: 3, Away: 1})
		})
	}
}

func TestDetailClient_FallbackError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewDetailClient(5 * time.Second).WithBrowserFallback(&fakeRenderer{err: errors.New("chrome crashed")})
	_, err := client.FetchDetail(context.Background(), srv.URL)
	assert.NotEqual(t, err, nil)
}
