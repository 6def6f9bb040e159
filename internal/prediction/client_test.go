package prediction_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vocalize/internal/prediction"
)

func testClient(url string) *prediction.Client {
	return prediction.NewClient(prediction.Config{
		BaseURL:    url,
		Token:      "test-token",
		Attempts:   3,
		RetryDelay: time.Millisecond,
	})
}

func TestDispatchImmediateSuccess(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/predictions", r.URL.Path)
		require.Equal(t, "Token test-token", r.Header.Get("Authorization"))
		w.Write([]byte(`{"id":"job-1","status":"succeeded","output":{"audio_url":"https://cdn/audio.mp3"}}`))
	}))
	defer srv.Close()

	res, err := testClient(srv.URL).Dispatch(context.Background(), "tts-v2", map[string]any{"text": "hi"}, time.Minute)
	require.NoError(t, err)
	require.True(t, res.Terminal())
	require.Equal(t, prediction.StatusSucceeded, res.Status)
	require.Equal(t, "https://cdn/audio.mp3", res.OutputRef)
}

func TestDispatchRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"id":"job-2","status":"processing","polling_url":"https://api/poll/job-2"}`))
	}))
	defer srv.Close()

	res, err := testClient(srv.URL).Dispatch(context.Background(), "tts-v2", nil, time.Minute)
	require.NoError(t, err)
	require.Equal(t, int32(3), calls.Load())
	require.False(t, res.Terminal())
	require.Equal(t, "https://api/poll/job-2", res.PollingURL)
}

func TestDispatchNeverRetries4xx(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"invalid input"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Dispatch(context.Background(), "tts-v2", nil, time.Minute)
	require.Error(t, err)
	require.Equal(t, int32(1), calls.Load())

	var apiErr *prediction.APIError
	require.ErrorAs(t, err, &apiErr)
	require.False(t, apiErr.Retryable())
}

func TestDispatchExhaustsRetryBudget(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Dispatch(context.Background(), "tts-v2", nil, time.Minute)
	require.Error(t, err)
	require.Equal(t, int32(3), calls.Load())
}

func TestDispatchNeverRetriesMalformedBody(t *testing.T) {
	t.Parallel()

	// A 200 with an unrecognized body will come back identical on every
	// re-dispatch, so it must fail after a single call.
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"id":"job-m","status":"mystery"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Dispatch(context.Background(), "tts-v2", nil, time.Minute)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unexpected prediction status")
	require.Equal(t, int32(1), calls.Load())
}

func TestDispatchNeverRetriesMissingOutput(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"id":"job-m","status":"succeeded"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Dispatch(context.Background(), "tts-v2", nil, time.Minute)
	require.ErrorIs(t, err, prediction.ErrMissingOutput)
	require.Equal(t, int32(1), calls.Load())
}

func TestPoll(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		w.Write([]byte(`{"id":"job-3","status":"processing","progress":40}`))
	}))
	defer srv.Close()

	res, err := testClient(srv.URL).Poll(context.Background(), srv.URL+"/poll/job-3", time.Minute)
	require.NoError(t, err)
	require.Equal(t, prediction.StatusProcessing, res.Status)
	require.Equal(t, 40, res.Progress)
}

func TestNormalizeOutputShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		raw      string
		wantRef  string
		wantSecs float64
	}{
		{
			"bare string output",
			`{"id":"j","status":"succeeded","output":"https://cdn/out.mp3"}`,
			"https://cdn/out.mp3", 0,
		},
		{
			"nested url",
			`{"id":"j","status":"succeeded","output":{"url":"https://cdn/out.wav"}}`,
			"https://cdn/out.wav", 0,
		},
		{
			"nested audio_url",
			`{"id":"j","status":"succeeded","output":{"audio_url":"https://cdn/a.mp3"}}`,
			"https://cdn/a.mp3", 0,
		},
		{
			"voice id",
			`{"id":"j","status":"succeeded","output":{"voice_id":"voice-42"}}`,
			"voice-42", 0,
		},
		{
			"transcript with duration",
			`{"id":"j","status":"succeeded","output":{"text":"hello there","duration":93.5}}`,
			"hello there", 93.5,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			res, err := prediction.Normalize([]byte(tc.raw))
			require.NoError(t, err)
			require.Equal(t, prediction.StatusSucceeded, res.Status)
			require.Equal(t, tc.wantRef, res.OutputRef)
			require.Equal(t, tc.wantSecs, res.DurationSeconds)
		})
	}
}

func TestNormalizeMissingOutput(t *testing.T) {
	t.Parallel()

	_, err := prediction.Normalize([]byte(`{"id":"j","status":"succeeded"}`))
	require.ErrorIs(t, err, prediction.ErrMissingOutput)
}

func TestNormalizeFailureKeepsMessage(t *testing.T) {
	t.Parallel()

	res, err := prediction.Normalize([]byte(`{"id":"j","status":"failed","error":"NSFW content detected"}`))
	require.NoError(t, err)
	require.Equal(t, prediction.StatusFailed, res.Status)
	require.Equal(t, "NSFW content detected", res.ErrorMessage)
}

func TestNormalizeUnknownStatus(t *testing.T) {
	t.Parallel()

	_, err := prediction.Normalize([]byte(`{"id":"j","status":"mystery"}`))
	require.Error(t, err)
}

func TestNormalizePollingHandleFallback(t *testing.T) {
	t.Parallel()

	res, err := prediction.Normalize([]byte(`{"id":"j","status":"starting","urls":{"get":"https://api/pred/j"}}`))
	require.NoError(t, err)
	require.Equal(t, "https://api/pred/j", res.PollingURL)
}
