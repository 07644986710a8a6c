package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestEndpointLabel(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"browse", "https://api.nasa.gov/neo/rest/v1/neo/browse", "browse"},
		{"browse trailing slash", "https://api.nasa.gov/neo/rest/v1/neo/browse/", "browse"},
		{"feed", "https://api.nasa.gov/neo/rest/v1/feed", "feed"},
		{"lookup", "https://api.nasa.gov/neo/rest/v1/neo/3542519", "lookup"},
		{"other", "https://api.nasa.gov/planetary/apod", "other"},
		{"invalid url", "http://%", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := EndpointLabel(tc.input); got != tc.expected {
				t.Errorf("EndpointLabel(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	if fetchAttemptsTotal == nil || archiveInsertsTotal == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveFetchAndInsert(t *testing.T) {
	Init()
	before := testutil.ToFloat64(fetchAttemptsTotal.WithLabelValues("lookup", OutcomeRetry))
	ObserveFetch("lookup", OutcomeRetry, 10*time.Millisecond)
	if got := testutil.ToFloat64(fetchAttemptsTotal.WithLabelValues("lookup", OutcomeRetry)); got != before+1 {
		t.Errorf("expected retry counter %f, got %f", before+1, got)
	}

	beforeInsert := testutil.ToFloat64(archiveInsertsTotal.WithLabelValues(InsertDuplicate))
	ObserveInsert(InsertDuplicate)
	if got := testutil.ToFloat64(archiveInsertsTotal.WithLabelValues(InsertDuplicate)); got != beforeInsert+1 {
		t.Errorf("expected duplicate counter %f, got %f", beforeInsert+1, got)
	}
}

// Fuzz test for EndpointLabel.
func FuzzEndpointLabel(f *testing.F) {
	testcases := []string{"https://api.nasa.gov/neo/rest/v1/feed", "https://api.nasa.gov/neo/rest/v1/neo/1", "::"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if EndpointLabel(orig) == "" {
			t.Errorf("EndpointLabel(%q) returned an empty string", orig)
		}
	})
}
