package app_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/neows-archiver/internal/app"
	"github.com/JakeFAU/neows-archiver/internal/config"
	"github.com/JakeFAU/neows-archiver/internal/crawl"
)

// fakeNeoWs serves two browse pages (3 + 2 objects) and a detail per object.
// Browse summaries carry a miss distance of "{id}000" km; details carry a
// different approach that must never reach the archive.
type fakeNeoWs struct {
	mu      sync.Mutex
	lookups map[string]int
	// items replaces the generated summaries of a page.
	items map[int][]string
	// details replaces the generated detail body of an object.
	details map[string]string
}

func (f *fakeNeoWs) handler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/neo/rest/v1/neo/browse", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "test-key", r.URL.Query().Get("api_key"))
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		var objects []string
		switch page {
		case 0:
			objects = []string{"1001", "1002", "1003"}
		case 1:
			objects = []string{"1004", "1005"}
		}
		items := make([]string, 0, len(objects))
		for _, id := range objects {
			items = append(items, summaryJSON(id))
		}
		if override, ok := f.items[page]; ok {
			items = override
		}
		fmt.Fprintf(w, `{"page":{"size":3,"total_elements":5,"total_pages":2,"number":%d},"near_earth_objects":[%s]}`,
			page, strings.Join(items, ","))
	})
	mux.HandleFunc("/neo/rest/v1/neo/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/neo/rest/v1/neo/")
		f.mu.Lock()
		f.lookups[id]++
		body, ok := f.details[id]
		f.mu.Unlock()
		if ok {
			fmt.Fprint(w, body)
			return
		}
		fmt.Fprintf(w, `{"id":%q,"neo_reference_id":%q,"name":"(%s)","is_potentially_hazardous_asteroid":true,`+
			`"close_approach_data":[{"close_approach_date":"1999-01-01","miss_distance":{"kilometers":"42","miles":"26"},"orbiting_body":"Mars"}],`+
			`"links":{"self":"x"}}`, id, id, id)
	})
	return mux
}

func summaryJSON(id string) string {
	return fmt.Sprintf(`{"id":%q,"neo_reference_id":%q,"name":"(%s)",`+
		`"close_approach_data":[{"close_approach_date":"2015-09-08","miss_distance":{"kilometers":"%s000","miles":"1"},"orbiting_body":"Earth"}]}`,
		id, id, id, id)
}

func (f *fakeNeoWs) count(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookups[id]
}

func testConfig(t *testing.T, baseURL string) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.NeoWs.BaseURL = baseURL + "/neo/rest/v1"
	cfg.NeoWs.APIKey = "test-key"
	cfg.HTTP.Retries = 1
	cfg.HTTP.RateLimitSleep = 0
	cfg.Crawl.PageSize = 3
	cfg.Archive.Path = filepath.Join(t.TempDir(), "asteroids.db")
	cfg.Blob.Backend = config.BlobMemory
	cfg.Server.UpstreamRPS = 0
	return cfg
}

func newApp(t *testing.T, cfg config.Config) *app.App {
	t.Helper()
	a, err := app.New(context.Background(), cfg, zap.NewNop(), app.Options{Registerer: prometheus.NewRegistry()})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })
	return a
}

func TestCrawlArchivesCatalogAndIsIdempotent(t *testing.T) {
	fake := &fakeNeoWs{lookups: map[string]int{}}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	a := newApp(t, testConfig(t, srv.URL))

	res, err := a.Crawl(context.Background())
	require.NoError(t, err)
	require.Equal(t, crawl.StateDone, res.State)
	require.Equal(t, 2, res.Pages)
	require.Equal(t, 5, res.Inserted)

	n, err := a.Archive().Count(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 5, n)

	row, err := a.Archive().Get(context.Background(), "1003")
	require.NoError(t, err)
	var stored struct {
		Approaches []struct {
			Date         string `json:"close_approach_date"`
			OrbitingBody string `json:"orbiting_body"`
			MissDistance struct {
				Kilometers string `json:"kilometers"`
			} `json:"miss_distance"`
		} `json:"close_approach_data"`
	}
	require.NoError(t, json.Unmarshal(row.Payload, &stored))
	require.Len(t, stored.Approaches, 1)
	require.Equal(t, "2015-09-08", stored.Approaches[0].Date)
	require.Equal(t, "Earth", stored.Approaches[0].OrbitingBody)
	require.Equal(t, "1003000", stored.Approaches[0].MissDistance.Kilometers)
	require.NotContains(t, string(row.Payload), "miles")
	require.NotContains(t, string(row.Payload), `"kilometers":"42"`)

	res, err = a.Crawl(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, res.Inserted)
	require.Equal(t, 5, res.Duplicates)
	n, err = a.Archive().Count(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 5, n)
}

func TestCrawlAbsorbsMalformedRecords(t *testing.T) {
	fake := &fakeNeoWs{
		lookups: map[string]int{},
		items: map[int][]string{
			0: {
				summaryJSON("1001"),
				`{"id":1002,"neo_reference_id":1002,"name":"(1002)","close_approach_data":[{"miss_distance":{"kilometers":"1002000"}}]}`,
				`"not an object"`,
				summaryJSON("1003"),
			},
		},
		details: map[string]string{
			"1004": `{"id":"1004","neo_reference_id":"1004","name":433,"is_potentially_hazardous_asteroid":"true"}`,
		},
	}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	a := newApp(t, testConfig(t, srv.URL))

	res, err := a.Crawl(context.Background())
	require.NoError(t, err)
	require.Equal(t, crawl.StateDone, res.State)
	require.Equal(t, 5, res.Inserted)
	require.Equal(t, 1, res.Skipped)
	require.Zero(t, res.LookupFailures)

	row, err := a.Archive().Get(context.Background(), "1002")
	require.NoError(t, err)
	require.Contains(t, string(row.Payload), `"kilometers":"1002000"`)

	row, err = a.Archive().Get(context.Background(), "1004")
	require.NoError(t, err)
	var stored map[string]any
	require.NoError(t, json.Unmarshal(row.Payload, &stored))
	require.NotContains(t, stored, "name")
	require.Equal(t, false, stored["is_potentially_hazardous_asteroid"])
}

func TestCrawlRecordsNoticesInMemoryBackend(t *testing.T) {
	fake := &fakeNeoWs{lookups: map[string]int{}}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	cfg.PubSub.Backend = config.PublisherMemory
	cfg.PubSub.TopicName = "neo-archived"
	core, logs := observer.New(zapcore.InfoLevel)

	a, err := app.New(context.Background(), cfg, zap.New(core), app.Options{Registerer: prometheus.NewRegistry()})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })

	res, err := a.Crawl(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, res.Inserted)
	require.Zero(t, res.SideEffectFailures)

	notices := logs.FilterMessage("archive notice recorded").All()
	require.Len(t, notices, 5)
	require.Equal(t, "neo-archived", notices[0].ContextMap()["topic"])

	_, err = a.Crawl(context.Background())
	require.NoError(t, err)
	require.Len(t, logs.FilterMessage("archive notice recorded").All(), 5)
}

func TestLookupAndHazardous(t *testing.T) {
	fake := &fakeNeoWs{lookups: map[string]int{}}
	mux := http.NewServeMux()
	mux.Handle("/", fake.handler(t))
	mux.HandleFunc("/neo/rest/v1/feed", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"element_count":2,"near_earth_objects":{"2015-09-08":[`+
			`{"id":"1002","neo_reference_id":"1002","is_potentially_hazardous_asteroid":true,"close_approach_data":[{"miss_distance":{"kilometers":"20"}}]},`+
			`{"id":"1001","neo_reference_id":"1001","is_potentially_hazardous_asteroid":true,"close_approach_data":[{"miss_distance":{"kilometers":"10"}}]}]}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a := newApp(t, testConfig(t, srv.URL))

	rec, err := a.Lookup(context.Background(), "1001")
	require.NoError(t, err)
	require.Equal(t, "1001", rec.ID)
	require.Len(t, rec.Approaches, 1)

	hazards, err := a.Hazardous(context.Background(), "2015-09-07", "2015-09-08")
	require.NoError(t, err)
	require.Len(t, hazards, 2)
	require.Equal(t, "1001", hazards[0].ID)
	require.Equal(t, "1002", hazards[1].ID)
}

func TestServerCachesLookupsInRedis(t *testing.T) {
	fake := &fakeNeoWs{lookups: map[string]int{}}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()
	mr := miniredis.RunT(t)

	cfg := testConfig(t, srv.URL)
	cfg.Cache.RedisAddress = mr.Addr()
	a := newApp(t, cfg)

	server, err := a.Server(context.Background())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/neo/1001", http.NoBody))
		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, "1001", body["id"])
	}
	require.Equal(t, 1, fake.count("1001"))
	require.True(t, mr.Exists("neows:detail:1001"))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Archive.Driver = "mysql"

	_, err := app.New(context.Background(), cfg, nil, app.Options{Registerer: prometheus.NewRegistry()})
	require.Error(t, err)
}
