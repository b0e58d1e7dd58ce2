package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/tradeclean/src/config"
	"github.com/username/tradeclean/src/metrics"
	"github.com/username/tradeclean/src/parsers"
	"github.com/username/tradeclean/src/processors"
	"github.com/username/tradeclean/src/services"
	"github.com/username/tradeclean/src/storage"
	"github.com/username/tradeclean/web"
)

const activityCSV = `"Activity Date","Process Date","Settle Date","Instrument","Description","Trans Code","Quantity","Price","Amount"
"9/3/2024","9/3/2024","9/4/2024","AAPL","AAPL Call","STO","1","$1.00","$100.00"
"9/5/2024","9/5/2024","9/6/2024","AAPL","AAPL Call","BTC","1","$0.40","($40.00)"
"9/12/2024","9/12/2024","9/13/2024","","ACH Deposit","ACH","","","$1,000.00"
"9/13/2024","9/13/2024","9/16/2024","SPY","SPY Call","STO","1","$2.50","n/a"
`

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		Port:                 "0",
		LogLevel:             "error",
		MaxUploadSizeBytes:   1 << 20,
		ResultCacheTTL:       time.Minute,
		CacheCleanupInterval: time.Minute,
		RateLimitRPS:         1000,
		RateLimitBurst:       1000,
		AllowedOrigins:       []string{"http://localhost:3000"},
	}
}

func newTestRouter(t *testing.T, cfg *config.AppConfig) http.Handler {
	t.Helper()
	cfg.UploadDir = t.TempDir()
	store, err := storage.NewStore(cfg.UploadDir)
	require.NoError(t, err)
	templates, err := web.ParseTemplates()
	require.NoError(t, err)

	m := metrics.New()
	svc := services.NewUploadService(store, parsers.NewNormalizer(), processors.NewPLProcessor(), cache.New(cfg.ResultCacheTTL, cfg.CacheCleanupInterval), m)
	return NewRouter(NewUploadHandler(svc, templates, cfg.MaxUploadSizeBytes), m.Handler(), cfg)
}

func fileForm(t *testing.T, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func do(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func postFile(router http.Handler, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	return do(router, req)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestPages(t *testing.T) {
	router := newTestRouter(t, testConfig())

	rec := do(router, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), `href="/upload"`)

	rec = do(router, httptest.NewRequest(http.MethodGet, "/upload", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="file"`)
	assert.Contains(t, rec.Body.String(), "1.0 MB")
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, testConfig())

	body, ct := fileForm(t, "activity.csv", "text/csv", []byte(activityCSV))
	require.Equal(t, http.StatusCreated, postFile(router, "/api/upload", body, ct).Code)

	rec := do(router, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `tradeclean_uploads_total{outcome="success"} 1`)
}

func TestHandleUploadHTML_DisplaysCleanedTable(t *testing.T) {
	router := newTestRouter(t, testConfig())

	body, ct := fileForm(t, "activity.csv", "text/csv", []byte(activityCSV))
	rec := postFile(router, "/upload", body, ct)
	require.Equal(t, http.StatusOK, rec.Code)

	page := rec.Body.String()
	assert.Contains(t, page, `class="dataframe table table-striped"`)
	assert.Contains(t, page, "activity.csv")
	assert.Contains(t, page, "<th>Activity Date</th>")
	assert.NotContains(t, page, "Process Date")
	assert.NotContains(t, page, "ACH Deposit")
	assert.Contains(t, page, "<td>NaN</td>")
	assert.Contains(t, page, "<th>2</th>")
	assert.Contains(t, page, "<td>140</td>")
	assert.Contains(t, page, "/cleaned.csv")
	assert.Contains(t, page, "row 2: n/a")
}

func TestHandleUploadHTML_Errors(t *testing.T) {
	router := newTestRouter(t, testConfig())

	t.Run("no file part", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("other", "x"))
		require.NoError(t, mw.Close())

		rec := postFile(router, "/upload", &buf, mw.FormDataContentType())
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "No file part", decodeError(t, rec))
	})

	t.Run("not multipart", func(t *testing.T) {
		rec := postFile(router, "/upload", bytes.NewBufferString("a=b"), "application/x-www-form-urlencoded")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "No file part", decodeError(t, rec))
	})

	t.Run("no selected file", func(t *testing.T) {
		body, ct := fileForm(t, "", "application/octet-stream", nil)
		rec := postFile(router, "/upload", body, ct)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "No selected file", decodeError(t, rec))
	})

	t.Run("file cannot be cleaned", func(t *testing.T) {
		body, ct := fileForm(t, "empty.csv", "text/csv", nil)
		rec := postFile(router, "/upload", body, ct)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "File could not be cleaned.", decodeError(t, rec))
	})

	t.Run("wrong extension", func(t *testing.T) {
		body, ct := fileForm(t, "activity.xlsx", "text/csv", []byte(activityCSV))
		rec := postFile(router, "/upload", body, ct)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("binary content", func(t *testing.T) {
		png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)
		body, ct := fileForm(t, "activity.csv", "text/csv", png)
		rec := postFile(router, "/upload", body, ct)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decodeError(t, rec), "not consistent with a CSV file")
	})
}

func TestHandleUpload_TooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.MaxUploadSizeBytes = 64
	router := newTestRouter(t, cfg)

	body, ct := fileForm(t, "activity.csv", "text/csv", []byte(activityCSV))
	rec := postFile(router, "/api/upload", body, ct)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "File too large, max 64 B", decodeError(t, rec))
}

func TestUploadAPI_ResultAndDownloads(t *testing.T) {
	router := newTestRouter(t, testConfig())

	body, ct := fileForm(t, "activity.csv", "", []byte(activityCSV))
	rec := postFile(router, "/api/upload", body, ct)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		ID           string     `json:"id"`
		Columns      []string   `json:"columns"`
		Transactions [][]string `json:"transactions"`
		Summary      []struct {
			Description string `json:"description"`
			PL          string `json:"pl"`
		} `json:"summary"`
		Warnings  []parsers.AmountWarning `json:"warnings"`
		Artifacts []string                `json:"artifacts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "/api/uploads/"+created.ID, rec.Header().Get("Location"))
	assert.Len(t, created.Transactions, 3)
	require.Len(t, created.Summary, 2)
	assert.Equal(t, "AAPL Call", created.Summary[0].Description)
	assert.Equal(t, "140", created.Summary[0].PL)
	assert.Equal(t, []parsers.AmountWarning{{Row: 2, Raw: "n/a"}}, created.Warnings)
	assert.Equal(t, []string{"original.csv", "cleaned.csv", "summary.csv", "report.xlsx"}, created.Artifacts)

	t.Run("result with etag", func(t *testing.T) {
		rec := do(router, httptest.NewRequest(http.MethodGet, "/api/uploads/"+created.ID, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		etag := rec.Header().Get("ETag")
		require.NotEmpty(t, etag)
		assert.Equal(t, "no-cache, private", rec.Header().Get("Cache-Control"))

		req := httptest.NewRequest(http.MethodGet, "/api/uploads/"+created.ID, nil)
		req.Header.Set("If-None-Match", `"stale", `+etag)
		rec = do(router, req)
		assert.Equal(t, http.StatusNotModified, rec.Code)
		assert.Empty(t, rec.Body.String())
	})

	t.Run("download cleaned csv", func(t *testing.T) {
		rec := do(router, httptest.NewRequest(http.MethodGet, "/api/uploads/"+created.ID+"/cleaned.csv", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.Equal(t, `attachment; filename="cleaned.csv"`, rec.Header().Get("Content-Disposition"))
		lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
		assert.Equal(t, "Activity Date,Instrument,Description,Trans Code,Quantity,Price,Amount", lines[0])
		assert.Equal(t, "9/13/2024,SPY,SPY Call,STO,1,$2.50,", lines[3])
	})

	t.Run("download workbook", func(t *testing.T) {
		rec := do(router, httptest.NewRequest(http.MethodGet, "/api/uploads/"+created.ID+"/report.xlsx", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, storage.ArtifactReport.ContentType(), rec.Header().Get("Content-Type"))
		assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))
	})

	t.Run("unknown artifact", func(t *testing.T) {
		rec := do(router, httptest.NewRequest(http.MethodGet, "/api/uploads/"+created.ID+"/secrets.txt", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("unknown upload", func(t *testing.T) {
		rec := do(router, httptest.NewRequest(http.MethodGet, "/api/uploads/3f1c2f9e-8a41-4c1e-9d3e-0f6b5a7c2d10", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "Upload not found", decodeError(t, rec))
	})
}

func TestUploadAPI_ParseFailureIsBadRequest(t *testing.T) {
	router := newTestRouter(t, testConfig())

	body, ct := fileForm(t, "ragged.csv", "text/csv", []byte("a,b\n1,2,3\n"))
	rec := postFile(router, "/api/upload", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec), "Error parsing CSV file")
}

func TestDeleteFiles(t *testing.T) {
	router := newTestRouter(t, testConfig())

	body, ct := fileForm(t, "activity.csv", "text/csv", []byte(activityCSV))
	rec := postFile(router, "/api/upload", body, ct)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = do(router, httptest.NewRequest(http.MethodPost, "/delete_files", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Deleted files successfully.")

	rec = do(router, httptest.NewRequest(http.MethodGet, "/api/uploads/"+created.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(router, httptest.NewRequest(http.MethodDelete, "/api/uploads", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	data, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"deleted":0}`, string(data))
}
