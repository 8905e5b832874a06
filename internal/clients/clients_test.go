package clients

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/ocr-pipeline/internal/errors"
	"github.com/adverant/nexus/ocr-pipeline/internal/models"
)

func TestFileServiceClientGetAndDownload(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/files/f-1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"file_id":           "f-1",
			"original_filename": "scan.png",
			"processing_status": "uploaded",
			"file_size":         4,
		})
	})
	mux.HandleFunc("/files/f-1/download", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("scan"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewFileServiceClient(srv.URL+"/", time.Second)
	file, err := c.Get(context.Background(), "f-1")
	require.NoError(t, err)
	assert.Equal(t, "scan.png", file.OriginalName)
	assert.Equal(t, models.FileStatusUploaded, file.Status)

	data, err := c.ReadBytes(context.Background(), file)
	require.NoError(t, err)
	assert.Equal(t, []byte("scan"), data)
}

func TestFileServiceClientMapsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/files/missing":
			http.NotFound(w, r)
		default:
			http.Error(w, "database down", http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	c := NewFileServiceClient(srv.URL, time.Second)

	_, err := c.Get(context.Background(), "missing")
	assert.True(t, errors.IsNotFound(err))

	_, err = c.Get(context.Background(), "other")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrorUpstream))
	assert.Contains(t, err.Error(), "503")
}

func TestFileServiceClientSetStatus(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/files/f-1/status", r.URL.Path)
		gotQuery = map[string]string{
			"status":        r.URL.Query().Get("status"),
			"error_message": r.URL.Query().Get("error_message"),
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewFileServiceClient(srv.URL, time.Second)
	require.NoError(t, c.SetStatus(context.Background(), "f-1", models.FileStatusFailed, "page 2 unreadable"))
	assert.Equal(t, map[string]string{"status": "failed", "error_message": "page 2 unreadable"}, gotQuery)

	err := c.SetStatus(context.Background(), "f-1", models.FileStatus("bogus"), "")
	assert.True(t, errors.IsValidation(err))
}

func TestFileServiceClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewFileServiceClient(srv.URL, 20*time.Millisecond)
	_, err := c.Get(context.Background(), "f-1")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrorUpstream))
}

func TestOCRServiceClientProcess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/extract", r.URL.Path)
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "deu", r.FormValue("language"))
		assert.Equal(t, "42.5", r.FormValue("confidence_threshold"))

		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "scan.pdf", hdr.Filename)
		assert.Equal(t, "pdf-bytes", string(data))

		_ = json.NewEncoder(w).Encode(models.OCRResult{
			TotalPages:        2,
			Language:          "deu",
			OverallConfidence: 88.1,
			FullText:          "--- Page 1 ---\nhallo",
		})
	}))
	defer srv.Close()

	c := NewOCRServiceClient(srv.URL, time.Second)
	res, err := c.Process(context.Background(), []byte("pdf-bytes"), "scan.pdf", "deu", 42.5)
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalPages)
	assert.Equal(t, 88.1, res.OverallConfidence)
	assert.Equal(t, "--- Page 1 ---\nhallo", res.FullText)
}

func TestOCRServiceClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "engine crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewOCRServiceClient(srv.URL, time.Second)

	_, err := c.Process(context.Background(), nil, "scan.pdf", "eng", 30)
	assert.True(t, errors.IsValidation(err))

	_, err = c.Process(context.Background(), []byte("x"), "scan.pdf", "eng", 30)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrorUpstream))
	assert.Contains(t, err.Error(), "engine crashed")
}

func TestHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	assert.NoError(t, NewFileServiceClient(srv.URL, time.Second).HealthCheck(context.Background()))
	assert.NoError(t, NewOCRServiceClient(srv.URL, time.Second).HealthCheck(context.Background()))
}
