package diarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"blank-subtitles/internal/domain"
)

// HTTPBackend talks to a diarization sidecar service.
type HTTPBackend struct {
	baseURL string
	c       *http.Client
}

// NewHTTPBackend builds a client for the service at baseURL.
func NewHTTPBackend(baseURL string) *HTTPBackend {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 3 * time.Minute,
		}).DialContext,
		MaxIdleConns:          8,
		IdleConnTimeout:       2 * time.Minute,
		TLSHandshakeTimeout:   time.Minute,
		ExpectContinueTimeout: time.Minute,
	}
	return &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		// Load and inference are long-running and governed by the caller's context.
		c: &http.Client{Transport: tr},
	}
}

// Available checks the service health endpoint.
func (b *HTTPBackend) Available(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := b.c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health %s", resp.Status)
	}
	return nil
}

type loadRequest struct {
	Model string `json:"model"`
	Token string `json:"token,omitempty"`
}

type loadResponse struct {
	PipelineID string `json:"pipeline_id"`
}

type diarizeResponse struct {
	Segments []helperTurn `json:"segments"`
}

// Load asks the service to fetch and initialize modelID.
func (b *HTTPBackend) Load(ctx context.Context, modelID, token string) (Model, error) {
	body, err := json.Marshal(loadRequest{Model: modelID, Token: token})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/pipelines", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, statusError("load", resp)
	}

	var out loadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("load decode: %w", err)
	}
	if out.PipelineID == "" {
		return nil, fmt.Errorf("load: service returned no pipeline id")
	}
	return &httpModel{backend: b, pipelineID: out.PipelineID}, nil
}

// httpModel is a pipeline instance held by the service.
type httpModel struct {
	backend    *HTTPBackend
	pipelineID string
}

// Diarize streams wavPath to the service and returns its speaker turns.
func (m *httpModel) Diarize(ctx context.Context, wavPath string, device Device) ([]domain.Segment, error) {
	fd, err := os.Open(wavPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", wavPath, err)
	}
	defer fd.Close()

	pr, pw := io.Pipe()
	defer pr.Close()
	w := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUpload(w, fd, device))
	}()

	endpoint := fmt.Sprintf("%s/v1/pipelines/%s/diarize", m.backend.baseURL, url.PathEscape(m.pipelineID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := m.backend.c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("diarize", resp)
	}

	var out diarizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("diarize decode: %w", err)
	}

	segments := make([]domain.Segment, 0, len(out.Segments))
	for _, t := range out.Segments {
		segments = append(segments, domain.Segment{Start: t.Start, End: t.End, Speaker: t.Speaker})
	}
	return segments, nil
}

// statusError turns a non-success response into an error carrying the body text.
func statusError(op string, resp *http.Response) error {
	const maxErr = 4096
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErr))
	return fmt.Errorf("%s %s: %s", op, resp.Status, strings.TrimSpace(string(body)))
}

// writeUpload writes the device field and the audio file as a multipart form.
func writeUpload(w *multipart.Writer, audio *os.File, device Device) error {
	if err := w.WriteField("device", string(device)); err != nil {
		return fmt.Errorf("write device field: %w", err)
	}
	fw, err := w.CreateFormFile("file", filepath.Base(audio.Name()))
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(fw, audio); err != nil {
		return fmt.Errorf("copy audio: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close multipart: %w", err)
	}
	return nil
}
