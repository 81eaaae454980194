package parser

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dealflow/internal/blob"
	"github.com/sells-group/dealflow/internal/config"
	"github.com/sells-group/dealflow/internal/resilience"
)

// CloudOCR extracts text through a batch OCR API: submit the document, poll
// until the job completes, then materialize the result JSON to blob storage
// next to the source document. Polling blocks, so this backend must only run
// inside a worker task, never on a request path.
type CloudOCR struct {
	apiKey       string
	baseURL      string
	model        string
	store        blob.Store
	blobPath     string
	pollInterval time.Duration
	pollTimeout  time.Duration
	http         *http.Client
}

// NewCloudOCR creates a CloudOCR parser for the blob at blobPath.
func NewCloudOCR(cfg config.ParserConfig, store blob.Store, blobPath string) *CloudOCR {
	return &CloudOCR{
		apiKey:       cfg.OCRKey,
		baseURL:      cfg.OCRBaseURL,
		model:        cfg.OCRModel,
		store:        store,
		blobPath:     blobPath,
		pollInterval: cfg.PollInterval(),
		pollTimeout:  cfg.PollTimeout(),
		http:         &http.Client{Timeout: 60 * time.Second},
	}
}

type ocrJobRequest struct {
	Model    string `json:"model"`
	Document struct {
		Type        string `json:"type"`
		DocumentURL string `json:"document_url"`
	} `json:"document"`
}

type ocrJob struct {
	ID     string    `json:"id"`
	Status string    `json:"status"` // queued, processing, done, failed
	Error  string    `json:"error,omitempty"`
	Pages  []ocrPage `json:"pages,omitempty"`
}

type ocrPage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

// Pages submits the document and polls until the remote job completes.
func (c *CloudOCR) Pages(ctx context.Context) ([]Page, error) {
	job, err := c.submit(ctx)
	if err != nil {
		return nil, eris.Wrapf(ErrParse, "submit %s: %v", c.blobPath, err)
	}

	deadline := time.Now().Add(c.pollTimeout)
	for job.Status != "done" {
		if job.Status == "failed" {
			return nil, eris.Wrapf(ErrParse, "ocr job %s failed: %s", job.ID, job.Error)
		}
		if time.Now().After(deadline) {
			return nil, eris.Wrapf(ErrParse, "ocr job %s timed out", job.ID)
		}
		select {
		case <-ctx.Done():
			return nil, eris.Wrapf(ErrParse, "ocr job %s: %v", job.ID, ctx.Err())
		case <-time.After(c.pollInterval):
		}
		job, err = c.poll(ctx, job.ID)
		if err != nil {
			return nil, eris.Wrapf(ErrParse, "poll job: %v", err)
		}
	}

	c.materializeResult(ctx, job)

	sort.Slice(job.Pages, func(i, j int) bool { return job.Pages[i].Index < job.Pages[j].Index })
	pages := make([]Page, 0, len(job.Pages))
	for _, p := range job.Pages {
		pages = append(pages, Page{Number: p.Index + 1, Text: p.Markdown})
	}
	return pages, nil
}

func (c *CloudOCR) Blocks(ctx context.Context) ([]Block, error) {
	pages, err := c.Pages(ctx)
	if err != nil {
		return nil, err
	}
	return blocksFromPages(pages), nil
}

func (c *CloudOCR) Text(ctx context.Context) (string, error) {
	pages, err := c.Pages(ctx)
	if err != nil {
		return "", err
	}
	return joinPages(pages), nil
}

// Screenshots renders locally with pdftoppm; the OCR API does not return
// images, but the source blob is always available to materialize.
func (c *CloudOCR) Screenshots(ctx context.Context, dir string) ([]string, error) {
	local := NewLocal(config.ParserConfig{}, c.store, c.blobPath)
	return local.Screenshots(ctx, dir)
}

func (c *CloudOCR) submit(ctx context.Context) (*ocrJob, error) {
	data, err := c.store.Get(ctx, c.blobPath)
	if err != nil {
		return nil, err
	}

	var req ocrJobRequest
	req.Model = c.model
	req.Document.Type = "document_url"
	req.Document.DocumentURL = "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(data)

	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "marshal job request")
	}

	// Submission retries absorb OCR quota backoff; a permanent rejection
	// surfaces immediately.
	return resilience.DoVal(ctx, resilience.DefaultRetryConfig(), func(ctx context.Context) (*ocrJob, error) {
		return c.doJSON(ctx, http.MethodPost, c.baseURL+"/ocr/jobs", bytes.NewReader(body))
	})
}

func (c *CloudOCR) poll(ctx context.Context, jobID string) (*ocrJob, error) {
	return resilience.DoVal(ctx, resilience.DefaultRetryConfig(), func(ctx context.Context) (*ocrJob, error) {
		return c.doJSON(ctx, http.MethodGet, c.baseURL+"/ocr/jobs/"+jobID, nil)
	})
}

func (c *CloudOCR) doJSON(ctx context.Context, method, url string, body io.Reader) (*ocrJob, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(err, 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(err, 0)
	}
	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("ocr api returned %d: %s", resp.StatusCode, string(respBody))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var job ocrJob
	if err := json.Unmarshal(respBody, &job); err != nil {
		return nil, resilience.NewParseError(eris.Wrap(err, "decode ocr response"))
	}
	return &job, nil
}

// materializeResult writes the finished job JSON next to the source blob for
// later inspection. Best effort.
func (c *CloudOCR) materializeResult(ctx context.Context, job *ocrJob) {
	out, err := json.Marshal(job)
	if err != nil {
		return
	}
	if err := c.store.Put(ctx, c.blobPath+".ocr.json", bytes.NewReader(out)); err != nil {
		zap.L().Warn("parser: failed to materialize ocr result",
			zap.String("blob", c.blobPath),
			zap.Error(err),
		)
	}
}
