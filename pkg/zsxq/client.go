package zsxq

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"zsxqsync/pkg/config"
	"zsxqsync/pkg/errors"
	"zsxqsync/pkg/logger"
	"zsxqsync/pkg/retry"
	"zsxqsync/pkg/session"
)

// Client wraps the zsxq list/fetch endpoints and raw byte downloads.
// List calls fail soft: errors are logged and an empty result returned,
// so a flaky source API never aborts the whole run.
type Client struct {
	httpClient      *http.Client
	headers         map[string]string
	baseURL         string
	downloadDir     string
	fileURLTemplate string
	logger          logger.Logger
	retrier         *retry.Retrier
}

// NewClient creates a source client authenticated by the session bundle
func NewClient(bundle *session.Bundle, cfg *config.ZsxqConfig, downloadDir string, retryCfg *config.RetryConfig, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}

	headers := map[string]string{
		"User-Agent": cfg.UserAgent,
		"Origin":     "https://wx.zsxq.com",
		"Referer":    "https://wx.zsxq.com/",
		"Accept":     "application/json, text/plain, */*",
	}
	if bundle != nil {
		if cookie := bundle.CookieHeader("zsxq.com"); cookie != "" {
			headers["Cookie"] = cookie
		}
	}

	return &Client{
		httpClient:      &http.Client{Timeout: cfg.Timeout},
		headers:         headers,
		baseURL:         cfg.BaseURL,
		downloadDir:     downloadDir,
		fileURLTemplate: cfg.FileURLTemplate,
		logger:          log,
		retrier:         retry.NewRetrierFromConfig(retryCfg, log),
	}
}

// SetHeader sets a custom header for the client
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// doRequest performs an HTTP request with the configured headers
func (c *Client) doRequest(req *http.Request) (*http.Response, error) {
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, &errors.Error{
			Type:    errors.ErrorTypeNetwork,
			Message: fmt.Sprintf("network error: %v", err),
			Code:    0,
		}
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   req.Method,
		"url":      req.URL.String(),
		"status":   resp.StatusCode,
		"duration": duration,
	})

	return resp, nil
}

// checkResponseStatus maps an HTTP status onto the error taxonomy
func (c *Client) checkResponseStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &errors.Error{Type: errors.ErrorTypeAuth, Message: "authentication required", Code: resp.StatusCode}
	case resp.StatusCode == http.StatusNotFound:
		return &errors.Error{Type: errors.ErrorTypeNotFound, Message: "resource not found", Code: resp.StatusCode}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &errors.Error{Type: errors.ErrorTypeRateLimit, Message: "rate limit exceeded", Code: resp.StatusCode}
	case resp.StatusCode >= 500:
		return &errors.Error{Type: errors.ErrorTypeServerError, Message: "server error", Code: resp.StatusCode}
	case resp.StatusCode >= 400:
		return &errors.Error{Type: errors.ErrorTypeUnknown, Message: fmt.Sprintf("unexpected status code: %d", resp.StatusCode), Code: resp.StatusCode}
	default:
		return nil
	}
}

// getEnvelope performs a GET with retry and decodes the API envelope
func (c *Client) getEnvelope(url string) (*apiEnvelope, error) {
	var envelope apiEnvelope

	err := c.retrier.Do(func() error {
		req, err := http.NewRequest(http.MethodGet, url, nil)
		if err != nil {
			return &errors.Error{Type: errors.ErrorTypeUnknown, Message: fmt.Sprintf("failed to create request: %v", err), Code: 0}
		}

		resp, err := c.doRequest(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if err := c.checkResponseStatus(resp); err != nil {
			return err
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return &errors.Error{Type: errors.ErrorTypeNetwork, Message: fmt.Sprintf("failed to read response body: %v", err), Code: resp.StatusCode}
		}

		envelope = apiEnvelope{}
		if err := json.Unmarshal(body, &envelope); err != nil {
			return &errors.Error{Type: errors.ErrorTypeParsing, Message: fmt.Sprintf("failed to parse JSON: %v", err), Code: resp.StatusCode}
		}

		if !envelope.Succeeded {
			return &errors.Error{Type: errors.ErrorTypeAPI, Message: fmt.Sprintf("API call not succeeded (code %d)", envelope.Code), Code: envelope.Code}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &envelope, nil
}

// ListGroups fetches all joined groups. Errors are logged and an empty
// slice returned; they never propagate past this boundary.
func (c *Client) ListGroups() []Group {
	envelope, err := c.getEnvelope(GroupsURL(c.baseURL))
	if err != nil {
		c.logger.WithError(err).Error("failed to fetch groups")
		return nil
	}

	c.logger.InfoWithFields("fetched groups", map[string]interface{}{
		"count": len(envelope.RespData.Groups),
	})
	return envelope.RespData.Groups
}

// ListTopics fetches a single page of a group's topics. It returns the
// page and the cursor for the next page (the create_time of the oldest
// topic on this page), empty when the page is empty. Errors are logged
// and an empty page returned.
func (c *Client) ListTopics(groupID int64, endTime string, count int) ([]Topic, string) {
	envelope, err := c.getEnvelope(TopicsURL(c.baseURL, groupID, endTime, count))
	if err != nil {
		c.logger.WithError(err).WithField("group_id", groupID).Error("failed to fetch topics")
		return nil, ""
	}

	topics := envelope.RespData.Topics
	nextCursor := ""
	if len(topics) > 0 {
		nextCursor = topics[len(topics)-1].CreateTime
	}

	c.logger.InfoWithFields("fetched topic page", map[string]interface{}{
		"group_id": groupID,
		"count":    len(topics),
		"end_time": endTime,
	})
	return topics, nextCursor
}

// ResolveFileURL performs the secondary lookup that converts a file id
// into a short-lived download URL. Returns false when the lookup fails
// or the API yields no URL.
func (c *Client) ResolveFileURL(fileID int64) (string, bool) {
	envelope, err := c.getEnvelope(fmt.Sprintf(c.fileURLTemplate, fileID))
	if err != nil {
		c.logger.WithError(err).WithField("file_id", fileID).Error("failed to resolve file download url")
		return "", false
	}

	if envelope.RespData.DownloadURL == "" {
		c.logger.WithField("file_id", fileID).Warn("file download url missing in response")
		return "", false
	}
	return envelope.RespData.DownloadURL, true
}

// Download streams a remote asset to downloads/{group_id}/{topic_id}/{filename}.
// If the target path already exists the existing file is returned without
// a network transfer; the deterministic path is the pipeline's idempotence
// key for attachments. The body is copied in bounded-memory chunks.
func (c *Client) Download(rawURL string, groupID, topicID int64, filename string) (string, bool) {
	saveDir := filepath.Join(c.downloadDir, strconv.FormatInt(groupID, 10), strconv.FormatInt(topicID, 10))
	target := filepath.Join(saveDir, filename)

	if _, err := os.Stat(target); err == nil {
		c.logger.DebugWithFields("file already downloaded", map[string]interface{}{
			"path": target,
		})
		return target, true
	}

	if err := os.MkdirAll(saveDir, 0755); err != nil {
		c.logger.WithError(err).WithField("dir", saveDir).Error("failed to create download directory")
		return "", false
	}

	err := c.retrier.Do(func() error {
		return c.fetchToFile(rawURL, target)
	})
	if err != nil {
		c.logger.WithError(err).WithFields(map[string]interface{}{
			"url":  rawURL,
			"path": target,
		}).Error("failed to download asset")
		return "", false
	}

	c.logger.InfoWithFields("downloaded asset", map[string]interface{}{
		"path": target,
	})
	return target, true
}

// fetchToFile streams one HTTP response into target via a temp file and
// atomic rename, so an interrupted transfer never leaves a partial file
// at the idempotence path.
func (c *Client) fetchToFile(rawURL, target string) error {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return &errors.Error{Type: errors.ErrorTypeUnknown, Message: fmt.Sprintf("failed to create request: %v", err), Code: 0}
	}

	resp, err := c.doRequest(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp); err != nil {
		return err
	}

	tempPath := target + ".tmp"
	out, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	_, err = io.Copy(out, resp.Body)
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempPath)
		return &errors.Error{Type: errors.ErrorTypeNetwork, Message: fmt.Sprintf("failed to stream body: %v", err), Code: resp.StatusCode}
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tempPath, target); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	return nil
}
