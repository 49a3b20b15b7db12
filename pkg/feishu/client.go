package feishu

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"zsxqsync/pkg/config"
	"zsxqsync/pkg/errors"
	"zsxqsync/pkg/logger"
	"zsxqsync/pkg/retry"
)

// Client talks to a single Bitable table of the destination app.
// Record lookups and mutations are soft: failures are logged and
// reported as boolean outcomes so one bad record cannot stop a run.
type Client struct {
	httpClient *http.Client
	tokens     TokenSource
	baseURL    string
	appToken   string
	tableID    string
	logger     logger.Logger
	retrier    *retry.Retrier
}

// NewClient creates a sink client bound to the configured table
func NewClient(cfg *config.FeishuConfig, tokens TokenSource, retryCfg *config.RetryConfig, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		tokens:     tokens,
		baseURL:    cfg.BaseURL,
		appToken:   cfg.BitableAppToken,
		tableID:    cfg.TableID,
		logger:     log,
		retrier:    retry.NewRetrierFromConfig(retryCfg, log),
	}
}

func (c *Client) recordsURL(suffix string) string {
	return fmt.Sprintf("%s/open-apis/bitable/v1/apps/%s/tables/%s/records%s",
		c.baseURL, c.appToken, c.tableID, suffix)
}

// doJSON sends a JSON request with the bearer token and decodes the
// common envelope. Non-zero envelope codes surface as API errors.
func (c *Client) doJSON(method, url string, body interface{}) (*apiResponse, error) {
	var out *apiResponse
	err := c.retrier.Do(func() error {
		resp, err := c.sendJSON(method, url, body)
		if err != nil {
			return err
		}
		out = resp
		return nil
	})
	return out, err
}

func (c *Client) sendJSON(method, url string, body interface{}) (*apiResponse, error) {
	token, err := c.tokens.Token()
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequest(method, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &errors.Error{
			Type:    errors.ErrorTypeNetwork,
			Message: fmt.Sprintf("request failed: %v", err),
			Code:    0,
		}
	}
	defer resp.Body.Close()

	return decodeEnvelope(resp)
}

func decodeEnvelope(resp *http.Response) (*apiResponse, error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		errType := errors.ErrorTypeRateLimit
		if resp.StatusCode >= 500 {
			errType = errors.ErrorTypeServerError
		}
		return nil, &errors.Error{
			Type:    errType,
			Message: fmt.Sprintf("unexpected status %d", resp.StatusCode),
			Code:    resp.StatusCode,
		}
	}

	var env apiResponse
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &errors.Error{
			Type:    errors.ErrorTypeParsing,
			Message: fmt.Sprintf("failed to parse response: %v", err),
			Code:    resp.StatusCode,
		}
	}

	if env.Code != 0 {
		return nil, &errors.Error{
			Type:    errors.ErrorTypeAPI,
			Message: fmt.Sprintf("api error %d: %s", env.Code, env.Msg),
			Code:    env.Code,
		}
	}

	return &env, nil
}

// RecordExists searches the table for a record whose field equals value.
// Search failures log a warning and report false so the caller proceeds;
// a duplicate insert is preferable to a silently dropped topic.
func (c *Client) RecordExists(field, value string) bool {
	body := searchRequest{
		Filter: searchFilter{
			Conjunction: "and",
			Conditions: []searchCondition{
				{FieldName: field, Operator: "is", Value: []string{value}},
			},
		},
	}

	env, err := c.doJSON(http.MethodPost, c.recordsURL("/search"), body)
	if err != nil {
		c.logger.WithError(err).WarnWithFields("record search failed, assuming absent", map[string]interface{}{
			"field": field,
			"value": value,
		})
		return false
	}

	return env.Data.Total > 0
}

// InsertRecord creates a record and returns its ID
func (c *Client) InsertRecord(fields map[string]interface{}) (string, bool) {
	env, err := c.doJSON(http.MethodPost, c.recordsURL(""), recordRequest{Fields: fields})
	if err != nil {
		c.logger.WithError(err).Error("failed to insert record")
		return "", false
	}
	if env.Data.Record == nil {
		c.logger.Warn("insert response missing record payload")
		return "", false
	}
	return env.Data.Record.RecordID, true
}

// UpdateRecord replaces the fields of an existing record
func (c *Client) UpdateRecord(recordID string, fields map[string]interface{}) bool {
	url := c.recordsURL("/" + recordID)
	if _, err := c.doJSON(http.MethodPut, url, recordRequest{Fields: fields}); err != nil {
		c.logger.WithError(err).ErrorWithFields("failed to update record", map[string]interface{}{
			"record_id": recordID,
		})
		return false
	}
	return true
}
