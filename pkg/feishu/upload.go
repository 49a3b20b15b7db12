package feishu

import (
	"bytes"
	"fmt"
	"hash/adler32"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"zsxqsync/pkg/errors"
)

// DirectUploadLimit is the largest payload accepted by the single-shot
// media endpoint. Anything above it must go through the chunked flow.
const DirectUploadLimit = 20 << 20

// UploadKind selects the attachment type a media upload is bound to
type UploadKind string

const (
	KindImage UploadKind = "bitable_image"
	KindFile  UploadKind = "bitable_file"
)

// UploadFile pushes a local file to the media store and returns its
// file token. Files at or under DirectUploadLimit use the single-shot
// endpoint; larger ones are split into sequential chunks. Any failure
// aborts the whole upload and reports false.
func (c *Client) UploadFile(localPath string, kind UploadKind) (string, bool) {
	info, err := os.Stat(localPath)
	if err != nil {
		c.logger.WithError(err).WithField("path", localPath).Error("cannot stat upload source")
		return "", false
	}

	if info.Size() <= DirectUploadLimit {
		return c.uploadDirect(localPath, info.Size(), kind)
	}
	return c.uploadChunked(localPath, info.Size(), kind)
}

func (c *Client) uploadDirect(localPath string, size int64, kind UploadKind) (string, bool) {
	content, err := os.ReadFile(localPath)
	if err != nil {
		c.logger.WithError(err).WithField("path", localPath).Error("cannot read upload source")
		return "", false
	}

	fields := map[string]string{
		"file_name":   filepath.Base(localPath),
		"parent_type": string(kind),
		"parent_node": c.appToken,
		"size":        strconv.FormatInt(size, 10),
	}

	env, err := c.doMultipart(c.baseURL+"/open-apis/drive/v1/medias/upload_all",
		fields, filepath.Base(localPath), content)
	if err != nil {
		c.logger.WithError(err).WithField("path", localPath).Error("direct upload failed")
		return "", false
	}
	if env.Data.FileToken == "" {
		c.logger.WithField("path", localPath).Error("upload response missing file token")
		return "", false
	}

	c.logger.WithFields(map[string]interface{}{
		"path": localPath,
		"size": size,
	}).Debug("uploaded file")

	return env.Data.FileToken, true
}

// uploadChunked runs prepare, one part request per block in seq order,
// then finish. Parts are never sent concurrently or out of order; the
// media store rejects gaps in the sequence.
func (c *Client) uploadChunked(localPath string, size int64, kind UploadKind) (string, bool) {
	prep := uploadPrepareRequest{
		FileName:   filepath.Base(localPath),
		ParentType: string(kind),
		ParentNode: c.appToken,
		Size:       size,
	}
	env, err := c.doJSON(http.MethodPost, c.baseURL+"/open-apis/drive/v1/medias/upload_prepare", prep)
	if err != nil {
		c.logger.WithError(err).WithField("path", localPath).Error("upload prepare failed")
		return "", false
	}
	uploadID := env.Data.UploadID
	blockSize := env.Data.BlockSize
	blockNum := env.Data.BlockNum
	if uploadID == "" || blockSize <= 0 || blockNum <= 0 {
		c.logger.WithField("path", localPath).Error("upload prepare returned invalid transfer parameters")
		return "", false
	}

	f, err := os.Open(localPath)
	if err != nil {
		c.logger.WithError(err).WithField("path", localPath).Error("cannot open upload source")
		return "", false
	}
	defer f.Close()

	buf := make([]byte, blockSize)
	for seq := 0; seq < blockNum; seq++ {
		n, err := io.ReadFull(f, buf)
		if err == io.ErrUnexpectedEOF && seq == blockNum-1 {
			err = nil
		}
		if err != nil || n == 0 {
			c.logger.WithError(err).WithFields(map[string]interface{}{
				"path": localPath,
				"seq":  seq,
			}).Error("failed to read upload block")
			return "", false
		}
		block := buf[:n]

		fields := map[string]string{
			"upload_id": uploadID,
			"seq":       strconv.Itoa(seq),
			"size":      strconv.Itoa(n),
			"checksum":  strconv.FormatUint(uint64(adler32.Checksum(block)), 10),
		}
		if _, err := c.doMultipart(c.baseURL+"/open-apis/drive/v1/medias/upload_part",
			fields, filepath.Base(localPath), block); err != nil {
			c.logger.WithError(err).WithFields(map[string]interface{}{
				"path": localPath,
				"seq":  seq,
			}).Error("chunk upload failed, aborting transfer")
			return "", false
		}
	}

	fin := uploadFinishRequest{UploadID: uploadID, BlockNum: blockNum}
	env, err = c.doJSON(http.MethodPost, c.baseURL+"/open-apis/drive/v1/medias/upload_finish", fin)
	if err != nil {
		c.logger.WithError(err).WithField("path", localPath).Error("upload finish failed")
		return "", false
	}
	if env.Data.FileToken == "" {
		c.logger.WithField("path", localPath).Error("finish response missing file token")
		return "", false
	}

	c.logger.WithFields(map[string]interface{}{
		"path":   localPath,
		"size":   size,
		"blocks": blockNum,
	}).Debug("uploaded file in chunks")

	return env.Data.FileToken, true
}

// doMultipart sends a multipart/form-data request with the given string
// fields plus a trailing file part, rebuilding the body on each retry
// attempt.
func (c *Client) doMultipart(url string, fields map[string]string, fileName string, content []byte) (*apiResponse, error) {
	var out *apiResponse
	err := c.retrier.Do(func() error {
		resp, err := c.sendMultipart(url, fields, fileName, content)
		if err != nil {
			return err
		}
		out = resp
		return nil
	})
	return out, err
}

func (c *Client) sendMultipart(url string, fields map[string]string, fileName string, content []byte) (*apiResponse, error) {
	token, err := c.tokens.Token()
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, fmt.Errorf("failed to write form field: %w", err)
		}
	}
	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, fmt.Errorf("failed to write file part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, url, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &errors.Error{
			Type:    errors.ErrorTypeNetwork,
			Message: fmt.Sprintf("upload request failed: %v", err),
			Code:    0,
		}
	}
	defer resp.Body.Close()

	return decodeEnvelope(resp)
}
