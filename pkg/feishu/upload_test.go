package feishu

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/adler32"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeUploadFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0644))
	return path
}

func TestUploadDirect(t *testing.T) {
	content := []byte("attachment body")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/open-apis/drive/v1/medias/upload_all", r.URL.Path)
		require.Equal(t, "Bearer tok-test", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1 << 20))

		assert.Equal(t, "doc.pdf", r.FormValue("file_name"))
		assert.Equal(t, "bitable_file", r.FormValue("parent_type"))
		assert.Equal(t, "bascn-app", r.FormValue("parent_node"))
		assert.Equal(t, strconv.Itoa(len(content)), r.FormValue("size"))

		file, _, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		uploaded, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, content, uploaded)

		fmt.Fprint(w, `{"code": 0, "msg": "success", "data": {"file_token": "ft-direct"}}`)
	}))
	defer server.Close()

	client, _ := newTestClient(server.URL)
	token, ok := client.UploadFile(writeUploadFile(t, "doc.pdf", content), KindFile)
	require.True(t, ok)
	assert.Equal(t, "ft-direct", token)
}

func TestUploadDirectMissingFile(t *testing.T) {
	client, log := newTestClient("http://127.0.0.1:1")

	_, ok := client.UploadFile(filepath.Join(t.TempDir(), "nope.png"), KindImage)
	assert.False(t, ok)
	assert.NotEmpty(t, log.GetMessagesByLevel("ERROR"))
}

// chunkServer drives the three-phase flow and records every part it
// receives so tests can assert ordering and integrity.
type chunkServer struct {
	t         *testing.T
	blockSize int64
	failSeq   int // part seq to reject, -1 for none

	seqs     []int
	finished bool
}

func (s *chunkServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/open-apis/drive/v1/medias/upload_prepare":
			var req uploadPrepareRequest
			require.NoError(s.t, json.NewDecoder(r.Body).Decode(&req))
			require.Equal(s.t, "bascn-app", req.ParentNode)

			blockNum := int((req.Size + s.blockSize - 1) / s.blockSize)
			fmt.Fprintf(w, `{"code": 0, "msg": "success", "data": {"upload_id": "up-1", "block_size": %d, "block_num": %d}}`,
				s.blockSize, blockNum)

		case "/open-apis/drive/v1/medias/upload_part":
			require.NoError(s.t, r.ParseMultipartForm(64<<20))
			require.Equal(s.t, "up-1", r.FormValue("upload_id"))

			seq, err := strconv.Atoi(r.FormValue("seq"))
			require.NoError(s.t, err)
			if seq == s.failSeq {
				fmt.Fprint(w, `{"code": 99991, "msg": "part rejected", "data": {}}`)
				return
			}

			file, _, err := r.FormFile("file")
			require.NoError(s.t, err)
			block, err := io.ReadAll(file)
			file.Close()
			require.NoError(s.t, err)

			require.Equal(s.t, strconv.Itoa(len(block)), r.FormValue("size"))
			wantSum := strconv.FormatUint(uint64(adler32.Checksum(block)), 10)
			require.Equal(s.t, wantSum, r.FormValue("checksum"))

			s.seqs = append(s.seqs, seq)
			fmt.Fprint(w, `{"code": 0, "msg": "success", "data": {}}`)

		case "/open-apis/drive/v1/medias/upload_finish":
			var req uploadFinishRequest
			require.NoError(s.t, json.NewDecoder(r.Body).Decode(&req))
			require.Equal(s.t, "up-1", req.UploadID)

			s.finished = true
			fmt.Fprint(w, `{"code": 0, "msg": "success", "data": {"file_token": "ft-chunked"}}`)

		default:
			s.t.Errorf("unexpected path %s", r.URL.Path)
		}
	}
}

func TestUploadChunked(t *testing.T) {
	// Just over the direct-upload limit so the chunked flow kicks in.
	content := bytes.Repeat([]byte("x"), DirectUploadLimit+1)

	cs := &chunkServer{t: t, blockSize: 8 << 20, failSeq: -1}
	server := httptest.NewServer(cs.handler())
	defer server.Close()

	client, _ := newTestClient(server.URL)
	token, ok := client.UploadFile(writeUploadFile(t, "big.zip", content), KindFile)
	require.True(t, ok)
	assert.Equal(t, "ft-chunked", token)

	// 20 MiB + 1 byte in 8 MiB blocks is three parts, strictly in order.
	assert.Equal(t, []int{0, 1, 2}, cs.seqs)
	assert.True(t, cs.finished)
}

func TestUploadChunkedAbortsOnPartFailure(t *testing.T) {
	content := bytes.Repeat([]byte("x"), DirectUploadLimit+1)

	cs := &chunkServer{t: t, blockSize: 8 << 20, failSeq: 1}
	server := httptest.NewServer(cs.handler())
	defer server.Close()

	client, log := newTestClient(server.URL)
	_, ok := client.UploadFile(writeUploadFile(t, "big.zip", content), KindFile)
	assert.False(t, ok)

	// The rejected part stops the transfer before finish.
	assert.Equal(t, []int{0}, cs.seqs)
	assert.False(t, cs.finished)
	assert.NotEmpty(t, log.GetMessagesByLevel("ERROR"))
}
