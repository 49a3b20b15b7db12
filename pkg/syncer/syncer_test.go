package syncer

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zsxqsync/pkg/config"
	"zsxqsync/pkg/feishu"
	"zsxqsync/pkg/logger"
	"zsxqsync/pkg/zsxq"
)

type fakeSource struct {
	groups    []zsxq.Group
	pages     [][]zsxq.Topic
	cursors   []string // cursor passed to each ListTopics call
	fileURLs  map[int64]string
	failURLs  map[string]bool
	downloads []string
}

func (f *fakeSource) ListGroups() []zsxq.Group { return f.groups }

func (f *fakeSource) ListTopics(groupID int64, endTime string, count int) ([]zsxq.Topic, string) {
	call := len(f.cursors)
	f.cursors = append(f.cursors, endTime)
	if call >= len(f.pages) {
		return nil, endTime
	}
	page := f.pages[call]
	next := ""
	if len(page) > 0 {
		next = page[len(page)-1].CreateTime
	}
	return page, next
}

func (f *fakeSource) ResolveFileURL(fileID int64) (string, bool) {
	url, ok := f.fileURLs[fileID]
	return url, ok
}

func (f *fakeSource) Download(rawURL string, groupID, topicID int64, filename string) (string, bool) {
	if f.failURLs[rawURL] {
		return "", false
	}
	path := fmt.Sprintf("downloads/%d/%d/%s", groupID, topicID, filename)
	f.downloads = append(f.downloads, path)
	return path, true
}

type fakeSink struct {
	existing   map[string]bool
	inserts    []map[string]interface{}
	uploads    []string
	failUpload map[string]bool
	failInsert bool
}

func (f *fakeSink) RecordExists(field, value string) bool { return f.existing[value] }

func (f *fakeSink) InsertRecord(fields map[string]interface{}) (string, bool) {
	if f.failInsert {
		return "", false
	}
	f.inserts = append(f.inserts, fields)
	return fmt.Sprintf("rec-%d", len(f.inserts)), true
}

func (f *fakeSink) UploadFile(localPath string, kind feishu.UploadKind) (string, bool) {
	if f.failUpload[localPath] {
		return "", false
	}
	f.uploads = append(f.uploads, localPath)
	return "ft-" + localPath, true
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Crawl.DownloadDir = t.TempDir()
	cfg.Crawl.AssetPauseMin = 0
	cfg.Crawl.AssetPauseMax = 0
	cfg.Crawl.TopicPauseMin = 0
	cfg.Crawl.TopicPauseMax = 0
	cfg.Zsxq.PageSize = 2
	return cfg
}

func talkTopic(id int64, created, text string) zsxq.Topic {
	return zsxq.Topic{
		TopicID:    id,
		CreateTime: created,
		Talk:       &zsxq.Talk{Owner: &zsxq.Owner{Name: "author"}, Text: text},
	}
}

func newTestSyncer(t *testing.T, source *fakeSource, sink *fakeSink, cfg *config.Config) *Syncer {
	t.Helper()
	s, err := New(source, sink, cfg, logger.NewTestLogger())
	require.NoError(t, err)
	return s
}

func TestRunMirrorsTopics(t *testing.T) {
	topicWithAssets := talkTopic(101, "2024-03-01T10:00:00.000+0800",
		`before <e type="hashtag" title="%E6%B5%8B%E8%AF%95" /> after`)
	topicWithAssets.Talk.Images = []zsxq.Image{
		{ImageID: 9, Large: &zsxq.ImageVariant{URL: "https://img.example.com/9.png"}},
	}
	topicWithAssets.Talk.Files = []zsxq.File{{FileID: 5, Name: "notes.pdf"}}

	source := &fakeSource{
		groups:   []zsxq.Group{{GroupID: 42, Name: "Go Club"}},
		pages:    [][]zsxq.Topic{{topicWithAssets, talkTopic(102, "2024-02-28T09:00:00.000+0800", "plain")}},
		fileURLs: map[int64]string{5: "https://files.example.com/5"},
	}
	sink := &fakeSink{existing: map[string]bool{}}

	stats := newTestSyncer(t, source, sink, testConfig(t)).Run()

	assert.Equal(t, 1, stats.Groups)
	assert.Equal(t, 2, stats.Topics)
	assert.Equal(t, 2, stats.Synced)
	require.Len(t, sink.inserts, 2)

	first := sink.inserts[0]
	assert.Equal(t, "101", first["topic_id"])
	assert.Equal(t, "before 测试 after", first["content"])
	assert.Equal(t, "Go Club", first["group_name"])
	assert.Equal(t, "author", first["author"])
	assert.Equal(t, "Done", first["status"])

	created, err := time.Parse("2006-01-02T15:04:05.999999-0700", "2024-03-01T10:00:00.000+0800")
	require.NoError(t, err)
	assert.Equal(t, created.UnixMilli(), first["create_time"])

	assert.Equal(t, "downloads/42/101/9.png, downloads/42/101/notes.pdf", first["local_file_paths"])
	attachments := first["attachments"].([]map[string]interface{})
	require.Len(t, attachments, 2)
	assert.Equal(t, "ft-downloads/42/101/9.png", attachments[0]["file_token"])
	assert.Equal(t, "ft-downloads/42/101/notes.pdf", attachments[1]["file_token"])

	// One download and one upload per asset, nothing duplicated.
	assert.Len(t, source.downloads, 2)
	assert.Len(t, sink.uploads, 2)
}

func TestRunSkipsExistingTopics(t *testing.T) {
	source := &fakeSource{
		groups: []zsxq.Group{{GroupID: 42, Name: "Go Club"}},
		pages:  [][]zsxq.Topic{{talkTopic(101, "2024-03-01T10:00:00.000+0800", "seen before")}},
	}
	sink := &fakeSink{existing: map[string]bool{"101": true}}

	stats := newTestSyncer(t, source, sink, testConfig(t)).Run()

	assert.Equal(t, 1, stats.Skipped)
	assert.Zero(t, stats.Synced)
	assert.Empty(t, sink.inserts)
	assert.Empty(t, source.downloads)
}

func TestRunPartialAssetFailureStillInserts(t *testing.T) {
	topic := talkTopic(101, "2024-03-01T10:00:00.000+0800", "body")
	topic.Talk.Images = []zsxq.Image{
		{ImageID: 1, Large: &zsxq.ImageVariant{URL: "https://img.example.com/1.png"}},
		{ImageID: 2, Large: &zsxq.ImageVariant{URL: "https://img.example.com/2.png"}},
	}

	source := &fakeSource{
		groups: []zsxq.Group{{GroupID: 42, Name: "Go Club"}},
		pages:  [][]zsxq.Topic{{topic}},
	}
	sink := &fakeSink{
		existing:   map[string]bool{},
		failUpload: map[string]bool{"downloads/42/101/1.png": true},
	}

	stats := newTestSyncer(t, source, sink, testConfig(t)).Run()

	assert.Equal(t, 1, stats.Synced)
	require.Len(t, sink.inserts, 1)

	record := sink.inserts[0]
	// Both local copies survive; only the uploaded one has a token.
	assert.Equal(t, "downloads/42/101/1.png, downloads/42/101/2.png", record["local_file_paths"])
	attachments := record["attachments"].([]map[string]interface{})
	require.Len(t, attachments, 1)
	assert.Equal(t, "ft-downloads/42/101/2.png", attachments[0]["file_token"])
}

func TestRunDownloadFailureStillInserts(t *testing.T) {
	topic := talkTopic(101, "2024-03-01T10:00:00.000+0800", "body")
	topic.Talk.Images = []zsxq.Image{
		{ImageID: 1, Large: &zsxq.ImageVariant{URL: "https://img.example.com/1.png"}},
	}
	topic.Talk.Files = []zsxq.File{{FileID: 5, Name: "notes.pdf"}}

	source := &fakeSource{
		groups:   []zsxq.Group{{GroupID: 42, Name: "Go Club"}},
		pages:    [][]zsxq.Topic{{topic}},
		fileURLs: map[int64]string{5: "https://files.example.com/5"},
		failURLs: map[string]bool{"https://files.example.com/5": true},
	}
	sink := &fakeSink{existing: map[string]bool{}}

	stats := newTestSyncer(t, source, sink, testConfig(t)).Run()

	assert.Equal(t, 1, stats.Synced)
	require.Len(t, sink.inserts, 1)

	// The failed file download drops out entirely; the image's local
	// copy and token carry the record alone.
	record := sink.inserts[0]
	assert.Equal(t, "downloads/42/101/1.png", record["local_file_paths"])
	attachments := record["attachments"].([]map[string]interface{})
	require.Len(t, attachments, 1)
	assert.Equal(t, "ft-downloads/42/101/1.png", attachments[0]["file_token"])
	assert.Equal(t, []string{"downloads/42/101/1.png"}, sink.uploads)
}

func TestRunInsertFailureCountsAsFailed(t *testing.T) {
	source := &fakeSource{
		groups: []zsxq.Group{{GroupID: 42, Name: "Go Club"}},
		pages:  [][]zsxq.Topic{{talkTopic(101, "2024-03-01T10:00:00.000+0800", "body")}},
	}
	sink := &fakeSink{existing: map[string]bool{}, failInsert: true}

	stats := newTestSyncer(t, source, sink, testConfig(t)).Run()

	assert.Equal(t, 1, stats.Failed)
	assert.Zero(t, stats.Synced)
}

func TestRunPaginatesUntilShortPage(t *testing.T) {
	cfg := testConfig(t)
	cfg.Crawl.MaxPages = 3

	source := &fakeSource{
		groups: []zsxq.Group{{GroupID: 42, Name: "Go Club"}},
		pages: [][]zsxq.Topic{
			{
				talkTopic(101, "2024-03-01T10:00:00.000+0800", "a"),
				talkTopic(102, "2024-02-28T10:00:00.000+0800", "b"),
			},
			{talkTopic(103, "2024-02-27T10:00:00.000+0800", "c")},
		},
	}
	sink := &fakeSink{existing: map[string]bool{}}

	stats := newTestSyncer(t, source, sink, cfg).Run()

	assert.Equal(t, 3, stats.Synced)
	// First call starts from the top, second resumes from the last
	// topic of page one. The short second page ends the crawl.
	require.Equal(t, []string{"", "2024-02-28T10:00:00.000+0800"}, source.cursors)
}

func TestRunStopsAtFloorTime(t *testing.T) {
	cfg := testConfig(t)
	cfg.Crawl.FloorTime = "2024-02-28T00:00:00+08:00"
	cfg.Crawl.MaxPages = 5

	source := &fakeSource{
		groups: []zsxq.Group{{GroupID: 42, Name: "Go Club"}},
		pages: [][]zsxq.Topic{
			{
				talkTopic(101, "2024-03-01T10:00:00.000+0800", "new enough"),
				talkTopic(102, "2024-02-01T10:00:00.000+0800", "too old"),
			},
		},
	}
	sink := &fakeSink{existing: map[string]bool{}}

	stats := newTestSyncer(t, source, sink, cfg).Run()

	assert.Equal(t, 1, stats.Synced)
	require.Len(t, sink.inserts, 1)
	assert.Equal(t, "101", sink.inserts[0]["topic_id"])
	// The floor ends the group; no second page is requested.
	assert.Len(t, source.cursors, 1)
}

func TestRunResumesFromCheckpoint(t *testing.T) {
	cfg := testConfig(t)
	cfg.Crawl.MaxPages = 3

	log := logger.NewTestLogger()
	manager, err := NewCheckpointManager(cfg.Crawl.DownloadDir, log)
	require.NoError(t, err)
	cp := manager.Create(42, "Go Club")
	cp.Cursor = "2024-02-28T10:00:00.000+0800"
	cp.Pages = 1
	require.NoError(t, manager.Save(cp))

	source := &fakeSource{
		groups: []zsxq.Group{{GroupID: 42, Name: "Go Club"}},
		pages:  [][]zsxq.Topic{{talkTopic(103, "2024-02-27T10:00:00.000+0800", "resumed")}},
	}
	sink := &fakeSink{existing: map[string]bool{}}

	stats := newTestSyncer(t, source, sink, cfg).Run()

	assert.Equal(t, 1, stats.Synced)
	require.Len(t, source.cursors, 1)
	assert.Equal(t, "2024-02-28T10:00:00.000+0800", source.cursors[0])

	// Short page completes the crawl and clears the checkpoint.
	loaded, err := manager.Load(42)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}
