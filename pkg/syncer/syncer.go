package syncer

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"zsxqsync/pkg/config"
	"zsxqsync/pkg/feishu"
	"zsxqsync/pkg/logger"
	"zsxqsync/pkg/normalize"
	"zsxqsync/pkg/ratelimit"
	"zsxqsync/pkg/zsxq"
)

// SourceClient lists content and fetches assets from the source platform
type SourceClient interface {
	ListGroups() []zsxq.Group
	ListTopics(groupID int64, endTime string, count int) ([]zsxq.Topic, string)
	ResolveFileURL(fileID int64) (string, bool)
	Download(rawURL string, groupID, topicID int64, filename string) (string, bool)
}

// SinkClient mirrors records and attachments into the destination table
type SinkClient interface {
	RecordExists(field, value string) bool
	InsertRecord(fields map[string]interface{}) (string, bool)
	UploadFile(localPath string, kind feishu.UploadKind) (string, bool)
}

// Stats summarizes one sync run
type Stats struct {
	Groups  int
	Topics  int
	Synced  int
	Skipped int
	Failed  int
}

// Syncer walks every group newest-first and mirrors each unseen topic
// into the destination table. Topics are processed strictly one at a
// time; a failing topic is logged and skipped, never fatal.
type Syncer struct {
	source      SourceClient
	sink        SinkClient
	cfg         *config.Config
	logger      logger.Logger
	assetPacer  *ratelimit.Pacer
	topicPacer  *ratelimit.Pacer
	checkpoints *CheckpointManager
}

// New creates a syncer wired to the given source and sink
func New(source SourceClient, sink SinkClient, cfg *config.Config, log logger.Logger) (*Syncer, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	checkpoints, err := NewCheckpointManager(cfg.Crawl.DownloadDir, log)
	if err != nil {
		return nil, err
	}

	return &Syncer{
		source:      source,
		sink:        sink,
		cfg:         cfg,
		logger:      log,
		assetPacer:  ratelimit.NewPacer(cfg.Crawl.AssetPauseMin, cfg.Crawl.AssetPauseMax),
		topicPacer:  ratelimit.NewPacer(cfg.Crawl.TopicPauseMin, cfg.Crawl.TopicPauseMax),
		checkpoints: checkpoints,
	}, nil
}

// Run performs one full sync pass over all visible groups
func (s *Syncer) Run() Stats {
	var stats Stats

	groups := s.source.ListGroups()
	if len(groups) == 0 {
		s.logger.Warn("no groups visible to this account, nothing to sync")
		return stats
	}

	floor := s.parseFloor()

	for _, group := range groups {
		stats.Groups++
		s.logger.InfoWithFields("syncing group", map[string]interface{}{
			"group_id": group.GroupID,
			"name":     group.Name,
		})
		s.syncGroup(group, floor, &stats)
	}

	s.logger.InfoWithFields("sync run finished", map[string]interface{}{
		"groups":  stats.Groups,
		"topics":  stats.Topics,
		"synced":  stats.Synced,
		"skipped": stats.Skipped,
		"failed":  stats.Failed,
	})

	return stats
}

// parseFloor converts the configured floor timestamp to epoch millis.
// Zero means no floor.
func (s *Syncer) parseFloor() int64 {
	raw := s.cfg.Crawl.FloorTime
	if raw == "" {
		return 0
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UnixMilli()
		}
	}
	s.logger.WithField("floor_time", raw).Warn("unparseable floor time, crawling without a floor")
	return 0
}

func (s *Syncer) syncGroup(group zsxq.Group, floor int64, stats *Stats) {
	cp, err := s.checkpoints.Load(group.GroupID)
	if err != nil {
		s.logger.WithError(err).WithField("group_id", group.GroupID).Warn("discarding unreadable checkpoint")
		cp = nil
	}
	maxPages := s.cfg.Crawl.MaxPages
	if maxPages < 1 {
		maxPages = 1
	}
	// A checkpoint that already covered the page budget is stale; start
	// the group over from the newest topics.
	if cp == nil || cp.Pages >= maxPages {
		cp = s.checkpoints.Create(group.GroupID, group.Name)
	}
	pageSize := s.cfg.Zsxq.PageSize

	cursor := cp.Cursor
	complete := false

	for cp.Pages < maxPages {
		topics, next := s.source.ListTopics(group.GroupID, cursor, pageSize)
		if len(topics) == 0 {
			complete = true
			break
		}

		for _, topic := range topics {
			if floor > 0 && normalize.EpochMillis(topic.CreateTime, s.logger) < floor {
				s.logger.WithField("group_id", group.GroupID).Info("reached floor time, stopping group")
				complete = true
				break
			}

			stats.Topics++
			switch s.syncTopic(group, topic) {
			case outcomeSynced:
				stats.Synced++
				cp.Synced++
			case outcomeSkipped:
				stats.Skipped++
				cp.Skipped++
			case outcomeFailed:
				stats.Failed++
			}

			s.topicPacer.Pause()
		}

		cp.Pages++
		cp.Cursor = next
		if err := s.checkpoints.Save(cp); err != nil {
			s.logger.WithError(err).WithField("group_id", group.GroupID).Warn("failed to save checkpoint")
		}

		if complete || len(topics) < pageSize {
			complete = true
			break
		}
		cursor = next
	}

	if complete {
		if err := s.checkpoints.Clear(group.GroupID); err != nil {
			s.logger.WithError(err).WithField("group_id", group.GroupID).Warn("failed to clear checkpoint")
		}
	}
}

type outcome int

const (
	outcomeSynced outcome = iota
	outcomeSkipped
	outcomeFailed
)

// syncTopic runs the per-topic pipeline: dedup, normalize, download
// assets, upload attachments, insert the record.
func (s *Syncer) syncTopic(group zsxq.Group, topic zsxq.Topic) outcome {
	topicID := strconv.FormatInt(topic.TopicID, 10)
	log := s.logger.WithFields(map[string]interface{}{
		"group_id": group.GroupID,
		"topic_id": topicID,
	})

	if s.sink.RecordExists(s.cfg.Crawl.DedupField, topicID) {
		log.Debug("topic already mirrored, skipping")
		return outcomeSkipped
	}

	var localPaths []string
	var attachments []map[string]interface{}

	for _, image := range topic.Images() {
		url := image.BestURL()
		if url == "" {
			log.WithField("image_id", image.ImageID).Warn("image has no downloadable variant")
			continue
		}
		localPath, token := s.mirrorAsset(url, group.GroupID, topic.TopicID, imageFilename(image, url), feishu.KindImage, log)
		if localPath != "" {
			localPaths = append(localPaths, localPath)
		}
		if token != "" {
			attachments = append(attachments, map[string]interface{}{"file_token": token})
		}
	}

	for _, file := range topic.Files() {
		url, ok := s.source.ResolveFileURL(file.FileID)
		if !ok {
			continue
		}
		localPath, token := s.mirrorAsset(url, group.GroupID, topic.TopicID, file.Name, feishu.KindFile, log)
		if localPath != "" {
			localPaths = append(localPaths, localPath)
		}
		if token != "" {
			attachments = append(attachments, map[string]interface{}{"file_token": token})
		}
	}

	fields := map[string]interface{}{
		"topic_id":         topicID,
		"content":          normalize.Clean(topic.Text(), s.logger),
		"create_time":      normalize.EpochMillis(topic.CreateTime, s.logger),
		"group_name":       group.Name,
		"author":           topic.AuthorName(),
		"local_file_paths": strings.Join(localPaths, ", "),
		"status":           "Done",
	}
	if len(attachments) > 0 {
		fields["attachments"] = attachments
	}

	recordID, ok := s.sink.InsertRecord(fields)
	if !ok {
		log.Error("failed to insert record, topic not mirrored")
		return outcomeFailed
	}

	log.WithField("record_id", recordID).Info("topic mirrored")
	return outcomeSynced
}

// mirrorAsset downloads one asset then uploads it, pausing between the
// two transfers. Either half failing yields empty results; downloads
// that succeed are still reported so the record keeps the local path.
func (s *Syncer) mirrorAsset(url string, groupID, topicID int64, filename string, kind feishu.UploadKind, log logger.Logger) (localPath, token string) {
	localPath, ok := s.source.Download(url, groupID, topicID, filename)
	if !ok {
		return "", ""
	}
	s.assetPacer.Pause()

	token, ok = s.sink.UploadFile(localPath, kind)
	if !ok {
		log.WithField("path", localPath).Warn("attachment upload failed, keeping local copy only")
		return localPath, ""
	}
	s.assetPacer.Pause()

	return localPath, token
}

// imageFilename derives a stable local name from the image id, keeping
// the URL's extension when it has one.
func imageFilename(image zsxq.Image, url string) string {
	ext := path.Ext(strings.SplitN(path.Base(url), "?", 2)[0])
	if ext == "" || len(ext) > 5 {
		ext = ".jpg"
	}
	return fmt.Sprintf("%d%s", image.ImageID, ext)
}
