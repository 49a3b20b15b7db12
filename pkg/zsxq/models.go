package zsxq

// apiEnvelope is the common response wrapper of the zsxq web API
type apiEnvelope struct {
	Succeeded bool     `json:"succeeded"`
	Code      int      `json:"code"`
	RespData  respData `json:"resp_data"`
}

type respData struct {
	Groups      []Group `json:"groups"`
	Topics      []Topic `json:"topics"`
	DownloadURL string  `json:"download_url"`
}

// Group is a community (planet) the authenticated account has joined
type Group struct {
	GroupID int64  `json:"group_id"`
	Name    string `json:"name"`
}

// Topic is one unit of source content: a post with optional text,
// images and file attachments. Immutable as received.
type Topic struct {
	TopicID    int64  `json:"topic_id"`
	CreateTime string `json:"create_time"`
	Talk       *Talk  `json:"talk"`
}

// Talk carries the authored body of a topic
type Talk struct {
	Owner  *Owner  `json:"owner"`
	Text   string  `json:"text"`
	Images []Image `json:"images"`
	Files  []File  `json:"files"`
}

// Owner identifies the topic author
type Owner struct {
	Name string `json:"name"`
}

// Image references one attached image with size variants ordered by
// preference: large first, thumbnail as fallback.
type Image struct {
	ImageID   int64         `json:"image_id"`
	Large     *ImageVariant `json:"large"`
	Thumbnail *ImageVariant `json:"thumbnail"`
}

// ImageVariant is a single downloadable rendition of an image
type ImageVariant struct {
	URL string `json:"url"`
}

// BestURL returns the preferred download URL, or empty if none exists
func (i Image) BestURL() string {
	if i.Large != nil && i.Large.URL != "" {
		return i.Large.URL
	}
	if i.Thumbnail != nil && i.Thumbnail.URL != "" {
		return i.Thumbnail.URL
	}
	return ""
}

// File references one attached file. The download URL is not embedded
// and requires a secondary lookup by file id.
type File struct {
	FileID int64  `json:"file_id"`
	Name   string `json:"name"`
}

// Text returns the topic body, empty when the topic has no talk
func (t Topic) Text() string {
	if t.Talk == nil {
		return ""
	}
	return t.Talk.Text
}

// AuthorName returns the topic author's display name, or empty when the
// source omits it
func (t Topic) AuthorName() string {
	if t.Talk == nil || t.Talk.Owner == nil {
		return ""
	}
	return t.Talk.Owner.Name
}

// Images returns the attached images, nil-safe
func (t Topic) Images() []Image {
	if t.Talk == nil {
		return nil
	}
	return t.Talk.Images
}

// Files returns the attached files, nil-safe
func (t Topic) Files() []File {
	if t.Talk == nil {
		return nil
	}
	return t.Talk.Files
}
