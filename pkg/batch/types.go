// Package batch provides the batch acquisition orchestrator: a bounded worker
// pool that drives items through rate-limited, retried acquisition and
// checkpoints progress after every terminal outcome.
package batch

// ItemDescriptor is the immutable input unit for one acquisition. It is
// produced by an upstream extraction step and owned read-only by the
// orchestrator for the batch's duration.
type ItemDescriptor struct {
	// ID uniquely identifies the item within its batch.
	ID string `json:"id"`

	// URL is the remote source of the item.
	URL string `json:"url"`

	Title        string `json:"title,omitempty"`
	DurationSec  int    `json:"duration_sec,omitempty"`
	UploadDate   string `json:"upload_date,omitempty"`
	ViewCount    int64  `json:"view_count,omitempty"`
	LikeCount    int64  `json:"like_count,omitempty"`
	CommentCount int64  `json:"comment_count,omitempty"`
	Thumbnail    string `json:"thumbnail,omitempty"`
}

// Meta carries batch-level labels. A resume prompt only needs these and the
// completed counts, never full item details.
type Meta struct {
	// Platform is the source platform label (e.g. "youtube", "bilibili").
	Platform string `json:"platform,omitempty"`

	// ChannelName is the human label of the channel the items came from.
	ChannelName string `json:"channel_name,omitempty"`

	// ChannelURL is the channel homepage the items were extracted from.
	ChannelURL string `json:"channel_url,omitempty"`
}
