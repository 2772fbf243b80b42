package domain

// PostReference identifies a post by its author handle and record key.
type PostReference struct {
	Handle string
	PostID string
}

// HasPostID reports whether the reference names a specific post.
func (r PostReference) HasPostID() bool {
	return r.PostID != ""
}

// VideoLocator points at a video on the video host.
type VideoLocator struct {
	// AuthorID is the DID the handle resolved to.
	AuthorID string
	// VideoRef is the CID of the video blob referenced by the post.
	VideoRef string
}

// Valid reports whether both parts are present.
func (l VideoLocator) Valid() bool {
	return l.AuthorID != "" && l.VideoRef != ""
}

// QualityTier selects which rendition of a video is downloaded.
type QualityTier string

const (
	TierStandard QualityTier = "standard"
	TierHigh     QualityTier = "high"
)

// ParseQualityTier maps the form's quality value to a tier. Only "320p" selects
// the standard rendition. The second return value is false when the input was
// not recognized and the high tier was chosen as a fallback.
func ParseQualityTier(s string) (QualityTier, bool) {
	switch s {
	case "320p":
		return TierStandard, true
	case "720p":
		return TierHigh, true
	default:
		return TierHigh, false
	}
}

// Prefix is the rendition path prefix used in the master playlist.
func (t QualityTier) Prefix() string {
	if t == TierStandard {
		return "360p"
	}
	return "720p"
}

// FilenameSuffix is appended to the post ID to name the assembled file.
func (t QualityTier) FilenameSuffix() string {
	return "_" + t.Prefix() + ".mp4"
}

// SegmentList is an ordered list of absolute segment URLs in playback order.
type SegmentList []string

// AssembledVideo is a complete video held in memory for a single response.
type AssembledVideo struct {
	Data         []byte
	Filename     string
	Tier         QualityTier
	SegmentCount int
}

// Size returns the length of the video in bytes.
func (v *AssembledVideo) Size() int {
	return len(v.Data)
}
