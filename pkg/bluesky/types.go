package bluesky

import (
	appbsky "github.com/bluesky-social/indigo/api/bsky"
	lexutil "github.com/bluesky-social/indigo/lex/util"
	"github.com/ipfs/go-cid"
)

// Hydrated embed view types, as they appear in the app view's $type.
const (
	EmbedImagesView          = "app.bsky.embed.images#view"
	EmbedVideoView           = "app.bsky.embed.video#view"
	EmbedExternalView        = "app.bsky.embed.external#view"
	EmbedRecordView          = "app.bsky.embed.record#view"
	EmbedRecordWithMediaView = "app.bsky.embed.recordWithMedia#view"
	embedUnknownView         = "unknown"
)

// Record embed types.
const (
	embedImages          = "app.bsky.embed.images"
	embedVideo           = "app.bsky.embed.video"
	embedExternal        = "app.bsky.embed.external"
	embedRecord          = "app.bsky.embed.record"
	embedRecordWithMedia = "app.bsky.embed.recordWithMedia"
)

// PostView is the part of a hydrated post that video lookup needs.
type PostView struct {
	URI    string
	CID    string
	Author ProfileBasic
	Record PostRecord
	// Embed is the hydrated view of the record's embed. Its Type is the
	// discriminator between direct video embeds and record-with-media wrappers.
	Embed *EmbedView
}

// ProfileBasic identifies the post author.
type ProfileBasic struct {
	DID         string
	Handle      string
	DisplayName string
}

// EmbedView is the hydrated embed.
type EmbedView struct {
	Type     string
	CID      string
	Playlist string
}

// PostRecord is the app.bsky.feed.post record behind a view.
type PostRecord struct {
	Type      string
	Text      string
	CreatedAt string
	Embed     *RecordEmbed
}

// RecordEmbed covers app.bsky.embed.video and app.bsky.embed.recordWithMedia.
// A record-with-media wrapper carries the video one level deeper, under Media.
type RecordEmbed struct {
	Type  string
	Video *Blob
	Media *RecordEmbed
}

// Blob is a reference to uploaded content.
type Blob struct {
	Type     string
	Ref      BlobRef
	MimeType string
	Size     int64
}

// BlobRef holds the content identifier of a blob.
type BlobRef struct {
	Link string
}

func postViewFromLex(pv *appbsky.FeedDefs_PostView) *PostView {
	v := &PostView{
		URI:   pv.Uri,
		CID:   pv.Cid,
		Embed: embedViewFromLex(pv.Embed),
	}
	if a := pv.Author; a != nil {
		v.Author = ProfileBasic{DID: a.Did, Handle: a.Handle}
		if a.DisplayName != nil {
			v.Author.DisplayName = *a.DisplayName
		}
	}
	if pv.Record != nil {
		if post, ok := pv.Record.Val.(*appbsky.FeedPost); ok {
			v.Record = PostRecord{
				Type:      "app.bsky.feed.post",
				Text:      post.Text,
				CreatedAt: post.CreatedAt,
				Embed:     recordEmbedFromLex(post.Embed),
			}
		}
	}
	return v
}

func embedViewFromLex(e *appbsky.FeedDefs_PostView_Embed) *EmbedView {
	if e == nil {
		return nil
	}
	switch {
	case e.EmbedVideo_View != nil:
		return &EmbedView{Type: EmbedVideoView, CID: e.EmbedVideo_View.Cid, Playlist: e.EmbedVideo_View.Playlist}
	case e.EmbedRecordWithMedia_View != nil:
		ev := &EmbedView{Type: EmbedRecordWithMediaView}
		if m := e.EmbedRecordWithMedia_View.Media; m != nil && m.EmbedVideo_View != nil {
			ev.CID = m.EmbedVideo_View.Cid
			ev.Playlist = m.EmbedVideo_View.Playlist
		}
		return ev
	case e.EmbedImages_View != nil:
		return &EmbedView{Type: EmbedImagesView}
	case e.EmbedExternal_View != nil:
		return &EmbedView{Type: EmbedExternalView}
	case e.EmbedRecord_View != nil:
		return &EmbedView{Type: EmbedRecordView}
	}
	// A union member this client has no type for.
	return &EmbedView{Type: embedUnknownView}
}

func recordEmbedFromLex(e *appbsky.FeedPost_Embed) *RecordEmbed {
	if e == nil {
		return nil
	}
	switch {
	case e.EmbedVideo != nil:
		return &RecordEmbed{Type: embedVideo, Video: blobFromLex(e.EmbedVideo.Video)}
	case e.EmbedRecordWithMedia != nil:
		re := &RecordEmbed{Type: embedRecordWithMedia}
		if m := e.EmbedRecordWithMedia.Media; m != nil && m.EmbedVideo != nil {
			re.Media = &RecordEmbed{Type: embedVideo, Video: blobFromLex(m.EmbedVideo.Video)}
		}
		return re
	case e.EmbedImages != nil:
		return &RecordEmbed{Type: embedImages}
	case e.EmbedExternal != nil:
		return &RecordEmbed{Type: embedExternal}
	case e.EmbedRecord != nil:
		return &RecordEmbed{Type: embedRecord}
	}
	return nil
}

func blobFromLex(b *lexutil.LexBlob) *Blob {
	if b == nil {
		return nil
	}
	blob := &Blob{Type: "blob", MimeType: b.MimeType, Size: b.Size}
	if ref := cid.Cid(b.Ref); ref.Defined() {
		blob.Ref.Link = ref.String()
	}
	return blob
}
