package service

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/iconidentify/bsvdl/internal/domain"
)

const testBase = testVideoHost + "/watch/" + testDID + "/" + testCID

var testLocator = domain.VideoLocator{AuthorID: testDID, VideoRef: testCID}

func newPlaylistFetcher() *mockFetcher {
	f := newMockFetcher()
	f.texts[testBase+"/playlist.m3u8"] = testMaster
	f.texts[testBase+"/360p/video.m3u8"] = mediaPlaylist("video0.ts", "video1.ts", "video2.ts")
	f.texts[testBase+"/720p/video.m3u8"] = mediaPlaylist("video0.ts", "video1.ts")
	return f
}

func TestSelector_SelectSegments(t *testing.T) {
	tests := []struct {
		name       string
		tier       domain.QualityTier
		wantSuffix string
		want       domain.SegmentList
	}{
		{
			name:       "standard",
			tier:       domain.TierStandard,
			wantSuffix: "_360p.mp4",
			want: domain.SegmentList{
				testBase + "/360p/video0.ts",
				testBase + "/360p/video1.ts",
				testBase + "/360p/video2.ts",
			},
		},
		{
			name:       "high",
			tier:       domain.TierHigh,
			wantSuffix: "_720p.mp4",
			want: domain.SegmentList{
				testBase + "/720p/video0.ts",
				testBase + "/720p/video1.ts",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSelector(newPlaylistFetcher(), testBlueskyConfig(), testLogger())

			got, suffix, err := s.SelectSegments(context.Background(), testLocator, tt.tier)
			if err != nil {
				t.Fatalf("SelectSegments failed: %v", err)
			}
			if suffix != tt.wantSuffix {
				t.Errorf("suffix = %q, want %q", suffix, tt.wantSuffix)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("segments = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSelector_SelectSegments_FiltersNonVideoLines(t *testing.T) {
	f := newPlaylistFetcher()
	f.texts[testBase+"/360p/video.m3u8"] = "init.mp4\nvideo1.ts\nvideo0.ts\nvideo1.ts\n"
	s := NewSelector(f, testBlueskyConfig(), testLogger())

	got, _, err := s.SelectSegments(context.Background(), testLocator, domain.TierStandard)
	if err != nil {
		t.Fatalf("SelectSegments failed: %v", err)
	}
	want := domain.SegmentList{
		testBase + "/360p/video1.ts",
		testBase + "/360p/video0.ts",
		testBase + "/360p/video1.ts",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("segments = %v, want %v", got, want)
	}
}

func TestSelector_SelectSegments_ManifestErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *mockFetcher)
	}{
		{"master unavailable", func(f *mockFetcher) {
			f.fail[testBase+"/playlist.m3u8"] = errors.New("unexpected status code 404")
		}},
		{"no matching rendition", func(f *mockFetcher) {
			f.texts[testBase+"/playlist.m3u8"] = "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=1\n1080p/video.m3u8\n"
		}},
		{"rendition unavailable", func(f *mockFetcher) {
			delete(f.texts, testBase+"/360p/video.m3u8")
		}},
		{"no segments", func(f *mockFetcher) {
			f.texts[testBase+"/360p/video.m3u8"] = mediaPlaylist()
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPlaylistFetcher()
			tt.setup(f)
			s := NewSelector(f, testBlueskyConfig(), testLogger())

			_, _, err := s.SelectSegments(context.Background(), testLocator, domain.TierStandard)
			if !errors.Is(err, domain.ErrManifest) {
				t.Errorf("err = %v, want ErrManifest", err)
			}
		})
	}
}

func TestSelector_SelectSegments_InvalidLocator(t *testing.T) {
	f := newPlaylistFetcher()
	s := NewSelector(f, testBlueskyConfig(), testLogger())

	_, _, err := s.SelectSegments(context.Background(), domain.VideoLocator{AuthorID: testDID}, domain.TierHigh)
	if !errors.Is(err, domain.ErrManifest) {
		t.Errorf("err = %v, want ErrManifest", err)
	}
	if f.callCount() != 0 {
		t.Errorf("no fetches expected, got %d", f.callCount())
	}
}
