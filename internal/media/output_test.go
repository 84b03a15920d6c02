package media

import "testing"

func TestMimeType(t *testing.T) {
	tests := []struct {
		name    string
		locator string
		want    string
	}{
		{"hls playlist", "https://cdn.example.com/live/index.m3u8", MimeHLS},
		{"hls with query", "https://cdn.example.com/live/index.m3u8?token=abc", MimeHLS},
		{"uppercase extension", "https://cdn.example.com/LIVE.M3U8", MimeHLS},
		{"mp3 stream", "http://radio.example.com/stream.mp3", MimeMPEG},
		{"aac stream", "http://radio.example.com/stream.aac", MimeAAC},
		{"transport stream", "http://example.com/seg001.ts", MimeTS},
		{"mp4 file", "/srv/media/clip.mp4", MimeMP4},
		{"dash manifest", "https://example.com/manifest.mpd", MimeDASH},
		{"no extension", "http://radio.example.com:8000/live", MimeFallback},
		{"empty", "", MimeFallback},
		{"unknown extension", "http://example.com/stream.zzzunknown", MimeFallback},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MimeType(tt.locator); got != tt.want {
				t.Errorf("MimeType(%q) = %q, want %q", tt.locator, got, tt.want)
			}
		})
	}
}

func TestTypeSet(t *testing.T) {
	set := newTypeSet([]string{" Audio/MPEG ", "video/mp4"})

	if !set.has("audio/mpeg") {
		t.Error("has(audio/mpeg) = false, want true")
	}
	if !set.has("VIDEO/MP4") {
		t.Error("has(VIDEO/MP4) = false, want true")
	}
	if set.has(MimeHLS) {
		t.Error("has(hls) = true, want false")
	}
}
