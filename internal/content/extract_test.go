package content

import "testing"

const sampleDocument = `{
	"time": 1660000000000,
	"blocks": [
		{"type": "paragraph", "data": {"text": "hello"}},
		{"type": "image", "data": {"file": {"url": "https://cdn.test/photo.png"}, "caption": ""}},
		{"type": "youtubeEmbed", "data": {"url": "https://www.youtube.com/watch?v=dQw4w9WgXcQ"}},
		{"type": "embed", "data": {"source": "https://www.instagram.com/p/abc123/"}},
		{"type": "image", "data": {"file": {"url": "https://cdn.test/photo.png"}}}
	],
	"version": "2.25.0"
}`

func TestExtractMediaURLs(t *testing.T) {
	urls := ExtractMediaURLs(sampleDocument)

	want := []string{
		"https://cdn.test/photo.png",
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://www.instagram.com/p/abc123/",
	}
	if len(urls) != len(want) {
		t.Fatalf("Expected %d urls, got %d: %v", len(want), len(urls), urls)
	}
	for i, u := range want {
		if urls[i] != u {
			t.Errorf("URL %d: expected %q, got %q", i, u, urls[i])
		}
	}
}

func TestExtractMediaURLsMalformed(t *testing.T) {
	for _, doc := range []string{"", "not json", `{"blocks": "nope"}`, `{}`} {
		if urls := ExtractMediaURLs(doc); len(urls) != 0 {
			t.Errorf("Expected no urls from %q, got %v", doc, urls)
		}
	}
}

func TestUploadedMediaURLs(t *testing.T) {
	owned := UploadedMediaURLs(sampleDocument, "https://cdn.test/")
	if len(owned) != 1 || owned[0] != "https://cdn.test/photo.png" {
		t.Errorf("Expected only the uploaded image, got %v", owned)
	}

	if got := UploadedMediaURLs(sampleDocument, ""); got != nil {
		t.Errorf("Expected nil for empty media base, got %v", got)
	}
}

func TestFirstImageURLTakesFirstResolvable(t *testing.T) {
	if got := FirstImageURL(sampleDocument); got != "https://cdn.test/photo.png" {
		t.Errorf("Expected image block url, got %q", got)
	}
}

func TestFirstImageURLFallsBackToEmbedThumbnail(t *testing.T) {
	doc := `{"blocks": [
		{"type": "youtubeEmbed", "data": {"url": "https://youtu.be/dQw4w9WgXcQ"}}
	]}`
	want := "https://img.youtube.com/vi/dQw4w9WgXcQ/0.jpg"
	if got := FirstImageURL(doc); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}

	// No visual media at all yields the default placeholder.
	if got := FirstImageURL(`{"blocks": [{"type": "paragraph", "data": {"text": "x"}}]}`); got != DefaultThumbnail {
		t.Errorf("Expected default thumbnail, got %q", got)
	}
}

func TestThumbnailFor(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.youtube.com/watch?v=abc123", "https://img.youtube.com/vi/abc123/0.jpg"},
		{"https://www.youtube.com/watch?list=x&v=abc123", "https://img.youtube.com/vi/abc123/0.jpg"},
		{"https://www.youtube.com/shorts/xyz789?feature=share", "https://img.youtube.com/vi/xyz789/0.jpg"},
		{"https://youtu.be/abc123", "https://img.youtube.com/vi/abc123/0.jpg"},
		{"https://cdn.test/pic.jpeg", "https://cdn.test/pic.jpeg"},
		{"https://www.instagram.com/p/abc/", InstagramThumbnail},
		{"https://x.com/user/status/1", TwitterThumbnail},
		{"https://www.tiktok.com/@user/video/1", TikTokThumbnail},
		{"https://example.com/page", ""},
	}

	for _, tt := range tests {
		if got := ThumbnailFor(tt.url); got != tt.want {
			t.Errorf("ThumbnailFor(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestURLCheckers(t *testing.T) {
	if !IsYouTube("https://www.youtube.com/watch?v=a") || !IsYouTube("https://youtu.be/a") {
		t.Error("Expected youtube urls recognized")
	}
	if !IsInstagram("https://www.instagram.com/reel/a/") {
		t.Error("Expected instagram reel recognized")
	}
	if !IsTwitter("https://x.com/user/status/1") {
		t.Error("Expected x.com recognized")
	}
	if !IsTikTok("https://www.tiktok.com/@user/video/1") {
		t.Error("Expected tiktok recognized")
	}
	if IsYouTube("https://example.com") || IsTwitter("https://example.com") {
		t.Error("Expected plain urls rejected")
	}

	if !IsDirectImage("https://cdn.test/a.webp?w=100") {
		t.Error("Expected image extension with query recognized")
	}
	if IsDirectImage("https://cdn.test/a.mp4") {
		t.Error("Expected video extension rejected")
	}
}
