// Package content extracts media references from a note's editor document.
// Note bodies are stored as editor JSON (an ordered list of typed blocks);
// extraction walks the blocks without binding the whole document to structs,
// since block payloads vary by editor plugin.
package content

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// Block types whose payload carries a media URL.
const (
	blockImage   = "image"
	blockEmbed   = "embed"
	blockYouTube = "youtubeEmbed"
)

var imageExtRe = regexp.MustCompile(`(?i)\.(png|jpe?g|gif|webp|avif|bmp|svg)(\?.*)?$`)

// ExtractMediaURLs returns every media URL referenced by the editor document,
// in block order, deduplicated. Malformed JSON yields an empty list.
func ExtractMediaURLs(document string) []string {
	blocks := gjson.Get(document, "blocks")
	if !blocks.IsArray() {
		return nil
	}

	var urls []string
	seen := make(map[string]struct{})

	blocks.ForEach(func(_, block gjson.Result) bool {
		url := blockURL(block)
		if url == "" {
			return true
		}
		if _, ok := seen[url]; ok {
			return true
		}
		seen[url] = struct{}{}
		urls = append(urls, url)
		return true
	})

	return urls
}

// blockURL pulls the media URL out of one editor block, if it has one
func blockURL(block gjson.Result) string {
	switch block.Get("type").String() {
	case blockImage:
		return block.Get("data.file.url").String()
	case blockEmbed, blockYouTube:
		if url := block.Get("data.url").String(); url != "" {
			return url
		}
		return block.Get("data.source").String()
	default:
		return ""
	}
}

// UploadedMediaURLs filters the document's media URLs down to ones hosted on
// the given media base, i.e. objects our uploader created and our cleanup may
// delete. Third-party embeds (youtube, social links) are excluded.
func UploadedMediaURLs(document, mediaBase string) []string {
	if mediaBase == "" {
		return nil
	}
	var owned []string
	for _, url := range ExtractMediaURLs(document) {
		if strings.HasPrefix(url, mediaBase) {
			owned = append(owned, url)
		}
	}
	return owned
}

// Static thumbnails for embeds that expose no per-post image.
const (
	InstagramThumbnail = "https://koffee-donut.s3.amazonaws.com/instagram.webp"
	TwitterThumbnail   = "https://koffee-donut.s3.amazonaws.com/X_logo.webp"
	TikTokThumbnail    = "https://koffee-donut.s3.amazonaws.com/tiktok.webp"
	DefaultThumbnail   = "https://koffee-donut.s3.amazonaws.com/no+image.png"
)

// FirstImageURL returns the note's lead thumbnail: the first media URL that
// resolves to an image, or the default placeholder when nothing does.
func FirstImageURL(document string) string {
	for _, url := range ExtractMediaURLs(document) {
		if thumb := ThumbnailFor(url); thumb != "" {
			return thumb
		}
	}
	return DefaultThumbnail
}

// IsDirectImage reports whether url points at an image file
func IsDirectImage(url string) bool {
	return imageExtRe.MatchString(url)
}

// IsYouTube reports whether url is a youtube video or short
func IsYouTube(url string) bool {
	return strings.Contains(url, "youtube.com/watch") ||
		strings.Contains(url, "youtube.com/shorts/") ||
		strings.Contains(url, "youtu.be/")
}

// IsInstagram reports whether url is an instagram post or reel
func IsInstagram(url string) bool {
	return strings.Contains(url, "instagram.com/p/") ||
		strings.Contains(url, "instagram.com/reel")
}

// IsTwitter reports whether url is a twitter/x status link
func IsTwitter(url string) bool {
	return strings.Contains(url, "twitter.com/") ||
		strings.Contains(url, "x.com/")
}

// IsTikTok reports whether url is a tiktok link
func IsTikTok(url string) bool {
	return strings.Contains(url, "tiktok.com/")
}

// ThumbnailFor derives a thumbnail URL for a media URL. YouTube exposes
// per-video thumbnails; instagram, twitter and tiktok get a static logo
// placeholder. Unrecognized URLs yield "".
func ThumbnailFor(url string) string {
	switch {
	case IsYouTube(url):
		if id := youtubeVideoID(url); id != "" {
			return "https://img.youtube.com/vi/" + id + "/0.jpg"
		}
		return ""
	case IsInstagram(url):
		return InstagramThumbnail
	case IsTwitter(url):
		return TwitterThumbnail
	case IsTikTok(url):
		return TikTokThumbnail
	case IsDirectImage(url):
		return url
	default:
		return ""
	}
}

// youtubeVideoID extracts the video id from the supported youtube URL shapes
func youtubeVideoID(url string) string {
	var rest string
	switch {
	case strings.Contains(url, "youtube.com/watch"):
		_, query, ok := strings.Cut(url, "?")
		if !ok {
			return ""
		}
		for _, pair := range strings.Split(query, "&") {
			if v, found := strings.CutPrefix(pair, "v="); found {
				return trimVideoID(v)
			}
		}
		return ""
	case strings.Contains(url, "youtube.com/shorts/"):
		_, rest, _ = strings.Cut(url, "shorts/")
	case strings.Contains(url, "youtu.be/"):
		_, rest, _ = strings.Cut(url, "youtu.be/")
	default:
		return ""
	}
	return trimVideoID(rest)
}

func trimVideoID(s string) string {
	for i, r := range s {
		if r == '?' || r == '&' || r == '/' || r == '#' {
			return s[:i]
		}
	}
	return s
}
