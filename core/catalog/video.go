package catalog

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	youtubeIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
	vimeoIDRegex   = regexp.MustCompile(`^\d+$`)
)

// YoutubeID extracts the video ID of youtu.be/<id>, youtube.com/watch?v=<id>, /embed/<id> and /shorts/<id> links.
func YoutubeID(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	path := strings.Trim(u.Path, "/")

	var cand string
	switch {
	case host == "youtu.be":
		cand = strings.Split(path, "/")[0]
	case strings.HasSuffix(host, "youtube.com"):
		if v, ok := u.Query()["v"]; ok && len(v) > 0 {
			cand = v[0]
			break
		}
		parts := strings.Split(path, "/")
		if len(parts) >= 2 && (parts[0] == "embed" || parts[0] == "shorts") {
			cand = parts[1]
		}
	}
	if youtubeIDRegex.MatchString(cand) {
		return cand
	}
	return ""
}

// VimeoID extracts the numeric video ID of vimeo.com/<id> and vimeo.com/.../video/<id> links.
func VimeoID(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil || !strings.Contains(strings.ToLower(u.Hostname()), "vimeo.com") {
		return ""
	}
	var parts []string
	for _, p := range strings.Split(strings.Trim(u.Path, "/"), "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) > 0 && vimeoIDRegex.MatchString(parts[len(parts)-1]) {
		return parts[len(parts)-1]
	}
	return ""
}

// IsMP4 reports whether the URL points to an .mp4 file (query and fragment ignored).
func IsMP4(rawURL string) bool {
	u := strings.SplitN(rawURL, "?", 2)[0]
	u = strings.SplitN(u, "#", 2)[0]
	return strings.HasSuffix(strings.ToLower(u), ".mp4")
}

func YoutubeEmbedURL(rawURL string) string {
	id := YoutubeID(rawURL)
	if id == "" {
		return ""
	}
	return "https://www.youtube-nocookie.com/embed/" + id + "?rel=0&modestbranding=1&playsinline=1"
}

func VimeoEmbedURL(rawURL string) string {
	id := VimeoID(rawURL)
	if id == "" {
		return ""
	}
	return "https://player.vimeo.com/video/" + url.PathEscape(id) + "?byline=0&portrait=0&title=0"
}

// VideoEmbedURL returns the iframe URL for YouTube/Vimeo links, or the link itself for direct mp4 files.
func VideoEmbedURL(rawURL string) string {
	if embed := YoutubeEmbedURL(rawURL); embed != "" {
		return embed
	}
	if embed := VimeoEmbedURL(rawURL); embed != "" {
		return embed
	}
	if IsMP4(rawURL) {
		return rawURL
	}
	return ""
}

// OfficeViewerURL wraps a public document URL into the Office online viewer.
func OfficeViewerURL(docURL string) string {
	return "https://view.officeapps.live.com/op/embed.aspx?src=" + strings.ReplaceAll(url.QueryEscape(docURL), "+", "%20")
}
