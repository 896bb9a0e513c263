package extract

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"

	"misdash/pkg/metrics"
)

// ErrImageUnavailable means every candidate URL failed to load, or there were none.
var ErrImageUnavailable = errors.New("image unavailable")

// A path ID must be a whole segment, so /d/logo.png is not a Drive link.
var drivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`/file/d/([A-Za-z0-9_-]+)(?:[/?#]|$)`),
	regexp.MustCompile(`[?&]id=([A-Za-z0-9_-]+)`),
	regexp.MustCompile(`/d/([A-Za-z0-9_-]+)(?:[/?#]|$)`),
}

// DriveFileID extracts the file ID from a Google Drive sharing link.
func DriveFileID(u string) (string, bool) {
	for _, p := range drivePatterns {
		if m := p.FindStringSubmatch(u); len(m) == 2 {
			return m[1], true
		}
	}
	return "", false
}

func ThumbnailURL(id string) string {
	return "https://drive.google.com/thumbnail?id=" + id + "&sz=w400"
}

// ResolveImageURL prefers the direct thumbnail form of a Drive link; other URLs pass
// through unchanged.
func ResolveImageURL(u string) string {
	if id, ok := DriveFileID(u); ok {
		return ThumbnailURL(id)
	}
	return u
}

// ImageCandidates lists the URLs to try in order: thumbnail, alternate content host,
// export view, then the original link.
func ImageCandidates(u string) []string {
	u = strings.TrimSpace(u)
	if u == "" {
		return nil
	}
	id, ok := DriveFileID(u)
	if !ok {
		return []string{u}
	}
	out := []string{
		ThumbnailURL(id),
		"https://lh3.googleusercontent.com/d/" + id,
		"https://drive.google.com/uc?export=view&id=" + id,
	}
	for _, c := range out {
		if c == u {
			return out
		}
	}
	return append(out, u)
}

type ImageState int

const (
	Trying ImageState = iota
	Displaying
	Exhausted
)

func (s ImageState) String() string {
	switch s {
	case Trying:
		return "trying"
	case Displaying:
		return "displaying"
	default:
		return "exhausted"
	}
}

// ImageLoader is the fallback chain for one image. It only moves on load events.
type ImageLoader struct {
	candidates []string
	idx        int
	state      ImageState
}

func NewImageLoader(candidates []string) *ImageLoader {
	l := &ImageLoader{candidates: candidates}
	if len(candidates) == 0 {
		l.state = Exhausted
	}
	return l
}

func (l *ImageLoader) State() ImageState { return l.state }

// Attempt is the index of the candidate being tried or displayed.
func (l *ImageLoader) Attempt() int { return l.idx }

// Current returns the URL to load or display. It is false once exhausted.
func (l *ImageLoader) Current() (string, bool) {
	if l.state == Exhausted {
		return "", false
	}
	return l.candidates[l.idx], true
}

func (l *ImageLoader) OnLoad() {
	if l.state == Trying {
		l.state = Displaying
	}
}

func (l *ImageLoader) OnError() {
	if l.state != Trying {
		return
	}
	l.idx++
	if l.idx >= len(l.candidates) {
		l.idx = len(l.candidates)
		l.state = Exhausted
	}
}

func (l *ImageLoader) Err() error {
	if l.state == Exhausted {
		return ErrImageUnavailable
	}
	return nil
}

// DefaultImageHosts are the Drive hosts avatars are served from.
var DefaultImageHosts = []string{"drive.google.com", "lh3.googleusercontent.com", "drive.usercontent.google.com"}

// Prober walks an ImageLoader over HTTP, one candidate at a time. Only http(s) URLs on
// Hosts are fetched; anything else counts as a failed load without a request.
type Prober struct {
	Client *http.Client
	// Nil means DefaultImageHosts.
	Hosts []string
}

// Allows reports whether u may be fetched.
func (p *Prober) Allows(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil || (parsed.Scheme != "https" && parsed.Scheme != "http") {
		return false
	}
	hosts := p.Hosts
	if hosts == nil {
		hosts = DefaultImageHosts
	}
	host := strings.ToLower(parsed.Hostname())
	for _, h := range hosts {
		if strings.EqualFold(strings.TrimSpace(h), host) {
			return true
		}
	}
	return false
}

func (p *Prober) client() *http.Client {
	c := http.Client{}
	if p.Client != nil {
		c = *p.Client
	}
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 5 || !p.Allows(req.URL.String()) {
			return http.ErrUseLastResponse
		}
		return nil
	}
	return &c
}

// Resolve returns the first candidate that answers 2xx with an image content type.
func (p *Prober) Resolve(ctx context.Context, candidates []string) (string, error) {
	client := p.client()
	l := NewImageLoader(candidates)
	for l.State() == Trying {
		u, _ := l.Current()
		if !p.Allows(u) {
			log.WithField("url", u).Debug("image host not allowed")
			l.OnError()
			continue
		}
		if loads(ctx, client, u) {
			l.OnLoad()
		} else {
			l.OnError()
		}
	}
	if err := l.Err(); err != nil {
		metrics.ImageProbes.WithLabelValues(Exhausted.String()).Inc()
		log.Debugf("image fallback exhausted after %d candidates", len(candidates))
		return "", err
	}
	metrics.ImageProbes.WithLabelValues(Displaying.String()).Inc()
	u, _ := l.Current()
	return u, nil
}

func loads(ctx context.Context, client *http.Client, u string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	return resp.StatusCode >= 200 && resp.StatusCode < 300 &&
		strings.HasPrefix(resp.Header.Get("Content-Type"), "image/")
}
