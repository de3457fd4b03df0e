package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/grafov/m3u8"
	"github.com/rs/zerolog"

	"github.com/tessro/elixir/internal/core"
)

// DefaultNativeExtensions are container extensions fetched as a single
// progressive stream rather than as an HLS playlist.
var DefaultNativeExtensions = []string{".mp4", ".m4v", ".webm", ".mp3", ".aac", ".m4a", ".ogg"}

// Stream renders in-process: it pulls the stream over HTTP and copies the
// bytes to a sink.
type Stream struct {
	httpClient *http.Client
	sinkSpec   string
	sink       io.Writer
	native     []string
	logger     zerolog.Logger

	// reloadEvery overrides the live playlist reload interval, which is
	// otherwise the playlist's target duration.
	reloadEvery time.Duration

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	buffered time.Duration
	variant  string
	written  atomic.Int64
	lastErr  error
}

// StreamOption configures a Stream.
type StreamOption func(*Stream)

// WithStreamHTTPClient sets the HTTP client used for manifests and segments.
func WithStreamHTTPClient(hc *http.Client) StreamOption {
	return func(s *Stream) { s.httpClient = hc }
}

// WithSink writes to w instead of opening the configured sink spec.
func WithSink(w io.Writer) StreamOption {
	return func(s *Stream) { s.sink = w }
}

// WithNativeExtensions overrides DefaultNativeExtensions.
func WithNativeExtensions(exts []string) StreamOption {
	return func(s *Stream) {
		if len(exts) > 0 {
			s.native = exts
		}
	}
}

// NewStream creates a stream backend. sinkSpec is "discard", "-" for
// stdout, or a file path.
func NewStream(sinkSpec string, logger zerolog.Logger, opts ...StreamOption) *Stream {
	s := &Stream{
		httpClient: &http.Client{},
		sinkSpec:   sinkSpec,
		native:     DefaultNativeExtensions,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Stream) Kind() Kind { return KindStream }

// Available is always true; nothing outside the process is needed.
func (s *Stream) Available(context.Context) bool { return true }

// Play stops any running transfer, resolves locator, and starts copying
// to the sink in the background. For HLS it returns once the playlist is
// parsed; a live playlist keeps being reloaded until it ends.
func (s *Stream) Play(ctx context.Context, locator string) error {
	if err := s.Stop(ctx); err != nil {
		return err
	}

	var list *mediaList
	if s.isNative(locator) {
		list = &mediaList{variant: locator, segments: []segment{{uri: locator}}}
	} else {
		var err error
		list, err = s.loadPlaylist(ctx, locator)
		if err != nil {
			return err
		}
	}

	sink, closeSink, err := s.openSink()
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.buffered = list.duration()
	s.variant = list.variant
	s.lastErr = nil
	s.written.Store(0)
	s.mu.Unlock()

	s.logger.Debug().Str("variant", redact(list.variant)).Int("segments", len(list.segments)).
		Bool("live", list.live).Msg("stream started")

	go func() {
		defer close(done)
		defer closeSink()
		err := s.run(runCtx, list, sink)
		if err != nil && runCtx.Err() == nil {
			s.logger.Warn().Err(err).Msg("stream copy failed")
			s.mu.Lock()
			s.lastErr = err
			s.mu.Unlock()
		}
	}()
	return nil
}

// Stop cancels the transfer and waits for it to finish.
func (s *Stream) Stop(context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// BufferedDuration is the total duration of the media playlist segments
// seen so far. It is zero for native streams.
func (s *Stream) BufferedDuration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffered
}

// Variant is the URL actually being pulled.
func (s *Stream) Variant() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.variant
}

// BytesWritten counts bytes copied to the sink since the last Play.
func (s *Stream) BytesWritten() int64 { return s.written.Load() }

// Transfer reports progress of the current copy.
func (s *Stream) Transfer() Transfer {
	return Transfer{Buffered: s.BufferedDuration(), Bytes: s.BytesWritten()}
}

// Err returns the error that ended the last transfer, if any.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Stream) isNative(locator string) bool {
	u, err := url.Parse(locator)
	if err != nil {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if ext == "" {
		return false
	}
	for _, n := range s.native {
		if strings.EqualFold(n, ext) {
			return true
		}
	}
	return false
}

type segment struct {
	uri      string
	seq      uint64
	duration float64
}

// mediaList is one snapshot of a media playlist.
type mediaList struct {
	variant  string
	segments []segment
	live     bool
	target   time.Duration
}

func (l *mediaList) duration() time.Duration {
	var total float64
	for _, seg := range l.segments {
		total += seg.duration
	}
	return time.Duration(total * float64(time.Second))
}

// loadPlaylist fetches locator as HLS. A master playlist is followed to its
// highest-bandwidth variant.
func (s *Stream) loadPlaylist(ctx context.Context, locator string) (*mediaList, error) {
	pl, kind, err := s.fetchPlaylist(ctx, locator)
	if err != nil {
		return nil, err
	}

	variant := locator
	if kind == m3u8.MASTER {
		master := pl.(*m3u8.MasterPlaylist)
		var best *m3u8.Variant
		for _, v := range master.Variants {
			if v == nil {
				continue
			}
			if best == nil || v.Bandwidth > best.Bandwidth {
				best = v
			}
		}
		if best == nil {
			return nil, fmt.Errorf("master playlist has no variants")
		}
		variant, err = resolveRef(locator, best.URI)
		if err != nil {
			return nil, err
		}
		pl, kind, err = s.fetchPlaylist(ctx, variant)
		if err != nil {
			return nil, err
		}
		if kind != m3u8.MEDIA {
			return nil, fmt.Errorf("variant %s is not a media playlist", best.URI)
		}
	}

	list, err := mediaSegments(variant, pl.(*m3u8.MediaPlaylist))
	if err != nil {
		return nil, err
	}
	if len(list.segments) == 0 && !list.live {
		return nil, fmt.Errorf("playlist has no segments")
	}
	return list, nil
}

// reloadMedia refetches a live media playlist.
func (s *Stream) reloadMedia(ctx context.Context, variant string) (*mediaList, error) {
	pl, kind, err := s.fetchPlaylist(ctx, variant)
	if err != nil {
		return nil, err
	}
	if kind != m3u8.MEDIA {
		return nil, fmt.Errorf("reload %s: not a media playlist", redact(variant))
	}
	return mediaSegments(variant, pl.(*m3u8.MediaPlaylist))
}

// mediaSegments numbers the segments from the playlist's media sequence.
func mediaSegments(variant string, media *m3u8.MediaPlaylist) (*mediaList, error) {
	list := &mediaList{
		variant: variant,
		live:    !media.Closed,
		target:  time.Duration(media.TargetDuration * float64(time.Second)),
	}
	seq := media.SeqNo
	for _, seg := range media.Segments {
		if seg == nil {
			continue
		}
		ref, err := resolveRef(variant, seg.URI)
		if err != nil {
			return nil, err
		}
		list.segments = append(list.segments, segment{uri: ref, seq: seq, duration: seg.Duration})
		seq++
	}
	return list, nil
}

func (s *Stream) fetchPlaylist(ctx context.Context, rawURL string) (m3u8.Playlist, m3u8.ListType, error) {
	resp, err := s.get(ctx, rawURL)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	pl, kind, err := m3u8.DecodeFrom(resp.Body, false)
	if err != nil {
		return nil, 0, fmt.Errorf("decode playlist: %w", err)
	}
	if pl == nil || (kind != m3u8.MASTER && kind != m3u8.MEDIA) {
		return nil, 0, fmt.Errorf("decode playlist: unrecognized playlist type")
	}
	return pl, kind, nil
}

// run copies list to sink. A live list is reloaded every target duration
// and only segments past the last one copied are fetched, until the
// playlist gains an end tag.
func (s *Stream) run(ctx context.Context, list *mediaList, sink io.Writer) error {
	w := &countingWriter{w: sink, n: &s.written}
	var next uint64
	seen := list.duration()
	for {
		for _, seg := range list.segments {
			if seg.seq < next {
				continue
			}
			if err := s.copySegment(ctx, seg.uri, w); err != nil {
				return err
			}
			next = seg.seq + 1
		}
		if !list.live {
			return nil
		}

		wait := s.reloadEvery
		if wait <= 0 {
			wait = list.target
		}
		if wait <= 0 {
			wait = time.Second
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		reloaded, err := s.reloadMedia(ctx, list.variant)
		if err != nil {
			return err
		}
		for _, seg := range reloaded.segments {
			if seg.seq >= next {
				seen += time.Duration(seg.duration * float64(time.Second))
			}
		}
		s.mu.Lock()
		s.buffered = seen
		s.mu.Unlock()
		list = reloaded
	}
}

func (s *Stream) copySegment(ctx context.Context, uri string, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	resp, err := s.get(ctx, uri)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, err = io.Copy(w, resp.Body)
	return err
}

func (s *Stream) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		var ue *url.Error
		if errors.As(err, &ue) {
			return nil, fmt.Errorf("GET %s: %w", redact(rawURL), ue.Err)
		}
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: %s", redact(rawURL), resp.Status)
	}
	return resp, nil
}

func (s *Stream) openSink() (io.Writer, func(), error) {
	if s.sink != nil {
		return s.sink, func() {}, nil
	}
	switch s.sinkSpec {
	case "", "discard":
		return io.Discard, func() {}, nil
	case "-":
		return os.Stdout, func() {}, nil
	}
	f, err := os.OpenFile(s.sinkSpec, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open sink: %w", err)
	}
	return f, func() { f.Close() }, nil
}

// resolveRef resolves ref against base and carries the base's token over
// when the reference has none.
func resolveRef(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("bad playlist reference %q: %w", ref, err)
	}
	out := b.ResolveReference(r).String()
	if token := b.Query().Get(core.TokenParam); token != "" && r.Query().Get(core.TokenParam) == "" {
		out = core.WithToken(out, token)
	}
	return out, nil
}

// redact drops the query so tokens stay out of errors and logs.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.RawQuery = ""
	return u.String()
}

type countingWriter struct {
	w io.Writer
	n *atomic.Int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n.Add(int64(n))
	return n, err
}
