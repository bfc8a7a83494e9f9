package tracker

import "context"

// Mirror copies a reel's video to durable storage and returns the mirrored
// URL. Mirroring is best effort; the pipeline keeps the upstream URL when a
// mirror fails.
type Mirror interface {
	MirrorVideo(ctx context.Context, profileID, shortcode, videoURL string) (string, error)
}

// NoopMirror is used when mirroring is disabled. It reports no mirrored URL
// without error.
type NoopMirror struct{}

func (NoopMirror) MirrorVideo(ctx context.Context, profileID, shortcode, videoURL string) (string, error) {
	return "", nil
}
