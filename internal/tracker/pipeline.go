package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/gramtrack/gramtrack/internal/config"
	"github.com/gramtrack/gramtrack/internal/metrics"
	"github.com/gramtrack/gramtrack/internal/models"
	"github.com/gramtrack/gramtrack/internal/queue"
	"github.com/gramtrack/gramtrack/internal/scrape"
)

// reelWorkingSetSize is how many reels one run keeps current: the newest
// discoveries plus refreshes of the latest stored ones.
const reelWorkingSetSize = 12

// topTweetsForReplies bounds the reply sub-pipeline per run.
const topTweetsForReplies = 10

// Stores bundles the persistence interfaces the pipeline writes through.
type Stores struct {
	Profiles  models.ProfileRepository
	Snapshots models.SnapshotRepository
	Daily     models.DailyMetricRepository
	Reels     models.ReelRepository
	Replies   models.ReplyRepository
}

// Pipeline executes one tracking job end to end: scrape, snapshot, delta,
// reel reconciliation, daily roll-up. Jobs for different targets never run
// concurrently; the queue's single-consumer rule guarantees that.
type Pipeline struct {
	scraper   scrape.Scraper
	stores    Stores
	mirror    Mirror
	collector *metrics.Collector
	limiter   *rate.Limiter
	location  *time.Location
	logger    *slog.Logger

	now func() time.Time
}

// NewPipeline constructs the tracking pipeline. The media-detail limiter
// enforces the politeness delay between outbound per-reel calls; it is
// separate from the queue's global spacing.
func NewPipeline(cfg config.TrackerConfig, scraper scrape.Scraper, stores Stores, mirror Mirror, collector *metrics.Collector, loc *time.Location, logger *slog.Logger) *Pipeline {
	if mirror == nil || !cfg.MirrorReels {
		mirror = NoopMirror{}
	}
	return &Pipeline{
		scraper:   scraper,
		stores:    stores,
		mirror:    mirror,
		collector: collector,
		limiter:   rate.NewLimiter(rate.Every(cfg.ReelFetchDelay), 1),
		location:  loc,
		logger:    logger,
		now:       time.Now,
	}
}

// Run implements queue.Runner.
func (p *Pipeline) Run(ctx context.Context, job *queue.Job) (*queue.Result, error) {
	start := p.now()
	res, err := p.track(ctx, job)
	switch {
	case err == nil:
		p.collector.JobFinished("success", p.now().Sub(start))
	case scrape.IsKind(err, scrape.KindRateLimited):
		p.collector.RateLimited()
		p.collector.JobFinished("rate_limited", p.now().Sub(start))
	default:
		p.collector.JobFinished("error", p.now().Sub(start))
	}
	return res, err
}

func (p *Pipeline) track(ctx context.Context, job *queue.Job) (*queue.Result, error) {
	log := p.logger.With("platform", job.Platform, "username", job.Username)

	// Step 1: scrape the profile. Errors propagate; the queue owns
	// rate-limit handling.
	data, err := p.scraper.FetchProfile(ctx, job.Platform, job.Username)
	if err != nil {
		return nil, fmt.Errorf("fetch profile %s: %w", job.Username, err)
	}

	// Step 2: resolve the profile row and session.
	profile, err := p.resolveProfile(job, data)
	if err != nil {
		return nil, fmt.Errorf("resolve profile %s: %w", job.Username, err)
	}

	// Step 3: determine the baseline before the new snapshot is written,
	// so the comparison base is never the row we are about to insert.
	// An explicit tracking-id means session reset: deltas only ever compare
	// snapshots taken within the new session, so the first run has none.
	var baseline *models.Snapshot
	if job.TrackingID == "" {
		recent, err := p.stores.Snapshots.GetRecentSnapshots(profile.ID, 2)
		if err != nil {
			log.Error("load baseline snapshots failed", "error", err)
		} else if len(recent) >= 2 {
			baseline = recent[1]
		} else if len(recent) == 1 {
			baseline = recent[0]
		}
	}

	// Step 4: append the new snapshot.
	snapshot := &models.Snapshot{
		ProfileID:  profile.ID,
		Followers:  data.Followers,
		Following:  data.Following,
		MediaCount: data.MediaCount,
		ReelCount:  data.ReelCount,
		Biography:  data.Biography,
		AvatarURL:  data.AvatarURL,
		Raw:        data.Raw,
		CapturedAt: p.now(),
	}
	if err := p.stores.Snapshots.InsertSnapshot(snapshot); err != nil {
		return nil, fmt.Errorf("insert snapshot: %w", err)
	}
	p.collector.SnapshotWritten()

	// Step 5.
	if err := p.stores.Profiles.SetLastSnapshot(profile.ID, snapshot.ID); err != nil {
		log.Error("set last snapshot failed", "error", err)
	} else {
		profile.LastSnapshotID = &snapshot.ID
	}

	// Step 6: write the delta. Zero deltas are still written.
	if baseline != nil {
		delta := snapshot.Diff(baseline)
		if err := p.stores.Snapshots.InsertDelta(&delta); err != nil {
			log.Error("insert delta failed", "error", err)
		}
	}

	// Steps 7-9: reel reconciliation.
	totals := p.reconcileReels(ctx, profile, data, log)

	// Step 10: daily roll-up.
	if err := p.rollUpDaily(profile, snapshot, totals); err != nil {
		log.Error("daily roll-up failed", "error", err)
	}

	// Twitter sub-pipeline: replies to recent tweets.
	if job.Platform == models.PlatformTwitter {
		p.collectReplies(ctx, profile, data, log)
	}

	log.Info("tracking run complete",
		"followers", snapshot.Followers,
		"media", snapshot.MediaCount,
		"views_growth", totals.views)

	return &queue.Result{Profile: profile, Snapshot: snapshot}, nil
}

// resolveProfile applies the session rules: an explicit tracking-id opens or
// reassigns a session; the same public handle may be tracked independently
// by multiple end-users.
func (p *Pipeline) resolveProfile(job *queue.Job, data *models.ProfileData) (*models.Profile, error) {
	var userID *string
	if job.UserID != "" {
		u := job.UserID
		userID = &u
	}

	apply := func(profile *models.Profile) {
		profile.Username = job.Username
		profile.ExternalID = data.ExternalID
		profile.DisplayName = data.DisplayName
		profile.AvatarURL = data.AvatarURL
		profile.Biography = data.Biography
		profile.ExternalLink = data.ExternalLink
	}

	if job.TrackingID != "" {
		existing, err := p.stores.Profiles.GetByTrackingID(job.TrackingID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			bump := existing.Username != job.Username
			apply(existing)
			if err := p.stores.Profiles.Update(existing, bump); err != nil {
				return nil, err
			}
			return existing, nil
		}

		byHandle, err := p.stores.Profiles.GetByUsername(job.Platform, job.Username, userID)
		if err != nil {
			return nil, err
		}
		if byHandle != nil {
			// Same owner: reassign the session to the caller's tracking-id.
			apply(byHandle)
			byHandle.TrackingID = job.TrackingID
			if err := p.stores.Profiles.Update(byHandle, true); err != nil {
				return nil, err
			}
			return byHandle, nil
		}

		// Either nobody tracks this handle yet or only other users do;
		// open a fresh session for this (user, handle) pair.
		profile := &models.Profile{
			Platform:   job.Platform,
			TrackingID: job.TrackingID,
			UserID:     userID,
		}
		apply(profile)
		if err := p.stores.Profiles.Create(profile); err != nil {
			return nil, err
		}
		return profile, nil
	}

	existing, err := p.stores.Profiles.GetByUsername(job.Platform, job.Username, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		apply(existing)
		if err := p.stores.Profiles.Update(existing, false); err != nil {
			return nil, err
		}
		return existing, nil
	}

	profile := &models.Profile{
		Platform:   job.Platform,
		TrackingID: uuid.NewString(),
		UserID:     userID,
	}
	apply(profile)
	if err := p.stores.Profiles.Create(profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// growthTotals accumulates the day's positive per-reel deltas.
type growthTotals struct {
	views    int64
	likes    int64
	comments int64
}

// reconcileReels discovers new media, refreshes the latest stored ones, and
// persists current rows plus immutable metric history. Failures here never
// abort the run.
func (p *Pipeline) reconcileReels(ctx context.Context, profile *models.Profile, data *models.ProfileData, log *slog.Logger) growthTotals {
	var totals growthTotals

	// Step 7: full enumeration, falling back to the truncated embedded list.
	enumerated, err := p.scraper.ListMediaShortcodes(ctx, profile.Platform, profile.Username)
	if err != nil || len(enumerated) == 0 {
		if err != nil {
			log.Warn("media enumeration failed, using embedded list", "error", err)
		}
		enumerated = enumerated[:0]
		for _, m := range data.Media {
			enumerated = append(enumerated, m.Shortcode)
		}
	}
	if len(enumerated) == 0 {
		log.Warn("no media identifiers available, skipping reel reconciliation")
		return totals
	}

	persisted, err := p.stores.Reels.ListShortcodes(profile.ID)
	if err != nil {
		log.Error("list persisted shortcodes failed", "error", err)
		return totals
	}
	known := make(map[string]bool, len(persisted))
	for _, code := range persisted {
		known[code] = true
	}

	// Step 8: fetch details for new shortcodes plus the latest stored ones.
	fetchSet := make([]string, 0, len(enumerated))
	seen := make(map[string]bool)
	for _, code := range enumerated {
		if !known[code] && !seen[code] {
			fetchSet = append(fetchSet, code)
			seen[code] = true
		}
	}
	latest, err := p.stores.Reels.ListLatestReels(profile.ID, reelWorkingSetSize)
	if err != nil {
		log.Error("list latest reels failed", "error", err)
	}
	for _, r := range latest {
		if !seen[r.Shortcode] {
			fetchSet = append(fetchSet, r.Shortcode)
			seen[r.Shortcode] = true
		}
	}

	embedded := make(map[string]models.MediaData, len(data.Media))
	for _, m := range data.Media {
		embedded[m.Shortcode] = m
	}

	var fetched []models.MediaData
	for _, code := range fetchSet {
		if err := p.limiter.Wait(ctx); err != nil {
			log.Warn("reel fetch cancelled", "error", err)
			break
		}
		media, err := p.scraper.FetchMedia(ctx, profile.Platform, code)
		if err != nil {
			// Per-reel recovery: fall back to the embedded copy when we
			// have one, otherwise skip just this item.
			if m, ok := embedded[code]; ok {
				log.Warn("media detail fetch failed, using embedded data", "shortcode", code, "error", err)
				fetched = append(fetched, m)
			} else {
				log.Warn("media detail fetch failed, skipping", "shortcode", code, "error", err)
			}
			continue
		}
		fetched = append(fetched, *media)
	}

	// Working set: newest first, capped.
	sort.SliceStable(fetched, func(i, j int) bool {
		ti, tj := fetched[i].TakenAt, fetched[j].TakenAt
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return ti.After(*tj)
		}
	})
	if len(fetched) > reelWorkingSetSize {
		fetched = fetched[:reelWorkingSetSize]
	}

	// Step 9: per-reel persistence.
	for i := range fetched {
		delta, err := p.persistReel(ctx, profile, &fetched[i], log)
		if err != nil {
			log.Error("persist reel failed", "shortcode", fetched[i].Shortcode, "error", err)
			continue
		}
		// Negative deltas happen on upstream revisions; they never count
		// as growth.
		if delta.views > 0 {
			totals.views += delta.views
		}
		if delta.likes > 0 {
			totals.likes += delta.likes
		}
		if delta.comments > 0 {
			totals.comments += delta.comments
		}
	}

	return totals
}

type reelDelta struct {
	views    int64
	likes    int64
	comments int64
}

func (p *Pipeline) persistReel(ctx context.Context, profile *models.Profile, media *models.MediaData, log *slog.Logger) (reelDelta, error) {
	prior, err := p.stores.Reels.GetReel(profile.ID, media.Shortcode)
	if err != nil {
		return reelDelta{}, err
	}

	var delta reelDelta
	if prior != nil {
		delta = reelDelta{
			views:    media.ViewCount - prior.ViewCount,
			likes:    media.LikeCount - prior.LikeCount,
			comments: media.CommentCount - prior.CommentCount,
		}
	}
	// First sighting is a baseline, not growth: deltas stay zero.

	reel := &models.Reel{
		ProfileID:     profile.ID,
		Shortcode:     media.Shortcode,
		Caption:       media.Caption,
		ViewCount:     media.ViewCount,
		LikeCount:     media.LikeCount,
		CommentCount:  media.CommentCount,
		ViewsDelta:    delta.views,
		LikesDelta:    delta.likes,
		CommentsDelta: delta.comments,
		IsVideo:       media.IsVideo,
		VideoURL:      media.VideoURL,
		DurationSecs:  media.DurationSecs,
		TakenAt:       media.TakenAt,
	}
	if prior != nil {
		reel.MirroredURL = prior.MirroredURL
		// A media item can flip to video or acquire a video URL later;
		// once seen, both survive upstream flapping.
		reel.IsVideo = reel.IsVideo || prior.IsVideo
		if reel.VideoURL == "" {
			reel.VideoURL = prior.VideoURL
		}
	}

	if reel.VideoURL != "" && reel.MirroredURL == "" {
		if mirrored, err := p.mirror.MirrorVideo(ctx, profile.ID, reel.Shortcode, reel.VideoURL); err != nil {
			log.Warn("mirror video failed", "shortcode", reel.Shortcode, "error", err)
		} else {
			reel.MirroredURL = mirrored
		}
	}

	if err := p.stores.Reels.UpsertReel(reel); err != nil {
		return reelDelta{}, err
	}
	p.collector.ReelRefreshed()

	metric := &models.ReelMetric{
		ReelID:       reel.ID,
		ProfileID:    profile.ID,
		ViewCount:    media.ViewCount,
		LikeCount:    media.LikeCount,
		CommentCount: media.CommentCount,
		CapturedAt:   p.now(),
	}
	if err := p.stores.Reels.InsertReelMetric(metric); err != nil {
		return reelDelta{}, err
	}

	return delta, nil
}

// rollUpDaily materializes today's DailyMetric row. Open values are written
// once per day and never overwritten; close and delta track the latest run.
func (p *Pipeline) rollUpDaily(profile *models.Profile, snapshot *models.Snapshot, totals growthTotals) error {
	today := p.now().In(p.location).Format(models.DateLayout)

	existing, err := p.stores.Daily.GetDailyMetric(profile.ID, today)
	if err != nil {
		return err
	}

	if existing != nil {
		return p.stores.Daily.UpdateDailyMetricForToday(profile.ID, today, models.DailyMetricUpdate{
			FollowersClose: snapshot.Followers,
			FollowingClose: snapshot.Following,
			MediaClose:     snapshot.MediaCount,
			ReelsClose:     snapshot.ReelCount,
			ViewsDelta:     totals.views,
			LikesDelta:     totals.likes,
			CommentsDelta:  totals.comments,
		})
	}

	open := struct{ followers, following, media, reels int64 }{
		snapshot.Followers, snapshot.Following, snapshot.MediaCount, snapshot.ReelCount,
	}

	sessionStart := profile.SessionStart()
	yesterday := p.now().In(p.location).AddDate(0, 0, -1).Format(models.DateLayout)
	prev, err := p.stores.Daily.GetDailyMetric(profile.ID, yesterday)
	if err != nil {
		return err
	}
	if prev == nil || prev.UpdatedAt.Before(sessionStart) {
		// No usable yesterday row: carry the latest known close forward,
		// unless this is the first tracking of the session.
		latest, err := p.stores.Daily.GetLatestDailyMetric(profile.ID)
		if err != nil {
			return err
		}
		if latest != nil && !latest.UpdatedAt.Before(sessionStart) {
			prev = latest
		}
	}
	if prev != nil && !prev.UpdatedAt.Before(sessionStart) {
		open.followers = prev.FollowersClose
		open.following = prev.FollowingClose
		open.media = prev.MediaClose
		open.reels = prev.ReelsClose
	}

	return p.stores.Daily.InsertDailyMetric(&models.DailyMetric{
		ProfileID: profile.ID,
		Date:      today,

		FollowersOpen:  open.followers,
		FollowersClose: snapshot.Followers,
		FollowersDelta: snapshot.Followers - open.followers,

		FollowingOpen:  open.following,
		FollowingClose: snapshot.Following,
		FollowingDelta: snapshot.Following - open.following,

		MediaOpen:  open.media,
		MediaClose: snapshot.MediaCount,
		MediaDelta: snapshot.MediaCount - open.media,

		ReelsOpen:  open.reels,
		ReelsClose: snapshot.ReelCount,
		ReelsDelta: snapshot.ReelCount - open.reels,

		ViewsDelta:    totals.views,
		LikesDelta:    totals.likes,
		CommentsDelta: totals.comments,
	})
}

// collectReplies fetches replies for the most recent tweets that have any.
// Read-append only; failures are logged per tweet.
func (p *Pipeline) collectReplies(ctx context.Context, profile *models.Profile, data *models.ProfileData, log *slog.Logger) {
	count := 0
	for _, m := range data.Media {
		if count >= topTweetsForReplies {
			break
		}
		count++
		if m.ReplyCount == 0 {
			continue
		}

		replies, err := p.scraper.FetchReplies(ctx, profile.Platform, m.Shortcode)
		if err != nil {
			log.Warn("fetch replies failed", "tweet_id", m.Shortcode, "error", err)
			continue
		}
		for _, r := range replies {
			reply := &models.Reply{
				ProfileID:    profile.ID,
				TweetID:      r.TweetID,
				ReplyTweetID: r.ReplyTweetID,
				Author:       r.Author,
				Text:         r.Text,
				LikeCount:    r.LikeCount,
				RepliedAt:    r.RepliedAt,
			}
			if err := p.stores.Replies.UpsertReply(reply); err != nil {
				log.Warn("upsert reply failed", "tweet_id", r.TweetID, "reply_id", r.ReplyTweetID, "error", err)
			}
		}
	}
}
