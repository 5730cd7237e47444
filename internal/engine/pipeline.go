package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.uber.org/atomic"

	"moontale/internal/bundle"
	"moontale/internal/interfaces"
	"moontale/internal/models"
	"moontale/internal/prompts"
	"moontale/internal/setpiece"
	"moontale/internal/worlds"
)

// ErrNothingToRewrite is returned when a rewrite is requested before any
// chapter exists. It is checked before any generator call is made.
var ErrNothingToRewrite = errors.New("no chapter to rewrite yet")

// Leaser serializes writes per story. A held lease means another generation
// for the same story is in flight.
type Leaser interface {
	AcquireStoryLease(ctx context.Context, storyID string) error
	ReleaseStoryLease(ctx context.Context, storyID string)
}

// Broadcaster pushes finished chapters to connected clients. The pipeline
// never blocks on it.
type Broadcaster interface {
	BroadcastChapter(storyID string, entry *models.StoryEntry)
}

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastChapter(string, *models.StoryEntry) {}

// Archiver mirrors finished entries to durable storage, best effort.
type Archiver interface {
	Save(storyID string, entry *models.StoryEntry)
}

type nopArchiver struct{}

func (nopArchiver) Save(string, *models.StoryEntry) {}

// Stats are the pipeline's lifetime counters, exposed on the health
// endpoint.
type Stats struct {
	Generated    int64 `json:"generated"`
	Rewritten    int64 `json:"rewritten"`
	Repaired     int64 `json:"repaired"`
	GenFailures  int64 `json:"generation_failures"`
	LeaseRejects int64 `json:"lease_rejects"`
}

// ChapterPipeline drives one story day from user event to persisted entry:
// classify the event, compose the prompt, call the generator, validate and
// repair the bundle, persist, broadcast.
type ChapterPipeline struct {
	store    interfaces.StoryStore
	gen      interfaces.Generator
	composer *prompts.Composer
	leaser   Leaser
	archive  Archiver
	hub      Broadcaster

	generated    atomic.Int64
	rewritten    atomic.Int64
	repaired     atomic.Int64
	genFailures  atomic.Int64
	leaseRejects atomic.Int64
}

func NewChapterPipeline(store interfaces.StoryStore, gen interfaces.Generator, composer *prompts.Composer, leaser Leaser) *ChapterPipeline {
	return &ChapterPipeline{
		store:    store,
		gen:      gen,
		composer: composer,
		leaser:   leaser,
		archive:  nopArchiver{},
		hub:      nopBroadcaster{},
	}
}

// WithArchive attaches a durable mirror for finished entries.
func (p *ChapterPipeline) WithArchive(a Archiver) *ChapterPipeline {
	if a != nil {
		p.archive = a
	}
	return p
}

// WithBroadcaster attaches a live chapter feed.
func (p *ChapterPipeline) WithBroadcaster(b Broadcaster) *ChapterPipeline {
	if b != nil {
		p.hub = b
	}
	return p
}

func (p *ChapterPipeline) Stats() Stats {
	return Stats{
		Generated:    p.generated.Load(),
		Rewritten:    p.rewritten.Load(),
		Repaired:     p.repaired.Load(),
		GenFailures:  p.genFailures.Load(),
		LeaseRejects: p.leaseRejects.Load(),
	}
}

// GenerateNext advances the story one day: the new entry lands at day+1 with
// revision 1, and the authoritative summary moves forward with it.
func (p *ChapterPipeline) GenerateNext(ctx context.Context, storyID, userEvent string, allowFinal bool, requestID string) (*models.StoryEntry, error) {
	if err := p.leaser.AcquireStoryLease(ctx, storyID); err != nil {
		if errors.Is(err, interfaces.ErrLeaseHeld) {
			p.leaseRejects.Inc()
		}
		return nil, err
	}
	defer p.leaser.ReleaseStoryLease(ctx, storyID)

	state, err := p.store.LoadState(ctx, storyID)
	if err != nil {
		return nil, err
	}
	world := worlds.ByID(state.WorldID)
	if world == nil {
		world = worlds.ByID(worlds.DefaultID)
	}

	verdict := setpiece.Classify(userEvent)
	nextDay := state.Day + 1

	prompt := p.composer.ChapterBundle(prompts.ComposeInput{
		World:      world,
		Summary:    state.Summary,
		UserEvent:  userEvent,
		Verdict:    verdict,
		AllowFinal: allowFinal,
	})

	meta := interfaces.CallMeta{
		Op:        OpChapterBundle,
		Route:     "chat",
		StoryID:   storyID,
		WorldID:   world.ID,
		Day:       nextDay,
		Revision:  1,
		RequestID: requestID,
	}
	repaired, repairCount, err := p.generateBundle(ctx, prompt, meta, userEvent, state.Summary)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	entry := &models.StoryEntry{
		Day:           nextDay,
		UserEvent:     userEvent,
		Chapter:       repaired.Chapter,
		Title:         repaired.Title,
		Anchors:       repaired.Anchors,
		Suggestions:   repaired.Suggestions,
		EventKeywords: repaired.EventKeywords,
		Revision:      1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := p.store.SaveEntry(ctx, storyID, entry); err != nil {
		return nil, err
	}
	state.Day = nextDay
	state.Summary = repaired.NextSummary
	if err := p.store.SaveState(ctx, storyID, state); err != nil {
		return nil, err
	}

	p.archive.Save(storyID, entry)
	p.hub.BroadcastChapter(storyID, entry)
	p.generated.Inc()
	if repairCount > 0 {
		p.repaired.Inc()
	}
	log.Printf("[pipeline] story %s day %d generated (set_piece=%s major=%v repairs=%d)",
		storyID, nextDay, verdict.Type, verdict.IsMajor, repairCount)
	return entry, nil
}

// RewriteLatest regenerates the current day's entry in place. The day index
// never moves; the revision counter does. The authoritative summary is
// rebuilt by replaying the prior days so the rewrite does not inherit
// narrative state introduced by the chapter being discarded.
func (p *ChapterPipeline) RewriteLatest(ctx context.Context, storyID, userEvent string, requestID string) (*models.StoryEntry, error) {
	if err := p.leaser.AcquireStoryLease(ctx, storyID); err != nil {
		if errors.Is(err, interfaces.ErrLeaseHeld) {
			p.leaseRejects.Inc()
		}
		return nil, err
	}
	defer p.leaser.ReleaseStoryLease(ctx, storyID)

	state, err := p.store.LoadState(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if state.Day == 0 {
		return nil, ErrNothingToRewrite
	}
	world := worlds.ByID(state.WorldID)
	if world == nil {
		world = worlds.ByID(worlds.DefaultID)
	}

	current, err := p.store.GetEntryByDay(ctx, storyID, state.Day)
	if err != nil {
		return nil, err
	}
	if userEvent == "" {
		userEvent = current.UserEvent
	}

	baseSummary, err := p.replaySummary(ctx, storyID, state, world, requestID)
	if err != nil {
		return nil, err
	}

	priorTail := ""
	if state.Day > 1 {
		prev, err := p.store.GetEntryByDay(ctx, storyID, state.Day-1)
		if err != nil {
			return nil, err
		}
		priorTail = prompts.ChapterTail(prev.Chapter)
	}

	verdict := setpiece.Classify(userEvent)
	prompt := p.composer.ChapterBundle(prompts.ComposeInput{
		World:            world,
		Summary:          baseSummary,
		UserEvent:        userEvent,
		PriorChapterTail: priorTail,
		Verdict:          verdict,
		AllowFinal:       false, // A rewrite may never end the story.
	})

	meta := interfaces.CallMeta{
		Op:        OpChapterBundle,
		Route:     "rewrite",
		StoryID:   storyID,
		WorldID:   world.ID,
		Day:       state.Day,
		Revision:  current.Revision + 1,
		RequestID: requestID,
	}
	repaired, repairCount, err := p.generateBundle(ctx, prompt, meta, userEvent, baseSummary)
	if err != nil {
		return nil, err
	}

	var updated models.StoryEntry
	err = p.store.UpdateEntry(ctx, storyID, state.Day, func(e *models.StoryEntry) {
		e.UserEvent = userEvent
		e.Chapter = repaired.Chapter
		e.Title = repaired.Title
		e.Anchors = repaired.Anchors
		e.Suggestions = repaired.Suggestions
		e.EventKeywords = repaired.EventKeywords
		e.Revision++
		e.UpdatedAt = time.Now()
		updated = *e
	})
	if err != nil {
		return nil, err
	}

	state.Summary = repaired.NextSummary
	if err := p.store.SaveState(ctx, storyID, state); err != nil {
		return nil, err
	}

	p.archive.Save(storyID, &updated)
	p.hub.BroadcastChapter(storyID, &updated)
	p.rewritten.Inc()
	if repairCount > 0 {
		p.repaired.Inc()
	}
	log.Printf("[pipeline] story %s day %d rewritten (revision=%d repairs=%d)",
		storyID, state.Day, updated.Revision, repairCount)
	return &updated, nil
}

// generateBundle runs one generator round trip and returns a schema-valid
// bundle. Parse and validation problems are absorbed by repair; only
// generation failures surface.
func (p *ChapterPipeline) generateBundle(ctx context.Context, prompt string, meta interfaces.CallMeta, userEvent, priorSummary string) (*models.ChapterBundle, int, error) {
	raw, err := p.gen.Invoke(ctx, prompt, meta)
	if err != nil {
		p.genFailures.Inc()
		return nil, 0, err
	}

	parsed, issues := bundle.Validate(raw)
	if len(issues) > 0 {
		log.Printf("[pipeline] story %s day %d: %d bundle issues, repairing", meta.StoryID, meta.Day, len(issues))
	}
	bands := p.composer.Bands()
	repaired := bundle.Repair(parsed, issues, bundle.RepairContext{
		UserEvent:       userEvent,
		PriorSummary:    priorSummary,
		ChapterMinChars: bands.ChapterMinChars,
		ChapterMaxChars: bands.ChapterMaxChars,
		TitleMinChars:   bands.TitleMinChars,
		TitleMaxChars:   bands.TitleMaxChars,
	})
	return repaired, len(issues), nil
}

// replaySummary rebuilds the authoritative summary from every entry before
// the current day. With no prior days the world's opening summary is the
// base; otherwise the generator compresses the replay transcript.
func (p *ChapterPipeline) replaySummary(ctx context.Context, storyID string, state *models.StoryState, world *worlds.World, requestID string) (string, error) {
	entries, err := p.store.LoadEntries(ctx, storyID)
	if err != nil {
		return "", err
	}

	prior := 0
	for _, e := range entries {
		if e.Day < state.Day {
			prior++
		}
	}
	if prior == 0 {
		return world.InitialSummary, nil
	}

	prompt := p.composer.SummaryReplay(entries, state.Day)
	raw, err := p.gen.Invoke(ctx, prompt, interfaces.CallMeta{
		Op:        OpRewriteSummary,
		Route:     "rewrite",
		StoryID:   storyID,
		WorldID:   world.ID,
		Day:       state.Day,
		RequestID: requestID,
	})
	if err != nil {
		p.genFailures.Inc()
		return "", err
	}

	summary := bundle.CompressSummary(raw)
	if summary == "" {
		return "", fmt.Errorf("empty replay summary for story %s day %d", storyID, state.Day)
	}
	return summary, nil
}
