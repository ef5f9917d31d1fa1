// Package gallery collects succeeded frames the instant they are published
// and serves them for download, export and favoriting.
package gallery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/selfie2snap/selfie2snap/internal/event"
	"github.com/selfie2snap/selfie2snap/internal/logging"
	"github.com/selfie2snap/selfie2snap/internal/media"
)

// ErrNotReady is returned for a frame that has not succeeded (yet).
var ErrNotReady = errors.New("frame not ready")

// Favorites persists favorite marks. It is an external collaborator; the
// store package provides Redis and in-memory implementations.
type Favorites interface {
	AddFavorite(ctx context.Context, jobID string, index int) error
	RemoveFavorite(ctx context.Context, jobID string, index int) error
	ListFavorites(ctx context.Context, jobID string) ([]int, error)
}

// Item is one surfaced frame.
type Item struct {
	JobID      string      `json:"job_id"`
	Index      int         `json:"index"`
	Attempt    int         `json:"attempt"`
	Image      media.Image `json:"image"`
	SurfacedAt time.Time   `json:"surfaced_at"`
}

// FileName returns the export file name for the item.
func (i Item) FileName() string {
	return fmt.Sprintf("%s-frame-%02d%s", i.JobID, i.Index+1, i.Image.Extension())
}

// Gallery is a bus subscriber holding every succeeded frame per job. It is
// safe for concurrent use.
type Gallery struct {
	bus       *event.Bus
	favorites Favorites
	logger    *logging.Logger

	mu    sync.RWMutex
	items map[string]map[int]Item // jobID -> index -> item
	subs  []string
}

// New creates a Gallery and subscribes it to bus. Call Close to
// unsubscribe.
func New(bus *event.Bus, favorites Favorites, logger *logging.Logger) *Gallery {
	if bus == nil {
		panic("gallery: event.Bus must not be nil")
	}
	if favorites == nil {
		panic("gallery: Favorites must not be nil")
	}
	if logger == nil {
		logger = logging.NopLogger()
	}

	g := &Gallery{
		bus:       bus,
		favorites: favorites,
		logger:    logger.WithComponent("gallery"),
		items:     make(map[string]map[int]Item),
	}
	g.subs = []string{
		bus.Subscribe(event.TypeFrameSucceeded, g.onFrameSucceeded),
		bus.Subscribe(event.TypeJobDiscarded, g.onJobDiscarded),
	}
	return g
}

// Close unsubscribes from the bus. Collected items stay readable.
func (g *Gallery) Close() {
	g.mu.Lock()
	subs := g.subs
	g.subs = nil
	g.mu.Unlock()

	for _, id := range subs {
		g.bus.Unsubscribe(id)
	}
}

func (g *Gallery) onFrameSucceeded(e event.Event) {
	ev, ok := e.(event.FrameSucceededEvent)
	if !ok || len(ev.Output) == 0 {
		return
	}

	item := Item{
		JobID:   ev.JobID,
		Index:   ev.Index,
		Attempt: ev.Attempt,
		Image: media.Image{
			Data:      bytes.Clone(ev.Output),
			MediaType: ev.MediaType,
		},
		SurfacedAt: ev.Timestamp(),
	}

	g.mu.Lock()
	frames, ok := g.items[ev.JobID]
	if !ok {
		frames = make(map[int]Item)
		g.items[ev.JobID] = frames
	}
	frames[ev.Index] = item
	g.mu.Unlock()

	g.logger.WithJob(ev.JobID).WithFrame(ev.Index).Debug("frame surfaced", "bytes", len(ev.Output))
}

func (g *Gallery) onJobDiscarded(e event.Event) {
	ev, ok := e.(event.JobDiscardedEvent)
	if !ok {
		return
	}
	g.mu.Lock()
	delete(g.items, ev.JobID)
	g.mu.Unlock()
}

// Items returns the surfaced frames of a job ordered by index.
func (g *Gallery) Items(jobID string) []Item {
	g.mu.RLock()
	defer g.mu.RUnlock()

	frames := g.items[jobID]
	out := make([]Item, 0, len(frames))
	for _, it := range frames {
		it.Image = it.Image.Clone()
		out = append(out, it)
	}
	slices.SortFunc(out, func(a, b Item) int { return a.Index - b.Index })
	return out
}

// Item returns one surfaced frame, or ErrNotReady.
func (g *Gallery) Item(jobID string, index int) (Item, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	it, ok := g.items[jobID][index]
	if !ok {
		return Item{}, fmt.Errorf("%w: job %s frame %d", ErrNotReady, jobID, index)
	}
	it.Image = it.Image.Clone()
	return it, nil
}

// Download writes the frame's image to w.
func (g *Gallery) Download(jobID string, index int, w io.Writer) (Item, error) {
	it, err := g.Item(jobID, index)
	if err != nil {
		return Item{}, err
	}
	if _, err := w.Write(it.Image.Data); err != nil {
		return Item{}, fmt.Errorf("failed to write frame %d: %w", index, err)
	}
	return it, nil
}

// Export writes the frame into dir and returns the file path.
func (g *Gallery) Export(jobID string, index int, dir string) (string, error) {
	it, err := g.Item(jobID, index)
	if err != nil {
		return "", err
	}
	return writeItem(it, dir)
}

// ExportAll writes every surfaced frame of a job into dir.
func (g *Gallery) ExportAll(jobID, dir string) ([]string, error) {
	var paths []string
	for _, it := range g.Items(jobID) {
		path, err := writeItem(it, dir)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeItem(it Item, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}
	path := filepath.Join(dir, it.FileName())
	if err := os.WriteFile(path, it.Image.Data, 0644); err != nil {
		return "", fmt.Errorf("failed to export frame %d: %w", it.Index, err)
	}
	return path, nil
}

// Favorite marks a surfaced frame as a favorite.
func (g *Gallery) Favorite(ctx context.Context, jobID string, index int) error {
	if _, err := g.Item(jobID, index); err != nil {
		return err
	}
	if err := g.favorites.AddFavorite(ctx, jobID, index); err != nil {
		return fmt.Errorf("failed to favorite frame %d: %w", index, err)
	}
	return nil
}

// Unfavorite removes a favorite mark.
func (g *Gallery) Unfavorite(ctx context.Context, jobID string, index int) error {
	if err := g.favorites.RemoveFavorite(ctx, jobID, index); err != nil {
		return fmt.Errorf("failed to unfavorite frame %d: %w", index, err)
	}
	return nil
}

// Favorites returns the favorited frame indices of a job in ascending order.
func (g *Gallery) Favorites(ctx context.Context, jobID string) ([]int, error) {
	indices, err := g.favorites.ListFavorites(ctx, jobID)
	if err != nil {
		return nil, err
	}
	slices.Sort(indices)
	return indices, nil
}
