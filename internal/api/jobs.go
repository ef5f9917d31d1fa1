package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/selfie2snap/selfie2snap/internal/gallery"
	"github.com/selfie2snap/selfie2snap/internal/job"
	"github.com/selfie2snap/selfie2snap/internal/media"
	"github.com/selfie2snap/selfie2snap/internal/orchestrator"
	"github.com/selfie2snap/selfie2snap/internal/sse"
)

func frameIndex(c *gin.Context) (int, error) {
	i, err := strconv.Atoi(c.Param("index"))
	if err != nil || i < 0 {
		return 0, fmt.Errorf("%w: frame index %q", errBadRequest, c.Param("index"))
	}
	return i, nil
}

// getJob serves the live snapshot, falling back to the store for jobs the
// orchestrator no longer tracks.
func (s *Server) getJob(c *gin.Context) {
	id := c.Param("id")
	j, err := s.deps.Jobs.Job(id)
	if err == nil {
		c.JSON(http.StatusOK, viewJob(j.Snapshot()))
		return
	}
	if s.deps.Store != nil && errors.Is(err, orchestrator.ErrJobNotFound) {
		if snap, serr := s.deps.Store.LoadSnapshot(c.Request.Context(), id); serr == nil {
			c.JSON(http.StatusOK, viewJob(snap))
			return
		}
	}
	s.fail(c, err)
}

func (s *Server) cancelJob(c *gin.Context) {
	id := c.Param("id")
	if err := s.deps.Jobs.Cancel(id); err != nil {
		s.fail(c, err)
		return
	}
	j, err := s.deps.Jobs.Job(id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, viewJob(j.Snapshot()))
}

func (s *Server) retryFrame(c *gin.Context) {
	id := c.Param("id")
	index, err := frameIndex(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.deps.Jobs.RetryFrame(id, index); err != nil {
		s.fail(c, err)
		return
	}
	frame, err := s.frame(id, index)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, frame)
}

func (s *Server) frame(jobID string, index int) (job.FrameResult, error) {
	j, err := s.deps.Jobs.Job(jobID)
	if err != nil {
		return job.FrameResult{}, err
	}
	return j.Frame(index)
}

// frameImage streams a succeeded frame from the gallery, or from the store
// once the gallery has dropped it.
func (s *Server) frameImage(c *gin.Context) {
	id := c.Param("id")
	index, err := frameIndex(c)
	if err != nil {
		s.fail(c, err)
		return
	}

	item, err := s.deps.Gallery.Item(id, index)
	if err == nil {
		setDownloadHeaders(c, item.Image.MediaType, item.FileName())
		c.Status(http.StatusOK)
		if _, err := s.deps.Gallery.Download(id, index, c.Writer); err != nil {
			s.logger.Warn("download interrupted", "job_id", id, "frame", index, "error", err)
		}
		return
	}
	if s.deps.Store != nil && errors.Is(err, gallery.ErrNotReady) {
		if img, serr := s.deps.Store.LoadOutput(c.Request.Context(), id, index); serr == nil {
			name := gallery.Item{JobID: id, Index: index, Image: media.Image{MediaType: img.MediaType}}.FileName()
			setDownloadHeaders(c, img.MediaType, name)
			c.Data(http.StatusOK, img.MediaType, img.Data)
			return
		}
	}
	s.fail(c, err)
}

func setDownloadHeaders(c *gin.Context, mediaType, name string) {
	c.Header("Content-Type", mediaType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Header("Cache-Control", "private, max-age=3600")
}

func (s *Server) favorite(c *gin.Context) {
	id := c.Param("id")
	index, err := frameIndex(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.deps.Gallery.Favorite(c.Request.Context(), id, index); err != nil {
		s.fail(c, err)
		return
	}
	s.listFavorites(c)
}

func (s *Server) unfavorite(c *gin.Context) {
	id := c.Param("id")
	index, err := frameIndex(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.deps.Gallery.Unfavorite(c.Request.Context(), id, index); err != nil {
		s.fail(c, err)
		return
	}
	s.listFavorites(c)
}

func (s *Server) listFavorites(c *gin.Context) {
	favs, err := s.deps.Gallery.Favorites(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_id": c.Param("id"), "favorites": favs})
}

func (s *Server) jobEvents(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.deps.Jobs.Job(id); err != nil {
		s.fail(c, err)
		return
	}
	sse.Serve(c, s.deps.Hub, id, s.heartbeat)
}

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// jobSocket streams the same events as jobEvents over a WebSocket. The
// first message is the current snapshot so late joiners can render.
func (s *Server) jobSocket(c *gin.Context) {
	id := c.Param("id")
	j, err := s.deps.Jobs.Job(id)
	if err != nil {
		s.fail(c, err)
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	msgs, cancel := s.deps.Hub.Subscribe(id, 32)
	defer cancel()

	// Reader: only control frames are expected; any error ends the stream.
	closed := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(gin.H{"type": "job.snapshot", "data": viewJob(j.Snapshot())}); err != nil {
		return
	}

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-s.deps.Hub.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(wsWriteWait))
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case msg := <-msgs:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg.Data); err != nil {
				return
			}
		}
	}
}
