package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/selfie2snap/selfie2snap/internal/job"
	"github.com/selfie2snap/selfie2snap/internal/options"
	"github.com/selfie2snap/selfie2snap/internal/session"
	"github.com/selfie2snap/selfie2snap/internal/settings"
	"github.com/selfie2snap/selfie2snap/internal/sse"
	"github.com/selfie2snap/selfie2snap/internal/upload"
)

type slotView struct {
	Position  string `json:"position"`
	Filled    bool   `json:"filled"`
	MediaType string `json:"media_type,omitempty"`
	Size      int    `json:"size,omitempty"`
}

type sessionView struct {
	ID          string                `json:"id"`
	Slots       []slotView            `json:"slots"`
	Ready       bool                  `json:"ready"`
	Options     options.Options       `json:"options"`
	JobID       string                `json:"job_id,omitempty"`
	Preferences *settings.Preferences `json:"preferences,omitempty"`
}

func (s *Server) viewSession(sess *session.Session) sessionView {
	v := sessionView{
		ID:      sess.ID,
		Ready:   sess.Uploads.Ready(),
		Options: sess.Options.Snapshot(),
	}
	for _, pos := range []upload.Position{upload.Left, upload.Right} {
		img, ok := sess.Uploads.Image(pos)
		v.Slots = append(v.Slots, slotView{
			Position:  pos.String(),
			Filled:    ok,
			MediaType: img.MediaType,
			Size:      len(img.Data),
		})
	}
	if j, err := sess.Current(); err == nil {
		v.JobID = j.ID
	}
	if sess.Settings != nil {
		p := sess.Settings.Preferences()
		v.Preferences = &p
	}
	return v
}

func (s *Server) session(c *gin.Context) (*session.Session, bool) {
	sess, err := s.deps.Sessions.Get(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) createSession(c *gin.Context) {
	sess := s.deps.Sessions.Create()
	c.JSON(http.StatusCreated, s.viewSession(sess))
}

func (s *Server) getSession(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.viewSession(sess))
}

func (s *Server) deleteSession(c *gin.Context) {
	if err := s.deps.Sessions.Remove(c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) putSlot(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	pos, err := upload.ParsePosition(c.Param("position"))
	if err != nil {
		s.fail(c, err)
		return
	}

	fh, err := c.FormFile("image")
	if err != nil {
		s.fail(c, fmt.Errorf("%w: multipart field \"image\" is required", errBadRequest))
		return
	}
	if fh.Size > s.maxUpload {
		s.fail(c, fmt.Errorf("%w: %d bytes exceeds %d", errTooLarge, fh.Size, s.maxUpload))
		return
	}
	f, err := fh.Open()
	if err != nil {
		s.fail(c, err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, s.maxUpload+1))
	if err != nil {
		s.fail(c, err)
		return
	}
	if int64(len(data)) > s.maxUpload {
		s.fail(c, fmt.Errorf("%w: exceeds %d bytes", errTooLarge, s.maxUpload))
		return
	}

	if err := sess.Uploads.SetBlob(pos, fh.Filename, fh.Header.Get("Content-Type"), data); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.viewSession(sess))
}

func (s *Server) deleteSlot(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	pos, err := upload.ParsePosition(c.Param("position"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := sess.Uploads.RemoveImage(pos); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.viewSession(sess))
}

func (s *Server) swapSlots(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	sess.Uploads.Swap()
	c.JSON(http.StatusOK, s.viewSession(sess))
}

type optionsRequest struct {
	FrameCount  *int    `json:"frame_count"`
	AspectRatio *string `json:"aspect_ratio" validate:"omitempty,max=8"`
	Scene       *string `json:"scene" validate:"omitempty,max=32"`
	Style       *string `json:"style" validate:"omitempty,max=64"`
}

func (s *Server) putOptions(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req optionsRequest
	if !s.bindJSON(c, &req) {
		return
	}

	u := options.Update{
		FrameCount:  req.FrameCount,
		AspectRatio: req.AspectRatio,
		Scene:       req.Scene,
		Style:       req.Style,
	}
	if err := sess.Options.Apply(u); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.Options.Snapshot())
}

func (s *Server) submit(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	j, err := sess.Submit()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, viewJob(j.Snapshot()))
}

func (s *Server) reset(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	if err := sess.Reset(); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.viewSession(sess))
}

func (s *Server) sessionEvents(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	sse.Serve(c, s.deps.Hub, sse.SessionTopic(sess.ID), s.heartbeat)
}

type preferencesRequest struct {
	Theme         string `json:"theme" validate:"omitempty,oneof=dark light"`
	CookieConsent string `json:"cookie_consent" validate:"omitempty,oneof=all essential"`
}

func (s *Server) getPreferences(c *gin.Context) {
	if c.Param("id") != "" {
		if _, ok := s.session(c); !ok {
			return
		}
	}
	if s.deps.Settings == nil {
		c.JSON(http.StatusOK, settings.Default())
		return
	}
	c.JSON(http.StatusOK, s.deps.Settings.Preferences())
}

func (s *Server) putPreferences(c *gin.Context) {
	if c.Param("id") != "" {
		if _, ok := s.session(c); !ok {
			return
		}
	}
	var req preferencesRequest
	if !s.bindJSON(c, &req) {
		return
	}
	if s.deps.Settings == nil {
		s.fail(c, fmt.Errorf("%w: preferences are not enabled", errBadRequest))
		return
	}
	prefs, err := s.deps.Settings.Update(c.Request.Context(), req.Theme, req.CookieConsent)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, prefs)
}

type optionsCatalog struct {
	AspectRatios  []options.AspectRatio `json:"aspect_ratios"`
	Scenes        []options.Scene       `json:"scenes"`
	MinFrameCount int                   `json:"min_frame_count"`
	MaxFrameCount int                   `json:"max_frame_count"`
	Default       options.Options       `json:"default"`
}

func (s *Server) listOptions(c *gin.Context) {
	c.JSON(http.StatusOK, optionsCatalog{
		AspectRatios:  options.AspectRatios(),
		Scenes:        options.Scenes(),
		MinFrameCount: options.MinFrameCount,
		MaxFrameCount: options.MaxFrameCount,
		Default:       options.Default(),
	})
}

// jobView is a job snapshot plus download links for succeeded frames.
type jobView struct {
	job.Snapshot
	Images map[int]string `json:"images,omitempty"`
}

func viewJob(snap job.Snapshot) jobView {
	v := jobView{Snapshot: snap}
	for _, f := range snap.Frames {
		if f.State != job.FrameSucceeded {
			continue
		}
		if v.Images == nil {
			v.Images = make(map[int]string)
		}
		v.Images[f.Index] = fmt.Sprintf("/v1/jobs/%s/frames/%d/image", snap.ID, f.Index)
	}
	return v
}
