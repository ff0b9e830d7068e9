package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/livekit/protocol/auth"
	"github.com/rs/zerolog/log"

	"github.com/voicelab/voicebridge/internal/config"
)

// maxAudioUpload bounds the multipart payload of /api/process-audio.
const maxAudioUpload = 16 << 20

// Server holds the backend's collaborators behind the gin handlers.
type Server struct {
	cfg     *config.Config
	proc    Processor
	store   *AudioStore
	hub     *Hub
	limiter *RateLimiter
}

func New(cfg *config.Config, proc Processor, store *AudioStore) *Server {
	return &Server{
		cfg:     cfg,
		proc:    proc,
		store:   store,
		hub:     NewHub(),
		limiter: NewRateLimiter(30, time.Minute),
	}
}

// ClientTokenMiddleware tags every browser with a stable cookie so rate
// limits key on the client rather than the address.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// SetupRouter wires the HTTP surface: token issuing, health, audio
// processing, synthesized audio retrieval and the transcript feed.
func (s *Server) SetupRouter() *gin.Engine {
	if s.cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if s.cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(s.cfg.Secret))
	r.Use(sessions.Sessions("voicebridge", store))
	r.Use(ClientTokenMiddleware())

	r.GET("/get-token", s.handleGetToken)
	r.GET("/health", s.handleHealth)
	r.POST("/api/process-audio", s.handleProcessAudio)
	r.GET("/audio/:id", s.handleAudio)
	r.GET("/ws/transcript", s.handleTranscript)

	log.Info().Str("module", "server").Msg("router setup")
	return r
}

func (s *Server) clientKey(c *gin.Context) string {
	if key := c.GetString("client_token"); key != "" {
		return key
	}
	return c.ClientIP()
}

// handleGetToken mints a room-scoped join token. Room and identity default
// to the values from the client's last request in this cookie session, then
// to the configured defaults.
func (s *Server) handleGetToken(c *gin.Context) {
	if !s.limiter.Allow(s.clientKey(c)) {
		c.JSON(http.StatusTooManyRequests, gin.H{"detail": "too many token requests"})
		return
	}

	sess := sessions.Default(c)
	room := c.Query("room")
	if room == "" {
		if v, ok := sess.Get("room").(string); ok {
			room = v
		}
	}
	if room == "" {
		room = s.cfg.LiveKit.Room
	}
	identity := c.Query("identity")
	if identity == "" {
		if v, ok := sess.Get("identity").(string); ok {
			identity = v
		}
	}
	if identity == "" {
		identity = s.cfg.LiveKit.Identity
	}

	at := auth.NewAccessToken(s.cfg.LiveKit.APIKey, s.cfg.LiveKit.APISecret)
	grant := &auth.VideoGrant{RoomJoin: true, Room: room}
	at.SetVideoGrant(grant).
		SetIdentity(identity).
		SetName(identity).
		SetValidFor(s.cfg.Token.TTL)

	jwt, err := at.ToJWT()
	if err != nil {
		log.Error().Err(err).Str("module", "server").Msg("token mint failed")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}

	sess.Set("room", room)
	sess.Set("identity", identity)
	if err := sess.Save(); err != nil {
		log.Warn().Err(err).Str("module", "server").Msg("session save failed")
	}

	log.Info().Str("module", "server").Str("room", room).Str("identity", identity).Msg("token issued")
	c.JSON(http.StatusOK, gin.H{
		"token":    jwt,
		"room":     room,
		"identity": identity,
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleProcessAudio runs the full pipeline on one uploaded utterance and
// answers with the transcribed text, the reply text and the id of the
// synthesized reply audio.
func (s *Server) handleProcessAudio(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxAudioUpload)

	file, err := c.FormFile("audio")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "no audio file provided"})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "could not read audio file"})
		return
	}
	blob, err := io.ReadAll(f)
	f.Close()
	if err != nil || len(blob) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "could not read audio file"})
		return
	}

	result, err := s.proc.Process(c.Request.Context(), blob)
	if err != nil {
		log.Error().Err(err).Str("module", "server").Msg("audio processing failed")
		c.JSON(http.StatusBadGateway, gin.H{"detail": err.Error()})
		return
	}

	resp := gin.H{
		"user_text":     result.UserText,
		"response_text": result.ResponseText,
	}
	ex := Exchange{
		UserText:     result.UserText,
		ResponseText: result.ResponseText,
		Timestamp:    time.Now(),
	}
	if len(result.Audio) > 0 {
		id, err := s.store.Put(result.Audio)
		if err != nil {
			log.Error().Err(err).Str("module", "server").Msg("storing synthesized audio failed")
			c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
			return
		}
		resp["audio_id"] = id
		ex.AudioID = id
	}

	s.hub.Broadcast(ex)
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleAudio(c *gin.Context) {
	p, err := s.store.Path(c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "audio not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	c.Header("Content-Type", "audio/mpeg")
	c.File(p)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *Server) handleTranscript(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("module", "server").Msg("ws upgrade failed")
		return
	}
	s.hub.Subscribe(ws)
}
