package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"reading-platform/internal/generation"
	"reading-platform/internal/models"
	"reading-platform/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	sseEventName = "story_chunk"

	// Время, разрешенное для записи сообщения клиенту.
	writeWait = 10 * time.Second
	// Максимальный размер запроса генерации от клиента.
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// sseWriter пишет события генерации в формате text/event-stream.
// Emit вызывается из разных горутин, запись сериализуется мьютексом.
type sseWriter struct {
	mu     sync.Mutex
	w      io.Writer
	flush  func()
	failed bool
	logger *zap.Logger
}

func newSSEWriter(c *gin.Context, logger *zap.Logger) *sseWriter {
	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()
	return &sseWriter{w: c.Writer, flush: c.Writer.Flush, logger: logger}
}

func (s *sseWriter) Emit(event generation.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("Failed to encode stream event", zap.String("type", event.Type), zap.Error(err))
		return
	}
	s.write(fmt.Sprintf("event: %s\ndata: %s\n\n", sseEventName, payload))
}

func (s *sseWriter) heartbeat() {
	s.write(": heartbeat\n\n")
}

func (s *sseWriter) write(frame string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed {
		return
	}
	if _, err := io.WriteString(s.w, frame); err != nil {
		s.failed = true
		s.logger.Debug("SSE client went away", zap.Error(err))
		return
	}
	s.flush()
}

// keepAlive отправляет heartbeat каждые interval, пока не закрыт done.
func keepAlive(interval time.Duration, beat func(), done <-chan struct{}) *sync.WaitGroup {
	var wg sync.WaitGroup
	if interval <= 0 {
		return &wg
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				beat()
			}
		}
	}()
	return &wg
}

// generateStorySSE - POST /stories/generate/stream. Ответ всегда 200, ошибки приходят событием error.
func (h *Handler) generateStorySSE(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.GenerateStoryRequest
	if !bindJSON(c, &req) {
		return
	}

	writer := newSSEWriter(c, h.logger)
	done := make(chan struct{})
	beats := keepAlive(h.streamHeartbeat, writer.heartbeat, done)

	out, err := h.stories.GenerateStoryStream(c.Request.Context(), userID, req, writer)
	close(done)
	beats.Wait()

	h.finishStream("sse", userID, out, err)
}

// wsWriter отправляет события генерации JSON сообщениями websocket.
type wsWriter struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	failed bool
	logger *zap.Logger
}

func (w *wsWriter) Emit(event generation.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failed {
		return
	}
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := w.conn.WriteJSON(event); err != nil {
		w.failed = true
		w.logger.Debug("Websocket client went away", zap.Error(err))
	}
}

func (w *wsWriter) ping() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failed {
		return
	}
	if err := w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
		w.failed = true
	}
}

func (w *wsWriter) close(code int, text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(writeWait))
	_ = w.conn.Close()
}

// generateStoryWS - GET /stories/generate/ws?token=... Первое сообщение клиента - GenerateStoryRequest,
// дальше сервер шлет события генерации и закрывает соединение.
func (h *Handler) generateStoryWS(c *gin.Context) {
	tokenString := c.Query("token")
	if tokenString == "" {
		tokenString, _ = bearerToken(c.GetHeader("Authorization"))
	}
	if tokenString == "" {
		tokenVerificationsTotal.WithLabelValues("failure").Inc()
		handleServiceError(c, models.ErrUnauthorized)
		return
	}
	if !authorize(c, h.auth, tokenString) {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrader уже ответил клиенту
		h.logger.Warn("Failed to upgrade websocket connection", zap.Stringer("userID", userID), zap.Error(err))
		return
	}
	writer := &wsWriter{conn: conn, logger: h.logger}

	conn.SetReadLimit(maxMessageSize)
	var req service.GenerateStoryRequest
	if err := conn.ReadJSON(&req); err != nil {
		writer.Emit(generation.Event{Type: generation.EventError, Data: generation.ErrorEventData{
			Code:    models.ErrCodeBadRequest,
			Message: "first message must be a story generation request",
		}})
		writer.close(websocket.CloseUnsupportedData, "invalid request")
		return
	}

	done := make(chan struct{})
	beats := keepAlive(h.streamHeartbeat, writer.ping, done)
	out, err := h.stories.GenerateStoryStream(c.Request.Context(), userID, req, writer)
	close(done)
	beats.Wait()

	h.finishStream("websocket", userID, out, err)
	writer.close(websocket.CloseNormalClosure, "done")
}

func (h *Handler) finishStream(transport string, userID fmt.Stringer, out *service.GeneratedStory, err error) {
	if err != nil {
		generationStreamsTotal.WithLabelValues(transport, "error").Inc()
		status, _ := errorResponse(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("Streamed generation failed", zap.String("transport", transport), zap.Stringer("userID", userID), zap.Error(err))
		} else {
			h.logger.Info("Streamed generation ended with error", zap.String("transport", transport), zap.Stringer("userID", userID), zap.Error(err))
		}
		return
	}
	generationStreamsTotal.WithLabelValues(transport, "complete").Inc()
	h.logger.Info("Streamed generation completed",
		zap.String("transport", transport),
		zap.Stringer("userID", userID),
		zap.Stringer("storyID", out.Story.ID),
	)
}
