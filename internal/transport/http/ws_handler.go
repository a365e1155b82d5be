package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"placement-quiz-service/internal/app"
	"placement-quiz-service/internal/domain"
)

// WSHandler streams live progress of one attempt and accepts answers over the same socket.
type WSHandler struct {
	attempts *app.AttemptService
	progress app.ProgressSubscriber
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(attempts *app.AttemptService, progress app.ProgressSubscriber, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		attempts: attempts,
		progress: progress,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID     string  `json:"questionId"`
	SelectedAnswer *int    `json:"selectedAnswer"`
	ResponseTime   float64 `json:"responseTime"`
}

type closePayload struct {
	Status   domain.AttemptStatus `json:"status"`
	Behavior domain.BehaviorData  `json:"behaviorData"`
}

type joinedPayload struct {
	AttemptID string               `json:"attemptId"`
	QuizID    string               `json:"quizId"`
	Status    domain.AttemptStatus `json:"status"`
	Answered  []string             `json:"answered"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func errorMessage(err error) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
}

// ServeWS upgrades the request and relays progress for attemptID until either side hangs up.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request, attemptID string) {
	if attemptID == "" {
		http.Error(w, "missing attempt id", http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	log := h.logger.With(slog.String("attempt_id", attemptID))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WarnContext(ctx, "ws upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	details, err := h.attempts.GetAttemptDetails(ctx, attemptID)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}

	updates, cancel, err := h.progress.Subscribe(ctx, attemptID)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}
	defer cancel()

	h.relay(ctx, conn, details, updates, log)
}

// wsConn is the part of *websocket.Conn the relay uses.
type wsConn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	Close() error
}

// relay pumps progress updates and replies to the client until either side stops.
func (h *WSHandler) relay(ctx context.Context, conn wsConn, details domain.AttemptDetails, updates <-chan domain.Progress, log *slog.Logger) {
	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// single writer: gorilla connections do not support concurrent writes
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.DebugContext(ctx, "ws write failed", slog.Any("error", err))
				// unblocks the pending read so the loop below can exit
				_ = conn.Close()
				return
			}
		}
	}()

	// push reports false once the writer has gone away.
	push := func(msg outboundMessage[any]) bool {
		select {
		case send <- msg:
			return true
		case <-writerDone:
			return false
		}
	}

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "progress", Payload: update}:
				case <-writerDone:
					return
				case <-closeSignals:
					return
				}
			case <-writerDone:
				return
			case <-closeSignals:
				return
			}
		}
	}()

	answered := make([]string, 0, len(details.Responses))
	for _, resp := range details.Responses {
		answered = append(answered, resp.QuestionID)
	}
	joined := push(outboundMessage[any]{Type: "joined", Payload: joinedPayload{
		AttemptID: details.Attempt.ID,
		QuizID:    details.Attempt.QuizID,
		Status:    details.Attempt.Status,
		Answered:  answered,
	}})

	for joined {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if !push(h.handleInbound(ctx, details.Attempt.ID, inbound)) {
			break
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// handleInbound runs one client message and returns the reply.
func (h *WSHandler) handleInbound(ctx context.Context, attemptID string, inbound inboundMessage) outboundMessage[any] {
	switch inbound.Type {
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}}
		}
		progress, err := h.attempts.SubmitResponse(ctx, app.SubmitResponseRequest{
			AttemptID:      attemptID,
			QuestionID:     payload.QuestionID,
			SelectedAnswer: payload.SelectedAnswer,
			ResponseTime:   payload.ResponseTime,
		})
		if err != nil {
			return errorMessage(err)
		}
		return outboundMessage[any]{Type: "answerResult", Payload: progress}
	case "close":
		var payload closePayload
		if len(inbound.Payload) > 0 {
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid close payload"}}
			}
		}
		summary, err := h.attempts.Close(ctx, app.CloseAttemptRequest{
			AttemptID: attemptID,
			Status:    payload.Status,
			Behavior:  payload.Behavior,
		})
		if err != nil && !domain.IsFoldError(err) {
			return errorMessage(err)
		}
		return outboundMessage[any]{Type: "closed", Payload: summary}
	default:
		return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
	}
}
