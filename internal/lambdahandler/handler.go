// Package lambdahandler adapts API Gateway proxy events to MoodPipe turns.
package lambdahandler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"github.com/BTreeMap/MoodPipe/internal/bot"
	"github.com/BTreeMap/MoodPipe/internal/messaging"
	"github.com/BTreeMap/MoodPipe/internal/models"
	"github.com/BTreeMap/MoodPipe/internal/store"
)

// ChannelID is stamped on activities that arrive without a channel.
const ChannelID = "lambda"

// CorrelationHeader carries the request correlation ID in both directions.
const CorrelationHeader = "X-Correlation-Id"

// ErrNilTurnHandler is returned by NewHandler when no turn handler is supplied.
var ErrNilTurnHandler = errors.New("lambdahandler: turn handler is required")

// Handler runs one turn per API Gateway request.
type Handler struct {
	turns messaging.TurnHandler
	st    store.Store
}

// NewHandler builds a Handler. st may be nil to skip transcripts.
func NewHandler(turns messaging.TurnHandler, st store.Store) (*Handler, error) {
	if turns == nil {
		return nil, ErrNilTurnHandler
	}
	return &Handler{turns: turns, st: st}, nil
}

// Handle decodes the activity in the request body, runs the turn and returns its replies.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(req.Headers, CorrelationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	log := slog.With("correlation_id", correlationID)

	if req.HTTPMethod != "" && req.HTTPMethod != http.MethodPost {
		return respond(correlationID, http.StatusMethodNotAllowed, models.Error("Method not allowed")), nil
	}

	body := req.Body
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			log.Warn("Handler.Handle: invalid base64 body", "error", err)
			return respond(correlationID, http.StatusBadRequest, models.Error("Invalid request body")), nil
		}
		body = string(decoded)
	}

	var a models.Activity
	if err := json.Unmarshal([]byte(body), &a); err != nil {
		log.Warn("Handler.Handle: failed to decode JSON", "error", err)
		return respond(correlationID, http.StatusBadRequest, models.Error("Invalid JSON format")), nil
	}
	if a.ChannelID == "" {
		a.ChannelID = ChannelID
	}
	if a.ID == "" {
		a.ID = correlationID
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}
	if err := a.Validate(); err != nil {
		log.Warn("Handler.Handle: validation failed", "error", err)
		return respond(correlationID, http.StatusBadRequest, models.Error(err.Error())), nil
	}

	turn := bot.NewBufferedTurn(a)
	if err := messaging.Dispatch(ctx, h.st, h.turns, turn); err != nil {
		log.Error("Handler.Handle: turn failed", "error", err, "conversation", a.Conversation.ID)
		return respond(correlationID, http.StatusInternalServerError, models.Error("Failed to process activity")), nil
	}

	replies := turn.Replies
	if replies == nil {
		replies = []string{}
	}
	log.Info("Handler.Handle: turn complete", "conversation", a.Conversation.ID, "replies", len(replies))
	return respond(correlationID, http.StatusOK, models.Success(models.TurnResult{ConversationID: a.Conversation.ID, Replies: replies})), nil
}

// headerValue looks up a header case-insensitively; API Gateway does not normalise names.
func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func respond(correlationID string, status int, payload models.APIResponse) events.APIGatewayProxyResponse {
	body, err := json.Marshal(payload)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"status":"error","message":"Internal server error"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			CorrelationHeader: correlationID,
		},
		Body: string(body),
	}
}
