package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/servo-bridge/internal/command"
)

// handleMove sends a move command. The rotate route shares this handler.
//
// Body: {"device_id":"dev1","angle":90,"speed":100}
func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var cmd command.MoveCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	result, err := s.dispatcher.Move(r.Context(), cmd)
	if err != nil {
		s.writeCommandError(w, r, cmd.DeviceID, err)
		return
	}

	writeJSON(w, http.StatusAccepted, result)
}

// handleSweep starts or stops a sweep.
//
// Body: {"device_id":"dev1","action":"start","min_angle":0,"max_angle":180,"speed":50}
func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	var cmd command.SweepCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	result, err := s.dispatcher.Sweep(r.Context(), cmd)
	if err != nil {
		s.writeCommandError(w, r, cmd.DeviceID, err)
		return
	}

	writeJSON(w, http.StatusAccepted, result)
}

// writeCommandError maps dispatcher errors onto HTTP responses.
func (s *Server) writeCommandError(w http.ResponseWriter, r *http.Request, deviceID string, err error) {
	var verr *command.ValidationError

	switch {
	case errors.As(err, &verr):
		writeValidationError(w, verr.Field+" "+verr.Message)
	case errors.Is(err, command.ErrDeviceNotFound):
		writeNotFound(w, "device not found")
	case errors.Is(err, command.ErrTransportUnavailable):
		writeUnavailable(w, "MQTT broker unavailable")
	case errors.Is(err, command.ErrPublishFailed):
		writeUnavailable(w, "command could not be published")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeUnavailable(w, "request cancelled")
	default:
		s.logger.Error("command dispatch failed",
			"device_id", deviceID,
			"error", err,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		writeInternalError(w, "failed to send command")
	}
}
