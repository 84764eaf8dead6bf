package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"lifecoach/backend/internal/domain"
	"lifecoach/backend/internal/service/chat"
)

type sendMessageRequest struct {
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content"`
	Type       string `json:"type"`
}

type markReadRequest struct {
	MessageIDs []string `json:"messageIds"`
}

type registerDeviceRequest struct {
	Token string `json:"token"`
}

func (s *server) listConversations(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	out, err := s.Chat.FetchConversations(r.Context(), id.UserID)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	if out == nil {
		out = []domain.Conversation{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) listMessages(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	out, err := s.Chat.FetchMessages(r.Context(), mux.Vars(r)["id"], id.UserID)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	if out == nil {
		out = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) sendMessage(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	var req sendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	msg, err := s.Chat.SendMessage(r.Context(), chat.SendInput{
		SenderID:   id.UserID,
		ReceiverID: req.ReceiverID,
		Content:    req.Content,
		Type:       domain.MessageType(req.Type),
	})
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *server) markRead(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	var req markReadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	if err := s.Chat.MarkAsRead(r.Context(), mux.Vars(r)["id"], id.UserID, req.MessageIDs); err != nil {
		writeError(w, s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) registerDevice(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	var req registerDeviceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	dev, err := s.Devices.RegisterDevice(r.Context(), id.UserID, req.Token)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, dev)
}

// websocket hands the connection to the realtime hub; the hub pushes chat
// envelopes for the caller until the client disconnects.
func (s *server) websocket(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	s.Realtime.Serve(w, r, id.UserID)
}
