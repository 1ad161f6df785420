package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/careline/careline/internal/apperr"
	"github.com/careline/careline/internal/auth"
	"github.com/careline/careline/internal/chat"
	"github.com/careline/careline/store/message"
)

type sendRequest struct {
	ReceiverID  string `json:"receiverId"`
	Message     string `json:"message"`
	MessageType string `json:"messageType"`
	FileURL     string `json:"fileUrl"`
}

func currentUser(r *http.Request) string {
	id, _ := auth.UserIDFrom(r.Context())
	return id
}

func (h *handler) send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	v, err := h.engine.Send(r.Context(), currentUser(r), chat.SendInput{
		ReceiverID: req.ReceiverID,
		Body:       req.Message,
		Type:       message.Type(req.MessageType),
		AssetURL:   req.FileURL,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusCreated, okBody{Message: "Message sent successfully", Data: v})
}

// queryInt parses an optional non-negative integer query parameter; absent
// means zero.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation("%s must be an integer", name)
	}
	return n, nil
}

func (h *handler) history(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page")
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := h.engine.History(r.Context(), currentUser(r), mux.Vars(r)["userId"], page, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, okBody{
		Data:       res.Messages,
		Pagination: &pagination{Page: res.Page, Limit: res.Limit},
	})
}

func (h *handler) conversations(w http.ResponseWriter, r *http.Request) {
	list, err := h.engine.Conversations(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, okBody{Data: list})
}

func (h *handler) markRead(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.engine.MarkRead(r.Context(), currentUser(r), mux.Vars(r)["userId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, okBody{Message: "Messages marked as read", Data: receipt})
}

func (h *handler) deleteMessage(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Delete(r.Context(), currentUser(r), mux.Vars(r)["messageId"]); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, okBody{Message: "Message deleted successfully"})
}

type statusView struct {
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["userId"]
	online, err := h.engine.IsOnline(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, okBody{Data: statusView{UserID: id, IsOnline: online}})
}
