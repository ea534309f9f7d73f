package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/atlas-ingest/internal/http/response"
	"github.com/yungbote/atlas-ingest/internal/platform/apierr"
	"github.com/yungbote/atlas-ingest/internal/platform/logger"
	"github.com/yungbote/atlas-ingest/internal/services"
)

type NotificationHandler struct {
	log *logger.Logger
	svc services.NotificationService
}

func NewNotificationHandler(log *logger.Logger, svc services.NotificationService) *NotificationHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &NotificationHandler{log: log.With("handler", "NotificationHandler"), svc: svc}
}

// POST /api/sns
func (h *NotificationHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.RespondError(c, http.StatusBadRequest, "Request body too large")
			return
		}
		response.RespondError(c, http.StatusBadRequest, "Failed to read request body")
		return
	}

	res, err := h.svc.Handle(c.Request.Context(), body)
	if err != nil {
		status, _ := response.StatusForError(err)
		if status >= http.StatusInternalServerError {
			h.log.Error("Notification failed", "status", status, "error", err)
		} else {
			h.log.Warn("Notification rejected", "status", status, "code", apierr.CodeOf(err), "error", err)
		}
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, res)
}
