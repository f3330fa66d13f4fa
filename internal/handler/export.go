package handler

import (
	"encoding/csv"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/chat-application/internal/model"
)

const exportTimeLayout = "2006-01-02 15:04"

var exportHeader = []string{"From", "To", "Message", "Time", "Reaction"}

// Export streams the selected conversation as CSV.  Filters are the same as
// List.  Timestamps are rendered in loc.
func (h *MessageHandler) Export(loc *time.Location) echo.HandlerFunc {
	if loc == nil {
		loc = time.UTC
	}
	return func(c echo.Context) error {
		me, ok, err := caller(c, h.Users, h.Log)
		if !ok {
			return err
		}
		f, msg := parseConversationFilter(c)
		if msg != "" {
			return detail(c, http.StatusBadRequest, msg)
		}
		msgs, err := h.conversation(c, me.ID, f)
		if err != nil {
			return internalError(c, h.Log, "export messages", err)
		}

		res := c.Response()
		res.Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
		res.Header().Set(echo.HeaderContentDisposition, `attachment; filename="chat_export.csv"`)
		res.WriteHeader(http.StatusOK)

		w := csv.NewWriter(res)
		w.UseCRLF = true
		if err := w.Write(exportHeader); err != nil {
			return err
		}
		for _, m := range msgs {
			if err := w.Write(exportRow(m, loc)); err != nil {
				// Headers are already sent; all that is left is to stop.
				h.Log.Warn("export write", zap.Error(err))
				return nil
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			h.Log.Warn("export flush", zap.Error(err))
		}
		return nil
	}
}

func exportRow(m model.Message, loc *time.Location) []string {
	to := m.ToUserEmail
	if m.ToGroupID != 0 {
		to = "Group:" + m.ToGroupName
	}
	return []string{m.Sender.Email, to, m.Text, m.CreatedAt.In(loc).Format(exportTimeLayout), m.Reaction}
}
