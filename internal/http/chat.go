package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pharmabot/internal/agent"
	"pharmabot/internal/domain"
)

type chatReq struct {
	SessionID string `json:"session_id"`
	PatientID string `json:"patient_id" validate:"notblank"`
	Message   string `json:"message" validate:"notblank"`
	Language  string `json:"language" validate:"omitempty,language"`
}

type voiceReq struct {
	SessionID  string `json:"session_id"`
	PatientID  string `json:"patient_id" validate:"notblank"`
	Transcript string `json:"transcript" validate:"notblank"`
	Language   string `json:"language" validate:"omitempty,language"`
}

// @Summary Chat with the pharmacy assistant
// @Description Orders asked for in chat are confirmed in a second turn (requires_confirmation).
// @Tags assistant
// @Accept json
// @Produce json
// @Param input body chatReq true "Message"
// @Success 200 {object} agent.Reply
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /chat [post]
func (s *Server) chat(c *gin.Context) {
	var req chatReq
	if err := bindAndValidate(c, &req, s.validate); err != nil {
		return
	}
	s.converse(c, agent.Turn{
		SessionID: req.SessionID,
		PatientID: req.PatientID,
		Text:      req.Message,
		Language:  domain.Language(req.Language),
	})
}

// @Summary Voice turn
// @Description Takes a speech-to-text transcript; the reply carries an audio_url when speech is configured.
// @Tags assistant
// @Accept json
// @Produce json
// @Param input body voiceReq true "Transcript"
// @Success 200 {object} agent.Reply
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /voice [post]
func (s *Server) voice(c *gin.Context) {
	var req voiceReq
	if err := bindAndValidate(c, &req, s.validate); err != nil {
		return
	}
	s.converse(c, agent.Turn{
		SessionID: req.SessionID,
		PatientID: req.PatientID,
		Text:      req.Transcript,
		Language:  domain.Language(req.Language),
		Voice:     true,
	})
}

func (s *Server) converse(c *gin.Context, turn agent.Turn) {
	reply, err := s.svc.Assistant.Handle(c.Request.Context(), turn)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}
