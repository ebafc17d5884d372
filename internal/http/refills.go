package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"pharmabot/internal/domain"
	"pharmabot/internal/service"
)

// @Summary List refill alerts
// @Tags refill-alerts
// @Produce json
// @Param status query string false "pending or acknowledged"
// @Success 200 {array} domain.RefillAlert
// @Failure 400 {object} map[string]string
// @Router /refill-alerts [get]
func (s *Server) listAlerts(c *gin.Context) {
	list, err := s.svc.Refills.List(c.Request.Context(), domain.AlertStatus(c.Query("status")))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

type createAlertReq struct {
	PatientID       string `json:"patient_id" validate:"notblank"`
	ProductName     string `json:"product_name" validate:"notblank"`
	Quantity        int64  `json:"quantity" validate:"gte=0"`
	DaysUntilRefill int    `json:"days_until_refill" validate:"gte=0"`
}

// @Summary Create refill alert
// @Description Returns 201 for a new alert and sends the patient a refill reminder.
// @Description Returns 200 with the existing alert when the same patient and
// @Description product already have one for that due day.
// @Tags refill-alerts
// @Accept json
// @Produce json
// @Param input body createAlertReq true "Alert"
// @Success 201 {object} domain.RefillAlert
// @Success 200 {object} domain.RefillAlert
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /refill-alerts [post]
func (s *Server) createAlert(c *gin.Context) {
	var req createAlertReq
	if err := bindAndValidate(c, &req, s.validate); err != nil {
		return
	}
	a, created, err := s.svc.Refills.Create(c.Request.Context(), service.CreateAlertInput{
		PatientID:       req.PatientID,
		ProductName:     req.ProductName,
		Quantity:        req.Quantity,
		DaysUntilRefill: req.DaysUntilRefill,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, a)
}

// @Summary Update refill alert status
// @Tags refill-alerts
// @Accept json
// @Produce json
// @Param id path string true "Alert ID"
// @Param input body statusReq true "New status"
// @Success 200 {object} domain.RefillAlert
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /refill-alerts/{id} [put]
func (s *Server) updateAlert(c *gin.Context) {
	var req statusReq
	if err := bindAndValidate(c, &req, s.validate); err != nil {
		return
	}
	a, err := s.svc.Refills.UpdateStatus(c.Request.Context(), c.Param("id"), domain.AlertStatus(req.Status))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// @Summary Run the refill monitor
// @Tags refill-alerts
// @Produce json
// @Param horizon_days query int false "Days ahead to look"
// @Success 200 {array} domain.RefillAlert
// @Failure 400 {object} map[string]string
// @Router /refill-alerts/scan [post]
func (s *Server) scanRefills(c *gin.Context) {
	horizon := s.opts.RefillHorizonDays
	if v := c.Query("horizon_days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid horizon_days"})
			return
		}
		horizon = n
	}
	alerts, err := s.svc.Refills.Scan(c.Request.Context(), horizon)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if alerts == nil {
		alerts = []domain.RefillAlert{}
	}
	c.JSON(http.StatusOK, alerts)
}
