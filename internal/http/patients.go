package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pharmabot/internal/domain"
)

type createPatientReq struct {
	ID       string `json:"patient_id" validate:"notblank"`
	Name     string `json:"name" validate:"notblank"`
	Age      int    `json:"age" validate:"gte=0,lte=130"`
	Gender   string `json:"gender"`
	Email    string `json:"email" validate:"omitempty,email"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	Language string `json:"language" validate:"omitempty,language"`
}

// @Summary Register patient
// @Tags patients
// @Accept json
// @Produce json
// @Param input body createPatientReq true "Patient"
// @Success 201 {object} domain.Patient
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /patients [post]
func (s *Server) createPatient(c *gin.Context) {
	var req createPatientReq
	if err := bindAndValidate(c, &req, s.validate); err != nil {
		return
	}
	p, err := s.svc.Patients.Create(c.Request.Context(), domain.Patient{
		ID:       req.ID,
		Name:     req.Name,
		Age:      req.Age,
		Gender:   req.Gender,
		Email:    req.Email,
		Phone:    req.Phone,
		Address:  req.Address,
		Language: domain.Language(req.Language),
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// @Summary List patients
// @Tags patients
// @Produce json
// @Success 200 {array} domain.Patient
// @Router /patients [get]
func (s *Server) listPatients(c *gin.Context) {
	list, err := s.svc.Patients.List(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// @Summary Get patient by id
// @Tags patients
// @Produce json
// @Param id path string true "Patient ID"
// @Success 200 {object} domain.Patient
// @Failure 404 {object} map[string]string
// @Router /patients/{id} [get]
func (s *Server) getPatient(c *gin.Context) {
	p, err := s.svc.Patients.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary Patient order history
// @Tags patients
// @Produce json
// @Param id path string true "Patient ID"
// @Success 200 {array} domain.Order
// @Failure 404 {object} map[string]string
// @Router /patients/{id}/orders [get]
func (s *Server) patientOrders(c *gin.Context) {
	list, err := s.svc.Patients.Orders(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

type prescriptionReq struct {
	ProductName string `json:"product_name" validate:"notblank"`
}

// @Summary Record an on-file prescription
// @Tags patients
// @Accept json
// @Produce json
// @Param id path string true "Patient ID"
// @Param input body prescriptionReq true "Prescription"
// @Success 200 {object} domain.Patient
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /patients/{id}/prescriptions [post]
func (s *Server) addPrescription(c *gin.Context) {
	var req prescriptionReq
	if err := bindAndValidate(c, &req, s.validate); err != nil {
		return
	}
	p, err := s.svc.Patients.AddPrescription(c.Request.Context(), c.Param("id"), req.ProductName)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
