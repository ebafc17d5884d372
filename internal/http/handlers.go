package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"pharmabot/internal/agent"
	"pharmabot/internal/domain"
	"pharmabot/internal/logging"
	"pharmabot/internal/repository"
	"pharmabot/internal/service"
)

// Services are the use cases the HTTP layer exposes.
type Services struct {
	Medicines *service.MedicineService
	Orders    *service.OrderService
	Patients  *service.PatientService
	Refills   *service.RefillService
	Assistant *agent.Pipeline
	// Health is optional; it reports whether storage is reachable.
	Health func(ctx context.Context) error
}

type Options struct {
	RefillHorizonDays int
	CORSOrigins       []string
}

type Server struct {
	engine   *gin.Engine
	svc      Services
	opts     Options
	validate *validatorv10.Validate
	log      logrus.FieldLogger
}

func NewServer(svc Services, opts Options, log logrus.FieldLogger) *Server {
	r := gin.New()
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(logging.Middleware(log), gin.Recovery(), cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
	}))
	s := &Server{engine: r, svc: svc, opts: opts, validate: newValidator(), log: log}
	s.registerRoutes()
	return s
}

func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) registerRoutes() {
	// Swagger UI
	s.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	s.engine.GET("/health", s.health)

	v1 := s.engine.Group("/api/v1")
	{
		medicines := v1.Group("/medicines")
		medicines.POST("", s.createMedicine)
		medicines.GET("", s.listMedicines)
		medicines.GET(":id", s.getMedicine)

		orders := v1.Group("/orders")
		orders.POST("", s.createOrder)
		orders.GET("", s.listOrders)
		orders.GET(":id", s.getOrder)
		orders.PATCH(":id/status", s.advanceOrderStatus)

		patients := v1.Group("/patients")
		patients.POST("", s.createPatient)
		patients.GET("", s.listPatients)
		patients.GET(":id", s.getPatient)
		patients.GET(":id/orders", s.patientOrders)
		patients.POST(":id/prescriptions", s.addPrescription)

		alerts := v1.Group("/refill-alerts")
		alerts.GET("", s.listAlerts)
		alerts.POST("", s.createAlert)
		alerts.POST("/scan", s.scanRefills)
		alerts.PUT(":id", s.updateAlert)

		v1.POST("/chat", s.chat)
		v1.POST("/voice", s.voice)
	}
}

// @Summary Health check
// @Tags system
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /health [get]
func (s *Server) health(c *gin.Context) {
	if s.svc.Health != nil {
		if err := s.svc.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Medicine handlers
type createMedicineReq struct {
	ProductCode          string   `json:"product_code"`
	Name                 string   `json:"name" validate:"notblank"`
	Description          string   `json:"description"`
	Category             string   `json:"category"`
	Indications          []string `json:"indications"`
	PackageSize          string   `json:"package_size"`
	Price                float64  `json:"price" validate:"gte=0"`
	Stock                int64    `json:"stock" validate:"gte=0"`
	RequiresPrescription bool     `json:"prescription_required"`
}

// @Summary Add medicine to the catalog
// @Tags medicines
// @Accept json
// @Produce json
// @Param input body createMedicineReq true "Medicine"
// @Success 201 {object} domain.Medicine
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /medicines [post]
func (s *Server) createMedicine(c *gin.Context) {
	var req createMedicineReq
	if err := bindAndValidate(c, &req, s.validate); err != nil {
		return
	}
	m, err := s.svc.Medicines.Create(c.Request.Context(), domain.Medicine{
		ProductCode:          req.ProductCode,
		Name:                 req.Name,
		Description:          req.Description,
		Category:             req.Category,
		Indications:          req.Indications,
		PackageSize:          req.PackageSize,
		Price:                req.Price,
		Stock:                req.Stock,
		RequiresPrescription: req.RequiresPrescription,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// @Summary Get medicine by id
// @Tags medicines
// @Produce json
// @Param id path int true "Medicine ID"
// @Success 200 {object} domain.Medicine
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /medicines/{id} [get]
func (s *Server) getMedicine(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	m, err := s.svc.Medicines.GetByID(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// @Summary List medicines
// @Tags medicines
// @Produce json
// @Param q query string false "Name contains"
// @Param in_stock query bool false "Only products in stock"
// @Success 200 {array} domain.Medicine
// @Router /medicines [get]
func (s *Server) listMedicines(c *gin.Context) {
	var f repository.MedicineFilter
	if q := c.Query("q"); q != "" {
		f.NameSubstring = q
	}
	if v := c.Query("in_stock"); v != "" {
		if x, err := strconv.ParseBool(v); err == nil {
			f.InStockOnly = x
		}
	}
	list, err := s.svc.Medicines.List(c.Request.Context(), f)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// Order handlers
type createOrderReq struct {
	PatientID   string `json:"patient_id" validate:"notblank"`
	ProductName string `json:"product_name" validate:"notblank"`
	Quantity    int64  `json:"quantity" validate:"gt=0"`
}

// @Summary Place order
// @Description Runs the safety checks, then decrements stock and records the order atomically.
// @Tags orders
// @Accept json
// @Produce json
// @Param input body createOrderReq true "Order"
// @Success 201 {object} domain.Order
// @Failure 400 {object} map[string]string
// @Failure 404 {object} domain.SafetyError
// @Failure 422 {object} domain.SafetyError
// @Router /orders [post]
func (s *Server) createOrder(c *gin.Context) {
	var req createOrderReq
	if err := bindAndValidate(c, &req, s.validate); err != nil {
		return
	}
	o, err := s.svc.Orders.PlaceOrder(c.Request.Context(), service.PlaceOrderInput{
		PatientID:   req.PatientID,
		ProductName: req.ProductName,
		Quantity:    req.Quantity,
		Channel:     "api",
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

// @Summary List orders
// @Tags orders
// @Produce json
// @Param patient_id query string false "Patient ID"
// @Success 200 {array} domain.Order
// @Router /orders [get]
func (s *Server) listOrders(c *gin.Context) {
	list, err := s.svc.Orders.ListOrders(c.Request.Context(), c.Query("patient_id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// @Summary Get order by id
// @Tags orders
// @Produce json
// @Param id path int true "Order ID"
// @Success 200 {object} domain.Order
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /orders/{id} [get]
func (s *Server) getOrder(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	o, err := s.svc.Orders.GetOrder(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

type statusReq struct {
	Status string `json:"status" validate:"notblank"`
}

// @Summary Advance order status
// @Description Moves the order one step: placed, processing, shipped, delivered.
// @Tags orders
// @Accept json
// @Produce json
// @Param id path int true "Order ID"
// @Param input body statusReq true "Next status"
// @Success 200 {object} domain.Order
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /orders/{id}/status [patch]
func (s *Server) advanceOrderStatus(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req statusReq
	if err := bindAndValidate(c, &req, s.validate); err != nil {
		return
	}
	o, err := s.svc.Orders.AdvanceStatus(c.Request.Context(), id, domain.OrderStatus(req.Status))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func parseID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

func mapErrorToStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSafetyBlock):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, repository.ErrAlreadyExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a status. Safety blocks carry the structured reason
// and substitutes; internal errors are logged and not echoed.
func (s *Server) writeError(c *gin.Context, err error) {
	status := mapErrorToStatus(err)
	if serr, ok := domain.AsSafetyError(err); ok {
		c.JSON(status, gin.H{"error": serr.Error(), "safety": serr})
		return
	}
	if status == http.StatusInternalServerError {
		s.log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		_ = c.Error(err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
