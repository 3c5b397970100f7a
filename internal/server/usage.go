package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	allocationdomain "github.com/testbedhq/balance/internal/allocation/domain"
	enforcementdomain "github.com/testbedhq/balance/internal/enforcement/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CheckCreate authorizes a new lease and opens its charges.
func (s *Server) CheckCreate(c *gin.Context) {
	var req enforcementdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.enforcementSvc.CheckCreate(c.Request.Context(), req); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CheckUpdate authorizes a lease modification and rewrites its charges.
func (s *Server) CheckUpdate(c *gin.Context) {
	var req enforcementdomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.enforcementSvc.CheckUpdate(c.Request.Context(), req); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// StopCharging closes the ongoing charges of a terminated lease.
func (s *Server) StopCharging(c *gin.Context) {
	var req enforcementdomain.StopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.enforcementSvc.StopCharging(c.Request.Context(), req); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type balanceReport struct {
	ChargeCode string  `json:"charge_code"`
	Used       float64 `json:"used"`
	Total      float64 `json:"total"`
	Encumbered float64 `json:"encumbered"`
	Allocated  float64 `json:"allocated"`
	Remaining  float64 `json:"remaining"`
}

// ProjectBalance reports the balance of a project's active allocation,
// looked up by charge code.
func (s *Server) ProjectBalance(c *gin.Context) {
	chargeCode := c.Param("chargeCode")

	var project allocationdomain.Project
	err := s.db.WithContext(c.Request.Context()).
		Where("charge_code = ?", chargeCode).
		First(&project).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, errorResponse{Error: errorPayload{
				Type:    "project_not_found",
				Message: "project not found",
			}})
			return
		}
		s.log.Error("project lookup failed", zap.String("charge_code", chargeCode), zap.Error(err))
		AbortWithError(c, err)
		return
	}

	bal, err := s.balanceSvc.ProjectBalance(c.Request.Context(), project.ID, s.clock.Now())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, balanceReport{
		ChargeCode: chargeCode,
		Used:       bal.Used,
		Total:      bal.Total,
		Encumbered: bal.Encumbered,
		Allocated:  bal.Allocated,
		Remaining:  bal.Remaining(),
	})
}
