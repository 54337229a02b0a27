package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/YelzhanWeb/caseflow/internal/adapter/logger"
	"github.com/YelzhanWeb/caseflow/internal/domain"
	"github.com/YelzhanWeb/caseflow/internal/interfaces"
)

type CaseHandler struct {
	workflow interfaces.WorkflowService
	intake   interfaces.IntakeService
	logger   logger.Logger
}

func NewCaseHandler(workflow interfaces.WorkflowService, intake interfaces.IntakeService, logger logger.Logger) *CaseHandler {
	return &CaseHandler{
		workflow: workflow,
		intake:   intake,
		logger:   logger,
	}
}

type SubmitCaseRequest struct {
	ProcedureCategory string              `json:"procedure_category" binding:"required,max=100"`
	GuideType         string              `json:"guide_type" binding:"required,max=100"`
	ServiceTier       string              `json:"service_tier" binding:"required"`
	PatientRef        string              `json:"patient_ref" binding:"max=100"`
	Notes             string              `json:"notes" binding:"max=5000"`
	SelectedTeeth     []int               `json:"selected_teeth" binding:"required,min=1,max=32"`
	DeliveryMethod    string              `json:"delivery_method" binding:"required"`
	DeliveryAddress   *string             `json:"delivery_address"`
	Attachments       []AttachmentRequest `json:"attachments" binding:"dive"`
}

type AttachmentRequest struct {
	FileName    string `json:"file_name" binding:"required"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes" binding:"min=0"`
	StorageKey  string `json:"storage_key"`
}

type TransitionRequest struct {
	TargetStatus string  `json:"target_status" binding:"required"`
	Notes        *string `json:"notes"`
}

type OverrideRequest struct {
	TargetStatus string `json:"target_status" binding:"required"`
	Reason       string `json:"reason"`
}

type AttachmentResponse struct {
	ID          string    `json:"id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	StorageKey  string    `json:"storage_key"`
	CreatedAt   time.Time `json:"created_at"`
}

type CaseResponse struct {
	ID                string                `json:"id"`
	Number            string                `json:"number"`
	ClientID          string                `json:"client_id"`
	DesignerID        *string               `json:"designer_id,omitempty"`
	ProcedureCategory string                `json:"procedure_category"`
	GuideType         string                `json:"guide_type"`
	ServiceTier       domain.ServiceTier    `json:"service_tier"`
	PatientRef        string                `json:"patient_ref,omitempty"`
	Notes             string                `json:"notes,omitempty"`
	SelectedTeeth     []int                 `json:"selected_teeth"`
	DeliveryMethod    domain.DeliveryMethod `json:"delivery_method"`
	DeliveryAddress   *string               `json:"delivery_address,omitempty"`
	Attachments       []AttachmentResponse  `json:"attachments"`
	Status            domain.Status         `json:"status"`
	Version           int                   `json:"version"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
}

type HistoryEntryResponse struct {
	Sequence   int              `json:"sequence"`
	FromStatus *domain.Status   `json:"from_status"`
	ToStatus   domain.Status    `json:"to_status"`
	ChangedBy  domain.Role      `json:"changed_by"`
	ActorID    string           `json:"actor_id"`
	Kind       domain.EntryKind `json:"kind"`
	Notes      *string          `json:"notes,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

type TransitionResponse struct {
	Case         CaseResponse         `json:"case"`
	HistoryEntry HistoryEntryResponse `json:"history_entry"`
}

type HistoryResponse struct {
	CaseID  string                 `json:"case_id"`
	Entries []HistoryEntryResponse `json:"entries"`
}

type AllowedTransitionsResponse struct {
	CaseID          string          `json:"case_id"`
	AllowedStatuses []domain.Status `json:"allowed_statuses"`
}

func (h *CaseHandler) SubmitCase(c *gin.Context) {
	var req SubmitCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, domain.NewValidationError("invalid request body: %v", err))
		return
	}

	cmd := interfaces.SubmitCaseCommand{
		ProcedureCategory: req.ProcedureCategory,
		GuideType:         req.GuideType,
		ServiceTier:       req.ServiceTier,
		PatientRef:        req.PatientRef,
		Notes:             req.Notes,
		SelectedTeeth:     req.SelectedTeeth,
		DeliveryMethod:    req.DeliveryMethod,
		DeliveryAddress:   req.DeliveryAddress,
	}
	for _, a := range req.Attachments {
		cmd.Attachments = append(cmd.Attachments, interfaces.SubmitAttachmentCommand{
			FileName:    a.FileName,
			ContentType: a.ContentType,
			SizeBytes:   a.SizeBytes,
			StorageKey:  a.StorageKey,
		})
	}

	created, err := h.intake.SubmitCase(c.Request.Context(), cmd, actorFrom(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, toCaseResponse(created))
}

func (h *CaseHandler) GetCase(c *gin.Context) {
	found, ok := h.accessibleCase(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toCaseResponse(found))
}

func (h *CaseHandler) GetHistory(c *gin.Context) {
	if _, ok := h.accessibleCase(c); !ok {
		return
	}

	history, err := h.workflow.GetHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	resp := HistoryResponse{CaseID: c.Param("id"), Entries: make([]HistoryEntryResponse, 0, len(history))}
	for _, e := range history {
		resp.Entries = append(resp.Entries, toHistoryEntryResponse(e))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *CaseHandler) GetAllowedTransitions(c *gin.Context) {
	if _, ok := h.accessibleCase(c); !ok {
		return
	}

	allowed, err := h.workflow.GetAllowedTransitions(c.Request.Context(), c.Param("id"), actorFrom(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, AllowedTransitionsResponse{CaseID: c.Param("id"), AllowedStatuses: allowed})
}

func (h *CaseHandler) RequestTransition(c *gin.Context) {
	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, domain.NewValidationError("invalid request body: %v", err))
		return
	}
	// Невалидный статус отклоняем до загрузки кейса
	if _, err := domain.ParseStatus(strings.TrimSpace(req.TargetStatus)); err != nil {
		respondError(c, h.logger, domain.NewValidationError("%v", err))
		return
	}
	if _, ok := h.accessibleCase(c); !ok {
		return
	}

	result, err := h.workflow.RequestTransition(c.Request.Context(), c.Param("id"), req.TargetStatus, actorFrom(c), req.Notes)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, TransitionResponse{
		Case:         toCaseResponse(result.Case),
		HistoryEntry: toHistoryEntryResponse(result.Entry),
	})
}

func (h *CaseHandler) OverrideStatus(c *gin.Context) {
	var req OverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, domain.NewValidationError("invalid request body: %v", err))
		return
	}

	result, err := h.workflow.OverrideStatus(c.Request.Context(), c.Param("id"), req.TargetStatus, actorFrom(c), req.Reason)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, TransitionResponse{
		Case:         toCaseResponse(result.Case),
		HistoryEntry: toHistoryEntryResponse(result.Entry),
	})
}

// accessibleCase loads the case in the path. Clients only see their own
// cases; anyone else's case is reported as missing.
func (h *CaseHandler) accessibleCase(c *gin.Context) (*domain.Case, bool) {
	found, err := h.workflow.GetCase(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return nil, false
	}

	actor := actorFrom(c)
	if actor.Role == domain.RoleClient && found.ClientID != actor.ID {
		respondError(c, h.logger, domain.NewNotFoundError(c.Param("id")))
		return nil, false
	}
	return found, true
}

func toCaseResponse(c *domain.Case) CaseResponse {
	attachments := make([]AttachmentResponse, 0, len(c.Attachments))
	for _, a := range c.Attachments {
		attachments = append(attachments, AttachmentResponse{
			ID:          a.ID,
			FileName:    a.FileName,
			ContentType: a.ContentType,
			SizeBytes:   a.SizeBytes,
			StorageKey:  a.StorageKey,
			CreatedAt:   a.CreatedAt,
		})
	}
	return CaseResponse{
		ID:                c.ID,
		Number:            c.Number,
		ClientID:          c.ClientID,
		DesignerID:        c.DesignerID,
		ProcedureCategory: c.ProcedureCategory,
		GuideType:         c.GuideType,
		ServiceTier:       c.ServiceTier,
		PatientRef:        c.PatientRef,
		Notes:             c.Notes,
		SelectedTeeth:     c.SelectedTeeth,
		DeliveryMethod:    c.DeliveryMethod,
		DeliveryAddress:   c.DeliveryAddress,
		Attachments:       attachments,
		Status:            c.Status,
		Version:           c.Version,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
}

func toHistoryEntryResponse(e *domain.StatusHistoryEntry) HistoryEntryResponse {
	return HistoryEntryResponse{
		Sequence:   e.Sequence,
		FromStatus: e.FromStatus,
		ToStatus:   e.ToStatus,
		ChangedBy:  e.ChangedBy,
		ActorID:    e.ActorID,
		Kind:       e.Kind,
		Notes:      e.Notes,
		CreatedAt:  e.CreatedAt,
	}
}
