package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/orderdesk-backend/internal/http/handlers/common"
	"github.com/ignatzorin/orderdesk-backend/internal/http/response"
	"github.com/ignatzorin/orderdesk-backend/internal/models"
	"github.com/ignatzorin/orderdesk-backend/internal/service"
)

// JobUseCases - операции сервиса заказов, нужные хэндлеру.
type JobUseCases interface {
	CreateJob(ctx context.Context, actor models.Actor, in service.CreateJobInput) (*models.Job, error)
	GetJob(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Job, error)
	ListJobs(ctx context.Context, actor models.Actor, status string, limit, offset int) ([]models.Job, error)
	SetStatus(ctx context.Context, actor models.Actor, id uuid.UUID, upd service.StatusUpdate) (*models.Job, error)
	Approve(ctx context.Context, actor models.Actor, id uuid.UUID, approved bool) (*models.Job, error)
	Assign(ctx context.Context, actor models.Actor, jobID, freelancerID uuid.UUID) (*models.Job, error)
	PlaceBid(ctx context.Context, actor models.Actor, jobID uuid.UUID, in service.PlaceBidInput) (*models.Bid, error)
	ListBids(ctx context.Context, actor models.Actor, jobID uuid.UUID) ([]models.Bid, error)
	ListAttachments(ctx context.Context, actor models.Actor, jobID uuid.UUID) ([]models.JobAttachment, error)
}

// JobHandler обслуживает маршруты заказов и ставок.
type JobHandler struct {
	jobs JobUseCases
}

// NewJobHandler создаёт новый хэндлер.
func NewJobHandler(jobs JobUseCases) *JobHandler {
	return &JobHandler{jobs: jobs}
}

type createJobRequest struct {
	OrderNumber       string    `json:"order_number" binding:"required"`
	Title             string    `json:"title" binding:"required"`
	Description       string    `json:"description"`
	Amount            float64   `json:"amount" binding:"required"`
	UrgencyMultiplier float64   `json:"urgency_multiplier"`
	Deadline          time.Time `json:"deadline" binding:"required"`
}

type statusRequest struct {
	Status            string  `json:"status" binding:"required"`
	RevisionRequested *bool   `json:"revision_requested"`
	RevisionNotes     *string `json:"revision_notes"`
	ClientApproved    *bool   `json:"client_approved"`
}

type approveRequest struct {
	Approved *bool `json:"approved" binding:"required"`
}

type assignRequest struct {
	FreelancerID uuid.UUID `json:"freelancer_id" binding:"required"`
}

type bidRequest struct {
	Amount  float64 `json:"amount" binding:"required"`
	Message string  `json:"message"`
}

// CreateJob обрабатывает POST /api/jobs.
func (h *JobHandler) CreateJob(c *gin.Context) {
	actor, ok := common.RequireActor(c)
	if !ok {
		return
	}
	var req createJobRequest
	if !common.BindJSON(c, &req) {
		return
	}

	job, err := h.jobs.CreateJob(c.Request.Context(), actor, service.CreateJobInput{
		OrderNumber:       req.OrderNumber,
		Title:             req.Title,
		Description:       req.Description,
		Amount:            req.Amount,
		UrgencyMultiplier: req.UrgencyMultiplier,
		Deadline:          req.Deadline,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, job)
}

// ListJobs обрабатывает GET /api/jobs?status=&limit=&offset=.
func (h *JobHandler) ListJobs(c *gin.Context) {
	actor, ok := common.RequireActor(c)
	if !ok {
		return
	}
	limit, offset := common.GetPagination(c)

	jobs, err := h.jobs.ListJobs(c.Request.Context(), actor, c.Query("status"), limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paginated(c, jobs, len(jobs), limit, offset)
}

// GetJob обрабатывает GET /api/jobs/:id.
func (h *JobHandler) GetJob(c *gin.Context) {
	actor, ok := common.RequireActor(c)
	if !ok {
		return
	}
	id, ok := common.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	job, err := h.jobs.GetJob(c.Request.Context(), actor, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, job)
}

// UpdateStatus обрабатывает PATCH /api/jobs/:id/status.
func (h *JobHandler) UpdateStatus(c *gin.Context) {
	actor, ok := common.RequireActor(c)
	if !ok {
		return
	}
	id, ok := common.ParseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req statusRequest
	if !common.BindJSON(c, &req) {
		return
	}

	job, err := h.jobs.SetStatus(c.Request.Context(), actor, id, service.StatusUpdate{
		Status:            req.Status,
		RevisionRequested: req.RevisionRequested,
		RevisionNotes:     req.RevisionNotes,
		ClientApproved:    req.ClientApproved,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, job)
}

// Approve обрабатывает PATCH /api/jobs/:id/approve.
func (h *JobHandler) Approve(c *gin.Context) {
	actor, ok := common.RequireActor(c)
	if !ok {
		return
	}
	id, ok := common.ParseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req approveRequest
	if !common.BindJSON(c, &req) {
		return
	}

	job, err := h.jobs.Approve(c.Request.Context(), actor, id, *req.Approved)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, job)
}

// Assign обрабатывает PATCH /api/jobs/:id/assign.
func (h *JobHandler) Assign(c *gin.Context) {
	actor, ok := common.RequireActor(c)
	if !ok {
		return
	}
	id, ok := common.ParseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req assignRequest
	if !common.BindJSON(c, &req) {
		return
	}
	if req.FreelancerID == uuid.Nil {
		response.BadRequest(c, "freelancer_id обязателен")
		return
	}

	job, err := h.jobs.Assign(c.Request.Context(), actor, id, req.FreelancerID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, job)
}

// PlaceBid обрабатывает POST /api/jobs/:id/bids.
func (h *JobHandler) PlaceBid(c *gin.Context) {
	actor, ok := common.RequireActor(c)
	if !ok {
		return
	}
	id, ok := common.ParseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req bidRequest
	if !common.BindJSON(c, &req) {
		return
	}

	bid, err := h.jobs.PlaceBid(c.Request.Context(), actor, id, service.PlaceBidInput{
		Amount:  req.Amount,
		Message: req.Message,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, bid)
}

// ListBids обрабатывает GET /api/jobs/:id/bids.
func (h *JobHandler) ListBids(c *gin.Context) {
	actor, ok := common.RequireActor(c)
	if !ok {
		return
	}
	id, ok := common.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	bids, err := h.jobs.ListBids(c.Request.Context(), actor, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, bids)
}

// ListAttachments обрабатывает GET /api/jobs/:id/attachments.
func (h *JobHandler) ListAttachments(c *gin.Context) {
	actor, ok := common.RequireActor(c)
	if !ok {
		return
	}
	id, ok := common.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	attachments, err := h.jobs.ListAttachments(c.Request.Context(), actor, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, attachments)
}
