package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/memo-service/internal/api/dto"
	"github.com/spec-kit/memo-service/internal/auth"
	"github.com/spec-kit/memo-service/internal/config"
	"github.com/spec-kit/memo-service/internal/domain"
	"github.com/spec-kit/memo-service/internal/service"
	apperrors "github.com/spec-kit/memo-service/pkg/util/errorutil"
)

// MemosHandler manages memo endpoints.
type MemosHandler struct {
	service *service.MemoService
	paging  config.MemoConfig
}

// NewMemosHandler constructs handler.
func NewMemosHandler(memoService *service.MemoService, paging config.MemoConfig) *MemosHandler {
	if paging.DefaultPageSize <= 0 {
		paging.DefaultPageSize = 20
	}
	if paging.MaxPageSize < paging.DefaultPageSize {
		paging.MaxPageSize = paging.DefaultPageSize
	}
	return &MemosHandler{service: memoService, paging: paging}
}

// CreateMemo POST /memos.
func (h *MemosHandler) CreateMemo(c *fiber.Ctx) error {
	principal, err := auth.CurrentIdentity(c)
	if err != nil {
		return err
	}
	var req dto.MemoFieldsRequest
	if err := parseOptionalBody(c, &req); err != nil {
		return err
	}
	memo, err := h.service.CreateDraft(c.UserContext(), principal.Identity, req.Fields())
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": memoDetail(memo, principal.Identity.Email)})
}

// ListMemos GET /memos.
func (h *MemosHandler) ListMemos(c *fiber.Ctx) error {
	principal, err := auth.CurrentIdentity(c)
	if err != nil {
		return err
	}
	view, ok := domain.ParseView(c.Query("view"))
	if !ok {
		return apperrors.NewFieldError("view", "unknown view")
	}
	page, err := queryInt(c, "page", 1)
	if err != nil {
		return err
	}
	pageSize, err := queryInt(c, "page_size", h.paging.DefaultPageSize)
	if err != nil {
		return err
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = h.paging.DefaultPageSize
	}
	if pageSize > h.paging.MaxPageSize {
		pageSize = h.paging.MaxPageSize
	}

	views, err := h.service.ListFor(c.UserContext(), principal.Identity, service.MemoListFilter{
		View:   view,
		Limit:  pageSize,
		Offset: (page - 1) * pageSize,
	})
	if err != nil {
		return err
	}
	items := make([]dto.MemoSummary, 0, len(views))
	for i := range views {
		items = append(items, memoSummary(&views[i]))
	}
	return c.JSON(fiber.Map{
		"data": items,
		"meta": dto.PageMeta{View: view, Page: page, PageSize: pageSize},
	})
}

// GetMemo GET /memos/:id.
func (h *MemosHandler) GetMemo(c *fiber.Ctx) error {
	principal, err := auth.CurrentIdentity(c)
	if err != nil {
		return err
	}
	view, err := h.service.Get(c.UserContext(), principal.Identity, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": memoDetail(view.Memo, principal.Identity.Email)})
}

// UpdateMemo PUT /memos/:id.
func (h *MemosHandler) UpdateMemo(c *fiber.Ctx) error {
	principal, err := auth.CurrentIdentity(c)
	if err != nil {
		return err
	}
	var req dto.MemoFieldsRequest
	if err := parseOptionalBody(c, &req); err != nil {
		return err
	}
	memo, err := h.service.UpdateDraft(c.UserContext(), principal.Identity, c.Params("id"), req.Fields())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": memoDetail(memo, principal.Identity.Email)})
}

// SendMemo POST /memos/:id/send.
func (h *MemosHandler) SendMemo(c *fiber.Ctx) error {
	principal, err := auth.CurrentIdentity(c)
	if err != nil {
		return err
	}
	var req dto.MemoFieldsRequest
	if err := parseOptionalBody(c, &req); err != nil {
		return err
	}
	memo, err := h.service.Send(c.UserContext(), principal.Identity, c.Params("id"), req.Fields())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": memoDetail(memo, principal.Identity.Email)})
}

// AddMinute POST /memos/:id/minutes.
func (h *MemosHandler) AddMinute(c *fiber.Ctx) error {
	principal, err := auth.CurrentIdentity(c)
	if err != nil {
		return err
	}
	var req dto.CreateMinuteRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	memo, err := h.service.AppendMinute(c.UserContext(), principal.Identity, c.Params("id"), service.MinuteInput{
		Message:     req.Message,
		Decision:    req.Status,
		Attachments: req.DomainAttachments(),
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": memoDetail(memo, principal.Identity.Email)})
}

// GetChain GET /memos/:id/chain.
func (h *MemosHandler) GetChain(c *fiber.Ctx) error {
	principal, err := auth.CurrentIdentity(c)
	if err != nil {
		return err
	}
	members, err := h.service.Chain(c.UserContext(), principal.Identity, c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.ChainEntryResponse, 0, len(members))
	for _, member := range members {
		items = append(items, chainEntry(member))
	}
	return c.JSON(fiber.Map{"data": items})
}

// MarkReviewed POST /memos/:id/review.
func (h *MemosHandler) MarkReviewed(c *fiber.Ctx) error {
	principal, err := auth.CurrentIdentity(c)
	if err != nil {
		return err
	}
	memo, err := h.service.MarkReviewed(c.UserContext(), principal.Identity, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": memoDetail(memo, principal.Identity.Email)})
}

// ArchiveMemo POST /memos/:id/archive.
func (h *MemosHandler) ArchiveMemo(c *fiber.Ctx) error {
	principal, err := auth.CurrentIdentity(c)
	if err != nil {
		return err
	}
	memo, err := h.service.Archive(c.UserContext(), principal.Identity, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": memoDetail(memo, principal.Identity.Email)})
}

// ForwardMemo POST /memos/:id/forward.
func (h *MemosHandler) ForwardMemo(c *fiber.Ctx) error {
	principal, err := auth.CurrentIdentity(c)
	if err != nil {
		return err
	}
	var req dto.ForwardMemoRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	memo, err := h.service.Forward(c.UserContext(), principal.Identity, c.Params("id"), req.Input())
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": memoDetail(memo, principal.Identity.Email)})
}

// DeleteMemo DELETE /memos/:id?confirm=true.
func (h *MemosHandler) DeleteMemo(c *fiber.Ctx) error {
	principal, err := auth.CurrentIdentity(c)
	if err != nil {
		return err
	}
	if !c.QueryBool("confirm") {
		return apperrors.NewConfirmationRequired("deleting a memo cannot be undone; repeat with confirm=true")
	}
	if err := h.service.Delete(c.UserContext(), principal.Identity, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

func parseOptionalBody(c *fiber.Ctx, out interface{}) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(out); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return nil
}

func queryInt(c *fiber.Ctx, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.NewFieldError(key, key+" must be a number")
	}
	return val, nil
}

func memoSummary(view *service.MemoView) dto.MemoSummary {
	return dto.MemoSummary{
		ID:          view.Memo.ID,
		From:        view.Memo.From,
		FromName:    view.Memo.FromName,
		To:          view.Recipients.To,
		Subject:     view.Memo.Subject,
		Status:      view.Memo.Status,
		IsFinancial: view.Memo.IsFinancial,
		IsArchived:  view.Memo.IsArchived,
		UpdatedAt:   view.Memo.UpdatedAt,
	}
}

func memoDetail(memo *domain.Memo, viewer string) dto.MemoDetailResponse {
	visible := memo.Recipients.VisibleTo(viewer, memo.From)
	minutes := make([]dto.MinuteResponse, 0, len(memo.Minutes))
	for _, minute := range memo.Minutes {
		minutes = append(minutes, minuteResponse(minute))
	}
	return dto.MemoDetailResponse{
		ID:              memo.ID,
		From:            memo.From,
		FromName:        memo.FromName,
		FromDept:        memo.FromDept,
		FromDesignation: memo.FromDesignation,
		To:              visible.To,
		Cc:              visible.Cc,
		Bcc:             visible.Bcc,
		ReplyTo:         visible.ReplyTo,
		Recommender:     nonNil(memo.Recommender),
		Approver:        nonNil(memo.Approver),
		Subject:         memo.Subject,
		Message:         memo.Message,
		IsFinancial:     memo.IsFinancial,
		Attachments:     dto.AttachmentsResponse(memo.Attachments),
		Status:          memo.Status,
		Minutes:         minutes,
		IsArchived:      memo.IsArchived,
		ApprovedByName:  memo.ApprovedByName,
		ApprovedByDept:  memo.ApprovedByDept,
		ForwardedFromID: memo.ForwardedFromID,
		Version:         memo.Version,
		CreatedAt:       memo.CreatedAt,
		UpdatedAt:       memo.UpdatedAt,
	}
}

func minuteResponse(minute domain.Minute) dto.MinuteResponse {
	return dto.MinuteResponse{
		AuthorName:  minute.AuthorName,
		AuthorEmail: minute.AuthorEmail,
		AuthorDept:  minute.AuthorDept,
		Message:     minute.Message,
		Status:      minute.Status,
		Attachments: dto.AttachmentsResponse(minute.Attachments),
		CreatedAt:   minute.CreatedAt,
	}
}

func chainEntry(member service.ChainMember) dto.ChainEntryResponse {
	resp := dto.ChainEntryResponse{
		Role:        member.Role,
		Address:     member.Address,
		Name:        member.Identity.DisplayName(),
		Department:  member.Identity.Department,
		Designation: member.Identity.Designation,
		Disposition: member.Disposition,
		Implicit:    member.Implicit,
	}
	if member.Latest != nil {
		latest := minuteResponse(*member.Latest)
		resp.Latest = &latest
	}
	return resp
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
