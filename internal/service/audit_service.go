package service

import (
	"context"
	"encoding/json"

	"energy-billing/internal/model"
	"energy-billing/internal/repository"

	"go.uber.org/zap"
)

type AuditLogResponse struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Action     string `json:"action"`
	EntityID   string `json:"entity_id"`
	EntityName string `json:"entity_name"`
	Details    string `json:"details"`
	CreatedAt  string `json:"created_at"`
}

type AuditService interface {
	GetAuditLogs(ctx context.Context, filter repository.AuditLogFilter) ([]AuditLogResponse, int64, error)
}

type auditService struct {
	auditRepo repository.AuditRepository
}

// NewAuditService creates a new AuditService instance
func NewAuditService(auditRepo repository.AuditRepository) AuditService {
	return &auditService{auditRepo: auditRepo}
}

// GetAuditLogs returns paginated entries, newest first
func (s *auditService) GetAuditLogs(ctx context.Context, filter repository.AuditLogFilter) ([]AuditLogResponse, int64, error) {
	logs, total, err := s.auditRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		userID := "system"
		if l.UserID != nil {
			userID = *l.UserID
		}

		res = append(res, AuditLogResponse{
			ID:         l.ID,
			UserID:     userID,
			Action:     l.Action,
			EntityID:   l.EntityID,
			EntityName: l.EntityName,
			Details:    l.Details,
			CreatedAt:  l.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}

	return res, total, nil
}

// writeAuditLog records an action. It is best-effort: a failed write is
// logged and never fails the caller.
func writeAuditLog(ctx context.Context, repo repository.AuditRepository, log *zap.Logger, userID, action, entityID, entityName string, details interface{}) {
	if repo == nil {
		return
	}
	detailsJSON, _ := json.Marshal(details)

	entry := &model.AuditLog{
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    string(detailsJSON),
	}
	if userID != "" {
		entry.UserID = &userID
	}

	if err := repo.Log(ctx, entry); err != nil {
		log.Warn("Failed to write audit log", zap.String("action", action), zap.String("entity_id", entityID), zap.Error(err))
	}
}
