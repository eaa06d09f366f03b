// Package authz is the single capability entry point. Administrative
// capability is granted solely by the existence of a roles_admin marker row
// keyed by the user id; any failure to verify fails closed.
package authz

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aquaflow/shop/internal/models"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *slog.Logger
}

func New(db *gorm.DB, log *slog.Logger) *Service {
	return &Service{db: db, log: log}
}

// IsAdmin reports whether uid holds the admin marker. Backend errors are
// logged and answered with false: no connectivity means no capability.
func (s *Service) IsAdmin(ctx context.Context, uid string) bool {
	if uid == "" {
		return false
	}
	var marker models.AdminRole
	err := s.db.WithContext(ctx).Where("user_id = ?", uid).First(&marker).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Warn("admin capability check failed, denying", "uid", uid, "err", err)
		}
		return false
	}
	return true
}

// Grant creates the marker row; used by the admin seeding command.
func (s *Service) Grant(ctx context.Context, uid string) error {
	marker := models.AdminRole{UserID: uid, GrantedAt: time.Now().UTC()}
	return s.db.WithContext(ctx).FirstOrCreate(&marker, models.AdminRole{UserID: uid}).Error
}
