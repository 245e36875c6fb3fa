// Package people manages the person directory that sessions are promoted into.
package people

import (
	"context"
	"strings"

	"github.com/allclear/allclear/backend/go-services/internal/apperr"
	"github.com/allclear/allclear/backend/go-services/internal/models"
)

var (
	ErrPhoneTaken = &apperr.ValidationError{Field: "phone", Message: "The phone number is already registered."}
	ErrNotFound   = &apperr.ValidationError{Field: "id", Message: "The person could not be found."}
)

// Service encapsulates person-related business logic
type Service struct {
	repo Repository
}

func NewService(r Repository) *Service {
	return &Service{repo: r}
}

func (s *Service) FindByPhone(ctx context.Context, phone string) (*models.Person, error) {
	return s.repo.GetByPhone(ctx, phone)
}

// Register creates the person a registration session was started for.
func (s *Service) Register(ctx context.Context, reg *models.Registration, name string) (*models.Person, error) {
	if reg == nil || reg.Phone == "" {
		return nil, apperr.Invalid("phone", "Please supply a phone number.")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Invalid("name", "Please supply a name.")
	}
	existing, err := s.repo.GetByPhone(ctx, reg.Phone)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrPhoneTaken
	}
	return s.repo.Create(ctx, &models.Person{Name: name, Phone: reg.Phone, Active: true})
}

// Rename changes the display name of p.
func (s *Service) Rename(ctx context.Context, p *models.Person, name string) (*models.Person, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Invalid("name", "Please supply a name.")
	}
	updated := *p
	updated.Name = name
	return s.repo.Update(ctx, &updated)
}
