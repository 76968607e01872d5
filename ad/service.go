package ad

import "context"

// Catalog abstracts repository operations for the service.
type Catalog interface {
	Create(ctx context.Context, params CreateParams) (Ad, error)
	GetByID(ctx context.Context, id string) (Ad, error)
	List(ctx context.Context, limit int) ([]Ad, error)
}

// Service exposes business-level ad operations.
type Service struct {
	repo Catalog
}

func NewService(repo Catalog) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, params CreateParams) (Ad, error) {
	return s.repo.Create(ctx, params)
}

func (s *Service) GetByID(ctx context.Context, id string) (Ad, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, limit int) ([]Ad, error) {
	return s.repo.List(ctx, limit)
}
