package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/reelboard/reelboard-agent/internal/gateway"
)

var (
	ErrNotFound          = errors.New("asset not found")
	ErrNameRequired      = errors.New("name is required")
	ErrNoReferences      = errors.New("model needs at least one reference image")
	ErrTooManyReferences = fmt.Errorf("model cannot have more than %d reference images", MaxReferenceImages)
	ErrImageRequired     = errors.New("product image is required")
	ErrInvalidSheetStyle = errors.New("sheet style must be monochrome or color")
)

type CatalogService interface {
	CreateModel(ctx context.Context, name, description string, refs []gateway.ImageBlob) (*Model, error)
	UpdateModel(ctx context.Context, id, name, description string, refs []gateway.ImageBlob) (*Model, error)
	GetModel(ctx context.Context, id string) (*Model, error)
	ListModels(ctx context.Context) ([]*Model, error)
	DeleteModel(ctx context.Context, id string) error
	GenerateModelSheet(ctx context.Context, id string, style SheetStyle) (*Model, error)

	CreateProduct(ctx context.Context, name string, image gateway.ImageBlob) (*Product, error)
	ListProducts(ctx context.Context) ([]*Product, error)
	DeleteProduct(ctx context.Context, id string) error

	CountAssets(ctx context.Context) (models, products int, err error)
}

type Service struct {
	repo    Repository
	gateway gateway.Gateway
	logger  *slog.Logger
}

func NewService(repo Repository, gw gateway.Gateway, logger *slog.Logger) *Service {
	return &Service{repo: repo, gateway: gw, logger: logger}
}

func validateModelInput(name string, refs []gateway.ImageBlob) error {
	if name == "" {
		return ErrNameRequired
	}
	if len(refs) == 0 {
		return ErrNoReferences
	}
	if len(refs) > MaxReferenceImages {
		return ErrTooManyReferences
	}
	for i, r := range refs {
		if r.IsZero() {
			return fmt.Errorf("reference image %d is empty", i)
		}
	}
	return nil
}

func (s *Service) CreateModel(ctx context.Context, name, description string, refs []gateway.ImageBlob) (*Model, error) {
	if err := validateModelInput(name, refs); err != nil {
		return nil, err
	}

	now := time.Now()
	m := &Model{
		ID:              uuid.NewString(),
		Name:            name,
		Description:     description,
		ReferenceImages: refs,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.CreateModel(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to create model: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("model created", "model_id", m.ID, "name", m.Name, "references", len(refs))
	}
	return m, nil
}

func (s *Service) UpdateModel(ctx context.Context, id, name, description string, refs []gateway.ImageBlob) (*Model, error) {
	if err := validateModelInput(name, refs); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetModel(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrNotFound
	}

	existing.Name = name
	existing.Description = description
	existing.ReferenceImages = refs

	if err := s.repo.UpdateModel(ctx, existing); err != nil {
		return nil, fmt.Errorf("failed to update model: %w", err)
	}

	return s.repo.GetModel(ctx, id)
}

func (s *Service) GetModel(ctx context.Context, id string) (*Model, error) {
	m, err := s.repo.GetModel(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNotFound
	}
	return m, nil
}

func (s *Service) ListModels(ctx context.Context) ([]*Model, error) {
	return s.repo.ListModels(ctx)
}

func (s *Service) DeleteModel(ctx context.Context, id string) error {
	m, err := s.repo.GetModel(ctx, id)
	if err != nil {
		return err
	}
	if m == nil {
		return ErrNotFound
	}
	return s.repo.DeleteModel(ctx, id)
}

// GenerateModelSheet produces a comp card from the model's reference
// images and persists it on the model.
func (s *Service) GenerateModelSheet(ctx context.Context, id string, style SheetStyle) (*Model, error) {
	if !style.Valid() {
		return nil, ErrInvalidSheetStyle
	}

	m, err := s.repo.GetModel(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNotFound
	}
	if len(m.ReferenceImages) == 0 {
		return nil, ErrNoReferences
	}

	prompt := modelSheetPrompt(m.Name, m.Description, style)

	sheet, err := s.gateway.GenerateImage(ctx, prompt, m.ReferenceImages)
	if err != nil {
		return nil, fmt.Errorf("failed to generate model sheet: %w", err)
	}

	if err := s.repo.SetModelSheet(ctx, id, sheet); err != nil {
		return nil, fmt.Errorf("failed to persist model sheet: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("model sheet generated", "model_id", id, "style", string(style))
	}
	return s.repo.GetModel(ctx, id)
}

func modelSheetPrompt(name, description string, style SheetStyle) string {
	styleLine := "classic, high-contrast black and white"
	if style == SheetStyleColor {
		styleLine = "vibrant, full-color"
	}

	return fmt.Sprintf(`You are a professional AI fashion photographer. Your task is to create a professional model composite sheet (comp card) for a model named %q.

**Model Details:**
- **Name:** %q
- **Description:** %q

**Instructions:**
1. **Layout:** Create a single, well-composed image containing 3-4 distinct shots of the same model. The layout should be clean and professional, similar to a real-world model agency comp card.
2. **Poses & Shots:** Include a variety of shots to showcase the model's range:
   - A full-body shot in a confident, natural pose.
   - A three-quarter shot with a warm, engaging smile.
   - A close-up headshot highlighting their facial features and a specific expression (e.g., thoughtful, joyful, determined).
3. **Style & Lighting:** The overall style must be **ultra-photorealistic and cinematic**, suitable for a high-end commercial. Use professional studio lighting (e.g., softbox, key light, fill light) to create a flattering, polished look with soft shadows. The background should be a neutral, seamless studio backdrop (light gray or off-white).
4. **Consistency:** It is CRITICAL to maintain perfect consistency of the model's appearance, facial features, and body type across all shots, based on the provided reference image(s). The reference images are the ground truth for the model's look.
5. **Output Format:** The final output must be a single image file. **Do not add any text, logos, or borders to the image.** The focus is purely on the photographic shots of the model. The style is %s.`, name, name, description, styleLine)
}

func (s *Service) CreateProduct(ctx context.Context, name string, image gateway.ImageBlob) (*Product, error) {
	if name == "" {
		return nil, ErrNameRequired
	}
	if image.IsZero() {
		return nil, ErrImageRequired
	}

	p := &Product{
		ID:        uuid.NewString(),
		Name:      name,
		Image:     image,
		CreatedAt: time.Now(),
	}

	if err := s.repo.CreateProduct(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("product created", "product_id", p.ID, "name", p.Name)
	}
	return p, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]*Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	if p == nil {
		return ErrNotFound
	}
	return s.repo.DeleteProduct(ctx, id)
}

func (s *Service) CountAssets(ctx context.Context) (int, int, error) {
	models, err := s.repo.CountModels(ctx)
	if err != nil {
		return 0, 0, err
	}
	products, err := s.repo.CountProducts(ctx)
	if err != nil {
		return 0, 0, err
	}
	return models, products, nil
}
