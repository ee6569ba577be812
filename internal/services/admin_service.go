// internal/services/admin_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vistahub/license-gate/internal/licensing"
	"github.com/vistahub/license-gate/internal/models"
	"github.com/vistahub/license-gate/internal/store"
	"github.com/vistahub/license-gate/internal/utils"
)

var (
	ErrProjectNotFound     = errors.New("project not found")
	ErrProjectExists       = errors.New("project already exists")
	ErrLicenseNotFound     = errors.New("license not found")
	ErrOwnerTaken          = errors.New("license is owned by another identity")
	ErrNoLicensesForOwner  = errors.New("no licenses registered to owner")
	ErrKeyGenerationFailed = errors.New("could not generate an unused license key")
)

const keyGenerationAttempts = 5

type AdminService struct {
	licenses  *store.LicenseStore
	projects  *store.ProjectStore
	logs      *store.AccessLogStore
	encoder   *DeliveryEncoder
	keyPrefix string
	baseURL   string
	timeout   time.Duration
	now       func() time.Time
}

type CreateProjectRequest struct {
	Name               string `json:"name" validate:"required,project_name"`
	PayloadRef         string `json:"payload_ref" validate:"required,payload_ref"`
	MaintainerIdentity string `json:"maintainer_identity,omitempty" validate:"max=100"`
}

type IssueLicenseRequest struct {
	Project       string  `json:"project" validate:"required"`
	DurationDays  int     `json:"duration_days" validate:"min=0,max=3650"`
	OwnerIdentity *string `json:"owner_identity,omitempty" validate:"omitempty,min=1,max=100"`
}

type AssignOwnerRequest struct {
	OwnerIdentity string `json:"owner_identity" validate:"required,max=100"`
	// Force reassigns a license already owned by someone else.
	Force bool `json:"force"`
}

type AdminLicenseFilter struct {
	utils.PaginationParams
	Status  *models.LicenseStatus `json:"status,omitempty"`
	Project string                `json:"project,omitempty"`
	Owner   string                `json:"owner,omitempty"`
}

type LoaderSnippet struct {
	LicenseKey string `json:"license_key"`
	Project    string `json:"project"`
	Loader     string `json:"loader"`
}

func NewAdminService(
	licenses *store.LicenseStore,
	projects *store.ProjectStore,
	logs *store.AccessLogStore,
	encoder *DeliveryEncoder,
	keyPrefix, baseURL string,
	timeout time.Duration,
) *AdminService {
	return &AdminService{
		licenses:  licenses,
		projects:  projects,
		logs:      logs,
		encoder:   encoder,
		keyPrefix: keyPrefix,
		baseURL:   baseURL,
		timeout:   timeout,
		now:       time.Now,
	}
}

func (s *AdminService) CreateProject(ctx context.Context, req *CreateProjectRequest) (*models.Project, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	if _, err := ParsePayloadRef(req.PayloadRef); err != nil {
		return nil, err
	}

	if _, err := s.projects.GetByName(ctx, req.Name); err == nil {
		return nil, ErrProjectExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	project := &models.Project{
		Name:               req.Name,
		PayloadRef:         req.PayloadRef,
		MaintainerIdentity: req.MaintainerIdentity,
	}
	if err := s.projects.Create(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

func (s *AdminService) ListProjects(ctx context.Context) ([]models.Project, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	return s.projects.List(ctx)
}

// IssueLicense creates a waiting license for the named project.
func (s *AdminService) IssueLicense(ctx context.Context, issuer string, req *IssueLicenseRequest) (*models.License, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	project, err := s.projects.GetByName(ctx, req.Project)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, err
	}

	key, err := s.unusedKey(ctx)
	if err != nil {
		return nil, err
	}

	license := &models.License{
		Key:           key,
		ProjectID:     project.ID,
		DurationDays:  req.DurationDays,
		OwnerIdentity: req.OwnerIdentity,
		Status:        models.LicenseStatusWaiting,
		CreatedBy:     issuer,
	}
	if err := s.licenses.Create(ctx, license); err != nil {
		return nil, err
	}
	license.Project = *project

	logrus.WithFields(logrus.Fields{
		"license_key": key,
		"project":     project.Name,
		"days":        req.DurationDays,
		"issuer":      issuer,
	}).Info("License issued")
	return license, nil
}

func (s *AdminService) unusedKey(ctx context.Context) (string, error) {
	for i := 0; i < keyGenerationAttempts; i++ {
		key, err := utils.GenerateLicenseKey(s.keyPrefix)
		if err != nil {
			return "", err
		}
		_, err = s.licenses.Get(ctx, key)
		if errors.Is(err, store.ErrNotFound) {
			return key, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", ErrKeyGenerationFailed
}

// GetLicense returns the license with lazy expiry applied to its status.
func (s *AdminService) GetLicense(ctx context.Context, key string) (*models.License, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	license, err := s.licenses.Get(ctx, key)
	if err != nil {
		return nil, notFound(err)
	}
	s.present(license)
	return license, nil
}

func (s *AdminService) ListLicenses(ctx context.Context, filter AdminLicenseFilter) ([]models.License, int64, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	query := store.LicenseFilter{
		Status: filter.Status,
		Offset: filter.Offset(),
		Limit:  filter.Limit,
		Order:  "created_at " + filter.Order,
	}
	if filter.Project != "" {
		project, err := s.projects.GetByName(ctx, filter.Project)
		if errors.Is(err, store.ErrNotFound) {
			return nil, 0, ErrProjectNotFound
		}
		if err != nil {
			return nil, 0, err
		}
		query.ProjectID = &project.ID
	}
	if filter.Owner != "" {
		query.Owner = &filter.Owner
	}

	licenses, total, err := s.licenses.List(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	for i := range licenses {
		s.present(&licenses[i])
	}
	return licenses, total, nil
}

func (s *AdminService) Ban(ctx context.Context, key string) (*models.License, error) {
	return s.mutate(ctx, key, "ban", func(l *models.License) (licensing.Transition, error) {
		return licensing.Ban(l), nil
	})
}

func (s *AdminService) Unban(ctx context.Context, key string) (*models.License, error) {
	return s.mutate(ctx, key, "unban", licensing.Unban)
}

func (s *AdminService) ResetBinding(ctx context.Context, key string) (*models.License, error) {
	return s.mutate(ctx, key, "reset-binding", func(l *models.License) (licensing.Transition, error) {
		return licensing.ResetBinding(l), nil
	})
}

// mutate applies an admin transition, re-reading on a concurrent update.
func (s *AdminService) mutate(ctx context.Context, key, action string, next func(*models.License) (licensing.Transition, error)) (*models.License, error) {
	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		license, err := s.get(ctx, key)
		if err != nil {
			return nil, notFound(err)
		}

		t, err := next(license)
		if err != nil {
			return nil, err
		}

		err = s.apply(ctx, key, license.Version, t)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}

		t.Apply(license)
		license.Version++
		logrus.WithFields(logrus.Fields{
			"license_key": key,
			"action":      action,
			"status":      license.Status,
		}).Info("License updated by admin")
		s.present(license)
		return license, nil
	}
	return nil, fmt.Errorf("%s %s: %w", action, key, store.ErrConflict)
}

// AssignOwner registers a license to an external account. Without force a
// license owned by someone else is left alone.
func (s *AdminService) AssignOwner(ctx context.Context, key string, req *AssignOwnerRequest) (*models.License, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	license, err := s.licenses.Get(ctx, key)
	if err != nil {
		return nil, notFound(err)
	}
	if license.OwnerIdentity != nil && *license.OwnerIdentity != req.OwnerIdentity && !req.Force {
		return nil, ErrOwnerTaken
	}

	if err := s.licenses.SetOwner(ctx, key, req.OwnerIdentity); err != nil {
		return nil, notFound(err)
	}
	return s.GetLicense(ctx, key)
}

// ResetOwnerBindings clears the device binding of every bound license the
// owner holds and returns how many were reset.
func (s *AdminService) ResetOwnerBindings(ctx context.Context, owner string) (int, error) {
	listCtx, cancel := s.bounded(ctx)
	licenses, err := s.licenses.ListByOwner(listCtx, owner)
	cancel()
	if err != nil {
		return 0, err
	}
	if len(licenses) == 0 {
		return 0, ErrNoLicensesForOwner
	}

	reset := 0
	for _, l := range licenses {
		if l.BoundDeviceID == nil {
			continue
		}
		if _, err := s.ResetBinding(ctx, l.Key); err != nil {
			return reset, err
		}
		reset++
	}
	return reset, nil
}

// OwnerLoaders returns the loader line for each license an owner holds. The
// loader embeds only the key; the client runtime adds the device identity and
// the request signature.
func (s *AdminService) OwnerLoaders(ctx context.Context, owner string) ([]LoaderSnippet, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	licenses, err := s.licenses.ListByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	if len(licenses) == 0 {
		return nil, ErrNoLicensesForOwner
	}

	snippets := make([]LoaderSnippet, 0, len(licenses))
	for _, l := range licenses {
		deliveryURL := s.baseURL + "/api/verify?key=" + url.QueryEscape(l.Key)
		snippets = append(snippets, LoaderSnippet{
			LicenseKey: l.Key,
			Project:    l.Project.Name,
			Loader:     s.encoder.LoaderSnippet(deliveryURL),
		})
	}
	return snippets, nil
}

func (s *AdminService) DeleteLicense(ctx context.Context, key string) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	if err := s.licenses.Delete(ctx, key); err != nil {
		return notFound(err)
	}
	logrus.WithField("license_key", key).Info("License deleted")
	return nil
}

func (s *AdminService) AccessLogs(ctx context.Context, key string, params utils.PaginationParams) ([]models.AccessLog, int64, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	if _, err := s.licenses.Get(ctx, key); err != nil {
		return nil, 0, notFound(err)
	}
	return s.logs.ListByLicense(ctx, key, params.Offset(), params.Limit)
}

// bounded applies the configured store timeout to ctx.
func (s *AdminService) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *AdminService) get(ctx context.Context, key string) (*models.License, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	return s.licenses.Get(ctx, key)
}

func (s *AdminService) apply(ctx context.Context, key string, version int64, t licensing.Transition) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	return s.licenses.ApplyTransition(ctx, key, version, t)
}

func (s *AdminService) present(l *models.License) {
	l.Status = licensing.EffectiveStatus(l.Status, l.ExpiresAt, s.now())
}

func notFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrLicenseNotFound
	}
	return err
}
