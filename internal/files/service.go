package files

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/wolfman30/clinicdesk/internal/database"
	"github.com/wolfman30/clinicdesk/pkg/logging"
)

// Service keeps the object store and the files table in step.
type Service struct {
	repo    *Repository
	objects *ObjectStore
	logger  *logging.Logger
}

func NewService(repo *Repository, objects *ObjectStore, logger *logging.Logger) *Service {
	if repo == nil {
		panic("files: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{repo: repo, objects: objects, logger: logger}
}

func storageKey(orgID, patientID, id, name string) string {
	return fmt.Sprintf("orgs/%s/patients/%s/%s/%s", orgID, patientID, id, objectName(name))
}

// Upload stores body and records its metadata. The object is removed again
// when the row cannot be written.
func (s *Service) Upload(ctx context.Context, orgID string, up *Upload, body io.Reader) (*File, error) {
	if !s.objects.Enabled() {
		return nil, ErrStorageDisabled
	}
	exists, err := s.repo.PatientExists(ctx, orgID, up.PatientID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrPatientNotFound
	}

	id := uuid.NewString()
	key := storageKey(orgID, up.PatientID, id, up.Name)
	if err := s.objects.Put(ctx, key, up.ContentType, up.Size, body); err != nil {
		return nil, err
	}
	f := &File{
		ID:          id,
		OrgID:       orgID,
		PatientID:   up.PatientID,
		Name:        up.Name,
		ContentType: up.ContentType,
		SizeBytes:   up.Size,
		Category:    up.Category,
		StorageKey:  key,
		UploadedBy:  &up.UploadedBy,
	}
	out, err := s.repo.Insert(ctx, f)
	if err != nil {
		if delErr := s.objects.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			s.logger.Warn("orphaned upload left in bucket", "key", key, "error", delErr)
		}
		return nil, err
	}
	s.logger.Info("file uploaded", "org_id", orgID, "file_id", out.ID, "size_bytes", out.SizeBytes)
	return out, nil
}

func (s *Service) List(ctx context.Context, orgID, patientID, category string, params database.ListParams) ([]*File, int64, error) {
	exists, err := s.repo.PatientExists(ctx, orgID, patientID)
	if err != nil {
		return nil, 0, err
	}
	if !exists {
		return nil, 0, ErrPatientNotFound
	}
	return s.repo.ListForPatient(ctx, orgID, patientID, category, params)
}

// Open returns the metadata and a reader over the stored object. The caller
// closes the reader.
func (s *Service) Open(ctx context.Context, orgID, id string) (*File, io.ReadCloser, error) {
	if !s.objects.Enabled() {
		return nil, nil, ErrStorageDisabled
	}
	f, err := s.repo.Get(ctx, orgID, id)
	if err != nil {
		return nil, nil, err
	}
	body, err := s.objects.Open(ctx, f.StorageKey)
	if err != nil {
		return nil, nil, err
	}
	return f, body, nil
}

// Delete removes the row first; a failed object delete is logged and left
// for bucket lifecycle cleanup.
func (s *Service) Delete(ctx context.Context, orgID, id string) error {
	f, err := s.repo.Delete(ctx, orgID, id)
	if err != nil {
		return err
	}
	if !s.objects.Enabled() {
		return nil
	}
	if err := s.objects.Delete(ctx, f.StorageKey); err != nil {
		s.logger.Warn("file object not removed", "org_id", orgID, "file_id", id, "error", err)
	}
	return nil
}
