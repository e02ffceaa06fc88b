package core

import (
	"context"
	"fmt"
	"io"

	"dosecore/internal/infra/docvault"
	"dosecore/pkg/domain"
)

// WithDocumentVault wires a release-document vault into the service.
func WithDocumentVault(vault docvault.Vault) Option {
	return func(s *Service) {
		if vault != nil {
			s.docs = vault
		}
	}
}

func releaseDocumentKey(batchID, name string) string {
	return fmt.Sprintf("batches/%s/%s", batchID, name)
}

// ArchiveReleaseDocument stores a release document (certificate of analysis,
// release packet) for a batch. The batch must be RELEASED; the vault refuses
// duplicate names because release evidence is write-once.
func (s *Service) ArchiveReleaseDocument(ctx context.Context, batchID, name, contentType string, r io.Reader) (docvault.Document, error) {
	var doc docvault.Document
	err := s.instrument(ctx, "archive_release_document", func(ctx context.Context) error {
		if s.docs == nil {
			return fmt.Errorf("no document vault configured")
		}
		if name == "" {
			return domain.ValidationError{Field: "name", Reason: "must be set"}
		}
		batch, ok := s.store.GetBatch(batchID)
		if !ok {
			return domain.ErrNotFound{Entity: EntityBatch, ID: batchID}
		}
		if batch.Status != domain.BatchStatusReleased {
			return domain.GuardViolation{
				Entity: Reference{Kind: KindBatch, ID: batchID},
				Reason: "batch is " + string(batch.Status) + ", release documents require released",
			}
		}
		var vaultErr error
		doc, vaultErr = s.docs.Put(ctx, releaseDocumentKey(batchID, name), r, docvault.PutOptions{
			ContentType: contentType,
			Metadata:    map[string]string{"batch_id": batchID},
		})
		return vaultErr
	})
	if err != nil {
		return docvault.Document{}, err
	}
	return doc, nil
}

// ReleaseDocuments lists the archived documents for a batch.
func (s *Service) ReleaseDocuments(ctx context.Context, batchID string) ([]docvault.Document, error) {
	if s.docs == nil {
		return nil, fmt.Errorf("no document vault configured")
	}
	return s.docs.List(ctx, releaseDocumentKey(batchID, ""))
}
