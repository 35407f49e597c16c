package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/annex4parser/annex4parser/pkg/mapper/keyword"
	"github.com/annex4parser/annex4parser/pkg/models"
	"github.com/annex4parser/annex4parser/pkg/store"
)

type fakeBlobStore struct {
	key string
}

func (f *fakeBlobStore) Put(ctx context.Context, data []byte) (string, error) {
	return f.key, nil
}

func TestIngestDocument_WritesMappingAboveThreshold(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("INSERT INTO documents").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))
	mock.ExpectQuery("FROM rules").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "regulation_id", "section_code", "title", "content", "risk_level", "version",
			"parent_rule_id", "effective_date", "last_modified", "order_index", "ingested_at",
		}).AddRow(7, 1, "Article9", "Risk Management", "The provider shall establish a risk management system.", "high", "1",
			nil, time.Now(), time.Now(), "", time.Now()))
	mock.ExpectQuery("INSERT INTO document_rule_mappings").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	s := store.New(db, "postgres")
	e := New(s, &fakeAlerts{})
	blobs := &fakeBlobStore{key: "sha256:deadbeef"}
	kw := keyword.LoadDefault()

	doc, err := e.IngestDocument(context.Background(), blobs, "local", kw,
		"system-card.txt", []byte("Our AI system implements a risk management system for users."),
		"acme-vision", models.DocumentRiskAssessment)
	require.NoError(t, err)
	require.Equal(t, int64(42), doc.ID)
	require.Equal(t, "sha256:deadbeef", doc.FilePath)
	require.Equal(t, "local", doc.StorageTier)
	require.Equal(t, models.StatusUnderReview, doc.ComplianceStatus)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestDocument_SkipsMappingBelowThreshold(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("INSERT INTO documents").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery("FROM rules").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "regulation_id", "section_code", "title", "content", "risk_level", "version",
			"parent_rule_id", "effective_date", "last_modified", "order_index", "ingested_at",
		}).AddRow(7, 1, "Article13", "Transparency", "High-risk AI systems shall be designed to ensure transparency.", "medium", "1",
			nil, time.Now(), time.Now(), "", time.Now()))

	s := store.New(db, "postgres")
	e := New(s, &fakeAlerts{})
	blobs := &fakeBlobStore{key: "sha256:cafebabe"}
	kw := keyword.LoadDefault()

	doc, err := e.IngestDocument(context.Background(), blobs, "s3", kw,
		"unrelated.txt", []byte("The quick brown fox jumps over the lazy dog."),
		"acme-vision", models.DocumentIncidentLog)
	require.NoError(t, err)
	require.Equal(t, "s3", doc.StorageTier)

	require.NoError(t, mock.ExpectationsWereMet())
}
