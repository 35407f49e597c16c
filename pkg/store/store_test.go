package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/annex4parser/annex4parser/pkg/models"
)

func TestInit_RunsPostgresSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS regulations").WillReturnResult(sqlmock.NewResult(0, 0))

	s := New(db, "postgres")
	require.NoError(t, s.Init(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertRegulation_ReturnsGeneratedID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	reg := &models.Regulation{
		Name: "Regulation (EU) 2024/1689", CelexID: "32024R1689", Version: "20240613",
		EffectiveDate: now, LastUpdated: now, Status: models.RegulationActive, ContentHash: "abc123",
	}

	mock.ExpectQuery("INSERT INTO regulations").
		WithArgs(reg.Name, reg.CelexID, reg.Version, reg.ExpressionVersion, reg.WorkDate,
			reg.EffectiveDate, reg.SourceURL, reg.LastUpdated, reg.Status, reg.ContentHash).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	s := New(db, "postgres")
	id, err := s.UpsertRegulation(context.Background(), reg)
	require.NoError(t, err)
	require.Equal(t, int64(7), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRegulationByCelexAndHash_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM regulations WHERE celex_id = \\$1 AND content_hash = \\$2").
		WithArgs("32024R1689", "missing-hash").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "celex_id", "version", "expression_version", "work_date",
			"effective_date", "source_url", "last_updated", "status", "content_hash",
		}))

	s := New(db, "postgres")
	_, err = s.GetRegulationByCelexAndHash(context.Background(), "32024R1689", "missing-hash")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertRule_ReturnsGeneratedID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	rule := &models.Rule{
		RegulationID: 7, SectionCode: "Article9", Content: "Risk management system...",
		RiskLevel: models.RiskHigh, Version: "20240613", EffectiveDate: now, LastModified: now,
		OrderIndex: "009", IngestedAt: now,
	}

	mock.ExpectQuery("INSERT INTO rules").
		WithArgs(rule.RegulationID, rule.SectionCode, rule.Title, rule.Content, rule.RiskLevel, rule.Version,
			rule.ParentRuleID, rule.EffectiveDate, rule.LastModified, rule.OrderIndex, rule.IngestedAt).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	s := New(db, "postgres")
	id, err := s.UpsertRule(context.Background(), rule)
	require.NoError(t, err)
	require.Equal(t, int64(42), id)
}

func TestAllRules_ScansEveryRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "regulation_id", "section_code", "title", "content", "risk_level", "version",
		"parent_rule_id", "effective_date", "last_modified", "order_index", "ingested_at",
	}).
		AddRow(1, 7, "Article9", nil, "Risk management", "high", "20240613", nil, now, now, "009", now).
		AddRow(2, 7, "Article9.1", "Subsection title", "High-risk AI systems...", "high", "20240613", 1, now, now, "001", now)

	mock.ExpectQuery("FROM rules").WillReturnRows(rows)

	s := New(db, "postgres")
	rules, err := s.AllRules(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 2)
	require.Nil(t, rules[0].Title)
	require.NotNil(t, rules[1].Title)
	require.Equal(t, "Subsection title", *rules[1].Title)
	require.Equal(t, int64(1), *rules[1].ParentRuleID)
}

func TestLogFetch_IsAppendOnlyInsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	log := &models.RegulationSourceLog{
		SourceID: "eu-ai-act-eli", Status: models.FetchSuccess, FetchedAt: time.Now(),
		ContentHash: "abc123", ResponseTime: 0.42, BytesDownloaded: 1024, FetchMode: models.FetchModeSPARQLItem,
	}

	mock.ExpectExec("INSERT INTO regulation_source_logs").
		WithArgs(log.SourceID, log.Status, log.FetchedAt, log.ContentHash, log.ResponseTime,
			log.ErrorMessage, log.BytesDownloaded, log.FetchMode).
		WillReturnResult(sqlmock.NewResult(1, 1))

	s := New(db, "postgres")
	require.NoError(t, s.LogFetch(context.Background(), log))
}

func TestGetLastSuccessfulHash_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT content_hash FROM regulation_source_logs").
		WithArgs("new-source", models.FetchSuccess).
		WillReturnRows(sqlmock.NewRows([]string{"content_hash"}))

	s := New(db, "postgres")
	_, err = s.GetLastSuccessfulHash(context.Background(), "new-source")
	require.ErrorIs(t, err, ErrNotFound)
}
