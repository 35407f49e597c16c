package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/annex4parser/annex4parser/pkg/models"
	"github.com/annex4parser/annex4parser/pkg/store"
)

type fakeAlerts struct {
	ruleChanged      []string
	documentOutdated []int64
}

func (f *fakeAlerts) EmitRuleChanged(ctx context.Context, ruleID int64, severity, regulationName, sectionCode, changeType string) {
	f.ruleChanged = append(f.ruleChanged, sectionCode)
}

func (f *fakeAlerts) EmitDocumentOutdated(ctx context.Context, documentID, ruleID int64, sectionCode string) {
	f.documentOutdated = append(f.documentOutdated, documentID)
}

func TestIngest_NewRegulationNoPrevious(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.MatchExpectationsInOrder(false)

	emptyRegulationRows := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{
			"id", "name", "celex_id", "version", "expression_version", "work_date",
			"effective_date", "source_url", "last_updated", "status", "content_hash",
		})
	}

	mock.ExpectQuery("FROM regulations WHERE celex_id = \\$1 AND version = \\$2").
		WillReturnRows(emptyRegulationRows())
	mock.ExpectQuery("FROM regulations WHERE celex_id = \\$1 AND content_hash = \\$2").
		WillReturnRows(emptyRegulationRows())
	mock.ExpectQuery("FROM regulations WHERE celex_id = \\$1 ORDER BY last_updated").
		WillReturnRows(emptyRegulationRows())

	mock.ExpectQuery("INSERT INTO regulations").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	mock.ExpectQuery("INSERT INTO rules").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10))
	mock.ExpectQuery("INSERT INTO rules").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))

	ruleRows := sqlmock.NewRows([]string{
		"id", "regulation_id", "section_code", "title", "content", "risk_level", "version",
		"parent_rule_id", "effective_date", "last_modified", "order_index", "ingested_at",
	}).
		AddRow(10, 1, "Article9", nil, "Risk management system", "high", "20240613", nil, time.Now(), time.Now(), "009", time.Now()).
		AddRow(11, 1, "Article9.1", nil, "A risk management system shall be established.", "high", "20240613", 10, time.Now(), time.Now(), "001", time.Now())
	mock.ExpectQuery("FROM rules WHERE regulation_id = \\$1").WillReturnRows(ruleRows)

	s := store.New(db, "postgres")
	alerts := &fakeAlerts{}
	engine := New(s, alerts)

	raw := "Article 9\nRisk management system\n1. A risk management system shall be established."
	reg, err := engine.Ingest(context.Background(), "Regulation (EU) 2024/1689", "20240613", raw,
		"https://eur-lex.europa.eu/eli/reg/2024/1689", "32024R1689", "", nil)
	require.NoError(t, err)
	require.Equal(t, int64(1), reg.ID)
	require.Equal(t, models.RegulationActive, reg.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassifyRisk_AnnexIVIsHigh(t *testing.T) {
	require.Equal(t, models.RiskHigh, classifyRisk("AnnexIV.2", "some unremarkable text"))
}

func TestClassifyRisk_KeywordBumpsToHigh(t *testing.T) {
	require.Equal(t, models.RiskHigh, classifyRisk("Article50", "Providers shall ensure transparency."))
}

func TestClassifyRisk_DefaultsToLow(t *testing.T) {
	require.Equal(t, models.RiskLow, classifyRisk("Article50", "General descriptive text with no obligations."))
}

func TestRelinkChildren_RewritesMatchingDescendant(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	childRows := sqlmock.NewRows([]string{
		"id", "regulation_id", "section_code", "title", "content", "risk_level", "version",
		"parent_rule_id", "effective_date", "last_modified", "order_index", "ingested_at",
	}).AddRow(2, 1, "Article6.1", nil, "", "low", "1", 1, now, now, "001", now)
	mock.ExpectQuery("FROM rules WHERE parent_rule_id = \\$1").WillReturnRows(childRows)
	mock.ExpectExec("UPDATE rules SET section_code").
		WithArgs("Article7.1", int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM rules WHERE parent_rule_id = \\$1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "regulation_id", "section_code", "title", "content", "risk_level", "version",
			"parent_rule_id", "effective_date", "last_modified", "order_index", "ingested_at",
		}))

	s := store.New(db, "postgres")
	engine := New(s, &fakeAlerts{})

	codeToID := map[string]int64{"Article6.1": 2}
	err = engine.RelinkChildren(context.Background(), 1, "Article6", "Article7", codeToID)
	require.NoError(t, err)
	require.Equal(t, int64(2), codeToID["Article7.1"])
	require.NotContains(t, codeToID, "Article6.1")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRelinkChildren_SkipsUnrelatedNumericStem(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	childRows := sqlmock.NewRows([]string{
		"id", "regulation_id", "section_code", "title", "content", "risk_level", "version",
		"parent_rule_id", "effective_date", "last_modified", "order_index", "ingested_at",
	}).AddRow(3, 1, "Article60.1", nil, "", "low", "1", 1, now, now, "001", now)
	mock.ExpectQuery("FROM rules WHERE parent_rule_id = \\$1").WillReturnRows(childRows)

	s := store.New(db, "postgres")
	engine := New(s, &fakeAlerts{})

	codeToID := map[string]int64{"Article60.1": 3}
	err = engine.RelinkChildren(context.Background(), 1, "Article6", "Article7", codeToID)
	require.NoError(t, err)
	require.Equal(t, int64(3), codeToID["Article60.1"])
	require.NoError(t, mock.ExpectationsWereMet())
}
