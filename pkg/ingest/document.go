package ingest

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/annex4parser/annex4parser/pkg/extract"
	"github.com/annex4parser/annex4parser/pkg/mapper/combined"
	"github.com/annex4parser/annex4parser/pkg/mapper/keyword"
	"github.com/annex4parser/annex4parser/pkg/mapper/semantic"
	"github.com/annex4parser/annex4parser/pkg/models"
)

// MappingThreshold is the minimum fused keyword+semantic score that writes a
// DocumentRuleMapping on upload (spec.md §4.9's worked example: "Combined
// scores satisfy score ≥ 0.30 ... both mappings written").
const MappingThreshold = 0.30

// blobStore is the subset of pkg/blobstore.Store the document-upload path
// needs: content-addressed persistence of the raw uploaded body.
type blobStore interface {
	Put(ctx context.Context, data []byte) (string, error)
}

// IngestDocument implements the Document mapper's upload trigger (spec.md
// §3: "The Document mapper runs on a separate trigger (document upload) and
// writes DocumentRuleMapping rows consumed by the ingestion engine"). It
// persists the raw body to blobs, extracts its text, creates the Document
// row, and maps it against every known Rule via the keyword and semantic
// mappers fused by pkg/mapper/combined.
func (e *Engine) IngestDocument(ctx context.Context, blobs blobStore, storageTier string, kw *keyword.Mapper,
	filename string, body []byte, aiSystemName string, docType models.DocumentType) (*models.Document, error) {
	key, err := blobs.Put(ctx, body)
	if err != nil {
		return nil, err
	}

	text, err := extractText(filename, body)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	doc := &models.Document{
		Filename:         filename,
		FilePath:         key,
		ExtractedText:    text,
		AISystemName:     aiSystemName,
		DocumentType:     docType,
		ComplianceStatus: models.StatusUnderReview,
		StorageTier:      storageTier,
		CreatedAt:        now,
		LastModified:     now,
	}
	docID, err := e.store.CreateDocument(ctx, doc)
	if err != nil {
		return nil, err
	}
	doc.ID = docID

	if err := e.mapDocument(ctx, doc, kw); err != nil {
		return doc, err
	}
	return doc, nil
}

// fixedRules adapts an already-fetched rule slice to semantic.RuleSource, so
// mapDocument queries the store for all rules exactly once.
type fixedRules []models.Rule

func (f fixedRules) AllRules(ctx context.Context) ([]models.Rule, error) {
	return f, nil
}

// mapDocument fuses keyword and semantic hits against every known Rule and
// writes a DocumentRuleMapping for each section_code clearing
// MappingThreshold (spec.md §4.9).
func (e *Engine) mapDocument(ctx context.Context, doc *models.Document, kw *keyword.Mapper) error {
	rules, err := e.store.AllRules(ctx)
	if err != nil {
		return err
	}

	keywordHits := kw.Match(doc.ExtractedText)
	semanticHits, err := semantic.Match(ctx, fixedRules(rules), doc.ExtractedText, semantic.DefaultThreshold)
	if err != nil {
		return err
	}
	fused := combined.Fuse(keywordHits, semanticHits)

	ruleIDBySection := make(map[string]int64, len(rules))
	for _, r := range rules {
		if _, seen := ruleIDBySection[r.SectionCode]; !seen {
			ruleIDBySection[r.SectionCode] = r.ID
		}
	}

	now := time.Now().UTC()
	for code, score := range fused {
		if score < MappingThreshold {
			continue
		}
		ruleID, ok := ruleIDBySection[code]
		if !ok {
			continue
		}
		mapping := &models.DocumentRuleMapping{
			DocumentID:      doc.ID,
			RuleID:          ruleID,
			ConfidenceScore: score,
			MappedBy:        models.MappedByAuto,
			MappedAt:        now,
			LastVerified:    now,
		}
		if _, err := e.store.CreateMapping(ctx, mapping); err != nil {
			return err
		}
	}
	return nil
}

// extractText dispatches on filename's extension: HTML and PDF bodies go
// through pkg/extract; anything else is treated as already-plain text.
func extractText(filename string, body []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".html", ".htm":
		return extract.NewHTML().Extract(body)
	case ".pdf":
		return extract.NewPDF().Extract(body)
	default:
		return string(body), nil
	}
}
