// Package ingest implements the ingestion engine (spec.md §4.11): turning a
// freshly fetched regulation text into Regulation/Rule rows, carrying
// mappings forward across versions, and raising change alerts.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/annex4parser/annex4parser/pkg/canonical"
	"github.com/annex4parser/annex4parser/pkg/difflegal"
	"github.com/annex4parser/annex4parser/pkg/models"
	"github.com/annex4parser/annex4parser/pkg/parser"
	"github.com/annex4parser/annex4parser/pkg/sanitize"
	"github.com/annex4parser/annex4parser/pkg/store"
)

// alertSink is the subset of pkg/alertemit.Emitter the engine needs. Scoping
// it to an interface keeps this package independently testable and free of a
// hard dependency on the emitter's transport setup.
type alertSink interface {
	EmitRuleChanged(ctx context.Context, ruleID int64, severity, regulationName, sectionCode, changeType string)
	EmitDocumentOutdated(ctx context.Context, documentID, ruleID int64, sectionCode string)
}

// Engine runs Ingest against a Store and an alertSink.
type Engine struct {
	store  *store.Store
	alerts alertSink
}

// New builds an ingestion Engine.
func New(s *store.Store, alerts alertSink) *Engine {
	return &Engine{store: s, alerts: alerts}
}

var highRiskPrefixes = []string{"AnnexIV", "Article9", "Article10", "Article11", "Article15"}
var mediumRiskPrefixes = []string{"Article12", "Article13", "Article14", "Article17"}
var highRiskKeywords = []string{"shall", "must", "required", "prohibited", "penalt", "liabilit"}

var alertableSeverities = map[difflegal.Severity]bool{
	difflegal.SeverityHigh: true,
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Ingest sanitizes text, canonicalizes its hierarchy, and reconciles it into
// the store, returning the resulting Regulation row.
func (e *Engine) Ingest(ctx context.Context, name, version, text, url, celexID, expressionVersion string, workDate *time.Time) (*models.Regulation, error) {
	cleanText := sanitize.Sanitize(text)
	contentHash := sha256Hex(cleanText)
	now := time.Now().UTC()

	// Step 2: idempotent lookup by (celex_id, version).
	if existing, err := e.store.GetRegulationByCelexAndVersion(ctx, celexID, version); err == nil {
		return existing, nil
	} else if err != store.ErrNotFound {
		return nil, err
	}

	// Step 3: version-alias lookup by (celex_id, content_hash).
	if existing, err := e.store.GetRegulationByCelexAndHash(ctx, celexID, contentHash); err == nil {
		existing.Version = version
		if expressionVersion != "" {
			existing.ExpressionVersion = expressionVersion
		}
		if workDate != nil {
			existing.WorkDate = workDate
		}
		existing.LastUpdated = now
		if _, err := e.store.UpsertRegulation(ctx, existing); err != nil {
			return nil, err
		}
		if err := e.propagateVersionAlias(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	} else if err != store.ErrNotFound {
		return nil, err
	}

	// Step 4: find the previous version of this act, for diffing.
	previous, err := e.store.GetRegulationByCelex(ctx, celexID)
	if err != nil && err != store.ErrNotFound {
		return nil, err
	}

	effectiveDate := now
	if workDate != nil {
		effectiveDate = *workDate
	}

	// Step 5: insert the new Regulation row.
	reg := &models.Regulation{
		Name:              name,
		CelexID:           celexID,
		Version:           version,
		ExpressionVersion: expressionVersion,
		WorkDate:          workDate,
		EffectiveDate:     effectiveDate,
		SourceURL:         url,
		LastUpdated:       now,
		Status:            models.RegulationActive,
		ContentHash:       contentHash,
	}
	regID, err := e.store.UpsertRegulation(ctx, reg)
	if err != nil {
		return nil, err
	}
	reg.ID = regID

	if previous != nil {
		if err := e.store.MarkRegulationSuperseded(ctx, previous.ID); err != nil {
			return nil, err
		}
	}

	// Step 6-7: parse, classify, diff and link each RuleRecord.
	records := parser.Parse(cleanText)
	codeToID := make(map[string]int64, len(records))
	severities := make(map[string]difflegal.Severity, len(records))
	changeTypes := make(map[string]difflegal.ChangeType, len(records))

	for _, rec := range records {
		code := canonical.Canonicalize(rec.SectionCode)

		var prevRule *models.Rule
		if previous != nil {
			if r, err := e.store.GetRuleBySectionCode(ctx, previous.ID, code); err == nil {
				prevRule = r
			} else if err != store.ErrNotFound {
				return nil, err
			}
		}

		risk := classifyRisk(code, rec.Content)
		lastModified := now
		diff := difflegal.Change{ChangeType: difflegal.ChangeNone, Severity: difflegal.SeverityLow}
		if prevRule != nil {
			diff = difflegal.Analyze(prevRule.Content, rec.Content, code)
			if diff.ChangeType == difflegal.ChangeNone && (workDate == nil || !workDate.After(prevRule.LastModified)) {
				lastModified = prevRule.LastModified
			}
		}
		changeTypes[code] = diff.ChangeType
		severities[code] = diff.Severity

		var parentID *int64
		if parentCode, ok := canonical.ParentCode(code); ok {
			if pid, seen := codeToID[parentCode]; seen {
				parentID = &pid
			}
		}

		rule := &models.Rule{
			RegulationID:  regID,
			SectionCode:   code,
			Title:         rec.Title,
			Content:       rec.Content,
			RiskLevel:     risk,
			Version:       version,
			ParentRuleID:  parentID,
			EffectiveDate: effectiveDate,
			LastModified:  lastModified,
			OrderIndex:    orderIndexOf(rec),
			IngestedAt:    now,
		}
		ruleID, err := e.store.UpsertRule(ctx, rule)
		if err != nil {
			return nil, err
		}
		codeToID[code] = ruleID
	}

	// Step 7 (continued): orphan-relink pass for dotted codes inserted
	// before their parent existed in codeToID.
	if err := e.relinkOrphans(ctx, regID, codeToID); err != nil {
		return nil, err
	}

	// Step 9: mapping transfer + document-outdating cascade.
	if previous != nil {
		if err := e.transferMappings(ctx, previous.ID, regID, changeTypes); err != nil {
			return nil, err
		}
	}

	// Step 10: rule-change alerts.
	for code, sev := range severities {
		if alertableSeverities[sev] {
			e.alerts.EmitRuleChanged(ctx, codeToID[code], string(sev), name, code, string(changeTypes[code]))
		}
	}

	return reg, nil
}

// propagateVersionAlias implements step 3's "propagate version and (only
// when empty) effective_date to all Rules of that Regulation".
func (e *Engine) propagateVersionAlias(ctx context.Context, reg *models.Regulation) error {
	rules, err := e.store.ListRulesByRegulation(ctx, reg.ID)
	if err != nil {
		return err
	}
	for i := range rules {
		r := rules[i]
		r.Version = reg.Version
		if r.EffectiveDate.IsZero() && reg.WorkDate != nil {
			r.EffectiveDate = *reg.WorkDate
		}
		if _, err := e.store.UpsertRule(ctx, &r); err != nil {
			return err
		}
	}
	return nil
}

// relinkOrphans scans Rules with a dotted code but no resolved parent link
// and attaches them to the Rule whose section_code is their dotted prefix,
// per spec.md §4.11 step 7's second pass.
func (e *Engine) relinkOrphans(ctx context.Context, regulationID int64, codeToID map[string]int64) error {
	rules, err := e.store.ListRulesByRegulation(ctx, regulationID)
	if err != nil {
		return err
	}
	for _, r := range rules {
		if r.ParentRuleID != nil {
			continue
		}
		parentCode, ok := canonical.ParentCode(r.SectionCode)
		if !ok {
			continue
		}
		parentID, ok := codeToID[parentCode]
		if !ok {
			continue
		}
		if err := e.store.SetRuleParent(ctx, r.ID, parentID); err != nil {
			return err
		}
	}
	return nil
}

// RelinkChildren propagates a section_code rename from parentID down to
// every descendant whose own code is prefixed by oldCode, rewriting each to
// the equivalent suffix under newCode. codeToID is updated in place so a
// caller looping over several renames sees each one's effect. Unrelated
// codes (any that merely share oldCode's numeric stem, e.g. "Article60.1"
// under a rename of "Article6") are left untouched.
func (e *Engine) RelinkChildren(ctx context.Context, parentID int64, oldCode, newCode string, codeToID map[string]int64) error {
	children, err := e.store.ListChildRules(ctx, parentID)
	if err != nil {
		return err
	}

	for _, child := range children {
		childCode := canonical.Canonicalize(child.SectionCode)
		if !strings.HasPrefix(childCode, oldCode+".") {
			continue
		}
		newChildCode := canonical.Canonicalize(newCode + childCode[len(oldCode):])

		delete(codeToID, childCode)
		if err := e.store.UpdateRuleSectionCode(ctx, child.ID, newChildCode); err != nil {
			return err
		}
		codeToID[newChildCode] = child.ID

		if err := e.RelinkChildren(ctx, child.ID, childCode, newChildCode, codeToID); err != nil {
			return err
		}
	}
	return nil
}

// transferMappings implements step 9: for each mapping pointing at a
// previous-version Rule, create a fresh mapping pointing at the new-version
// Rule sharing the same section_code, and outdate the mapped Document when
// that section's content changed.
func (e *Engine) transferMappings(ctx context.Context, previousRegID, newRegID int64, changeTypes map[string]difflegal.ChangeType) error {
	prevRules, err := e.store.ListRulesByRegulation(ctx, previousRegID)
	if err != nil {
		return err
	}

	for _, prevRule := range prevRules {
		mappings, err := e.store.ListMappingsByRule(ctx, prevRule.ID)
		if err != nil {
			return err
		}
		if len(mappings) == 0 {
			continue
		}

		newRule, err := e.store.GetRuleBySectionCode(ctx, newRegID, prevRule.SectionCode)
		if err != nil {
			if err == store.ErrNotFound {
				continue
			}
			return err
		}

		now := time.Now().UTC()
		for _, m := range mappings {
			fresh := &models.DocumentRuleMapping{
				DocumentID:      m.DocumentID,
				RuleID:          newRule.ID,
				ConfidenceScore: m.ConfidenceScore,
				MappedBy:        m.MappedBy,
				MappedAt:        now,
				LastVerified:    now,
			}
			if _, err := e.store.CreateMapping(ctx, fresh); err != nil {
				return err
			}

			if changeTypes[prevRule.SectionCode] != difflegal.ChangeNone {
				if err := e.store.UpdateDocumentStatus(ctx, m.DocumentID, models.StatusOutdated, now); err != nil {
					return err
				}
				e.alerts.EmitDocumentOutdated(ctx, m.DocumentID, newRule.ID, prevRule.SectionCode)
			}
		}
	}
	return nil
}

func classifyRisk(sectionCode, content string) models.RiskLevel {
	for _, p := range highRiskPrefixes {
		if strings.HasPrefix(sectionCode, p) {
			return bumpIfKeyword(models.RiskHigh, content)
		}
	}
	for _, p := range mediumRiskPrefixes {
		if strings.HasPrefix(sectionCode, p) {
			return bumpIfKeyword(models.RiskMedium, content)
		}
	}
	return bumpIfKeyword(models.RiskLow, content)
}

func bumpIfKeyword(base models.RiskLevel, content string) models.RiskLevel {
	lower := strings.ToLower(content)
	for _, kw := range highRiskKeywords {
		if strings.Contains(lower, kw) {
			return models.RiskHigh
		}
	}
	return base
}

func orderIndexOf(rec parser.RuleRecord) string {
	if rec.OrderIndex != nil {
		return *rec.OrderIndex
	}
	return ""
}
