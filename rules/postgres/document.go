package postgres

import (
	"time"

	"github.com/fluxgate/fluxgate/rules"
)

// document is the stored rule schema. It matches the control plane wire
// format: band windows travel as whole seconds, enums as strings. The schema
// carries no version marker; changes require a coordinated redeploy.
type document struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Enabled       bool           `json:"enabled"`
	Scope         string         `json:"scope"`
	KeyStrategyID string         `json:"keyStrategyId,omitempty"`
	OnLimitExceed string         `json:"onLimitExceedPolicy"`
	Bands         []bandDocument `json:"bands"`
	RuleSetID     string         `json:"ruleSetId"`
	Priority      int            `json:"priority"`
	Attributes    map[string]any `json:"attributes,omitempty"`
}

type bandDocument struct {
	WindowSeconds int64  `json:"windowSeconds"`
	Capacity      int64  `json:"capacity"`
	Label         string `json:"label,omitempty"`
}

func toDocument(rule rules.Rule) document {
	doc := document{
		ID:            rule.ID,
		Name:          rule.Name,
		Enabled:       rule.Enabled,
		Scope:         string(rule.Scope),
		KeyStrategyID: rule.KeyStrategyID,
		OnLimitExceed: string(rule.OnLimitExceed),
		Bands:         make([]bandDocument, 0, len(rule.Bands)),
		RuleSetID:     rule.RuleSetID,
		Priority:      rule.Priority,
		Attributes:    rule.Attributes,
	}
	for _, band := range rule.Bands {
		doc.Bands = append(doc.Bands, bandDocument{
			WindowSeconds: int64(band.Window / time.Second),
			Capacity:      band.Capacity,
			Label:         band.Label,
		})
	}
	return doc
}

func fromDocument(doc document) rules.Rule {
	rule := rules.Rule{
		ID:            doc.ID,
		Name:          doc.Name,
		Enabled:       doc.Enabled,
		Scope:         rules.Scope(doc.Scope),
		KeyStrategyID: doc.KeyStrategyID,
		OnLimitExceed: rules.OverLimitPolicy(doc.OnLimitExceed),
		Bands:         make([]rules.Band, 0, len(doc.Bands)),
		RuleSetID:     doc.RuleSetID,
		Priority:      doc.Priority,
		Attributes:    doc.Attributes,
	}
	for _, band := range doc.Bands {
		rule.Bands = append(rule.Bands, rules.Band{
			Window:   time.Duration(band.WindowSeconds) * time.Second,
			Capacity: band.Capacity,
			Label:    band.Label,
		})
	}
	return rule
}
