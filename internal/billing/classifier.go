// Package billing maps messages to provider conversation tiers and prices them.
package billing

import (
	"strings"

	"github.com/digkill/engagebot/internal/models"
)

// RateTable is deploy-time pricing data. Version identifies the table in logs and reports.
type RateTable struct {
	Version   string
	Rates     map[models.ConversationType]models.Money
	Surcharge models.Money
}

func DefaultRateTable() RateTable {
	return RateTable{
		Version: "2024-default",
		Rates: map[models.ConversationType]models.Money{
			models.ConversationUtility:        300,
			models.ConversationAuthentication: 378,
			models.ConversationMarketing:      691,
			models.ConversationService:        0,
		},
		Surcharge: 50,
	}
}

var kindTiers = map[models.MessageKind]models.ConversationType{
	models.MessageMenu:     models.ConversationUtility,
	models.MessageReview:   models.ConversationService,
	models.MessageCampaign: models.ConversationMarketing,
	models.MessageInbound:  models.ConversationService,
}

// Classifier is safe for concurrent use; it never mutates its table.
type Classifier struct {
	table RateTable
}

func NewClassifier(table RateTable) *Classifier {
	rates := make(map[models.ConversationType]models.Money, len(table.Rates))
	for tier, rate := range table.Rates {
		if rate < 0 {
			rate = 0
		}
		rates[tier] = rate
	}
	if table.Surcharge < 0 {
		table.Surcharge = 0
	}
	table.Rates = rates
	return &Classifier{table: table}
}

func (c *Classifier) Version() string {
	return c.table.Version
}

// Classify prefers an explicit template category and falls back to the message kind.
// Unknown inputs resolve to service, the cheapest tier.
func (c *Classifier) Classify(explicitCategory string, kind models.MessageKind) models.ConversationType {
	if tier, ok := parseTier(explicitCategory); ok {
		return tier
	}
	if tier, ok := kindTiers[kind]; ok {
		return tier
	}
	return models.ConversationService
}

// Rate is the bare tier rate without surcharge.
func (c *Classifier) Rate(tier models.ConversationType) models.Money {
	return c.table.Rates[tier]
}

func (c *Classifier) Surcharge() models.Money {
	return c.table.Surcharge
}

// Price is what one message of tier costs: tier rate plus surcharge.
func (c *Classifier) Price(tier models.ConversationType) models.Money {
	return c.Rate(tier) + c.table.Surcharge
}

func parseTier(raw string) (models.ConversationType, bool) {
	tier := models.ConversationType(strings.ToLower(strings.TrimSpace(raw)))
	switch tier {
	case models.ConversationUtility, models.ConversationAuthentication, models.ConversationMarketing, models.ConversationService:
		return tier, true
	}
	return "", false
}
