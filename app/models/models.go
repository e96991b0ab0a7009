package models

// All returns every persisted model in migration order.
func All() []interface{} {
	return []interface{}{
		&Wallet{},
		&Profile{},
		&CreditLedgerEntry{},
		&InviteRedemption{},
		&BillingPlan{},
		&BillingSubscription{},
		&BillingWebhookEvent{},
		&MarketingContact{},
		&GenerationEvent{},
		&OptionCatalogEntry{},
	}
}
