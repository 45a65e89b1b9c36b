package shipment

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogIsValid(t *testing.T) {
	cat := DefaultCatalog()
	require.NoError(t, cat.Validate())

	mitigating := map[Category]Choice{}
	for _, c := range Categories {
		for _, opt := range cat.Options(c) {
			if opt.Effect == EffectMitigate {
				mitigating[c] = opt.Choice
			}
		}
	}
	assert.Equal(t, map[Category]Choice{
		CategoryOrder:     ChoiceUpdateOrder,
		CategoryPayment:   ChoiceSendToTechSupport,
		CategoryWarehouse: ChoiceAllocateDifferent,
		CategoryTransport: ChoiceRerouteShipment,
		CategoryCustoms:   ChoicePayExpeditedFee,
		CategoryDelivery:  ChoiceRedirectToPickup,
	}, mitigating)
}

func TestCatalogOptionsKeepOrder(t *testing.T) {
	opts := DefaultCatalog().Options(CategoryTransport)
	require.Len(t, opts, 4)
	got := []Choice{opts[0].Choice, opts[1].Choice, opts[2].Choice, opts[3].Choice}
	assert.Equal(t, []Choice{ChoiceWaitForResolution, ChoiceRerouteShipment, ChoiceExpediteService, ChoiceCancelOrder}, got)
	assert.True(t, decimal.NewFromInt(1200).Equal(opts[2].Cost))
	assert.Equal(t, 24.0, opts[2].TimeImpactHours)
}

func TestCatalogLookupIsScopedToCategory(t *testing.T) {
	cat := DefaultCatalog()
	_, ok := cat.Lookup(CategoryWarehouse, ChoiceRerouteShipment)
	assert.False(t, ok)

	opt, ok := cat.Lookup(CategoryPayment, ChoiceCancelOrder)
	require.True(t, ok)
	assert.Equal(t, EffectCancel, opt.Effect)
}

func TestCatalogOverride(t *testing.T) {
	cat := DefaultCatalog()
	text := "Reroute through the north corridor"
	cost := decimal.NewFromInt(650)
	require.NoError(t, cat.Override(CategoryTransport, ChoiceRerouteShipment, OptionOverride{Text: &text, Cost: &cost}))

	opt, _ := cat.Lookup(CategoryTransport, ChoiceRerouteShipment)
	assert.Equal(t, text, opt.Text)
	assert.True(t, cost.Equal(opt.Cost))
	assert.Equal(t, -12.0, opt.TimeImpactHours)

	other := DefaultCatalog()
	orig, _ := other.Lookup(CategoryTransport, ChoiceRerouteShipment)
	assert.True(t, decimal.NewFromInt(500).Equal(orig.Cost))

	negative := decimal.NewFromInt(-1)
	assert.Error(t, cat.Override(CategoryTransport, ChoiceRerouteShipment, OptionOverride{Cost: &negative}))
	assert.Error(t, cat.Override(CategoryOrder, ChoiceRerouteShipment, OptionOverride{Text: &text}))
}

func TestOptionsAreCopies(t *testing.T) {
	cat := DefaultCatalog()
	opts := cat.Options(CategoryOrder)
	opts[0].Text = "mutated"
	again := cat.Options(CategoryOrder)
	assert.Equal(t, "Update order with available items", again[0].Text)
}

func TestLookupReason(t *testing.T) {
	r, ok := LookupReason(CategoryPayment, "")
	require.True(t, ok)
	assert.Equal(t, "BANK_SERVER_DOWN", r.Code)

	r, ok = LookupReason(CategoryCustoms, "INSPECTION_REQUIRED")
	require.True(t, ok)
	assert.Equal(t, 4*day, r.ETAImpact)

	_, ok = LookupReason(CategoryCustoms, "NO_STOCK")
	assert.False(t, ok)
	assert.Len(t, Reasons(CategoryPayment), 7)

	assert.Equal(t, "Rerouting shipment to alternate route.", FollowUp(CategoryTransport, ChoiceRerouteShipment))
	assert.Empty(t, FollowUp(CategoryTransport, ChoiceCancelOrder))
}
