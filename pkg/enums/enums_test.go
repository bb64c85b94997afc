package enums

import "testing"

func TestParseSaleKind(t *testing.T) {
	kind, err := ParseSaleKind("dealer_supply")
	if err != nil || kind != SaleKindDealerSupply {
		t.Fatalf("unexpected parse result %q %v", kind, err)
	}
	if _, err := ParseSaleKind("wholesale"); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestReconciliationReasonValidity(t *testing.T) {
	for _, reason := range validReconciliationReasons {
		if !reason.IsValid() {
			t.Fatalf("expected %q to be valid", reason)
		}
	}
	if ReconciliationReason("timeout").IsValid() {
		t.Fatalf("unexpected valid reason")
	}
	if _, err := ParseReconciliationReason("conflict"); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestParseActorRole(t *testing.T) {
	if role, err := ParseActorRole("admin"); err != nil || role != ActorRoleAdmin {
		t.Fatalf("unexpected parse result %q %v", role, err)
	}
	if _, err := ParseActorRole("root"); err == nil {
		t.Fatalf("expected error for unknown role")
	}
}

func TestOutboxEventTypes(t *testing.T) {
	if !EventSaleCreated.IsValid() || !AggregateSale.IsValid() {
		t.Fatalf("expected sale event and aggregate to be valid")
	}
	if _, err := ParseOutboxEventType("order_created"); err == nil {
		t.Fatalf("expected error for foreign event type")
	}
}
