package models

import "testing"

func TestLabelFallback(t *testing.T) {
	tests := []struct {
		name   string
		labels map[string]string
		lang   string
		want   string
	}{
		{"exact language", map[string]string{"no": "Eksempel", "en": "Example"}, "no", "Eksempel"},
		{"english fallback", map[string]string{"en": "Example"}, "no", "Example"},
		{"any fallback", map[string]string{"de": "Beispiel"}, "no", "Beispiel"},
		{"empty labels", nil, "no", ""},
		{"empty value skipped", map[string]string{"no": "", "en": "Example"}, "no", "Example"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Entity{Labels: tt.labels}
			if got := e.Label(tt.lang); got != tt.want {
				t.Errorf("Label(%q) = %q, want %q", tt.lang, got, tt.want)
			}
		})
	}
}

func TestPendingIDs(t *testing.T) {
	id := NewPendingID()
	if !IsPendingID(id) {
		t.Errorf("NewPendingID() = %q, expected a pending id", id)
	}
	if IsPendingID("Q42") {
		t.Error("IsPendingID(\"Q42\") = true, want false")
	}
	if IsPendingID("") {
		t.Error("IsPendingID(\"\") = true, want false")
	}

	other := NewPendingID()
	if id == other {
		t.Error("two pending ids must not collide")
	}
}

func TestClaimAccessors(t *testing.T) {
	e := &Entity{ID: "Q1"}
	if e.HasClaim(PropGenre) {
		t.Error("HasClaim on empty entity = true")
	}

	e.AddClaim(PropHasPart, Claim{Kind: ClaimEntity, EntityID: "Q2"})
	e.AddClaim(PropHasPart, Claim{Kind: ClaimEntity, EntityID: "Q3"})
	e.AddClaim(PropCommonsCategory, Claim{Kind: ClaimString, Text: "Example"})

	ids := e.ClaimEntityIDs(PropHasPart)
	if len(ids) != 2 || ids[0] != "Q2" || ids[1] != "Q3" {
		t.Errorf("ClaimEntityIDs = %v, want [Q2 Q3]", ids)
	}
	if got := e.ClaimString(PropCommonsCategory); got != "Example" {
		t.Errorf("ClaimString = %q, want %q", got, "Example")
	}
	if got := e.ClaimString(PropHasPart); got != "" {
		t.Errorf("ClaimString on entity-valued property = %q, want empty", got)
	}
}

func TestUpdateEntityActionKeys(t *testing.T) {
	first := NewUpdateEntityAction("Q1", []PropertyChange{
		{Property: PropImage, Claim: Claim{Kind: ClaimString, Text: "a.jpg"}},
	})
	second := NewUpdateEntityAction("Q1", []PropertyChange{
		{Property: PropImage, Claim: Claim{Kind: ClaimString, Text: "b.jpg"}},
	})
	if first.Key() == second.Key() {
		t.Errorf("competing updates share key %q", first.Key())
	}

	same := NewUpdateEntityAction("Q1", []PropertyChange{
		{Property: PropImage, Claim: Claim{Kind: ClaimString, Text: "a.jpg"}},
	})
	if first.Key() != same.Key() {
		t.Errorf("identical updates have keys %q and %q", first.Key(), same.Key())
	}
}

func TestPlanFindAndCounts(t *testing.T) {
	plan := Plan{
		Categories: []*CategoryAction{
			{ActionState: ActionState{Status: StatusPending}, Name: "A"},
			{ActionState: ActionState{Status: StatusReady}, Name: "B"},
		},
		Images: []*ImageAction{
			{ActionState: ActionState{Status: StatusCompleted}, ImageID: "img-1"},
			{ActionState: ActionState{Status: StatusError}, ImageID: "img-2"},
		},
	}

	if got := plan.Find(KindCategory, "A"); got == nil || got.Key() != "A" {
		t.Fatalf("Find(category, A) = %v", got)
	}
	if got := plan.Find(KindImage, "A"); got != nil {
		t.Error("Find must not match across kinds")
	}

	counts := plan.Counts()
	if counts.Total != 4 || counts.Pending != 1 || counts.Completed != 1 || counts.Errors != 1 {
		t.Errorf("Counts() = %+v", counts)
	}
}

// Plan is handed around by value, so its read methods must work on values
// returned straight from an accessor, not only on addressable variables.
func TestPlanMethodsOnReturnedValue(t *testing.T) {
	makePlan := func() Plan {
		return Plan{Categories: []*CategoryAction{
			{ActionState: ActionState{Status: StatusPending}, Name: "A"},
		}}
	}

	if got := makePlan().Find(KindCategory, "A"); got == nil {
		t.Fatal("Find on a returned plan value = nil")
	}
	if got := makePlan().Counts(); got.Pending != 1 {
		t.Errorf("Counts on a returned plan value = %+v", got)
	}
	if got := len(makePlan().All()); got != 1 {
		t.Errorf("All on a returned plan value has %d actions", got)
	}
}
