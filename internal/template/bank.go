package template

// Pre-baked templates for bank mode. Fingerprints are versioned by hand and
// trusted as-is; the builder never recomputes them.
var bankTemplates = []PlanTemplate{
	{
		Fingerprint: "bank-sleep-v1-3f2a9c01",
		Title:       "Retrouver un sommeil régulier",
		Theme:       "sleep",
		Phases: []TemplatePhase{
			{
				ID:    "p1",
				Title: "Poser le cadre",
				Items: []TemplateItem{
					{ID: "i1", Title: "Se coucher avant 23h30", Kind: "habit", Tracking: "boolean", TargetCount: 5, ScheduledDays: []string{"mon", "tue", "wed", "thu", "fri"}},
					{ID: "i2", Title: "Écrans éteints 30 min avant", Kind: "habit", Tracking: "boolean", TargetCount: 5, ScheduledDays: []string{"mon", "tue", "wed", "thu", "fri"}},
				},
			},
			{
				ID:    "p2",
				Title: "Consolider",
				Items: []TemplateItem{
					{ID: "i3", Title: "Réveil à heure fixe", Kind: "habit", Tracking: "boolean", TargetCount: 7, ScheduledDays: []string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}},
					{ID: "i4", Title: "Acheter des rideaux occultants", Kind: "one_shot", Tracking: "boolean", TargetCount: 1},
				},
			},
		},
		VitalSignal: &TemplateItem{ID: "v1", Title: "Niveau de fatigue au réveil", Kind: "habit", Tracking: "counter", TargetCount: 7},
	},
	{
		Fingerprint: "bank-energy-v1-8b44d7e2",
		Title:       "Plus d'énergie au quotidien",
		Theme:       "energy",
		Phases: []TemplatePhase{
			{
				ID:    "p1",
				Title: "Bouger un peu",
				Items: []TemplateItem{
					{ID: "i1", Title: "Marcher 20 minutes", Kind: "habit", Tracking: "counter", TargetCount: 3, ScheduledDays: []string{"mon", "wed", "fri"}},
					{ID: "i2", Title: "Pause sans écran le midi", Kind: "habit", Tracking: "boolean", TargetCount: 5, ScheduledDays: []string{"mon", "tue", "wed", "thu", "fri"}},
					{ID: "i3", Title: "Boire un verre d'eau au réveil", Kind: "habit", Tracking: "boolean", TargetCount: 7, ScheduledDays: []string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}},
				},
			},
			{
				ID:    "p2",
				Title: "Installer la routine",
				Items: []TemplateItem{
					{ID: "i4", Title: "Préparer ses affaires la veille", Kind: "habit", Tracking: "boolean", TargetCount: 5, ScheduledDays: []string{"sun", "mon", "tue", "wed", "thu"}},
					{ID: "i5", Title: "Tester un cours de sport", Kind: "one_shot", Tracking: "boolean", TargetCount: 1},
				},
			},
		},
	},
	{
		Fingerprint: "bank-stress-v1-c19e5ab4",
		Title:       "Alléger la charge mentale",
		Theme:       "stress",
		Phases: []TemplatePhase{
			{
				ID:    "p1",
				Title: "Décharger",
				Items: []TemplateItem{
					{ID: "i1", Title: "Noter 3 choses à faire demain", Kind: "habit", Tracking: "boolean", TargetCount: 5, ScheduledDays: []string{"mon", "tue", "wed", "thu", "fri"}},
					{ID: "i2", Title: "Respiration 5 minutes", Kind: "habit", Tracking: "counter", TargetCount: 4, ScheduledDays: []string{"mon", "tue", "thu", "fri"}},
				},
			},
			{
				ID:    "p2",
				Title: "Ancrer",
				Items: []TemplateItem{
					{ID: "i3", Title: "Une soirée sans travail", Kind: "habit", Tracking: "boolean", TargetCount: 2, ScheduledDays: []string{"wed", "sat"}},
					{ID: "i4", Title: "En parler à un proche", Kind: "one_shot", Tracking: "boolean", TargetCount: 1},
				},
			},
		},
		FrameworkItems: []TemplateItem{
			{ID: "f1", Title: "Identifier mes déclencheurs", Kind: "one_shot", Tracking: "boolean", TargetCount: 1},
		},
	},
}

// Bank returns the pre-baked template set.
func Bank() []PlanTemplate {
	out := make([]PlanTemplate, len(bankTemplates))
	copy(out, bankTemplates)
	return out
}
