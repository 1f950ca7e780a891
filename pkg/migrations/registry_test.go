package migrations

import "testing"

func fullConfig() FileConfig {
	return FileConfig{Migrations: []Config{
		{Name: AccountCountDataAttribute, BlockHeight: 100},
		{Name: Block9400, BlockHeight: 9400},
		{Name: MemoMigration, BlockHeight: 9400},
		{Name: DummyHotfix, BlockHeight: 0, Disabled: true},
		{Name: TokenMigration, BlockHeight: 500},
	}}
}

func TestLoad_AllNamesPresent(t *testing.T) {
	reg, err := Load(fullConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := reg.Get(Block9400); !ok {
		t.Fatalf("expected block-9400 migration to be loaded")
	}
}

func TestLoad_MissingName(t *testing.T) {
	fc := fullConfig()
	fc.Migrations = fc.Migrations[:len(fc.Migrations)-1] // drop token-migration
	if _, err := Load(fc); err == nil {
		t.Fatalf("expected missing-migration error")
	}
}

func TestLoad_UnknownName(t *testing.T) {
	fc := fullConfig()
	fc.Migrations = append(fc.Migrations, Config{Name: "not-a-real-migration"})
	if _, err := Load(fc); err == nil {
		t.Fatalf("expected unsupported-migration-type error")
	}
}

func TestLoad_DuplicateName(t *testing.T) {
	fc := fullConfig()
	fc.Migrations = append(fc.Migrations, Config{Name: TokenMigration, BlockHeight: 1000})
	if _, err := Load(fc); err == nil {
		t.Fatalf("expected an error for a duplicated migration name")
	}
}

func TestMigration_ActiveAt(t *testing.T) {
	reg, err := Load(fullConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if active := reg.ActiveAt(50); len(active) != 0 {
		t.Fatalf("expected no migrations active before any activation height, got %d", len(active))
	}

	active := reg.ActiveAt(9400)
	names := map[Name]bool{}
	for _, m := range active {
		names[m.Name] = true
	}
	if !names[AccountCountDataAttribute] || !names[Block9400] || !names[MemoMigration] {
		t.Fatalf("expected account-count/block-9400/memo migrations active at height 9400, got %v", active)
	}
	if names[DummyHotfix] {
		t.Fatalf("dummy-hotfix is disabled and must never be active")
	}
}

func TestRegistry_ActivatingAtIsExactHeight(t *testing.T) {
	reg, err := Load(fullConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := reg.ActivatingAt(9400); len(got) != 2 {
		t.Fatalf("expected exactly block-9400 and memo-migration to activate at height 9400, got %d", len(got))
	}
	if got := reg.ActivatingAt(9401); len(got) != 0 {
		t.Fatalf("expected no migrations to activate past their activation height, got %d", len(got))
	}
}

func TestRegistry_EndpointEnabledDefaultsTrue(t *testing.T) {
	reg, err := Load(fullConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reg.EndpointEnabled(0, "tokens.create") {
		t.Fatalf("expected endpoint gate to default open with no gating migration active")
	}
}

func TestRegistry_TransformReadIsIdentityByDefault(t *testing.T) {
	reg, err := Load(fullConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	in := []byte("value")
	out, err := reg.TransformRead(9400, []byte("key"), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != string(in) {
		t.Fatalf("expected placeholder transform-read hooks to be identity, got %q", out)
	}
}
