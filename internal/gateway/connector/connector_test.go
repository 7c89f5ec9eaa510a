package connector

import "testing"

func setOf(ids ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

func containsAll(haystack []string, want ...string) bool {
	set := make(map[string]struct{}, len(haystack))
	for _, h := range haystack {
		set[h] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[w]; !ok {
			return false
		}
	}
	return true
}

func TestDiffSubscriptionsFindsMissingAndExtra(t *testing.T) {
	wanted := setOf("au2512", "rb2512", "IF2512")
	current := []string{"rb2512", "cu2512"}

	missing, extra := diffSubscriptions(wanted, current)

	if len(missing) != 2 || !containsAll(missing, "au2512", "IF2512") {
		t.Fatalf("missing = %v, want [au2512 IF2512]", missing)
	}
	if len(extra) != 1 || !containsAll(extra, "cu2512") {
		t.Fatalf("extra = %v, want [cu2512]", extra)
	}
}

func TestDiffSubscriptionsNoopWhenInSync(t *testing.T) {
	wanted := setOf("au2512", "rb2512")
	current := []string{"au2512", "rb2512"}

	missing, extra := diffSubscriptions(wanted, current)

	if len(missing) != 0 || len(extra) != 0 {
		t.Fatalf("missing=%v extra=%v, want both empty", missing, extra)
	}
}

func TestDiffSubscriptionsEmptyWantedUnsubscribesEverything(t *testing.T) {
	wanted := setOf()
	current := []string{"au2512", "rb2512"}

	missing, extra := diffSubscriptions(wanted, current)

	if len(missing) != 0 {
		t.Fatalf("missing = %v, want empty", missing)
	}
	if len(extra) != 2 || !containsAll(extra, "au2512", "rb2512") {
		t.Fatalf("extra = %v, want [au2512 rb2512]", extra)
	}
}

func TestDiffSubscriptionsEmptyCurrentSubscribesEverything(t *testing.T) {
	wanted := setOf("au2512", "rb2512")
	var current []string

	missing, extra := diffSubscriptions(wanted, current)

	if len(missing) != 2 || !containsAll(missing, "au2512", "rb2512") {
		t.Fatalf("missing = %v, want [au2512 rb2512]", missing)
	}
	if len(extra) != 0 {
		t.Fatalf("extra = %v, want empty", extra)
	}
}
