package keys_test

import (
	"errors"
	"testing"

	"github.com/jrife/tenantkv/storage/kv/keys"
	"github.com/tidwall/match"
)

func TestValidateTenant(t *testing.T) {
	testCases := map[string]struct {
		tenant string
		valid  bool
	}{
		"plain":            {tenant: "alpha", valid: true},
		"dotted":           {tenant: "alpha.beta", valid: true},
		"lock-in-middle":   {tenant: "a.lockb", valid: true},
		"empty":            {tenant: "", valid: false},
		"separator":        {tenant: "a/b", valid: false},
		"lock-suffix":      {tenant: "alpha.lock", valid: false},
		"bare-lock-suffix": {tenant: ".lock", valid: false},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			err := keys.ValidateTenant(testCase.tenant)

			if testCase.valid && err != nil {
				t.Fatalf("expected err to be nil, got %#v", err)
			} else if !testCase.valid && !errors.Is(err, keys.ErrInvalidTenant) {
				t.Fatalf("expected err to be %#v, got %#v", keys.ErrInvalidTenant, err)
			}
		})
	}
}

func TestValidateKey(t *testing.T) {
	if err := keys.ValidateKey(""); !errors.Is(err, keys.ErrInvalidKey) {
		t.Fatalf("expected err to be %#v, got %#v", keys.ErrInvalidKey, err)
	}

	if err := keys.ValidateKey("a/b/c"); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}
}

func TestNamespaces(t *testing.T) {
	if got := keys.NamespacedKey("alpha", "k"); got != "alpha/k" {
		t.Fatalf("expected alpha/k, got %s", got)
	}

	if got := keys.LockKey("alpha", "k"); got != "alpha.lock/k" {
		t.Fatalf("expected alpha.lock/k, got %s", got)
	}

	// A data key of one valid tenant must never fall inside another
	// valid tenant's lock namespace.
	data := keys.NamespacedKey("alpha.lock", "k")
	lock := keys.LockKey("alpha", "k")

	if data == lock {
		t.Fatalf("namespaces overlap: %s", data)
	}
}

func TestEscape(t *testing.T) {
	testCases := map[string]struct {
		literal  string
		other    string
		expected string
	}{
		"no-metacharacters": {literal: "abc", other: "abd", expected: "abc"},
		"star":              {literal: "a*", other: "ab", expected: `a\*`},
		"question":          {literal: "a?", other: "ab", expected: `a\?`},
		"brackets":          {literal: "[ab]", other: "a", expected: `\[ab\]`},
		"backslash":         {literal: `a\b`, other: "ab", expected: `a\\b`},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			escaped := keys.Escape(testCase.literal)

			if escaped != testCase.expected {
				t.Fatalf("expected %s, got %s", testCase.expected, escaped)
			}

			if !match.Match(testCase.literal, escaped) {
				t.Fatalf("expected %s to match %s", escaped, testCase.literal)
			}

			if match.Match(testCase.other, escaped) {
				t.Fatalf("expected %s not to match %s", escaped, testCase.other)
			}
		})
	}
}

func TestInt64Key(t *testing.T) {
	for _, i := range []int64{0, 1, 1 << 40, -1} {
		if got := keys.KeyToInt64(keys.Int64ToKey(i)); got != i {
			t.Fatalf("expected %d, got %d", i, got)
		}
	}
}
