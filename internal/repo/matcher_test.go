// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package repo

import "testing"

func TestGroupMatcherRegexp(t *testing.T) {
	cases := []struct {
		name    string
		matcher GroupMatcher
		match   []string
		noMatch []string
	}{
		{
			name:    "equals",
			matcher: GroupMatcher{Operator: MatchEquals, Value: "billing"},
			match:   []string{"billing"},
			noMatch: []string{"billing-jobs", "my-billing"},
		},
		{
			name:    "starts_with",
			matcher: GroupMatcher{Operator: MatchStartsWith, Value: "bill"},
			match:   []string{"billing", "bill"},
			noMatch: []string{"my-billing"},
		},
		{
			name:    "ends_with",
			matcher: GroupMatcher{Operator: MatchEndsWith, Value: "jobs"},
			match:   []string{"billing-jobs", "jobs"},
			noMatch: []string{"jobs-billing"},
		},
		{
			name:    "contains",
			matcher: GroupMatcher{Operator: MatchContains, Value: "ill"},
			match:   []string{"billing", "grill"},
			noMatch: []string{"batch"},
		},
		{
			name:    "anything",
			matcher: GroupMatcher{Operator: MatchAnything},
			match:   []string{"", "anything-at-all"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			re := tc.matcher.Regexp()
			for _, s := range tc.match {
				if !re.MatchString(s) {
					t.Errorf("expected %q to match %q", s, re.String())
				}
			}
			for _, s := range tc.noMatch {
				if re.MatchString(s) {
					t.Errorf("expected %q not to match %q", s, re.String())
				}
			}
		})
	}
}

func TestGroupMatcherRegexpEscapesSpecialCharacters(t *testing.T) {
	m := GroupMatcher{Operator: MatchEquals, Value: "a.b*c"}
	re := m.Regexp()
	if !re.MatchString("a.b*c") {
		t.Errorf("expected literal value to match itself")
	}
	if re.MatchString("aXbYYYc") {
		t.Errorf("special characters must be escaped, not interpreted as regex syntax")
	}
}

func TestGroupMatcherString(t *testing.T) {
	m := GroupMatcher{Operator: MatchStartsWith, Value: "bill"}
	got := m.String()
	want := "starts_with:bill"
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
