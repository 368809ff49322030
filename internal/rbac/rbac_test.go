package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "member read", role: RoleMember, action: ActionRead, allow: true},
		{name: "member write", role: RoleMember, action: ActionWrite, allow: true},
		{name: "member request", role: RoleMember, action: ActionRequest, allow: true},
		{name: "member approve", role: RoleMember, action: ActionApprove, allow: false},
		{name: "member admin", role: RoleMember, action: ActionAdmin, allow: false},
		{name: "admin approve", role: RoleAdmin, action: ActionApprove, allow: true},
		{name: "admin admin", role: RoleAdmin, action: ActionAdmin, allow: true},
		{name: "unknown role", role: Role("ghost"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("admin"); got != RoleAdmin {
		t.Fatalf("Normalize(admin) = %q", got)
	}
	if got := Normalize("superuser"); got != RoleMember {
		t.Fatalf("Normalize(superuser) = %q, want member", got)
	}
}
