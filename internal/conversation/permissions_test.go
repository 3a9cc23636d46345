package conversation

import "testing"

func TestOwnerOnly(t *testing.T) {
	t.Parallel()

	conv := Conversation{ID: "c1", Owner: "alice"}
	policy := OwnerOnly{}

	if !policy.CanView(conv, "alice") || !policy.CanEdit(conv, "alice") || !policy.CanDelete(conv, "alice") {
		t.Error("owner should be allowed every action")
	}
	if policy.CanView(conv, "bob") || policy.CanEdit(conv, "bob") || policy.CanDelete(conv, "bob") {
		t.Error("non-owner should be denied every action")
	}
}
