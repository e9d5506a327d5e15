package service

import "github.com/pesio-ai/be-ap-approvals/internal/repository"

// ResolveApprovers splits an organization's membership into the primary
// approver pool (dedicated approvers) and the fallback pool (admins and
// owners). Membership list order is preserved — it defines step assignment
// order. Empty pools are not an error; the workflow builder handles absence
// by shrinking the workflow.
func ResolveApprovers(members []repository.OrganizationMember) (primary, fallback []repository.OrganizationMember) {
	for _, m := range members {
		if m.Status != repository.MemberActive {
			continue
		}
		switch {
		case m.Role.CanApprove():
			primary = append(primary, m)
		case m.Role.IsFallback():
			fallback = append(fallback, m)
		}
	}
	return primary, fallback
}
