// Package router maps a classified category to the specialist that answers it.
package router

import "router-agent/internal/domain"

// SpecialistID names a specialist responder.
type SpecialistID string

const (
	RepoSpecialist    SpecialistID = "repo-specialist"
	ProfileSpecialist SpecialistID = "profile-specialist"
	GeneralSpecialist SpecialistID = "general-specialist"
)

// Route returns the specialist for a category. Unknown or unset categories
// go to the general specialist.
func Route(c domain.Category) SpecialistID {
	switch c {
	case domain.CategoryRepoAnalysis:
		return RepoSpecialist
	case domain.CategoryProfileAnalysis:
		return ProfileSpecialist
	default:
		return GeneralSpecialist
	}
}
