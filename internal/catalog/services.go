// Package catalog holds the business's offerings. The catalog is reference
// data maintained by the operator and read-only to booking.
package catalog

import (
	"lifecoach/backend/internal/apperr"
	"lifecoach/backend/internal/domain"
)

type Catalog struct {
	services []domain.Service
	byID     map[string]domain.Service
}

func New(services []domain.Service) *Catalog {
	c := &Catalog{
		services: make([]domain.Service, 0, len(services)),
		byID:     make(map[string]domain.Service, len(services)),
	}
	for _, s := range services {
		c.services = append(c.services, s)
		c.byID[s.ID] = s
	}
	return c
}

// Default returns the catalog the business launched with.
func Default() *Catalog {
	return New([]domain.Service{
		{
			ID:              "1",
			Title:           "Discovery Call",
			Description:     "A short call to discuss your goals and see if we are a good fit for working together.",
			Price:           0,
			Currency:        "USD",
			DurationMinutes: 15,
			Category:        "consultation",
			Type:            domain.ServiceSession,
			Features:        []string{"goalAssessment", "coachingOverview", "personalizedRecommendations"},
			Active:          true,
		},
		{
			ID:              "2",
			Title:           "Single Coaching Session",
			Description:     "One-on-one coaching session focused on your specific goals and challenges.",
			Price:           50,
			Currency:        "USD",
			DurationMinutes: 30,
			Category:        "coaching",
			Type:            domain.ServiceSession,
			Features:        []string{"inDepthDiscussion", "actionableStrategies", "followUpNotes", "emailSupportOneWeek"},
			Active:          true,
		},
		{
			ID:              "3",
			Title:           "Intensive Breakthrough Session",
			Description:     "An extended session designed to create significant breakthroughs in a specific area.",
			Price:           100,
			Currency:        "USD",
			DurationMinutes: 60,
			Category:        "coaching",
			Type:            domain.ServiceSession,
			Features:        []string{"deepDiveAnalysis", "personalizedActionPlan", "recordedSession", "emailSupportTwoWeeks"},
			Active:          true,
		},
		{
			ID:              "4",
			Title:           "Monthly Coaching (Basic)",
			Description:     "Ongoing support with regular sessions to help you achieve consistent progress.",
			Price:           400,
			Currency:        "USD",
			DurationMinutes: 60,
			Category:        "package",
			Type:            domain.ServiceSubscription,
			Features:        []string{"fourSessionsPerMonth", "unlimitedEmailSupport", "accessToResourcesLibrary", "monthlyProgressReview"},
			Active:          true,
		},
		{
			ID:              "5",
			Title:           "Premium Transformation",
			Description:     "Comprehensive coaching package for those committed to significant life changes.",
			Price:           500,
			Currency:        "USD",
			DurationMinutes: 60,
			Category:        "package",
			Type:            domain.ServiceSubscription,
			Features:        []string{"eightSessionsPerMonth", "priorityScheduling", "directMessagingAccess", "customizedResources", "weeklyProgressTracking"},
			Active:          true,
		},
	})
}

// Active returns the services open for booking, in catalog order.
func (c *Catalog) Active() []domain.Service {
	out := make([]domain.Service, 0, len(c.services))
	for _, s := range c.services {
		if s.Active {
			out = append(out, s)
		}
	}
	return out
}

func (c *Catalog) ByID(id string) (domain.Service, error) {
	s, ok := c.byID[id]
	if !ok || !s.Active {
		return domain.Service{}, apperr.NotFound("service", id)
	}
	return s, nil
}
