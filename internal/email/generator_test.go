package email

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rallyhq/reengage-api/internal/model"
)

func testMember(firstName string, lastService *model.ServiceHistory) *model.CohortMember {
	return &model.CohortMember{
		Vehicle: &model.Vehicle{
			Make:  "Toyota",
			Model: "Camry",
			Year:  2019,
		},
		Customer: &model.Customer{
			FirstName: firstName,
			LastName:  "Nguyen",
			Email:     "a@example.com",
		},
		LastService: lastService,
	}
}

func TestTemplateGenerator_Subject(t *testing.T) {
	g := NewTemplateGenerator("")
	rule := &model.Rule{Service: model.ServiceTypeOilChange}

	subject := g.Subject(rule, testMember("Ana", nil))

	assert.Equal(t, "Time for oil change - Toyota Camry", subject)
}

func TestTemplateGenerator_Body_Template(t *testing.T) {
	g := NewTemplateGenerator("")
	rule := &model.Rule{
		Service:       model.ServiceTypeBrakeInspection,
		CadenceMonths: 6,
		EmailTemplate: "Hi {firstName} {lastName}, your {year} {make} {model} is due for {service} (every {cadenceMonths} months, last on {lastServiceDate}).",
	}
	performed := time.Date(2026, time.March, 14, 0, 0, 0, 0, time.UTC)
	member := testMember("Ana", &model.ServiceHistory{PerformedAt: performed})

	body := g.Body(rule, member)

	assert.Equal(t,
		"Hi Ana Nguyen, your 2019 Toyota Camry is due for brake inspection (every 6 months, last on March 14, 2026).",
		body)
}

func TestTemplateGenerator_Body_DefaultFallback(t *testing.T) {
	g := NewTemplateGenerator("")
	rule := &model.Rule{
		Service:       model.ServiceTypeOilChange,
		CadenceMonths: 3,
		EmailTemplate: "   ",
	}

	body := g.Body(rule, testMember("Ana", nil))

	assert.Contains(t, body, "Hi Ana,")
	assert.Contains(t, body, "3 months since your last oil change")
	assert.Contains(t, body, "Toyota Camry 2019")
	assert.Contains(t, body, "Best regards,\nRally")
}

func TestTemplateGenerator_Body_MissingNameAndHistory(t *testing.T) {
	g := NewTemplateGenerator("")
	rule := &model.Rule{
		Service:       model.ServiceTypeTireRotation,
		CadenceMonths: 12,
		EmailTemplate: "{firstName}: last service {lastServiceDate}",
	}

	body := g.Body(rule, testMember("", nil))

	assert.Equal(t, "Customer: last service no service history", body)
}
