package email

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rallyhq/reengage-api/internal/model"
)

// Generator produces the subject and body for one cohort member.
type Generator interface {
	Subject(rule *model.Rule, member *model.CohortMember) string
	Body(rule *model.Rule, member *model.CohortMember) string
}

// TemplateGenerator renders the rule's template with {placeholder}
// substitution, falling back to a stock body when the rule carries no
// template. Placeholders: {customerName}, {firstName}, {lastName}, {year},
// {make}, {model}, {service}, {cadenceMonths}, {lastServiceDate}.
type TemplateGenerator struct {
	signature string
}

func NewTemplateGenerator(signature string) *TemplateGenerator {
	if signature == "" {
		signature = "Rally"
	}
	return &TemplateGenerator{signature: signature}
}

func (g *TemplateGenerator) Subject(rule *model.Rule, member *model.CohortMember) string {
	return fmt.Sprintf("Time for %s - %s %s", serviceLabel(rule.Service), member.Vehicle.Make, member.Vehicle.Model)
}

func (g *TemplateGenerator) Body(rule *model.Rule, member *model.CohortMember) string {
	firstName := member.Customer.FirstName
	if firstName == "" {
		firstName = "Customer"
	}

	// A member can qualify with no service record of the rule's type; never
	// render a zero time in that case.
	lastServiceDate := "no service history"
	if member.LastService != nil {
		lastServiceDate = member.LastService.PerformedAt.Format("January 2, 2006")
	}

	if strings.TrimSpace(rule.EmailTemplate) != "" {
		replacer := strings.NewReplacer(
			"{customerName}", firstName,
			"{firstName}", firstName,
			"{lastName}", member.Customer.LastName,
			"{year}", strconv.Itoa(member.Vehicle.Year),
			"{make}", member.Vehicle.Make,
			"{model}", member.Vehicle.Model,
			"{service}", serviceLabel(rule.Service),
			"{cadenceMonths}", strconv.Itoa(rule.CadenceMonths),
			"{lastServiceDate}", lastServiceDate,
		)
		return replacer.Replace(rule.EmailTemplate)
	}

	return fmt.Sprintf(`Hi %s,

We noticed it's been %d months since your last %s service for your %s %s %d.

It's time to schedule your next service appointment to keep your vehicle running smoothly and safely.

Reply to this email to schedule an appointment, or call us at your convenience.

Best regards,
%s`,
		firstName,
		rule.CadenceMonths,
		serviceLabel(rule.Service),
		member.Vehicle.Make,
		member.Vehicle.Model,
		member.Vehicle.Year,
		g.signature,
	)
}

func serviceLabel(service model.ServiceType) string {
	return strings.ReplaceAll(strings.ToLower(string(service)), "_", " ")
}
