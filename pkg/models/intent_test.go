package models

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeClosureProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	genIntent := gopter.CombineGens(
		gen.Bool(), gen.Bool(), gen.Bool(), gen.Bool(), gen.Bool(),
		gen.Bool(), gen.Bool(), gen.Bool(), gen.Bool(), gen.Bool(),
	).Map(func(values []interface{}) *Intent {
		return &Intent{
			WantsClassification:          values[0].(bool),
			WantsPrescription:            values[1].(bool),
			WantsFullWorkflow:            values[2].(bool),
			WantsInsurance:               values[3].(bool),
			WantsInsurancePremium:        values[4].(bool),
			WantsInsuranceCompanies:      values[5].(bool),
			WantsInsuranceRecommendation: values[6].(bool),
			WantsInsurancePurchase:       values[7].(bool),
			IsGeneralQuestion:            values[8].(bool),
			OutOfScope:                   values[9].(bool),
		}
	})

	properties.Property("full workflow implies prescription and classification", prop.ForAll(
		func(i *Intent) bool {
			i.Normalize()
			if i.WantsFullWorkflow {
				return i.WantsPrescription && i.WantsClassification
			}
			return true
		}, genIntent))

	properties.Property("prescription implies classification", prop.ForAll(
		func(i *Intent) bool {
			i.Normalize()
			return !i.WantsPrescription || i.WantsClassification
		}, genIntent))

	properties.Property("out of scope clears all wants and general question", prop.ForAll(
		func(i *Intent) bool {
			i.Normalize()
			if !i.OutOfScope {
				return true
			}
			return !i.WantsClassification && !i.WantsPrescription && !i.WantsFullWorkflow &&
				!i.WantsInsurance && !i.WantsInsurancePremium && !i.WantsInsuranceCompanies &&
				!i.WantsInsuranceRecommendation && !i.WantsInsurancePurchase && !i.IsGeneralQuestion
		}, genIntent))

	properties.Property("normalize is idempotent", prop.ForAll(
		func(i *Intent) bool {
			i.Normalize()
			before := *i
			i.Normalize()
			return before == *i
		}, genIntent))

	properties.TestingRun(t)
}

func TestSpecificInsuranceFlagImpliesInsurance(t *testing.T) {
	i := &Intent{WantsInsurancePremium: true}
	i.Normalize()
	assert.True(t, i.WantsInsurance)
}
