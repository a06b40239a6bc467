package workflow

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"helpdesk-service/internal/models"
)

func conditionTicket() *models.Ticket {
	category := "hardware"
	return &models.Ticket{
		ID:           uuid.New(),
		TicketNumber: "TKT-00000042",
		Title:        "VPN keeps dropping",
		Description:  "disconnects every few minutes",
		Status:       models.TicketStatusOpen,
		Priority:     models.TicketPriorityHigh,
		Category:     &category,
		CreatedBy:    uuid.New(),
		CreatedAt:    time.Now().Add(-3 * time.Hour),
	}
}

func TestTicketFieldValue(t *testing.T) {
	ticket := conditionTicket()

	assert.Equal(t, "OPEN", TicketFieldValue(ticket, "status"))
	assert.Equal(t, "HIGH", TicketFieldValue(ticket, "priority"))
	assert.Equal(t, "hardware", TicketFieldValue(ticket, "category"))
	assert.Equal(t, "VPN keeps dropping", TicketFieldValue(ticket, "title"))
	assert.Equal(t, ticket.CreatedBy.String(), TicketFieldValue(ticket, "created_by"))
	assert.Nil(t, TicketFieldValue(ticket, "assigned_to"))
	assert.Nil(t, TicketFieldValue(ticket, "no_such_field"))
	assert.Nil(t, TicketFieldValue(nil, "status"))

	age, ok := TicketFieldValue(ticket, "age_hours").(float64)
	assert.True(t, ok)
	assert.InDelta(t, 3.0, age, 0.1)
}

func TestEvaluateCondition_Operators(t *testing.T) {
	cases := []struct {
		name     string
		actual   interface{}
		operator string
		expected interface{}
		want     bool
	}{
		{"equal strings", "OPEN", "=", "OPEN", true},
		{"not equal strings", "OPEN", "!=", "CLOSED", true},
		{"numeric greater", 5.5, ">", "3", true},
		{"numeric less", "2", "<", 10, true},
		{"numeric equal across types", "7", "=", 7.0, true},
		{"contains case insensitive", "VPN keeps dropping", "contains", "vpn", true},
		{"contains miss", "VPN keeps dropping", "contains", "printer", false},
		{"nil actual never matches", nil, "=", "OPEN", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := EvaluateCondition(tc.actual, tc.operator, tc.expected)
			assert.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEvaluateCondition_UnsupportedOperator(t *testing.T) {
	_, err := EvaluateCondition("a", "~=", "b")
	assert.Error(t, err)
}

func TestEvaluateGroup_AndLogic(t *testing.T) {
	ticket := conditionTicket()

	group := &models.RuleConditionGroup{
		Logic: "and",
		Conditions: []models.RuleCondition{
			{Field: "status", Operator: "=", Value: "OPEN"},
			{Field: "priority", Operator: "=", Value: "HIGH"},
		},
	}
	matched, err := EvaluateGroup(ticket, group)
	assert.NoError(t, err)
	assert.True(t, matched)

	group.Conditions[1].Value = "LOW"
	matched, err = EvaluateGroup(ticket, group)
	assert.NoError(t, err)
	assert.False(t, matched)
}

func TestEvaluateGroup_OrLogic(t *testing.T) {
	ticket := conditionTicket()

	group := &models.RuleConditionGroup{
		Logic: "or",
		Conditions: []models.RuleCondition{
			{Field: "status", Operator: "=", Value: "CLOSED"},
			{Field: "priority", Operator: "=", Value: "HIGH"},
		},
	}
	matched, err := EvaluateGroup(ticket, group)
	assert.NoError(t, err)
	assert.True(t, matched)
}

func TestEvaluateGroup_NestedGroups(t *testing.T) {
	ticket := conditionTicket()

	// status = OPEN AND (priority = CRITICAL OR age_hours > 2)
	group := &models.RuleConditionGroup{
		Logic: "and",
		Conditions: []models.RuleCondition{
			{Field: "status", Operator: "=", Value: "OPEN"},
		},
		Groups: []models.RuleConditionGroup{
			{
				Logic: "or",
				Conditions: []models.RuleCondition{
					{Field: "priority", Operator: "=", Value: "CRITICAL"},
					{Field: "age_hours", Operator: ">", Value: 2},
				},
			},
		},
	}
	matched, err := EvaluateGroup(ticket, group)
	assert.NoError(t, err)
	assert.True(t, matched)
}

func TestEvaluateGroup_EmptyMatchesEverything(t *testing.T) {
	ticket := conditionTicket()

	matched, err := EvaluateGroup(ticket, nil)
	assert.NoError(t, err)
	assert.True(t, matched)

	matched, err = EvaluateGroup(ticket, &models.RuleConditionGroup{Logic: "and"})
	assert.NoError(t, err)
	assert.True(t, matched)
}

func TestEvaluateGroup_DefaultsToAnd(t *testing.T) {
	ticket := conditionTicket()

	group := &models.RuleConditionGroup{
		Conditions: []models.RuleCondition{
			{Field: "status", Operator: "=", Value: "OPEN"},
			{Field: "status", Operator: "=", Value: "CLOSED"},
		},
	}
	matched, err := EvaluateGroup(ticket, group)
	assert.NoError(t, err)
	assert.False(t, matched)
}
