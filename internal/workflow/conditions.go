package workflow

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"helpdesk-service/internal/models"
)

// TicketFieldValue resolves a rule/condition field name against a ticket.
// Unknown fields resolve to nil, which fails every comparison.
func TicketFieldValue(ticket *models.Ticket, field string) interface{} {
	if ticket == nil {
		return nil
	}
	switch field {
	case "status":
		return string(ticket.Status)
	case "priority":
		return string(ticket.Priority)
	case "category":
		if ticket.Category != nil {
			return *ticket.Category
		}
		return nil
	case "title":
		return ticket.Title
	case "description":
		return ticket.Description
	case "ticket_number":
		return ticket.TicketNumber
	case "department_id":
		if ticket.DepartmentID != nil {
			return ticket.DepartmentID.String()
		}
		return nil
	case "assigned_to":
		if ticket.AssignedTo != nil {
			return ticket.AssignedTo.String()
		}
		return nil
	case "created_by":
		return ticket.CreatedBy.String()
	case "age_hours":
		return time.Since(ticket.CreatedAt).Hours()
	default:
		return nil
	}
}

// EvaluateCondition applies a single operator. Supported operators:
// =, !=, >, <, contains. Numeric operands are compared numerically,
// everything else falls back to string comparison.
func EvaluateCondition(actual interface{}, operator string, expected interface{}) (bool, error) {
	switch operator {
	case "=":
		return compareValues(actual, expected) == 0, nil
	case "!=":
		return compareValues(actual, expected) != 0, nil
	case ">":
		return compareValues(actual, expected) > 0, nil
	case "<":
		return compareValues(actual, expected) < 0, nil
	case "contains":
		return strings.Contains(
			strings.ToLower(toString(actual)),
			strings.ToLower(toString(expected)),
		), nil
	default:
		return false, fmt.Errorf("unsupported operator %q", operator)
	}
}

// EvaluateGroup walks a nested condition tree with and/or logic.
func EvaluateGroup(ticket *models.Ticket, group *models.RuleConditionGroup) (bool, error) {
	if group == nil {
		return true, nil
	}
	logic := strings.ToLower(group.Logic)
	if logic == "" {
		logic = "and"
	}

	results := make([]bool, 0, len(group.Conditions)+len(group.Groups))
	for _, cond := range group.Conditions {
		matched, err := EvaluateCondition(TicketFieldValue(ticket, cond.Field), cond.Operator, cond.Value)
		if err != nil {
			return false, err
		}
		results = append(results, matched)
	}
	for i := range group.Groups {
		matched, err := EvaluateGroup(ticket, &group.Groups[i])
		if err != nil {
			return false, err
		}
		results = append(results, matched)
	}

	if len(results) == 0 {
		return true, nil
	}

	switch logic {
	case "and":
		for _, r := range results {
			if !r {
				return false, nil
			}
		}
		return true, nil
	case "or":
		for _, r := range results {
			if r {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("unsupported logic %q", group.Logic)
	}
}

func compareValues(a, b interface{}) int {
	if fa, okA := toFloat(a); okA {
		if fb, okB := toFloat(b); okB {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(toString(a), toString(b))
}

func toFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
