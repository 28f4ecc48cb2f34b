// Package authz holds the error taxonomy for the request lifecycle and the
// pure department resolver shared by the approve and reject paths.
package authz

import (
	"fmt"
	"strings"

	"intakeline/internal/dept"
	"intakeline/internal/domain"
)

// ForbiddenError indicates the authenticated actor lacks departmental or
// ownership authority for the operation.
type ForbiddenError struct {
	Departments []string
	Reason      string
}

func (e ForbiddenError) Error() string {
	if len(e.Departments) > 0 {
		return fmt.Sprintf("%s: %s", e.Reason, strings.Join(e.Departments, ", "))
	}
	return e.Reason
}

// InvalidStateError indicates the operation is not legal for the record's
// current status or ledger/assignment state.
type InvalidStateError struct {
	Reason string
}

func (e InvalidStateError) Error() string { return e.Reason }

// InvalidInputError indicates malformed caller-supplied data.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e InvalidInputError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return e.Reason
}

// AmbiguousError indicates an omitted disambiguating parameter has more than
// one valid resolution; Candidates lists them for the caller.
type AmbiguousError struct {
	Candidates []string
}

func (e AmbiguousError) Error() string {
	return fmt.Sprintf("multiple eligible departments, specify one of: %s", strings.Join(e.Candidates, ", "))
}

// FatalError wraps a conversion transaction failure. The request must never
// be reported converted when this surfaces.
type FatalError struct {
	Err error
}

func (e FatalError) Error() string { return fmt.Sprintf("conversion failed: %v", e.Err) }
func (e FatalError) Unwrap() error { return e.Err }

// LedgerAction selects which ledger states are eligible for resolution.
type LedgerAction int

const (
	ActionApprove LedgerAction = iota
	ActionReject
)

// ResolveDepartment picks the ledger entry a manager's approve/reject targets.
//
// With an explicit department the manager must both hold authority over it
// (alias match against approvesDepartments) and find it eligible for the
// action. With no department, resolution considers every entry the manager
// has authority over that is eligible: zero is Forbidden, more than one is
// Ambiguous, exactly one is auto-selected.
func ResolveDepartment(ledger []domain.Approval, approvesDepartments []string, department string, action LedgerAction) (domain.Approval, error) {
	eligible := func(a domain.Approval) bool {
		if action == ActionApprove {
			return !a.Approved
		}
		return !a.Rejected
	}

	if department != "" {
		for _, a := range ledger {
			if !dept.Matches(a.Department, department) {
				continue
			}
			if !dept.MatchesAny(a.Department, approvesDepartments) {
				return domain.Approval{}, ForbiddenError{
					Departments: []string{a.Department},
					Reason:      "no approval authority over department",
				}
			}
			if !eligible(a) {
				return domain.Approval{}, InvalidStateError{
					Reason: fmt.Sprintf("department %s is not eligible for this action", a.Department),
				}
			}
			return a, nil
		}
		return domain.Approval{}, InvalidInputError{
			Field:  "department",
			Reason: fmt.Sprintf("%s is not a required department for this request", department),
		}
	}

	var matched []domain.Approval
	for _, a := range ledger {
		if dept.MatchesAny(a.Department, approvesDepartments) && eligible(a) {
			matched = append(matched, a)
		}
	}
	switch len(matched) {
	case 0:
		return domain.Approval{}, ForbiddenError{Reason: "no eligible department under your approval authority"}
	case 1:
		return matched[0], nil
	default:
		names := make([]string, 0, len(matched))
		for _, a := range matched {
			names = append(names, a.Department)
		}
		return domain.Approval{}, AmbiguousError{Candidates: names}
	}
}
