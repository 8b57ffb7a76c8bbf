package domain

import (
	"fmt"
	"strings"
)

// JobType identifies the kind of work a batch performs.
type JobType string

const (
	JobTypeFindJobVacancies    JobType = "find-job-vacancies"
	JobTypeFindCompanyNews     JobType = "find-company-news"
	JobTypeFindContactActivity JobType = "find-contact-activity"
)

// AllJobTypes lists every supported type in registration order.
var AllJobTypes = []JobType{
	JobTypeFindJobVacancies,
	JobTypeFindCompanyNews,
	JobTypeFindContactActivity,
}

// Valid returns true if the JobType is one of the supported kinds.
func (t JobType) Valid() bool {
	for _, known := range AllJobTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseJobType normalizes and validates a type name.
func ParseJobType(s string) (JobType, error) {
	t := JobType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown job type %q", s)
	}
	return t, nil
}
