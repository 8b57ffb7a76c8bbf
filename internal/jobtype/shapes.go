package jobtype

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// VacancySearch is one find-job-vacancies item.
type VacancySearch struct {
	CompanyName   string `json:"companyName"`
	CompanyDomain string `json:"companyDomain,omitempty"`
	JobTitle      string `json:"jobTitle,omitempty"`
	Location      string `json:"location,omitempty"`
}

func (v VacancySearch) Validate() error {
	if strings.TrimSpace(v.CompanyName) == "" {
		return errors.New("companyName is required")
	}
	return nil
}

// Vacancy is one find-job-vacancies result entry.
type Vacancy struct {
	Title    string     `json:"title"`
	URL      string     `json:"url"`
	Location string     `json:"location,omitempty"`
	PostedAt *time.Time `json:"postedAt,omitempty"`
}

// NewsSearch is one find-company-news item.
type NewsSearch struct {
	CompanyName   string     `json:"companyName"`
	CompanyDomain string     `json:"companyDomain,omitempty"`
	Since         *time.Time `json:"since,omitempty"`
}

func (n NewsSearch) Validate() error {
	if strings.TrimSpace(n.CompanyName) == "" {
		return errors.New("companyName is required")
	}
	return nil
}

// NewsArticle is one find-company-news result entry.
type NewsArticle struct {
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Source      string     `json:"source,omitempty"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
	Summary     string     `json:"summary,omitempty"`
}

// ContactActivitySearch is one find-contact-activity item.
type ContactActivitySearch struct {
	FullName    string `json:"fullName"`
	CompanyName string `json:"companyName,omitempty"`
	LinkedInURL string `json:"linkedinUrl,omitempty"`
}

func (c ContactActivitySearch) Validate() error {
	if strings.TrimSpace(c.FullName) == "" {
		return errors.New("fullName is required")
	}
	if c.LinkedInURL != "" {
		u, err := url.Parse(c.LinkedInURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errors.New("linkedinUrl must be an absolute URL")
		}
	}
	return nil
}

// ContactActivity is one find-contact-activity result entry.
type ContactActivity struct {
	ActivityType string     `json:"activityType"`
	URL          string     `json:"url,omitempty"`
	Summary      string     `json:"summary,omitempty"`
	OccurredAt   *time.Time `json:"occurredAt,omitempty"`
}
