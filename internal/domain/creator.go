package domain

import (
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryDeveloper  Category = "Developer"
	CategoryDesigner   Category = "Designer"
	CategoryCreator    Category = "Creator"
	CategoryResearcher Category = "Researcher"
	CategoryAdvocate   Category = "Advocate"
	CategoryOther      Category = "Other"
)

var Categories = []Category{
	CategoryDeveloper,
	CategoryDesigner,
	CategoryCreator,
	CategoryResearcher,
	CategoryAdvocate,
	CategoryOther,
}

// ParseCategory matches a category name case-insensitively. Empty means Other.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return CategoryOther, nil
	}
	for _, c := range Categories {
		if strings.EqualFold(string(c), s) {
			return c, nil
		}
	}
	return "", ErrInvalidCategory
}

const DefaultAvatar = "https://placeholder.com/200x200"

type Social struct {
	Twitter string `json:"twitter,omitempty"`
	GitHub  string `json:"github,omitempty"`
	Website string `json:"website,omitempty"`
}

type Creator struct {
	ID        string          `json:"id"`
	Address   string          `json:"address"`
	Name      string          `json:"name"`
	Avatar    string          `json:"avatar"`
	Bio       string          `json:"bio"`
	Category  Category        `json:"category"`
	TotalTips decimal.Decimal `json:"totalTips"`
	TipCount  int64           `json:"tipCount"`
	Verified  bool            `json:"verified"`
	Social    Social          `json:"social"`
}

// ProfileInput carries the owner-editable part of a creator record.
type ProfileInput struct {
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
	Bio      string `json:"bio"`
	Category string `json:"category"`
	Social   Social `json:"social"`
}

// Validate checks the input and returns the parsed category.
func (p ProfileInput) Validate() (Category, error) {
	if strings.TrimSpace(p.Name) == "" {
		return "", ErrMissingName
	}
	if p.Avatar != "" && !ValidAvatarURL(p.Avatar) {
		return "", ErrInvalidAvatarURL
	}
	return ParseCategory(p.Category)
}

// ValidAvatarURL accepts absolute http and https URLs only.
func ValidAvatarURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// Matches reports whether term occurs in the name or bio.
func (c *Creator) Matches(term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(c.Name), term) ||
		strings.Contains(strings.ToLower(c.Bio), term)
}

type Stats struct {
	TotalTips     int64           `json:"totalTips"`
	TotalCreators int             `json:"totalCreators"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	TopCreator    string          `json:"topCreator"`
}
