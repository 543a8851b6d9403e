package lifecycle

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/leozw/storefront-controlplane/internal/core"
)

var (
	slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
	slugStrip   = regexp.MustCompile(`[^a-z0-9]+`)
)

const maxSlugLen = 63

// NormalizeSpec trims the request and derives a slug from the name when none
// is given.
func NormalizeSpec(spec core.TenantSpec) (core.TenantSpec, error) {
	spec.Name = strings.TrimSpace(spec.Name)
	spec.Slug = strings.TrimSpace(strings.ToLower(spec.Slug))
	spec.OwnerEmail = strings.TrimSpace(spec.OwnerEmail)
	spec.Plan = strings.TrimSpace(spec.Plan)
	spec.Region = strings.TrimSpace(spec.Region)
	spec.Environment = strings.TrimSpace(spec.Environment)

	if spec.Name == "" {
		return spec, fmt.Errorf("%w: name is required", core.ErrInvalidSpec)
	}
	if spec.Slug == "" {
		spec.Slug = Slugify(spec.Name)
	}
	if !slugPattern.MatchString(spec.Slug) || len(spec.Slug) > maxSlugLen {
		return spec, fmt.Errorf("%w: slug %q must be lowercase letters, digits and single hyphens", core.ErrInvalidSpec, spec.Slug)
	}
	if spec.OwnerEmail != "" {
		addr, err := mail.ParseAddress(spec.OwnerEmail)
		if err != nil || addr.Name != "" {
			return spec, fmt.Errorf("%w: owner email %q is not a plain address", core.ErrInvalidSpec, spec.OwnerEmail)
		}
	}
	return spec, nil
}

func Slugify(name string) string {
	s := strings.NewReplacer("'", "", "’", "").Replace(strings.ToLower(name))
	s = slugStrip.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > maxSlugLen {
		s = strings.TrimRight(s[:maxSlugLen], "-")
	}
	return s
}
