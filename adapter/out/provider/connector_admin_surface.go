package provider

import (
	"context"
	"strings"
	"time"

	admin "google.golang.org/api/admin/directory/v1"

	"github.com/rish231294/pipeshub-ai/core/domain"
	"github.com/rish231294/pipeshub-ai/core/port/out"
)

// directoryCustomer scopes directory listings to the credential's own tenant.
const directoryCustomer = "my_customer"

// =============================================================================
// Admin Surface
// =============================================================================

// adminSurface implements out.AdminSurface over the Admin Directory API,
// impersonating the tenant admin recorded on the service credential.
type adminSurface struct {
	factory    *GoogleFactory
	svc        *admin.Service
	adminEmail string
	cred       *out.ServiceCredentialEntity
	call       *apiCall
}

var _ out.AdminSurface = (*adminSurface)(nil)

// ListPrincipals lists the tenant's users. Suspended and archived accounts
// are filtered out so they never enter a sync run.
func (s *adminSurface) ListPrincipals(ctx context.Context) ([]*out.ProviderPrincipal, error) {
	var principals []*out.ProviderPrincipal
	pageToken := ""

	for {
		var resp *admin.Users
		err := s.call.run(ctx, s.adminEmail, "list users", func() error {
			req := s.svc.Users.List().
				Customer(directoryCustomer).
				MaxResults(domain.GenericPageLimit).
				OrderBy("email")
			if pageToken != "" {
				req = req.PageToken(pageToken)
			}
			var apiErr error
			resp, apiErr = req.Context(ctx).Do()
			return apiErr
		})
		if err != nil {
			return nil, err
		}

		for _, u := range resp.Users {
			if u.Suspended || u.Archived {
				continue
			}
			principals = append(principals, convertDirectoryUser(u))
		}

		if resp.NextPageToken == "" {
			return principals, nil
		}
		pageToken = resp.NextPageToken
	}
}

// ListGroups lists the tenant's groups.
func (s *adminSurface) ListGroups(ctx context.Context) ([]*out.ProviderGroup, error) {
	var groups []*out.ProviderGroup
	pageToken := ""

	for {
		var resp *admin.Groups
		err := s.call.run(ctx, s.adminEmail, "list groups", func() error {
			req := s.svc.Groups.List().
				Customer(directoryCustomer).
				MaxResults(domain.GenericPageLimit)
			if pageToken != "" {
				req = req.PageToken(pageToken)
			}
			var apiErr error
			resp, apiErr = req.Context(ctx).Do()
			return apiErr
		})
		if err != nil {
			return nil, err
		}

		for _, g := range resp.Groups {
			groups = append(groups, &out.ProviderGroup{
				ID:           g.Id,
				Email:        g.Email,
				Name:         g.Name,
				Description:  g.Description,
				AdminCreated: g.AdminCreated,
			})
		}

		if resp.NextPageToken == "" {
			return groups, nil
		}
		pageToken = resp.NextPageToken
	}
}

// ListGroupMembers lists one group's membership rows.
func (s *adminSurface) ListGroupMembers(ctx context.Context, groupEmail string) ([]*out.ProviderGroupMember, error) {
	var members []*out.ProviderGroupMember
	pageToken := ""

	for {
		var resp *admin.Members
		err := s.call.run(ctx, s.adminEmail, "list group members", func() error {
			req := s.svc.Members.List(groupEmail).MaxResults(domain.GenericPageLimit)
			if pageToken != "" {
				req = req.PageToken(pageToken)
			}
			var apiErr error
			resp, apiErr = req.Context(ctx).Do()
			return apiErr
		})
		if err != nil {
			return nil, err
		}

		for _, m := range resp.Members {
			members = append(members, &out.ProviderGroupMember{
				Email:  m.Email,
				Role:   m.Role,
				Type:   m.Type,
				Status: m.Status,
			})
		}

		if resp.NextPageToken == "" {
			return members, nil
		}
		pageToken = resp.NextPageToken
	}
}

// ListDomains lists the tenant's registered domains.
func (s *adminSurface) ListDomains(ctx context.Context) ([]*out.ProviderDomain, error) {
	var resp *admin.Domains2
	err := s.call.run(ctx, s.adminEmail, "list domains", func() error {
		var apiErr error
		resp, apiErr = s.svc.Domains.List(directoryCustomer).Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return nil, err
	}

	domains := make([]*out.ProviderDomain, 0, len(resp.Domains))
	for _, d := range resp.Domains {
		domains = append(domains, &out.ProviderDomain{
			DomainName: d.DomainName,
			IsPrimary:  d.IsPrimary,
			Verified:   d.Verified,
		})
	}
	return domains, nil
}

// DelegateFor builds per-user mail and drive surfaces through domain-wide
// delegation.
func (s *adminSurface) DelegateFor(ctx context.Context, email string) (out.UserSurface, error) {
	return s.factory.delegateUser(ctx, s.cred, email)
}

// =============================================================================
// Converters
// =============================================================================

func convertDirectoryUser(u *admin.User) *out.ProviderPrincipal {
	p := &out.ProviderPrincipal{
		ID:       u.Id,
		Email:    u.PrimaryEmail,
		IsActive: !u.Suspended,
	}

	if u.Name != nil {
		p.FullName = u.Name.FullName
	}
	if at := strings.LastIndex(u.PrimaryEmail, "@"); at >= 0 {
		p.Domain = u.PrimaryEmail[at+1:]
	}
	if u.CreationTime != "" {
		if t, err := time.Parse(time.RFC3339, u.CreationTime); err == nil {
			p.CreatedAt = t.UnixMilli()
		}
	}
	return p
}
