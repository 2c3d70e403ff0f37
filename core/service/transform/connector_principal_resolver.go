// Package transform turns provider payloads into graph rows, edges and
// record events, one batch per transaction.
package transform

import (
	"context"
	"strings"

	"github.com/rish231294/pipeshub-ai/core/domain"
	"github.com/rish231294/pipeshub-ai/core/port/out"
	"github.com/rish231294/pipeshub-ai/pkg/logger"
)

// =============================================================================
// Principal Resolution
// =============================================================================

// PrincipalResolver maps ACL emails onto graph principal vertices:
// users lookup, then groups, then the people fallback.
type PrincipalResolver struct {
	reader out.GraphReader
	log    *logger.Logger
}

// NewPrincipalResolver creates a new principal resolver.
func NewPrincipalResolver(reader out.GraphReader, log *logger.Logger) *PrincipalResolver {
	if log == nil {
		log = logger.Default()
	}
	return &PrincipalResolver{reader: reader, log: log}
}

// Resolve returns the entity id ("users/<k>", "groups/<k>" or "people/<k>")
// for an email. When the email matches neither a user nor a group it returns
// a people vertex that the caller must upsert inside the batch transaction.
// An empty email resolves to ("", nil, nil) and should be skipped.
func (r *PrincipalResolver) Resolve(ctx context.Context, email string) (string, *domain.Person, error) {
	addr := strings.ToLower(strings.TrimSpace(email))
	if addr == "" {
		return "", nil, nil
	}

	entityID, err := r.reader.EntityIDByEmail(ctx, addr)
	if err != nil {
		return "", nil, err
	}
	if entityID != "" {
		return entityID, nil, nil
	}

	person := &domain.Person{Key: domain.PersonKey(addr), Email: addr}
	return domain.CollPeople + "/" + person.Key, person, nil
}

// AnyoneEntityID returns the per-org vertex id that open ACLs bind to.
func (r *PrincipalResolver) AnyoneEntityID(orgID string) string {
	return domain.CollAnyone + "/" + domain.AnyoneKey(orgID)
}

// ACLTarget pairs a resolved principal with its lower-cased role.
type ACLTarget struct {
	EntityID string
	Role     string
}

// ResolveACL resolves provider permission entries into edge targets.
// user and group entries resolve by email, anyone entries bind to the org
// anyone vertex, domain entries are not representable and are skipped with
// a warning. Returned people are deduplicated by key.
func (r *PrincipalResolver) ResolveACL(ctx context.Context, orgID string, perms []*out.ProviderFilePermission) ([]ACLTarget, []*domain.Person, error) {
	var (
		targets []ACLTarget
		people  []*domain.Person
		seen    = make(map[string]bool)
	)

	for _, perm := range perms {
		if perm == nil {
			continue
		}

		role := strings.ToLower(strings.TrimSpace(perm.Role))
		if role == "" {
			role = domain.RoleReader
		}

		switch strings.ToLower(perm.Type) {
		case "user", "group":
			entityID, person, err := r.Resolve(ctx, perm.EmailAddress)
			if err != nil {
				return nil, nil, err
			}
			if entityID == "" {
				r.log.Warn("[PrincipalResolver.ResolveACL] permission %s has no email, skipping", perm.ID)
				continue
			}
			if person != nil && !seen[person.Key] {
				seen[person.Key] = true
				people = append(people, person)
			}
			targets = append(targets, ACLTarget{EntityID: entityID, Role: role})

		case "anyone":
			targets = append(targets, ACLTarget{EntityID: r.AnyoneEntityID(orgID), Role: role})

		case "domain":
			r.log.Warn("[PrincipalResolver.ResolveACL] domain-wide permission %s on domain %s not representable, skipping", perm.ID, perm.Domain)

		default:
			r.log.Warn("[PrincipalResolver.ResolveACL] unknown permission type %q, skipping", perm.Type)
		}
	}

	return targets, people, nil
}
