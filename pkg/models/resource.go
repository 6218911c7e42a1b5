package models

import (
	"fmt"
	"strings"
)

// ResourceKind identifies the class of protected object.
type ResourceKind string

const (
	ResourceAccount          ResourceKind = "account"
	ResourceUser             ResourceKind = "user"
	ResourceUserGroup        ResourceKind = "user_group"
	ResourceRequest          ResourceKind = "request"
	ResourcePermission       ResourceKind = "permission"
	ResourceRequestPolicy    ResourceKind = "request_policy"
	ResourceNamedRule        ResourceKind = "named_rule"
	ResourceExternalCanister ResourceKind = "external_canister"
	ResourceSystem           ResourceKind = "system"
)

// ResourceAction identifies the protected action on a resource.
type ResourceAction string

const (
	ActionRead     ResourceAction = "read"
	ActionList     ResourceAction = "list"
	ActionCreate   ResourceAction = "create"
	ActionUpdate   ResourceAction = "update"
	ActionDelete   ResourceAction = "delete"
	ActionTransfer ResourceAction = "transfer"
	ActionChange   ResourceAction = "change"
)

// ResourceIDAny scopes a resource to every instance of its kind.
const ResourceIDAny = "*"

// Resource identifies a protected object and action. ID is empty for
// actions that do not target a specific instance (e.g. user creation) and
// ResourceIDAny for permissions that cover every instance.
type Resource struct {
	Kind   ResourceKind   `json:"kind"`
	Action ResourceAction `json:"action"`
	ID     string         `json:"id,omitempty"`
}

// Key returns the canonical storage key of the resource.
func (r Resource) Key() string {
	if r.ID == "" {
		return fmt.Sprintf("%s:%s", r.Kind, r.Action)
	}
	return fmt.Sprintf("%s:%s:%s", r.Kind, r.Action, r.ID)
}

// AnyID returns the same resource scoped to every instance of its kind.
func (r Resource) AnyID() Resource {
	return Resource{Kind: r.Kind, Action: r.Action, ID: ResourceIDAny}
}

// ParseResourceKey parses a canonical resource key back into a Resource.
func ParseResourceKey(key string) (Resource, error) {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) < 2 {
		return Resource{}, fmt.Errorf("malformed resource key %q", key)
	}
	res := Resource{Kind: ResourceKind(parts[0]), Action: ResourceAction(parts[1])}
	if len(parts) == 3 {
		res.ID = parts[2]
	}
	return res, nil
}

// AuthScope is the breadth of access granted for a resource.
type AuthScope string

const (
	// AuthScopePublic allows any caller, anonymous included.
	AuthScopePublic AuthScope = "public"
	// AuthScopeAuthenticated allows any non-anonymous caller.
	AuthScopeAuthenticated AuthScope = "authenticated"
	// AuthScopeRestricted allows only the listed users and group members.
	AuthScopeRestricted AuthScope = "restricted"
)

// Permission maps one resource to an auth scope plus explicit allow-lists.
// Absence of a permission record denies the resource outright.
type Permission struct {
	Resource  Resource  `json:"resource"`
	AuthScope AuthScope `json:"auth_scope"`
	Users     []string  `json:"users,omitempty"`
	Groups    []string  `json:"groups,omitempty"`
}

// Validate checks the permission shape.
func (p Permission) Validate() error {
	switch p.AuthScope {
	case AuthScopePublic, AuthScopeAuthenticated, AuthScopeRestricted:
	default:
		return fmt.Errorf("unknown auth scope %q", p.AuthScope)
	}
	if p.Resource.Kind == "" || p.Resource.Action == "" {
		return fmt.Errorf("permission resource requires kind and action")
	}
	return nil
}
