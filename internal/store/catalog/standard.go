package catalog

import "github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"

func claims(names ...string) []repository.ScopeClaim {
	out := make([]repository.ScopeClaim, len(names))
	for i, n := range names {
		out[i] = repository.ScopeClaim{Name: n}
	}
	return out
}

// StandardScopes retorna los scopes de OIDC Core §5.4 más offline_access.
func StandardScopes() []repository.Scope {
	return []repository.Scope{
		{
			Name:                    repository.ScopeOpenID,
			DisplayName:             "Your user identifier",
			Type:                    repository.ScopeTypeIdentity,
			Enabled:                 true,
			Required:                true,
			ShowInDiscoveryDocument: true,
			Claims:                  []repository.ScopeClaim{{Name: repository.ClaimSubject, AlwaysIncludeInIDToken: true}},
		},
		{
			Name:                    repository.ScopeProfile,
			DisplayName:             "User profile",
			Type:                    repository.ScopeTypeIdentity,
			Enabled:                 true,
			ShowInDiscoveryDocument: true,
			Claims: claims("name", "family_name", "given_name", "middle_name", "nickname",
				"preferred_username", "profile", "picture", "website", "gender", "birthdate",
				"zoneinfo", "locale", "updated_at"),
		},
		{
			Name:                    repository.ScopeEmail,
			DisplayName:             "Your email address",
			Type:                    repository.ScopeTypeIdentity,
			Enabled:                 true,
			ShowInDiscoveryDocument: true,
			Claims:                  claims("email", "email_verified"),
		},
		{
			Name:                    repository.ScopeAddress,
			DisplayName:             "Your postal address",
			Type:                    repository.ScopeTypeIdentity,
			Enabled:                 true,
			ShowInDiscoveryDocument: true,
			Claims:                  claims("address"),
		},
		{
			Name:                    repository.ScopePhone,
			DisplayName:             "Your phone number",
			Type:                    repository.ScopeTypeIdentity,
			Enabled:                 true,
			ShowInDiscoveryDocument: true,
			Claims:                  claims("phone_number", "phone_number_verified"),
		},
		{
			Name:                    repository.ScopeOfflineAccess,
			DisplayName:             "Offline access",
			Type:                    repository.ScopeTypeResource,
			Enabled:                 true,
			ShowInDiscoveryDocument: true,
		},
	}
}
