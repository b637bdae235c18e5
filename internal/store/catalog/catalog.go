// Package catalog carga clientes, scopes y usuarios locales desde YAML y los
// expone como ClientStore / ScopeStore / UserService en memoria.
package catalog

import (
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/validation"
)

// Catalog es el contenido del archivo de catálogo.
type Catalog struct {
	// IncludeStandardScopes agrega openid/profile/email/address/phone/offline_access.
	IncludeStandardScopes bool                `yaml:"include_standard_scopes"`
	Clients               []repository.Client `yaml:"clients" validate:"dive"`
	Scopes                []repository.Scope  `yaml:"scopes" validate:"dive"`
	Users                 []repository.User   `yaml:"users" validate:"dive"`
}

// Solo se expande la forma ${VAR}: los hashes PHC/bcrypt contienen '$' literales.
var envRefRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnv reemplaza ${VAR} por su valor de entorno.
func ExpandEnv(s string) string {
	return envRefRe.ReplaceAllStringFunc(s, func(m string) string {
		return os.Getenv(m[2 : len(m)-1])
	})
}

// Load lee path, expande ${VAR} y valida.
func Load(path string) (*Catalog, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse([]byte(ExpandEnv(string(content))))
}

// Parse decodifica y valida un catálogo YAML.
func Parse(data []byte) (*Catalog, error) {
	c := new(Catalog)
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if c.IncludeStandardScopes {
		c.Scopes = mergeScopes(StandardScopes(), c.Scopes)
	}
	for i := range c.Clients {
		c.Clients[i].ApplyDefaults()
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate aplica las reglas de validator/v10 y las reglas cruzadas.
func (c *Catalog) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		return fmt.Errorf("validate catalog: %w", err)
	}

	scopes := make(map[string]struct{}, len(c.Scopes))
	for _, s := range c.Scopes {
		if !validation.ValidScopeName(s.Name) {
			return fmt.Errorf("validate catalog: invalid scope name %q", s.Name)
		}
		if _, dup := scopes[s.Name]; dup {
			return fmt.Errorf("validate catalog: duplicated scope %q", s.Name)
		}
		scopes[s.Name] = struct{}{}
	}

	clients := make(map[string]struct{}, len(c.Clients))
	for _, cl := range c.Clients {
		if _, dup := clients[cl.ClientID]; dup {
			return fmt.Errorf("validate catalog: duplicated client %q", cl.ClientID)
		}
		clients[cl.ClientID] = struct{}{}

		for _, s := range cl.AllowedScopes {
			if _, ok := scopes[s]; !ok {
				return fmt.Errorf("validate catalog: client %q allows unknown scope %q", cl.ClientID, s)
			}
		}
		if !cl.Public && len(cl.ClientSecrets) == 0 && cl.Flow != repository.FlowImplicit {
			return fmt.Errorf("validate catalog: confidential client %q has no secrets", cl.ClientID)
		}
		if cl.Public && !cl.Flow.RequiresProofKey() && cl.Flow != repository.FlowImplicit {
			return fmt.Errorf("validate catalog: public client %q must use a PKCE flow", cl.ClientID)
		}
	}

	users := make(map[string]struct{}, len(c.Users))
	for _, u := range c.Users {
		key := strings.ToLower(u.Username)
		if _, dup := users[key]; dup {
			return fmt.Errorf("validate catalog: duplicated username %q", u.Username)
		}
		users[key] = struct{}{}
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// mergeScopes agrega extra sobre base; un scope en extra reemplaza al homónimo.
func mergeScopes(base, extra []repository.Scope) []repository.Scope {
	idx := make(map[string]int, len(base))
	out := append([]repository.Scope(nil), base...)
	for i, s := range out {
		idx[s.Name] = i
	}
	for _, s := range extra {
		if i, ok := idx[s.Name]; ok {
			out[i] = s
			continue
		}
		idx[s.Name] = len(out)
		out = append(out, s)
	}
	return out
}
