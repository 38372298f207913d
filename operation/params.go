package operation

import (
	"context"
	"fmt"
	"strings"

	"github.com/tnqbao/gau-site-director/actions"
	"github.com/tnqbao/gau-site-director/entity"
	"gorm.io/datatypes"
)

const (
	maxCustomDomains = 32
	maxCPUs          = 64
	maxMemoryMB      = 1 << 17
)

// ValidationError rejects a request before any operation row exists.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NameChecker reports whether another site already uses a name.
type NameChecker interface {
	ExistsByName(ctx context.Context, name string, excludeID uint) (bool, error)
}

// ImageFinder looks up selectable images.
type ImageFinder interface {
	FindByName(ctx context.Context, name string) (*entity.DockerImage, error)
}

type Validator struct {
	names     NameChecker
	images    ImageFinder
	blocklist []string
}

func NewValidator(names NameChecker, images ImageFinder, blocklist []string) *Validator {
	return &Validator{names: names, images: images, blocklist: blocklist}
}

// Validate checks and normalizes the params of one operation type. The
// returned map is what gets persisted and later seeded into the scope.
func (v *Validator) Validate(ctx context.Context, site *entity.Site, opType entity.OperationType, params map[string]any) (datatypes.JSONMap, error) {
	if !opType.Valid() {
		return nil, invalid("type", "unknown operation type %q", opType)
	}
	out := datatypes.JSONMap{}

	switch opType {
	case entity.OperationRenameSite:
		name, ok := params[actions.ScopeNewName].(string)
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, invalid(actions.ScopeNewName, "is required")
		}
		if err := entity.ValidateSiteName(name, v.blocklist); err != nil {
			return nil, invalid(actions.ScopeNewName, "%v", err)
		}
		taken, err := v.names.ExistsByName(ctx, name, site.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check site name: %w", err)
		}
		if taken {
			return nil, invalid(actions.ScopeNewName, "is already taken")
		}
		out[actions.ScopeNewName] = name

	case entity.OperationChangeSiteType:
		raw, _ := params[actions.ScopeNewType].(string)
		newType := entity.SiteType(raw)
		if !newType.Valid() {
			return nil, invalid(actions.ScopeNewType, "must be static or dynamic")
		}
		out[actions.ScopeNewType] = string(newType)

	case entity.OperationEditSiteNames:
		domains, err := stringList(params[actions.ScopeDomains])
		if err != nil {
			return nil, invalid(actions.ScopeDomains, "%v", err)
		}
		if len(domains) > maxCustomDomains {
			return nil, invalid(actions.ScopeDomains, "at most %d domains are allowed", maxCustomDomains)
		}
		for _, d := range domains {
			if err := validateDomain(d); err != nil {
				return nil, invalid(actions.ScopeDomains, "%v", err)
			}
		}
		if !site.DomainsEnabled && len(domains) > 0 {
			return nil, invalid(actions.ScopeDomains, "custom domains are disabled for this site")
		}
		out[actions.ScopeDomains] = domains

	case entity.OperationUpdateResourceLimits:
		cpus, ok := number(params[actions.ScopeCPUs])
		if !ok || cpus <= 0 || cpus > maxCPUs {
			return nil, invalid(actions.ScopeCPUs, "must be between 0 and %d", maxCPUs)
		}
		memory, ok := number(params[actions.ScopeMemoryMB])
		if !ok || memory <= 0 || memory > maxMemoryMB || memory != float64(int(memory)) {
			return nil, invalid(actions.ScopeMemoryMB, "must be a whole number of megabytes up to %d", maxMemoryMB)
		}
		out[actions.ScopeCPUs] = cpus
		out[actions.ScopeMemoryMB] = int(memory)

	case entity.OperationUpdateDockerImage:
		name, _ := params[actions.ScopeDockerImage].(string)
		if name == "" {
			return nil, invalid(actions.ScopeDockerImage, "is required")
		}
		if _, err := v.images.FindByName(ctx, name); err != nil {
			return nil, invalid(actions.ScopeDockerImage, "unknown image %q", name)
		}
		out[actions.ScopeDockerImage] = name

	case entity.OperationCreateSiteDatabase:
		dbms := entity.DBMSPostgres
		if raw, ok := params[actions.ScopeDBMS].(string); ok && raw != "" {
			dbms = entity.DBMS(raw)
		}
		if !dbms.Valid() {
			return nil, invalid(actions.ScopeDBMS, "must be postgres or mysql")
		}
		out[actions.ScopeDBMS] = string(dbms)

	case entity.OperationDeleteSiteDatabase, entity.OperationRegenSiteSecrets:
		// no params

	case entity.OperationRestartSite:
		if !site.IsDynamic() {
			return nil, invalid("", "only dynamic sites can be restarted")
		}
	}

	return out, nil
}

func stringList(raw any) ([]string, error) {
	switch v := raw.(type) {
	case nil:
		return []string{}, nil
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("must be a list of strings")
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("must be a list of strings")
}

func number(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func validateDomain(domain string) error {
	d := strings.ToLower(strings.TrimSpace(domain))
	if d == "" || len(d) > 253 {
		return fmt.Errorf("invalid domain %q", domain)
	}
	labels := strings.Split(d, ".")
	if len(labels) < 2 {
		return fmt.Errorf("domain %q needs a top-level domain", domain)
	}
	for _, label := range labels {
		if label == "" || len(label) > 63 || strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return fmt.Errorf("invalid domain %q", domain)
		}
		for _, r := range label {
			if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-') {
				return fmt.Errorf("invalid domain %q", domain)
			}
		}
	}
	return nil
}
